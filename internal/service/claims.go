package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claimsParser decodes without verifying: signature checks are the backend's
// job, we only need the embedded subject and expiry for local bookkeeping.
var claimsParser = jwt.NewParser(jwt.WithoutClaimsValidation())

// subjectFromToken extracts the user id (sub claim) from an access token.
func subjectFromToken(accessToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(accessToken, claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("access token has no subject claim")
	}
	return sub, nil
}

// expiryFromToken extracts the exp claim from an access token. Returns the
// zero time when the token carries no expiry.
func expiryFromToken(accessToken string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read expiry claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
