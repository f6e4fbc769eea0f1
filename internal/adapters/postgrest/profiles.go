package postgrest

// Package postgrest reads user rows over the backend's PostgREST data API.
// Row-level security on the server decides what the presented token may see;
// this adapter only shapes queries and maps failures into the error taxonomy.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	apperrors "github.com/canvango/canvango-group/internal/errors"
	"github.com/canvango/canvango-group/internal/ports"
)

// Reader queries the users table through the REST data API.
type Reader struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

var _ ports.ProfileReader = (*Reader)(nil)

// ReaderConfig holds configuration for the profile reader.
type ReaderConfig struct {
	// ProjectURL is the backend project base URL; the data API lives under
	// {ProjectURL}/rest/v1.
	ProjectURL string
	// AnonKey is the public API key sent as the apikey header.
	AnonKey string
	// HTTPClient is optional; defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// NewReader creates a new profile reader.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.ProjectURL == "" {
		return nil, errors.New("project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("anon key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Reader{
		baseURL:    strings.TrimSuffix(cfg.ProjectURL, "/") + "/rest/v1",
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
	}, nil
}

// userRow mirrors the users table columns consumed client-side.
type userRow struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Reader) ProfileByID(ctx context.Context, accessToken, userID string) (domainauth.Profile, error) {
	if userID == "" {
		return domainauth.Profile{}, apperrors.ProfileNotFound("user id is required")
	}

	var row userRow
	if err := r.getSingle(ctx, accessToken, userID, "*", &row); err != nil {
		return domainauth.Profile{}, err
	}

	role := domainauth.Role(row.Role)
	if !role.Valid() {
		// An unknown role never grants privileges; degrade to guest.
		role = domainauth.RoleGuest
	}

	return domainauth.Profile{
		ID:        row.ID,
		Username:  row.Username,
		Email:     row.Email,
		FullName:  row.FullName,
		Role:      role,
		Balance:   row.Balance,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (r *Reader) RoleByID(ctx context.Context, accessToken, userID string) (domainauth.Role, error) {
	if userID == "" {
		return "", apperrors.ProfileNotFound("user id is required")
	}

	var row struct {
		Role string `json:"role"`
	}
	if err := r.getSingle(ctx, accessToken, userID, "role", &row); err != nil {
		return "", err
	}

	role := domainauth.Role(row.Role)
	if !role.Valid() {
		return domainauth.RoleGuest, nil
	}
	return role, nil
}

// getSingle fetches exactly one users row by id with the given column
// projection, using the single-object representation so a missing row is an
// explicit error rather than an empty array.
func (r *Reader) getSingle(ctx context.Context, accessToken, userID, columns string, out any) error {
	query := url.Values{}
	query.Set("id", "eq."+userID)
	query.Set("select", columns)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/users?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", r.anonKey)
	bearer := accessToken
	if bearer == "" {
		bearer = r.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperrors.FromContext(ctxErr, "profile query")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "profile query")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "read profile response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.SessionExpired("profile query rejected: token invalid or expired")
	case resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusNotFound:
		// PostgREST answers 406 when the single-object representation matches
		// zero rows.
		return apperrors.ProfileNotFoundf("no user row for id %s", userID)
	case resp.StatusCode >= 400:
		return apperrors.Internalf("profile query failed (HTTP %d)", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode profile response")
	}
	return nil
}
