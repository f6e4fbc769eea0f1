package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	plain := Authentication("invalid login credentials")
	assert.Equal(t, "invalid login credentials", plain.Error())

	cause := errors.New("connection refused")
	wrapped := Wrap(cause, ErrCodeInternal, "fetch profile")
	assert.Equal(t, "fetch profile: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "ignored %d", 1))
	assert.Nil(t, FromContext(nil, "ignored"))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		err       error
		code      ErrorCode
		predicate func(error) bool
	}{
		{Authentication("x"), ErrCodeAuthentication, IsAuthentication},
		{Conflict("x"), ErrCodeConflict, IsConflict},
		{RateLimited("x"), ErrCodeRateLimited, IsRateLimited},
		{SessionExpired("x"), ErrCodeSessionExpired, IsSessionExpired},
		{ProfileNotFound("x"), ErrCodeProfileNotFound, IsProfileNotFound},
		{Timeout("x"), ErrCodeTimeout, IsTimeout},
		{Internal("x"), ErrCodeInternal, IsInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.True(t, tt.predicate(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
			// Predicates must also see through wrapping.
			assert.True(t, tt.predicate(fmt.Errorf("outer: %w", tt.err)))
		})
	}
}

func TestPredicatesRejectOtherCodes(t *testing.T) {
	assert.False(t, IsAuthentication(Conflict("dup")))
	assert.False(t, IsTimeout(errors.New("plain")))
	assert.Empty(t, GetCode(errors.New("plain")))
}

func TestIsAuthClass(t *testing.T) {
	assert.True(t, IsAuthClass(Authentication("bad creds")))
	assert.True(t, IsAuthClass(SessionExpired("stale token")))
	assert.False(t, IsAuthClass(Timeout("slow")))
	assert.False(t, IsAuthClass(ProfileNotFound("missing")))
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	canceled := FromContext(ctx.Err(), "profile fetch")
	require.NotNil(t, canceled)
	assert.True(t, IsCanceled(canceled))

	deadline := FromContext(context.DeadlineExceeded, "profile fetch")
	require.NotNil(t, deadline)
	assert.True(t, IsTimeout(deadline))

	other := FromContext(errors.New("boom"), "profile fetch")
	require.NotNil(t, other)
	assert.True(t, IsInternal(other))
}
