package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBody_AuthFailure(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	body := NewBody(NewAuthFailure("token_expired", "token has expired"), now)

	assert.Equal(t, "Unauthorized", body.Error)
	assert.Equal(t, "token_expired", body.Reason)
	assert.Equal(t, "token has expired", body.Message)
	assert.Equal(t, http.StatusUnauthorized, body.Status)
	assert.Equal(t, now.UnixMilli(), body.Timestamp)
}

func TestNewBody_HidesInternalErrors(t *testing.T) {
	body := NewBody(errors.New("dial tcp 10.0.0.3:3306: connection refused"), time.Now())

	assert.Equal(t, http.StatusInternalServerError, body.Status)
	assert.NotContains(t, body.Message, "3306")
}

func TestNewBody_Validation(t *testing.T) {
	err := NewValidation("email already exists", map[string]string{"email": "email already exists"})
	body := NewBody(fmt.Errorf("register: %w", err), time.Now())

	assert.Equal(t, http.StatusBadRequest, body.Status)
	assert.Equal(t, "Bad Request", body.Error)
	assert.Equal(t, "email already exists", body.Fields["email"])
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFound("user not found")))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", NewNotFound("x"))))
	assert.False(t, IsNotFound(NewUnauthorized("x")))
	assert.False(t, IsNotFound(errors.New("x")))
	assert.False(t, IsNotFound(nil))
}

func TestNewUnavailable(t *testing.T) {
	cause := errors.New("context deadline exceeded")
	err := NewUnavailable("directory_unavailable", cause)

	assert.Equal(t, http.StatusServiceUnavailable, SafeCode(err))
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, SafeMessage(err), "deadline")
}
