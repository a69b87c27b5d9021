package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Is(t *testing.T) {
	wrapped := fmt.Errorf("verify: %w", ErrInvalidOTP)

	assert.ErrorIs(t, wrapped, ErrInvalidOTP)
	assert.NotErrorIs(t, wrapped, ErrOTPExpired)
	assert.ErrorIs(t, NewAuthStateError("Invalid OTP"), ErrInvalidOTP)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(ErrUserAlreadyExists))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("x: %w", ErrUserNotFound)))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestNewInternalError_KeepsCause(t *testing.T) {
	cause := errors.New("db down")
	err := NewInternalError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Something went wrong", err.Message)
	assert.Contains(t, err.Error(), "db down")
}
