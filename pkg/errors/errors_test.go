package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := ErrInternalServer.WithMessage("failed").WithInternal(stdErrors.New("boom"))
	require.Equal(t, "failed: boom", err.Error())
	require.Equal(t, http.StatusInternalServerError, err.StatusCode)
	require.Equal(t, "Internal server error", ErrInternalServer.Message)
}

func TestWithInternalCopies(t *testing.T) {
	with := ErrUnauthorized.WithInternal(stdErrors.New("token expired"))

	require.NotSame(t, ErrUnauthorized, with)
	require.Nil(t, ErrUnauthorized.Internal)
	require.ErrorIs(t, with, ErrUnauthorized)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", ErrTooManyRequests.WithMessage("slow down"))

	require.ErrorIs(t, wrapped, ErrTooManyRequests)
	require.NotErrorIs(t, wrapped, ErrUnauthorized)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)

	require.Nil(t, FromError(nil))
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, "invalid payload", err.Message)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
}
