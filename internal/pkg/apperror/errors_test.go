package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeNotFound:      http.StatusNotFound,
		ErrCodeUnauthorized:  http.StatusUnauthorized,
		ErrCodeForbidden:     http.StatusForbidden,
		ErrCodeValidation:    http.StatusBadRequest,
		ErrCodeConflict:      http.StatusConflict,
		ErrCodeUpstream:      http.StatusBadGateway,
		ErrCodeInconsistency: http.StatusInternalServerError,
		ErrCodeInternal:      http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, New(code, "x").HTTPStatus, code)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("settlement: %w", Wrap(cause, ErrCodeUpstream, "ошибка провайдера"))

	assert.True(t, IsUpstream(err))
	assert.False(t, IsConflict(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeUpstream, CodeOf(err))
	assert.Equal(t, ErrCodeInternal, CodeOf(cause))
}
