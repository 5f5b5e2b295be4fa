package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(errors.NotFound("budget", 7)))
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(stderrors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", errors.InvalidState("not in progress"))
	assert.True(t, errors.IsInvalidState(wrapped))
	assert.False(t, errors.IsUnauthorized(wrapped))
}

func TestWrapKeepsInnerCode(t *testing.T) {
	inner := errors.Unauthorized("role ACCOUNTANT cannot validate")
	err := errors.Wrap(inner, errors.ErrCodeInternal, "transition failed")
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
	assert.Nil(t, errors.Wrap(nil, errors.ErrCodeInternal, "noop"))
}

func TestErrorMessage(t *testing.T) {
	err := errors.InvalidInput("comment", "a comment is required to reject")
	assert.Equal(t, "comment: a comment is required to reject", err.Error())
	assert.Equal(t, "budget 3 not found", errors.NotFound("budget", 3).Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[errors.Code]int{
		errors.ErrCodeUnauthorized:    http.StatusForbidden,
		errors.ErrCodeUnauthenticated: http.StatusUnauthorized,
		errors.ErrCodeInvalidState:    http.StatusConflict,
		errors.ErrCodeConflict:        http.StatusConflict,
		errors.ErrCodeNotFound:        http.StatusNotFound,
		errors.ErrCodeInvalidInput:    http.StatusBadRequest,
		errors.ErrCodeInternal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, errors.HTTPStatus(code), code)
	}
}
