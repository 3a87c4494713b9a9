package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	base := New(ErrCodeAccountLocked, "account is locked").WithDetail("retry_after_minutes", 3)
	wrapped := fmt.Errorf("login: %w", base)

	assert.True(t, IsCode(wrapped, ErrCodeAccountLocked))
	assert.False(t, IsCode(wrapped, ErrCodeInvalidCredentials))
	assert.Equal(t, ErrCodeAccountLocked, GetCode(wrapped))
	assert.Equal(t, 3, GetDetails(wrapped)["retry_after_minutes"])
}

func TestUnstructuredErrorsAreUnavailable(t *testing.T) {
	err := stderrors.New("connection refused")

	assert.Equal(t, ErrCodeUnavailable, GetCode(err))
	assert.Nil(t, GetDetails(err))
	assert.Equal(t, "service temporarily unavailable", PublicMessage(err))
}

func TestUnavailableHidesCause(t *testing.T) {
	cause := stderrors.New("pq: relation accounts does not exist")
	err := Unavailable(cause)

	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, PublicMessage(err), "relation")
	assert.Contains(t, err.Error(), "relation")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeUnavailable, "x"))
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeConflict:              http.StatusConflict,
		ErrCodeInvalidInput:          http.StatusBadRequest,
		ErrCodeInvalidPassword:       http.StatusBadRequest,
		ErrCodeInvalidCredentials:    http.StatusUnauthorized,
		ErrCodeAccountLocked:         http.StatusLocked,
		ErrCodeAccountDeactivated:    http.StatusForbidden,
		ErrCode2FARequired:           http.StatusUnauthorized,
		ErrCode2FAInvalid:            http.StatusUnauthorized,
		ErrCodeTokenInvalid:          http.StatusUnauthorized,
		ErrCodeTokenInvalidOrExpired: http.StatusBadRequest,
		ErrCodeNotFound:              http.StatusNotFound,
		ErrCodeUnavailable:           http.StatusServiceUnavailable,
		ErrorCode("SOMETHING_ELSE"):  http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, status, MapErrorCodeToHTTPStatus(code))
			assert.Equal(t, status, New(code, "x").HTTPStatusCode())
		})
	}
}
