package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := E(ErrNotFound, "read users/abc", cause)

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "read users/abc: not found: boom", err.Error())

	var coreErr *Error
	assert.True(t, errors.As(err, &coreErr))
	assert.Equal(t, "read users/abc", coreErr.Op)
}

func TestErrorDefaultsToStorage(t *testing.T) {
	err := E(nil, "list", errors.New("network down"))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, ErrStorage, KindOf(err))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", E(ErrConflict, "update", nil))
	assert.Equal(t, ErrConflict, KindOf(err))
	assert.Equal(t, ErrStorage, KindOf(errors.New("plain")))
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{E(ErrNotFound, "", nil), http.StatusNotFound},
		{E(ErrConflict, "", nil), http.StatusBadRequest},
		{E(ErrValidation, "", nil), http.StatusBadRequest},
		{E(ErrNotConnected, "", nil), http.StatusServiceUnavailable},
		{E(ErrConnection, "", nil), http.StatusBadGateway},
		{E(ErrStorage, "", nil), http.StatusInternalServerError},
		{errors.New("something unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err), "error %v", tc.err)
	}
}
