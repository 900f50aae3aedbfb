package router

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errNotFound = errors.New("thing not found")

func Test_mapError(t *testing.T) {
	router := New()
	router.RegisterErrorMapper(errNotFound, func(err error) Error {
		return NewJsonError(http.StatusNotFound, errNotFound.Error())
	})

	tcs := []struct {
		name string
		err  error
		exp  Error
	}{
		{
			name: "registered sentinel",
			err:  errNotFound,
			exp:  NewJsonError(http.StatusNotFound, "thing not found"),
		},
		{
			name: "wrapped sentinel",
			err:  fmt.Errorf("GetThing: %w", errNotFound),
			exp:  NewJsonError(http.StatusNotFound, "thing not found"),
		},
		{
			name: "unregistered error falls back to default",
			err:  errors.New("random error"),
			exp:  router.defaultError,
		},
		{
			name: "json error passes through",
			err:  NewJsonError(http.StatusBadRequest, "bad input"),
			exp:  NewJsonError(http.StatusBadRequest, "bad input"),
		},
		{
			name: "wrapped json error passes through",
			err:  fmt.Errorf("handler: %w", NewJsonError(http.StatusForbidden, "nope")),
			exp:  NewJsonError(http.StatusForbidden, "nope"),
		},
		{
			name: "json error carrying a cause passes through",
			err:  WrapJsonError(http.StatusForbidden, errNotFound),
			exp:  WrapJsonError(http.StatusForbidden, errNotFound),
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got := router.mapError(tc.err)
			assert.Equal(t, tc.exp, got)
		})
	}
}

func Test_JsonErrorUnwrap(t *testing.T) {
	wrapped := WrapJsonError(http.StatusForbidden, errNotFound)

	// the envelope keeps the sentinel reachable for errors.Is
	assert.True(t, errors.Is(wrapped, errNotFound))
	assert.Equal(t, "thing not found", wrapped.Error())
	assert.Equal(t, http.StatusForbidden, wrapped.StatusCode())

	assert.Nil(t, NewJsonError(http.StatusBadRequest, "bad input").Unwrap())
}
