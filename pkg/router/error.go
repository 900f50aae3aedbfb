package router

import (
	"encoding/json"
	"io"
)

// Error is an error a handler can return that knows its HTTP status and how
// to render itself onto the response body.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

// JsonError is the JSON error envelope. It optionally wraps the underlying
// cause, so errors.Is still sees the sentinel behind a handler's response.
type JsonError struct {
	Code  int    `json:"code"`
	Err   string `json:"error"`
	cause error
}

func NewJsonError(code int, err string) JsonError {
	return JsonError{
		Code: code,
		Err:  err,
	}
}

// WrapJsonError builds the envelope from err's message and keeps err as the
// unwrap target.
func WrapJsonError(code int, err error) JsonError {
	return JsonError{
		Code:  code,
		Err:   err.Error(),
		cause: err,
	}
}

func (e JsonError) StatusCode() int {
	return e.Code
}

func (e JsonError) Error() string {
	return e.Err
}

func (e JsonError) Unwrap() error {
	return e.cause
}

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}
