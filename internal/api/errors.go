package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/gmkit/pkg/gm"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// classify maps a library error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, gm.ErrRelocation):
		return http.StatusBadRequest, "relocation_error"
	case errors.Is(err, gm.ErrFormat):
		return http.StatusBadRequest, "format_error"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
