package api

import (
	"fmt"
	"net/http"
	"strings"
)

// ApiError is the JSON body of every non-GraphQL error response.
type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// newApiError uses the lower-cased status text as the message.
func newApiError(status int, err error) *ApiError {
	return &ApiError{
		StatusCode: status,
		Message:    strings.ToLower(http.StatusText(status)),
		Err:        err,
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, nil)
}

func NewInternalServerError(err error) *ApiError {
	return newApiError(http.StatusInternalServerError, err)
}

func NewMethodNotAllowedError() *ApiError {
	return newApiError(http.StatusMethodNotAllowed, nil)
}

func NewServiceUnavailableError(err error) *ApiError {
	return newApiError(http.StatusServiceUnavailable, err)
}
