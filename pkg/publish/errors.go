package publish

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a failure that already knows the status code and message
// to report to the npm client.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Errorf builds a StatusError with a formatted message.
func Errorf(code int, format string, args ...interface{}) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// asStatusError keeps errors that carry a status and turns everything else
// into a 500 "unknown error".
func asStatusError(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) && se.Code != 0 && se.Message != "" {
		return se
	}
	return &StatusError{Code: http.StatusInternalServerError, Message: "unknown error"}
}

// Banner wraps a message so it stands out in the terminal. The npm client
// prints the error field of a failed publish verbatim.
func Banner(message string) string {
	return "\n===============================\n" +
		"Publish service error\n" +
		"-------------------------------\n" +
		message + "\n" +
		"===============================\n"
}

// FailureBody is the JSON document written for a rejected request.
type FailureBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}
