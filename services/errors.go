package services

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// MsgNetworkError is shown when no response arrived at all.
	MsgNetworkError = "Network error. Please check your connection and try again."
	// MsgGeneric is shown for statuses outside the canned table.
	MsgGeneric = "Something went wrong. Please try again later."
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "The request was invalid. Please check your input.",
	http.StatusUnauthorized:        "Your session has expired. Please sign in again.",
	http.StatusForbidden:           "You do not have permission to perform this action.",
	http.StatusNotFound:            "The requested resource could not be found.",
	http.StatusNotAcceptable:       "The requested format is not acceptable.",
	http.StatusGone:                "The requested resource is no longer available.",
	http.StatusUnprocessableEntity: "The submitted data could not be processed.",
	http.StatusInternalServerError: "The server encountered an error. Please try again later.",
	http.StatusBadGateway:          "Bad gateway. The server received an invalid response.",
	http.StatusServiceUnavailable:  "The service is temporarily unavailable. Please try again later.",
	http.StatusGatewayTimeout:      "The server took too long to respond.",
}

// ErrorMessage maps an HTTP status to its user-facing text.
func ErrorMessage(status int) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return MsgGeneric
}

var (
	// ErrTokenExpired marks requests refused before dispatch because the access token expired.
	ErrTokenExpired = errors.New("access token expired")
	// ErrNotConnected is returned by Emit when the socket is down; the event is dropped.
	ErrNotConnected = errors.New("socket not connected")
	// ErrSendBufferFull is returned by Emit when the outbound queue is saturated; the event is dropped.
	ErrSendBufferFull = errors.New("socket send buffer full")
)

// APIError is a failed REST call. Status is 0 when no response was received.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("api %d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("api %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// forcesSignOut reports whether a failure with this status ends the session.
func forcesSignOut(status int) bool {
	return status == 0 || status == http.StatusUnauthorized || status == http.StatusForbidden
}
