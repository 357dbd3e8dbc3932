// Package envelope implements the uniform JSON response shape shared by
// the gateway and every backend service:
//
//	{success, message, timestamp, data?, error?}
//
// together with the failure taxonomy that maps typed errors onto it.
package envelope

import (
	"net/http"
	"time"

	"github.com/shopmesh/shopmesh/internal/jsoncodec"
)

// Response is the wire shape of every JSON reply.
type Response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Error     any    `json:"error,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// WriteSuccess writes a success envelope with the given status and data.
func WriteSuccess(w http.ResponseWriter, status int, message string, data any) {
	_ = jsoncodec.WriteJSON(w, status, Response{
		Success:   true,
		Message:   message,
		Timestamp: now(),
		Data:      data,
	})
}

// WriteFailure writes a failure envelope. The error payload is optional
// and carries structured detail such as validation errors.
func WriteFailure(w http.ResponseWriter, status int, message string, errPayload any) {
	_ = jsoncodec.WriteJSON(w, status, Response{
		Success:   false,
		Message:   message,
		Timestamp: now(),
		Error:     errPayload,
	})
}

// WriteKind maps a failure kind onto its status code and writes the
// envelope. Internal detail is only exposed in development mode.
func WriteKind(w http.ResponseWriter, kind Kind, message string, err error, development bool) {
	var payload any
	if err != nil && development {
		payload = err.Error()
	}
	if message == "" {
		message = kind.DefaultMessage()
	}
	WriteFailure(w, kind.Status(), message, payload)
}
