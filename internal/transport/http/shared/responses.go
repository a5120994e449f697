// Package shared holds the response helpers every handler uses so error
// envelopes and JSON encoding stay identical across the API surface.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "docsign/pkg/domain-errors"
)

// ErrorResponse is the JSON envelope for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON encodes v with the given status. Encoding failures are
// swallowed; the status line has already been sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a coded domain error to its HTTP status and the
// shared error envelope. Uncoded errors surface as 500 INTERNAL without
// leaking their cause.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), ErrorResponse{
		Error:   string(code),
		Message: dErrors.MessageOf(err),
	})
}
