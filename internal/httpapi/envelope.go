// Package httpapi holds the JSON response envelope shared by the
// monitor and strategy HTTP servers, and the net/http mux constructors
// for each.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform {success, message, data} response shape used
// by every handler in this module.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes status and v (wrapped in an Envelope if v isn't
// already one) as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteOK writes a 200 success envelope carrying data.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteCreated writes a 201 success envelope carrying data.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// WriteError writes a failure envelope with the given status and message.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}
