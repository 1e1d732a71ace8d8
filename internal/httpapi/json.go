// Package httpapi holds the pieces shared by every API version: JSON
// responses, error mapping, and request logging.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ToJSON writes a JSON response with status code.
func ToJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes a request body of at most MaxBodyBytes, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// WriteDecodeErr reports a DecodeJSON failure: 413 for an oversized body, 400 otherwise.
func WriteDecodeErr(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteErr(w, http.StatusRequestEntityTooLarge, "request body too large", "body_too_large")
		return
	}
	BadRequest(w, "invalid JSON: "+err.Error())
}
