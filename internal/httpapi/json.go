// Package httpapi is the JSON REST surface of spec §6: a chi router,
// net/http middleware chain, and handlers delegating to the domain
// services built elsewhere in this module. It holds no business logic of
// its own beyond request/response marshaling and validation at the wire
// boundary (spec §9: "validate at both ingress and egress").
package httpapi

import (
	"encoding/json"
	"net/http"

	"runcore/internal/platform/apperror"
)

const maxJSONBodyBytes = 1 << 20 // 1 MiB, generous for any non-upload JSON body

// decodeJSON reads and unmarshals a JSON request body into v, rejecting
// unknown fields so a malformed client request fails fast instead of
// silently dropping data (spec §7 VALIDATION_ERROR).
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		apperror.WriteHTTP(w, apperror.NewWithField(apperror.CodeValidation, "malformed request body", "").WithDetails("cause", err.Error()))
		return false
	}
	return true
}

// writeJSON writes v as a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
