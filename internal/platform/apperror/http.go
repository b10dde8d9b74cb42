package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// httpBody is the wire shape of an error response.
type httpBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// WriteHTTP writes err to w as a JSON error body with the status HTTPStatus
// maps it to. Non-*Error values are reported as CodeInternal without
// leaking their message to the client.
func WriteHTTP(w http.ResponseWriter, err error) {
	body := httpBody{Code: CodeInternal, Message: "internal error"}

	var appErr *Error
	if errors.As(err, &appErr) {
		body = httpBody{Code: appErr.Code, Message: appErr.Message, Field: appErr.Field}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(body)
}
