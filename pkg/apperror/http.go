package apperror

import (
	"encoding/json"
	"errors"
	"net/http"
)

// errorBody is the wire shape of an error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError serializes err as the standard error envelope. Errors
// outside the taxonomy are reported as kind "internal" with a generic
// detail so server-side causes do not leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	detail := "internal server error"
	var ae *Error
	if errors.As(err, &ae) && kind != KindInternal {
		detail = ae.Detail
	}
	WriteJSON(w, HTTPStatus(kind), errorBody{Error: errorDetail{Kind: kind, Detail: detail}})
}
