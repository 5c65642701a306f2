// Package httputil centralizes JSON response writing so every handler speaks
// the same envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"roster/pkg/domainerrors"
)

// WriteJSON encodes v with the given status. Encoding errors at this point
// cannot be reported to the client anymore, so they are dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope. Internal
// errors omit the description so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	body := map[string]string{"error": string(code)}

	var de *domainerrors.Error
	if code != domainerrors.CodeInternal && errors.As(err, &de) && de.Message != "" {
		body["error_description"] = de.Message
	}
	WriteJSON(w, toStatus(code), body)
}

func toStatus(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeValidation:
		return http.StatusBadRequest
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeUnavailable:
		return http.StatusBadGateway
	case domainerrors.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
