package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/versesync/versesync/pkg/sync/models"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// serviceParam parses and validates a service name from a request value.
// Returns false after writing a 400 when the value is missing or unknown.
func serviceParam(w http.ResponseWriter, value string) (models.ServiceType, bool) {
	service := models.ServiceType(value)
	if !service.IsValid() {
		BadRequest(w, "Unknown or missing service")
		return "", false
	}
	return service, true
}
