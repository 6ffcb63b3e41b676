package json

import (
	"encoding/json"
	"net/http"

	"github.com/studio-arteamo/sitecms/internal/log"
)

// ConfigErrorMessage is reported whenever required settings are missing.
const ConfigErrorMessage = "Server configuration error"

// ErrorResponse is the JSON error body shared by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteResponse writes data as JSON with the given status code.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogError("Failed to encode JSON response: %v", err)
		return err
	}
	return nil
}

// Write writes data as JSON with 200 OK.
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes an ErrorResponse. details may be empty.
func WriteError(w http.ResponseWriter, statusCode int, message, details string) {
	resp := ErrorResponse{Error: message, Details: details}
	if err := WriteResponse(w, statusCode, resp); err != nil {
		http.Error(w, message, statusCode)
	}
}

func WriteConfigError(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusInternalServerError, ConfigErrorMessage, details)
}

func WriteUnauthorized(w http.ResponseWriter, details string) {
	WriteError(w, http.StatusUnauthorized, "Unauthorized", details)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, "")
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, "")
}
