package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ValidateRequest validates a struct using the validator package
func ValidateRequest(logger *zap.Logger, w http.ResponseWriter, r *http.Request, req any) bool {
	if err := validate.Struct(req); err != nil {
		logger.Warn("Validation failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)

		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			respondWithError(w, http.StatusBadRequest, "Validation failed", nil)
			return false
		}

		details := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			details = append(details, fmt.Sprintf("%s: failed on %s", fe.Field(), fe.Tag()))
		}
		respondWithError(w, http.StatusBadRequest, "Validation failed", details)
		return false
	}
	return true
}

// decodeJSON reads a JSON request body. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

// respondWithError is a helper to send error responses
func respondWithError(w http.ResponseWriter, status int, message string, details []string) {
	respondWithJSON(w, status, errorResponse{Error: message, Details: details})
}

// respondWithCode sends an error response carrying an error code
func respondWithCode(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondWithJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
