package middleware

import (
	"encoding/json"
	"net/http"

	"shop-admin/internal/domain"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Envelope is the single JSON response shape of every endpoint
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

// RespondWithJSON sends a successful envelope
func RespondWithJSON(w http.ResponseWriter, statusCode int, message string, data any) {
	writeEnvelope(w, statusCode, Envelope{Success: true, Message: message, Data: data})
}

// RespondWithError sends a failed envelope
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	writeEnvelope(w, statusCode, Envelope{Success: false, Message: message})
}

// RespondWithValidationErrors sends a 422 envelope listing the invalid fields
func RespondWithValidationErrors(w http.ResponseWriter, fields []domain.FieldError) {
	writeEnvelope(w, http.StatusUnprocessableEntity, Envelope{
		Success: false,
		Message: "validation failed",
		Errors:  fields,
	})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(env)
}

// StatusFor maps an error onto the HTTP status its class calls for
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to callers for err. Unexpected failures get
// fallback so no internal detail leaks out.
func PublicMessage(err error, fallback string) string {
	if StatusFor(err) == http.StatusInternalServerError {
		return fallback
	}
	if fields := domain.ValidationFields(err); len(fields) > 0 {
		return "validation failed"
	}
	return err.Error()
}

// WriteError renders err as an envelope. Unexpected failures are logged with
// the request context and answered with fallback.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, fallback string) {
	status := StatusFor(err)
	switch status {
	case http.StatusUnprocessableEntity:
		RespondWithValidationErrors(w, domain.ValidationFields(err))
		return
	case http.StatusInternalServerError:
		logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}
	RespondWithError(w, status, PublicMessage(err, fallback))
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)

					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
