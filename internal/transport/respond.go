package transport

import (
	"net/http"

	"shop-admin/internal/domain"
	"shop-admin/internal/middleware"

	"go.uber.org/zap"
)

// responder answers mutations for both kinds of caller: API clients get the
// JSON envelope, admin pages are redirected back with a flash message.
type responder struct {
	logger *zap.Logger
}

func (rs responder) done(w http.ResponseWriter, r *http.Request, status int, message string, data any, index string) {
	if wantsJSON(r) {
		middleware.RespondWithJSON(w, status, message, data)
		return
	}
	redirectBack(w, r, index, Flash{Success: message})
}

func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error, fallback, index string) {
	if wantsJSON(r) {
		middleware.WriteError(w, r, rs.logger, err, fallback)
		return
	}
	if middleware.StatusFor(err) == http.StatusInternalServerError {
		rs.logger.Error("Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
	}
	redirectBack(w, r, index, Flash{
		Error:  middleware.PublicMessage(err, fallback),
		Errors: domain.ValidationFields(err),
	})
}
