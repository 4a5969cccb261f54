package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"celldock/internal/domain"
	"celldock/internal/services"
	pkgcontext "celldock/pkg/context"
)

// AuthMiddleware validates session tokens. A token only opens the session it
// was issued for. Browsers cannot set headers on websocket upgrades, so the
// token may also come as the token query parameter.
func AuthMiddleware(jwtService *services.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token", zap.Error(err))
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired token", nil)
				return
			}

			if id := chi.URLParam(r, "id"); id != "" && id != claims.SessionID {
				respondWithError(w, http.StatusForbidden, "Token does not grant access to this session", nil)
				return
			}

			ctx := domain.WithSessionID(r.Context(), claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			reqLogger := logger.With(zap.String("request_id", requestID))

			ctx := domain.WithRequestID(r.Context(), requestID)
			ctx = pkgcontext.WithLogger(ctx, reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
			)
		})
	}
}
