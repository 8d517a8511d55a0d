package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"exproctor/internal/utils"
	"exproctor/pkg/types"

	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/sirupsen/logrus"
)

// Context key types to avoid collisions
type contextKey string

const (
	contextKeyUserID contextKey = "user_id"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = utils.NanoIDSize(16)
		}
		rw.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(rw, r)

		s.logger.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

// RequireAuth verifies the bearer JWT against the configured JWKS and puts
// the numeric subject in the context as the user id. Without a JWKS the API
// is open and handlers take the user id from the request.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.jwksCache == nil {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.logger.Debug("no bearer token on request")
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
			return
		}

		set, err := s.jwksCache.Lookup(r.Context(), s.jwksURL)
		if err != nil {
			s.logger.WithError(err).Error("failed to fetch JWKS")
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unable to verify token"})
			return
		}

		token, err := jwt.Parse(
			[]byte(strings.TrimSpace(raw)),
			jwt.WithKeySet(set),
			jwt.WithValidate(true),
		)
		if err != nil {
			s.logger.WithError(err).Warn("failed to parse JWT")
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		subject, ok := token.Subject()
		if !ok || subject == "" {
			s.logger.Error("no user ID in JWT subject claim")
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		userID, err := strconv.ParseInt(subject, 10, 64)
		if err != nil || userID <= 0 {
			s.logger.WithField("subject", subject).Warn("JWT subject is not a user id")
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		s.logger.WithField("user_id", userID).Debug("authenticated user")

		ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(contextKeyUserID).(int64)
	return userID, ok
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Only strip if path is not root and has trailing slash
		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			// 308 keeps the method and body of API posts
			http.Redirect(w, r, newURL.String(), http.StatusPermanentRedirect)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// attemptKey overrides the request's user with the authenticated one.
func attemptKey(ctx context.Context, key types.AttemptKey) types.AttemptKey {
	if userID, ok := userIDFromContext(ctx); ok {
		key.UserID = userID
	}
	return key
}
