package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fdg312/meal-planner/internal/apperr"
	"github.com/fdg312/meal-planner/internal/config"
	"github.com/sirupsen/logrus"
)

// LocalUserID is the fixed caller of AUTH_MODE=none.
const LocalUserID = "local-user"

// Middleware - middleware для проверки авторизации
type Middleware struct {
	config  *config.Config
	service *Service
	log     logrus.FieldLogger
}

func NewMiddleware(cfg *config.Config, service *Service, log logrus.FieldLogger) *Middleware {
	return &Middleware{config: cfg, service: service, log: log}
}

// RequireAuth - middleware для защиты эндпоинтов.
// Public paths and AUTH_REQUIRED=false accept anonymous callers but still
// honour a valid bearer token.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.AuthMode == config.AuthModeNone {
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), LocalUserID)))
			return
		}

		header := r.Header.Get("Authorization")
		optional := !m.config.AuthRequired || isPublic(r)

		if strings.TrimSpace(header) == "" {
			if optional {
				next.ServeHTTP(w, r)
				return
			}
			apperr.WriteError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}

		userID, err := m.authenticateHeader(header)
		if err != nil {
			if isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}
			code, msg := "unauthorized", "Invalid or expired token"
			if errors.Is(err, ErrTokenExpired) {
				code, msg = "token_expired", "Token expired"
			}
			apperr.WriteError(w, http.StatusUnauthorized, code, msg)
			return
		}

		m.log.WithFields(logrus.Fields{"user_id": userID, "method": r.Method, "path": r.URL.Path}).Debug("auth token accepted")
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func (m *Middleware) authenticateHeader(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrInvalidToken
	}
	return m.service.VerifyJWT(strings.TrimSpace(parts[1]))
}

func isPublic(r *http.Request) bool {
	path := r.URL.Path
	if path == "/healthz" || path == "/metrics" || strings.HasPrefix(path, "/v1/auth/") {
		return true
	}
	if r.Method == http.MethodGet && strings.HasPrefix(path, "/v1/users/") && path != "/v1/users/me" {
		return true
	}
	return r.Method == http.MethodGet && (path == "/v1/recipes" || strings.HasPrefix(path, "/v1/recipes/"))
}
