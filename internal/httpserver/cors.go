package httpserver

import (
	"net/http"
	"strings"

	"github.com/fdg312/meal-planner/internal/config"
)

const (
	corsAllowMethods = "GET,POST,PUT,PATCH,DELETE,OPTIONS"
	corsAllowHeaders = "Authorization,Content-Type"
)

// CORSMiddleware отвечает на preflight и добавляет CORS-заголовки для разрешённых origin.
// "*" в списке разрешает любой origin; credentials с ним не выставляются.
func CORSMiddleware(cfg *config.Config, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.CORSAllowedOrigins))
	wildcard := false
	for _, o := range cfg.CORSAllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			wildcard = true
			continue
		}
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		ok := origin != "" && (wildcard || allowed[origin])

		if ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if cfg.CORSAllowCredentials && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions && origin != "" {
			if ok {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			// без CORS-заголовков браузер сам заблокирует запрос
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
