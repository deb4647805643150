package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
	"membership-backend/internal/security"
)

type contextKey string

const (
	claimsKey  contextKey = "claims"
	logInfoKey contextKey = "log_info"
)

// logInfo is filled in by inner middleware for the access log line.
type logInfo struct {
	userID domain.ID
}

func withClaims(ctx context.Context, c *security.UserClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func claimsFrom(ctx context.Context) (*security.UserClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*security.UserClaims)
	return c, ok
}

// userID is only called behind authenticate, which guarantees claims.
func userID(r *http.Request) domain.ID {
	c, _ := claimsFrom(r.Context())
	if c == nil {
		return ""
	}
	return domain.ID(c.UserID)
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
		return route.GetName()
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (h *Handlers) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		info := &logInfo{}

		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), logInfoKey, info)))

		route := routeName(r)
		elapsed := time.Since(start)
		h.metrics.ObserveHTTP(route, strconv.Itoa(rec.status), elapsed.Seconds())
		logger.InfoContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"user_id", info.userID,
		)
	})
}

// authenticate enforces the security level configured for the matched route.
func (h *Handlers) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		level := config.GetSecurityLevel(routeName(r))
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			h.errorJSON(w, r, http.StatusUnauthorized, "authorization token is not provided", nil)
			return
		}
		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.errorJSON(w, r, http.StatusUnauthorized, "invalid token: "+err.Error(), nil)
			return
		}
		if level == config.SecurityAdmin && !claims.IsAdmin() {
			h.errorJSON(w, r, http.StatusForbidden, "admin access required", nil)
			return
		}

		if info, ok := r.Context().Value(logInfoKey).(*logInfo); ok {
			info.userID = domain.ID(claims.UserID)
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// extractToken reads a bearer token. EventSource cannot set headers, so GET
// requests may pass it as the access_token query parameter.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
