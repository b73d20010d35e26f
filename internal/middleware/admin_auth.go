package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/audit"
	apperrors "github.com/robotparty/game-server/internal/errors"
	"github.com/robotparty/game-server/internal/httputil"
	"github.com/robotparty/game-server/internal/util"
)

// AdminAuthMiddleware guards the content management API with HTTP basic
// auth checked against a bcrypt hash. The username is ignored.
type AdminAuthMiddleware struct {
	passwordHash string
	failures     *AuthFailureLimiter
}

func NewAdminAuthMiddleware(passwordHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		passwordHash: passwordHash,
		failures:     NewAuthFailureLimiter(),
	}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.passwordHash == "" {
			httputil.WriteError(w, apperrors.Forbidden("Admin API is disabled"))
			return
		}

		ip := ClientIP(r)
		if m.failures.Blocked(ip) {
			w.Header().Set("Retry-After", "60")
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		_, password, ok := r.BasicAuth()
		if !ok || !util.CheckPasswordHash(password, m.passwordHash) {
			m.failures.RecordFailure(ip)
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminAuthFail})
			log.Warn().Str("ip", ip).Msg("admin auth failed")

			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			httputil.WriteError(w, apperrors.Unauthorized("Invalid admin credentials"))
			return
		}

		m.failures.Reset(ip)
		next.ServeHTTP(w, r)
	})
}
