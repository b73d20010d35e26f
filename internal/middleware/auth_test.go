package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/robotparty/game-server/internal/util"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAccount(t *testing.T) {
	t.Run("stores account id in context", func(t *testing.T) {
		var got *string
		h := Account(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetAccountID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(AccountIDHeader, " acct-1 ")
		h.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, got)
		assert.Equal(t, "acct-1", *got)
	})

	t.Run("guests pass through", func(t *testing.T) {
		called := false
		var got *string
		h := Account(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			got = GetAccountID(r.Context())
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.True(t, called)
		assert.Nil(t, got)
	})

	t.Run("rejects oversized ids", func(t *testing.T) {
		called := false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(AccountIDHeader, strings.Repeat("a", 200))
		rec := httptest.NewRecorder()

		Account(okHandler(&called)).ServeHTTP(rec, req)
		assert.False(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty context has no account", func(t *testing.T) {
		assert.Nil(t, GetAccountID(context.Background()))
	})
}

func TestGetCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(ParticipantIDHeader, "42")
	req.Header.Set(ParticipantSecretHeader, "s3cret")

	creds := GetCredentials(req)
	assert.Equal(t, int64(42), creds.ParticipantID)
	assert.Equal(t, "s3cret", creds.Secret)
	assert.True(t, creds.Valid())

	t.Run("malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(ParticipantIDHeader, "abc")
		req.Header.Set(ParticipantSecretHeader, "s3cret")
		assert.False(t, GetCredentials(req).Valid())
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := util.HashPassword("letmein")
	require.NoError(t, err)

	request := func(password string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/admin/api/questions", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if password != "" {
			req.SetBasicAuth("admin", password)
		}
		return req
	}

	t.Run("accepts the right password", func(t *testing.T) {
		called := false
		rec := httptest.NewRecorder()
		NewAdminAuthMiddleware(hash).Handler(okHandler(&called)).ServeHTTP(rec, request("letmein"))

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("rejects a wrong password", func(t *testing.T) {
		called := false
		rec := httptest.NewRecorder()
		NewAdminAuthMiddleware(hash).Handler(okHandler(&called)).ServeHTTP(rec, request("nope"))

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("locks out after repeated failures", func(t *testing.T) {
		m := NewAdminAuthMiddleware(hash)
		called := false
		h := m.Handler(okHandler(&called))

		for i := 0; i < authMaxFailures; i++ {
			h.ServeHTTP(httptest.NewRecorder(), request("nope"))
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("letmein"))
		assert.False(t, called)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("disabled without a hash", func(t *testing.T) {
		called := false
		rec := httptest.NewRecorder()
		NewAdminAuthMiddleware("").Handler(okHandler(&called)).ServeHTTP(rec, request("letmein"))

		assert.False(t, called)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAuthFailureLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewAuthFailureLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < authMaxFailures; i++ {
		assert.False(t, l.Blocked("1.2.3.4"))
		l.RecordFailure("1.2.3.4")
	}
	assert.True(t, l.Blocked("1.2.3.4"))
	assert.False(t, l.Blocked("5.6.7.8"))

	t.Run("window expires", func(t *testing.T) {
		now = now.Add(authWindowDuration + time.Second)
		assert.False(t, l.Blocked("1.2.3.4"))
	})
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Get(1).(time.Time)
}

func TestIPRateLimitMiddleware(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("allows under the limit", func(t *testing.T) {
		limiter := &mockLimiter{}
		limiter.On("CheckLimit", mock.Anything, "ip:join:10.0.0.1", 30, time.Minute).Return(true, now.Add(time.Minute))

		called := false
		m := NewIPRateLimitMiddleware(limiter, 30, time.Minute, "join")
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		m.Handler(okHandler(&called)).ServeHTTP(httptest.NewRecorder(), req)

		assert.True(t, called)
		limiter.AssertExpectations(t)
	})

	t.Run("rejects over the limit", func(t *testing.T) {
		limiter := &mockLimiter{}
		limiter.On("CheckLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, now.Add(10*time.Second))

		called := false
		m := NewIPRateLimitMiddleware(limiter, 30, time.Minute, "join")
		m.now = func() time.Time { return now }
		rec := httptest.NewRecorder()
		m.Handler(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.False(t, called)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "11", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4444"
	assert.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}

func TestBodyLimitMiddleware(t *testing.T) {
	called := false
	m := NewBodyLimitMiddleware(8)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"far too long"}`))
	rec := httptest.NewRecorder()

	m.Handler(okHandler(&called)).ServeHTTP(rec, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	called := false
	rec := httptest.NewRecorder()
	NewSecurityHeadersMiddleware(true).Handler(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "connect-src 'self' wss:")
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}
