package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/robotparty/game-server/internal/service"
)

const (
	AccountIDHeader         = "X-Account-ID"
	ParticipantIDHeader     = "X-Participant-ID"
	ParticipantSecretHeader = "X-Participant-Secret"

	maxAccountIDLength = 128
)

type contextKey string

const AccountContextKey contextKey = "account"

// GetAccountID returns the registered account making the request, or nil for
// anonymous guests.
func GetAccountID(ctx context.Context) *string {
	if id, ok := ctx.Value(AccountContextKey).(string); ok {
		return &id
	}
	return nil
}

// Account reads the account id forwarded by the authenticating proxy.
// Requests without one continue as guests.
func Account(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(AccountIDHeader))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(id) > maxAccountIDLength {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Invalid account id",
			})
			return
		}

		ctx := context.WithValue(r.Context(), AccountContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCredentials extracts the participant capability from the request
// headers. A malformed id yields zero credentials, which services reject.
func GetCredentials(r *http.Request) service.Credentials {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(ParticipantIDHeader)), 10, 64)
	if err != nil {
		return service.Credentials{}
	}
	return service.Credentials{
		ParticipantID: id,
		Secret:        strings.TrimSpace(r.Header.Get(ParticipantSecretHeader)),
	}
}
