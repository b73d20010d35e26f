package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotparty/game-server/internal/middleware"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/repository/memory"
	"github.com/robotparty/game-server/internal/service"
	"github.com/robotparty/game-server/internal/util"
)

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, roomCode string, event pubsub.Event) error {
	return nil
}

type testAPI struct {
	t       *testing.T
	router  http.Handler
	store   *memory.Store
	content *service.ContentService
}

const adminPassword = "correct horse"

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	events := service.NewEvents(store, nopPublisher{})

	rooms := service.NewRoomService(store, events, service.RoomDefaults{RoundLength: 60, RoundCount: 1, GuessTimer: 60})
	rounds := service.NewRoundService(store, events, nil)
	guesses := service.NewGuessService(store)
	chat := service.NewChatService(store, events, nil, 20)
	content := service.NewContentService(store)

	hash, err := util.HashPassword(adminPassword)
	require.NoError(t, err)
	adminAuth := middleware.NewAdminAuthMiddleware(hash)

	r := chi.NewRouter()
	r.Use(middleware.Account)
	r.Route("/api", func(r chi.Router) {
		r.Mount("/rooms", NewRoomHandler(rooms, rounds, guesses, chat, nil).Routes())
		NewContentHandler(content).Register(r)
	})
	r.Mount("/admin", NewAdminHandler(content, nil, adminAuth.Handler).Routes())

	api := &testAPI{t: t, router: r, store: store, content: content}
	api.seed()
	return api
}

func (a *testAPI) seed() {
	ctx := context.Background()
	for _, name := range []string{"Sherlock Holmes", "Cleopatra", "Napoleon"} {
		_, err := a.content.CreateCharacter(ctx, model.CreateCharacterParams{Name: name, IsPublic: true})
		require.NoError(a.t, err)
	}
	col, err := a.content.CreateCollection(ctx, model.CreateCollectionParams{Name: "Standard"})
	require.NoError(a.t, err)
	q, err := a.content.CreateQuestion(ctx, model.CreateQuestionParams{Text: "Favourite food?"})
	require.NoError(a.t, err)
	require.NoError(a.t, a.content.AddQuestionToCollection(ctx, col.ID, q.ID))
}

type creds struct {
	ID     int64
	Secret string
}

func (a *testAPI) do(method, path string, body any, c *creds, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c != nil {
		req.Header.Set(middleware.ParticipantIDHeader, fmt.Sprint(c.ID))
		req.Header.Set(middleware.ParticipantSecretHeader, c.Secret)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) createRoom() string {
	rec := a.do(http.MethodPost, "/api/rooms", nil, nil)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[seatResponse](a.t, rec).Code
}

func (a *testAPI) join(code, name string) creds {
	rec := a.do(http.MethodPost, "/api/rooms/"+code+"/join", map[string]string{"name": name}, nil)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[struct {
		Participant struct {
			ID int64 `json:"id"`
		} `json:"participant"`
		Secret string `json:"secret"`
	}](a.t, rec)
	return creds{ID: res.Participant.ID, Secret: res.Secret}
}

func (a *testAPI) characterIDs() []int64 {
	rec := a.do(http.MethodGet, "/api/characters", nil, nil)
	require.Equal(a.t, http.StatusOK, rec.Code)
	res := decode[struct {
		Characters []model.Character `json:"characters"`
	}](a.t, rec)
	ids := make([]int64, len(res.Characters))
	for i, c := range res.Characters {
		ids[i] = c.ID
	}
	return ids
}

func TestRoomHandler_Lifecycle(t *testing.T) {
	api := newTestAPI(t)
	code := api.createRoom()

	rec := api.do(http.MethodGet, "/api/rooms/"+code, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[service.RoomInfo](t, rec)
	assert.Equal(t, model.SessionStatusPending, info.Status)
	assert.True(t, info.Joinable)

	alice := api.join(code, "Alice")
	bob := api.join(code, "Bob")
	chars := api.characterIDs()
	require.Len(t, chars, 3)

	for i, c := range []creds{alice, bob} {
		rec := api.do(http.MethodPost, "/api/rooms/"+code+"/character", map[string]int64{"characterId": chars[i]}, &c)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/npcs", nil, &alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "isNpc")

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/start", nil, &bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_HOST")

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/start", nil, &alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	round := decode[service.RoundView](t, rec)
	assert.Equal(t, 1, round.RoundNumber)
	assert.Equal(t, "Favourite food?", round.Question)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/messages", map[string]string{"text": "pizza"}, &bob)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[service.ChatView](t, rec)
	assert.Equal(t, "pizza", msg.Text)
	assert.NotContains(t, rec.Body.String(), "participantId")

	rec = api.do(http.MethodGet, "/api/rooms/"+code+"/messages", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pizza")

	rec = api.do(http.MethodGet, "/api/rooms/"+code+"/results", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_STATE")
}

func TestRoomHandler_Capability(t *testing.T) {
	api := newTestAPI(t)
	code := api.createRoom()
	alice := api.join(code, "Alice")

	t.Run("missing headers", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/api/rooms/"+code+"/leave", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "MISSING_REQUIRED")
	})

	t.Run("wrong secret", func(t *testing.T) {
		bad := creds{ID: alice.ID, Secret: "nope"}
		rec := api.do(http.MethodPost, "/api/rooms/"+code+"/settings", map[string]int{"roundLength": 60, "roundCount": 1}, &bad)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_SECRET")
	})

	t.Run("reconnect with credentials", func(t *testing.T) {
		rec := api.do(http.MethodPost, "/api/rooms/"+code+"/join", map[string]string{}, &alice)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"rejoined":true`)
	})

	t.Run("unknown room", func(t *testing.T) {
		rec := api.do(http.MethodGet, "/api/rooms/QQQQQQ/lobby", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/"+code+"/join", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})

	t.Run("bad npc id", func(t *testing.T) {
		rec := api.do(http.MethodDelete, "/api/rooms/"+code+"/npcs/abc", nil, &alice)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRoomHandler_Settings(t *testing.T) {
	api := newTestAPI(t)
	code := api.createRoom()
	alice := api.join(code, "Alice")

	rec := api.do(http.MethodPost, "/api/rooms/"+code+"/settings", map[string]int{"roundLength": 90, "roundCount": 3, "guessTimer": 45}, &alice)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lobby := decode[service.LobbyView](t, rec)
	assert.Equal(t, 90, lobby.RoundLength)
	assert.Equal(t, 3, lobby.RoundCount)
	assert.Equal(t, 45, lobby.GuessTimer)

	rec = api.do(http.MethodPost, "/api/rooms/"+code+"/settings", map[string]int{"roundLength": 5, "roundCount": 3}, &alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestContentHandler(t *testing.T) {
	api := newTestAPI(t)
	owner := "acct-7"
	_, err := api.content.CreateCharacter(context.Background(), model.CreateCharacterParams{Name: "Private", CreatorID: &owner})
	require.NoError(t, err)

	rec := api.do(http.MethodGet, "/api/characters", nil, nil)
	assert.NotContains(t, rec.Body.String(), "Private")

	rec = api.do(http.MethodGet, "/api/characters", nil, nil, middleware.AccountIDHeader, owner)
	assert.Contains(t, rec.Body.String(), "Private")

	rec = api.do(http.MethodGet, "/api/collections", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Standard")
}

func TestAdminHandler(t *testing.T) {
	api := newTestAPI(t)

	adminDo := func(method, path string, body any, password string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.SetBasicAuth("admin", password)
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("requires the password", func(t *testing.T) {
		rec := adminDo(http.MethodGet, "/admin/api/questions", nil, "wrong")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("manages questions", func(t *testing.T) {
		rec := adminDo(http.MethodPost, "/admin/api/questions", map[string]string{"text": "Best holiday?"}, adminPassword)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		q := decode[model.Question](t, rec)

		rec = adminDo(http.MethodPatch, fmt.Sprintf("/admin/api/questions/%d", q.ID), map[string]string{"text": "Worst holiday?"}, adminPassword)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = adminDo(http.MethodGet, "/admin/api/questions?limit=1&offset=1", nil, adminPassword)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[struct {
			Items []model.Question `json:"items"`
			Total int              `json:"total"`
		}](t, rec)
		assert.Equal(t, 2, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Worst holiday?", page.Items[0].Text)

		rec = adminDo(http.MethodDelete, fmt.Sprintf("/admin/api/questions/%d", q.ID), nil, adminPassword)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = adminDo(http.MethodDelete, fmt.Sprintf("/admin/api/questions/%d", q.ID), nil, adminPassword)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("collections in use are locked", func(t *testing.T) {
		code := api.createRoom()
		alice := api.join(code, "Alice")
		bob := api.join(code, "Bob")
		cara := api.join(code, "Cara")
		for i, c := range []creds{alice, bob, cara} {
			rec := api.do(http.MethodPost, "/api/rooms/"+code+"/character", map[string]int64{"characterId": api.characterIDs()[i]}, &c)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}
		rec := api.do(http.MethodPost, "/api/rooms/"+code+"/start", nil, &alice)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = adminDo(http.MethodGet, "/admin/api/collections", nil, adminPassword)
		cols := decode[struct {
			Items []model.Collection `json:"items"`
		}](t, rec)
		require.NotEmpty(t, cols.Items)

		rec = adminDo(http.MethodDelete, fmt.Sprintf("/admin/api/collections/%d", cols.Items[0].ID), nil, adminPassword)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CONTENT_IN_USE")
	})

	t.Run("stats", func(t *testing.T) {
		rec := adminDo(http.MethodGet, "/admin/api/stats", nil, adminPassword)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"connectedClients":0`)
	})
}
