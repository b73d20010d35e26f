package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/game"
	"github.com/robotparty/game-server/internal/middleware"
	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/service"
)

// RoomHandler serves the player-facing room API. Privileged calls carry the
// participant capability in the X-Participant-ID and X-Participant-Secret
// headers.
type RoomHandler struct {
	rooms     *service.RoomService
	rounds    *service.RoundService
	guesses   *service.GuessService
	chat      *service.ChatService
	joinLimit func(http.Handler) http.Handler
}

func NewRoomHandler(
	rooms *service.RoomService,
	rounds *service.RoundService,
	guesses *service.GuessService,
	chat *service.ChatService,
	joinLimit func(http.Handler) http.Handler,
) *RoomHandler {
	if joinLimit == nil {
		joinLimit = func(next http.Handler) http.Handler { return next }
	}
	return &RoomHandler{
		rooms:     rooms,
		rounds:    rounds,
		guesses:   guesses,
		chat:      chat,
		joinLimit: joinLimit,
	}
}

func (h *RoomHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.joinLimit).Post("/", h.Create)

	r.Route("/{code}", func(r chi.Router) {
		r.Get("/", h.Verify)
		r.Get("/lobby", h.Lobby)
		r.With(h.joinLimit).Post("/join", h.Join)
		r.Post("/leave", h.Leave)
		r.Post("/kick", h.Kick)
		r.Post("/settings", h.UpdateSettings)
		r.Post("/collections", h.UpdateCollections)
		r.Post("/character", h.SelectCharacter)
		r.Post("/npcs", h.AddNPC)
		r.Delete("/npcs/{participantID}", h.RemoveNPC)
		r.Post("/start", h.Start)
		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.SendMessage)
		r.Get("/guess-options", h.GuessOptions)
		r.Post("/guesses", h.SubmitGuesses)
		r.Get("/results", h.Results)
	})

	return r
}

type seatResponse struct {
	Code          string             `json:"code"`
	ParticipantID *int64             `json:"participantId,omitempty"`
	Secret        string             `json:"secret,omitempty"`
	Collections   []model.Collection `json:"questionCollections,omitempty"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.rooms.CreateRoom(r.Context(), service.CreateRoomParams{
		AccountID: middleware.GetAccountID(r.Context()),
		Name:      req.Name,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := seatResponse{
		Code:        res.Session.Code,
		Secret:      res.Secret,
		Collections: res.Collections,
	}
	if res.Host != nil {
		resp.ParticipantID = &res.Host.ID
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *RoomHandler) Verify(w http.ResponseWriter, r *http.Request) {
	info, err := h.rooms.Verify(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *RoomHandler) Lobby(w http.ResponseWriter, r *http.Request) {
	lobby, err := h.rooms.Lobby(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.rooms.Join(r.Context(), roomCode(r), service.JoinParams{
		AccountID:   middleware.GetAccountID(r.Context()),
		Name:        req.Name,
		Credentials: middleware.GetCredentials(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Rejoined {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"participant": res.Participant,
		"secret":      res.Secret,
		"rejoined":    res.Rejoined,
		"lobby":       res.Lobby,
	})
}

func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.rooms.Leave(r.Context(), roomCode(r), middleware.GetCredentials(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *RoomHandler) Kick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParticipantID int64 `json:"participantId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.rooms.Kick(r.Context(), roomCode(r), middleware.GetCredentials(r), req.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *RoomHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoundLength   int     `json:"roundLength"`
		RoundCount    int     `json:"roundCount"`
		GuessTimer    *int    `json:"guessTimer"`
		CollectionIDs []int64 `json:"collectionIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	lobby, err := h.rooms.UpdateSettings(r.Context(), roomCode(r), middleware.GetCredentials(r), service.SettingsParams{
		RoundLength:   req.RoundLength,
		RoundCount:    req.RoundCount,
		GuessTimer:    req.GuessTimer,
		CollectionIDs: req.CollectionIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lobby)
}

func (h *RoomHandler) UpdateCollections(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CollectionIDs []int64 `json:"collectionIds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cols, err := h.rooms.UpdateCollections(r.Context(), roomCode(r), middleware.GetCredentials(r), req.CollectionIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questionCollections": cols})
}

func (h *RoomHandler) SelectCharacter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CharacterID int64 `json:"characterId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	character, err := h.rooms.SelectCharacter(r.Context(), roomCode(r), middleware.GetCredentials(r), req.CharacterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"character": character})
}

func (h *RoomHandler) AddNPC(w http.ResponseWriter, r *http.Request) {
	npc, err := h.rooms.AddNPC(r.Context(), roomCode(r), middleware.GetCredentials(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"participant": npc})
}

func (h *RoomHandler) RemoveNPC(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "participantID")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.rooms.RemoveNPC(r.Context(), roomCode(r), middleware.GetCredentials(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	round, err := h.rounds.Start(r.Context(), roomCode(r), middleware.GetCredentials(r))
	if err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("roomCode", round.Code).Msg("game started via api")
	writeJSON(w, http.StatusOK, round)
}

func (h *RoomHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chat.History(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *RoomHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.chat.Send(r.Context(), roomCode(r), middleware.GetCredentials(r), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *RoomHandler) GuessOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.guesses.Options(r.Context(), roomCode(r), middleware.GetCredentials(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (h *RoomHandler) SubmitGuesses(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Guesses []game.GuessEntry `json:"guesses"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	guesses, err := h.guesses.Submit(r.Context(), roomCode(r), middleware.GetCredentials(r), req.Guesses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"guesses": guesses})
}

func (h *RoomHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.guesses.Results(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
