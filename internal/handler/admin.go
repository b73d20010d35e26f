package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/model"
	"github.com/robotparty/game-server/internal/service"
)

// ClientCounter reports live stream connections.
type ClientCounter interface {
	TotalClients() int
}

// AdminHandler serves content management for operators. Authentication is
// applied by the caller's middleware.
type AdminHandler struct {
	content *service.ContentService
	clients ClientCounter
	auth    func(http.Handler) http.Handler
}

func NewAdminHandler(content *service.ContentService, clients ClientCounter, auth func(http.Handler) http.Handler) *AdminHandler {
	return &AdminHandler{content: content, clients: clients, auth: auth}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Get("/api/stats", h.Stats)

		// Characters
		r.Get("/api/characters", h.ListCharacters)
		r.Post("/api/characters", h.CreateCharacter)
		r.Delete("/api/characters/{id}", h.DeleteCharacter)

		// Questions
		r.Get("/api/questions", h.ListQuestions)
		r.Post("/api/questions", h.CreateQuestion)
		r.Patch("/api/questions/{id}", h.UpdateQuestion)
		r.Delete("/api/questions/{id}", h.DeleteQuestion)

		// Collections
		r.Get("/api/collections", h.ListCollections)
		r.Post("/api/collections", h.CreateCollection)
		r.Patch("/api/collections/{id}", h.UpdateCollection)
		r.Delete("/api/collections/{id}", h.DeleteCollection)
		r.Post("/api/collections/{id}/questions", h.AddQuestionToCollection)
	})

	return r
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	questions, err := h.content.ListQuestions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	collections, err := h.content.ListCollectionsFor(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}

	connected := 0
	if h.clients != nil {
		connected = h.clients.TotalClients()
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"connectedClients": connected,
		"questions":        len(questions),
		"collections":      len(collections),
	})
}

func (h *AdminHandler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	chars, err := h.content.ListCharactersFor(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	p := ParsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": paginate(chars, p),
		"total": len(chars),
	})
}

func (h *AdminHandler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description string  `json:"description"`
		ImageURL    *string `json:"imageUrl"`
		IsPublic    *bool   `json:"isPublic"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	public := true
	if req.IsPublic != nil {
		public = *req.IsPublic
	}
	c, err := h.content.CreateCharacter(r.Context(), model.CreateCharacterParams{
		Name:        req.Name,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		IsPublic:    public,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.content.DeleteCharacter(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.content.ListQuestions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	p := ParsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": paginate(questions, p),
		"total": len(questions),
	})
}

func (h *AdminHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.content.CreateQuestion(r.Context(), model.CreateQuestionParams{Text: req.Text})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (h *AdminHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.UpdateQuestion(r.Context(), id, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.content.DeleteQuestion(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	log.Info().Int64("questionId", id).Msg("question deleted by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.content.ListCollectionsFor(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": cols,
		"total": len(cols),
	})
}

func (h *AdminHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.content.CreateCollection(r.Context(), model.CreateCollectionParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) UpdateCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.UpdateCollection(r.Context(), id, req.Name, req.Description); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.content.DeleteCollection(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	log.Info().Int64("collectionId", id).Msg("collection deleted by admin")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AdminHandler) AddQuestionToCollection(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		QuestionID int64 `json:"questionId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.content.AddQuestionToCollection(r.Context(), id, req.QuestionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
