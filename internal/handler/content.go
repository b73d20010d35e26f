package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/robotparty/game-server/internal/middleware"
	"github.com/robotparty/game-server/internal/service"
)

// ContentHandler lists the characters and question collections a caller
// may use: everything public plus what their account created.
type ContentHandler struct {
	content *service.ContentService
}

func NewContentHandler(content *service.ContentService) *ContentHandler {
	return &ContentHandler{content: content}
}

// Register adds the listing routes to r.
func (h *ContentHandler) Register(r chi.Router) {
	r.Get("/characters", h.ListCharacters)
	r.Get("/collections", h.ListCollections)
}

func (h *ContentHandler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	chars, err := h.content.ListCharactersFor(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"characters": chars})
}

func (h *ContentHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := h.content.ListCollectionsFor(r.Context(), middleware.GetAccountID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": cols})
}
