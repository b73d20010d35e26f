package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/config"
	"github.com/robotparty/game-server/internal/pubsub"
	"github.com/robotparty/game-server/internal/service"
)

// Subscriber hands out per-room event streams.
type Subscriber interface {
	Subscribe(roomCode string) *pubsub.Client
	Unsubscribe(client *pubsub.Client)
}

// LobbyReader loads the snapshot sent when a stream opens.
type LobbyReader interface {
	Lobby(ctx context.Context, code string) (*service.LobbyView, error)
}

// EventsHandler streams a room's events over server-sent events.
type EventsHandler struct {
	broker    Subscriber
	lobby     LobbyReader
	heartbeat time.Duration
}

func NewEventsHandler(broker Subscriber, lobby LobbyReader) *EventsHandler {
	return &EventsHandler{
		broker:    broker,
		lobby:     lobby,
		heartbeat: config.StreamHeartbeatInterval,
	}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snapshot, err := h.lobby.Lobby(ctx, roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	code := snapshot.Code

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(code)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("roomCode", code).Msg("sse connection established")

	initial, err := pubsub.NewEvent(pubsub.EventLobbyUpdate, snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode lobby snapshot")
		return
	}
	if err := h.sendRawEvent(w, flusher, initial); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("roomCode", code).Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("roomCode", code).Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Str("roomCode", code).Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event pubsub.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
