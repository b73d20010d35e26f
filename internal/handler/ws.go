package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robotparty/game-server/internal/config"
	"github.com/robotparty/game-server/internal/pubsub"
)

// Heartbeater refreshes a participant's presence.
type Heartbeater interface {
	Heartbeat(ctx context.Context, code string, participantID int64) error
}

type wsInbound struct {
	Type          string `json:"type"`
	ParticipantID int64  `json:"participantId"`
}

type wsOutbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// WSHandler streams a room's events over a WebSocket. Clients send
// {"type":"ping","participantId":N} frames to stay marked as present.
type WSHandler struct {
	broker    Subscriber
	lobby     LobbyReader
	presence  Heartbeater
	upgrader  websocket.Upgrader
	heartbeat time.Duration
}

func NewWSHandler(broker Subscriber, lobby LobbyReader, presence Heartbeater, checkOrigin func(r *http.Request) bool) *WSHandler {
	return &WSHandler{
		broker:   broker,
		lobby:    lobby,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		heartbeat: config.StreamHeartbeatInterval,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.lobby.Lobby(r.Context(), roomCode(r))
	if err != nil {
		writeError(w, err)
		return
	}
	code := snapshot.Code

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("roomCode", code).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	client := h.broker.Subscribe(code)
	defer h.broker.Unsubscribe(client)

	log.Info().Str("roomCode", code).Msg("websocket connection established")

	// The request context is not tied to a hijacked connection.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// gorilla allows one concurrent writer, so pongs go through the write loop.
	pongs := make(chan struct{}, 1)
	go h.readLoop(ctx, cancel, conn, code, pongs)

	initial, err := pubsub.NewEvent(pubsub.EventLobbyUpdate, snapshot)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode lobby snapshot")
		return
	}
	if err := h.write(conn, initial); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("roomCode", code).Msg("websocket connection closed by client")
			return

		case <-client.Done:
			log.Info().Str("roomCode", code).Msg("websocket connection closed by broker")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(config.WSWriteTimeout))
			return

		case event := <-client.Events:
			if err := h.write(conn, event); err != nil {
				log.Debug().Err(err).Str("roomCode", code).Msg("websocket write failed")
				return
			}

		case <-pongs:
			if err := h.write(conn, wsOutbound{Type: "pong"}); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Str("roomCode", code).Msg("heartbeat failed, closing connection")
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, code string, pongs chan<- struct{}) {
	defer cancel()

	conn.SetReadLimit(config.WSMaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(config.WSPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(config.WSPongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("roomCode", code).Msg("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(config.WSPongTimeout))

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		if msg.ParticipantID > 0 {
			if err := h.presence.Heartbeat(ctx, code, msg.ParticipantID); err != nil {
				log.Debug().Err(err).Str("roomCode", code).Int64("participantId", msg.ParticipantID).Msg("heartbeat rejected")
			}
		}
		select {
		case pongs <- struct{}{}:
		default:
		}
	}
}

func (h *WSHandler) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout))
	return conn.WriteJSON(v)
}
