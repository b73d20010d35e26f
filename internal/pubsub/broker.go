// Package pubsub fans room events out to connected clients. Events are
// published to a redis channel per room so every server instance delivers
// them to its own subscribers.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	redisclient "github.com/robotparty/game-server/internal/redis"
)

const clientBufferSize = 100

type EventType string

const (
	EventLobbyUpdate EventType = "lobby_update"
	EventRoundUpdate EventType = "round_update"
	EventChatUpdate  EventType = "chat_update"
	EventGameResult  EventType = "game_result"
)

type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals payload into an event of the given type.
func NewEvent(eventType EventType, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return Event{Type: eventType, Data: data}, nil
}

type Client struct {
	RoomCode string
	Events   chan Event
	Done     chan struct{}
}

type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // roomCode -> set of clients
	stops   map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		stops:   make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(roomCode string) *Client {
	client := &Client{
		RoomCode: roomCode,
		Events:   make(chan Event, clientBufferSize),
		Done:     make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[roomCode] == nil {
		b.clients[roomCode] = make(map[*Client]bool)
		roomCtx, stop := context.WithCancel(b.ctx)
		b.stops[roomCode] = stop
		go b.subscribeToRedis(roomCtx, roomCode)
	}
	b.clients[roomCode][client] = true
	clientCount := len(b.clients[roomCode])
	b.mu.Unlock()

	log.Info().
		Str("roomCode", roomCode).
		Int("clientCount", clientCount).
		Msg("room client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.RoomCode]; ok {
		if !clients[client] {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.RoomCode)
			if stop, ok := b.stops[client.RoomCode]; ok {
				stop()
				delete(b.stops, client.RoomCode)
			}
		}

		log.Info().
			Str("roomCode", client.RoomCode).
			Int("clientCount", len(clients)).
			Msg("room client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, roomCode string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.RoomChannel(roomCode)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, roomCode string) {
	channel := redisclient.RoomChannel(roomCode)
	sub := b.redis.Subscribe(ctx, channel)
	defer sub.Close()

	log.Debug().
		Str("roomCode", roomCode).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(roomCode, event)
		}
	}
}

func (b *Broker) broadcast(roomCode string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[roomCode] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("roomCode", roomCode).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.stops = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(roomCode string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[roomCode])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
