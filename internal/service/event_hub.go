package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/observability"
)

const eventBufferSize = 16

// EventPublisher emits processing events.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.ProcessingEvent)
}

// EventHub fans processing events out to local websocket subscribers and to other nodes.
type EventHub interface {
	EventPublisher
	Subscribe(courseID uint) (<-chan dto.ProcessingEvent, func())
	Start(ctx context.Context)
}

type eventHub struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string
	now          func() time.Time

	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.ProcessingEvent]struct{}
}

// NewEventHub constructs the processing event hub. Redis and NATS are both optional.
func NewEventHub(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventHub {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":processing"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".processing"
	}

	return &eventHub{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_hub").Logger(),
		nodeID:       uuid.NewString(),
		now:          time.Now,
		subscribers:  make(map[uint]map[chan dto.ProcessingEvent]struct{}),
	}
}

// Start subscribes to the cross-node transport. NATS wins over redis when both are set.
func (h *eventHub) Start(ctx context.Context) {
	switch {
	case h.useNATS():
		h.consumeNATS(ctx)
	case h.useRedis():
		go h.consumeRedis(ctx)
	}
}

func (h *eventHub) useNATS() bool {
	return h.nats != nil && h.natsSubject != ""
}

func (h *eventHub) useRedis() bool {
	return !h.useNATS() && h.redis != nil && h.redisChannel != ""
}

func (h *eventHub) Publish(ctx context.Context, event dto.ProcessingEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = h.now().UTC()
	}
	event.Source = h.nodeID

	observability.ProcessingEvents().WithLabelValues(string(event.Type)).Inc()
	h.broadcast(event)

	if err := h.forward(ctx, event); err != nil {
		h.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to forward processing event")
	}
}

func (h *eventHub) Subscribe(courseID uint) (<-chan dto.ProcessingEvent, func()) {
	ch := make(chan dto.ProcessingEvent, eventBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[courseID]; !ok {
		h.subscribers[courseID] = make(map[chan dto.ProcessingEvent]struct{})
	}
	h.subscribers[courseID][ch] = struct{}{}
	h.mu.Unlock()
	observability.WebsocketClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			if subscribers, ok := h.subscribers[courseID]; ok {
				delete(subscribers, ch)
				close(ch)
				if len(subscribers) == 0 {
					delete(h.subscribers, courseID)
				}
			}
			h.mu.Unlock()
			observability.WebsocketClients().Dec()
		})
	}
	return ch, cleanup
}

func (h *eventHub) broadcast(event dto.ProcessingEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.CourseID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *eventHub) forward(ctx context.Context, event dto.ProcessingEvent) error {
	if !h.useNATS() && !h.useRedis() {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if h.useNATS() {
		return h.nats.Publish(h.natsSubject, payload)
	}
	return h.redis.Publish(ctx, h.redisChannel, payload).Err()
}

func (h *eventHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			h.logger.Error().Err(err).Msg("processing redis subscription closed")
			return
		}
		h.handleEvent([]byte(msg.Payload))
	}
}

// Every node subscribes so each one can fan out to its own websocket clients.
func (h *eventHub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handleEvent(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats processing subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain processing nats subscription")
		}
	}()
}

func (h *eventHub) handleEvent(payload []byte) {
	var event dto.ProcessingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn().Err(err).Msg("invalid processing event payload")
		return
	}
	if event.Source == h.nodeID {
		return
	}
	h.broadcast(event)
}
