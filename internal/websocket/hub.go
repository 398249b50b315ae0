package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/models"
	"github.com/careline/realtime/internal/services"

	"github.com/rs/zerolog"
)

type handlerFunc func(ctx context.Context, c *Client, inv models.Invocation) error

// Hub owns the live clients, implements services.Pusher over them, and
// routes every inbound invocation to the component that handles it.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	registry *services.ConnectionRegistry
	presence *services.PresenceTracker
	typing   *services.TypingTracker
	delivery *services.DeliveryPipeline
	groups   *services.GroupManager
	calls    *services.CallRelay
	rooms    *services.ConsultationOrchestrator

	handlers map[string]handlerFunc
	log      zerolog.Logger
}

func NewHub(store database.MessageStore, profiles database.ProfileLookup, log zerolog.Logger) *Hub {
	h := &Hub{
		clients:  make(map[string]*Client),
		registry: services.NewConnectionRegistry(),
		log:      log.With().Str("component", "hub").Logger(),
	}
	h.presence = services.NewPresenceTracker(h.registry, store, h, log)
	h.typing = services.NewTypingTracker(h.registry, h, log)
	h.delivery = services.NewDeliveryPipeline(store, h.registry, h.typing, h, log)
	h.groups = services.NewGroupManager(h, log)
	h.calls = services.NewCallRelay(h.registry, h, log)
	h.rooms = services.NewConsultationOrchestrator(h.groups, h.registry, profiles, h, log)
	h.handlers = h.routes()
	return h
}

// Push encodes ev and queues it on the connection. It never blocks.
func (h *Hub) Push(connectionID string, ev models.Event) bool {
	return h.PushMany([]string{connectionID}, ev) == 1
}

// PushMany encodes ev once and queues the frame on every listed connection.
// It returns how many accepted it.
func (h *Hub) PushMany(connectionIDs []string, ev models.Event) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(connectionIDs))
	for _, id := range connectionIDs {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("method", ev.Method).Msg("encode event")
		return 0
	}

	n := 0
	for _, c := range targets {
		if c.enqueue(data) {
			n++
		}
	}
	return n
}

// Register makes the client reachable and announces its user.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.presence.Connect(ctx, c.userID, c.id)
	h.log.Info().Str("user_id", c.userID).Str("connection_id", c.id).Msg("client connected")
}

// Unregister removes the client from every group and room before its user
// is deregistered, so nothing is broadcast to it afterwards. Typing entries
// go with the user's last connection.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	h.groups.DisconnectChat(c.userID, c.id)
	h.rooms.Disconnect(c.userID, c.id)
	if h.presence.Disconnect(c.userID, c.id) {
		h.typing.ClearAllForUser(c.userID)
	}
	h.log.Info().Str("user_id", c.userID).Str("connection_id", c.id).Msg("client disconnected")
}

// Dispatch runs one inbound invocation. A panic in a handler is contained to
// that invocation.
func (h *Hub) Dispatch(ctx context.Context, c *Client, inv models.Invocation) {
	log := c.log.With().Str("method", inv.Method).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panicked")
		}
	}()

	if c.userID == "" {
		log.Debug().Msg("unauthenticated invocation dropped")
		return
	}

	handle, ok := h.handlers[inv.Method]
	if !ok {
		log.Debug().Msg("unknown method dropped")
		return
	}

	err := handle(ctx, c, inv)
	switch {
	case err == nil:
	case isRejection(err):
		log.Debug().Err(err).Msg("invocation rejected")
	default:
		log.Error().Err(err).Msg("invocation failed")
		h.Push(c.id, models.NewEvent(models.EventOperationFailed, inv.Method, "storage unavailable"))
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		services.ErrInvalidArgs,
		services.ErrNotSender,
		services.ErrNotReceiver,
		services.ErrNotMember,
		services.ErrNotParticipant,
		database.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func bind(inv models.Invocation, dst ...any) error {
	if err := inv.Bind(dst...); err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidArgs, err)
	}
	return nil
}

type Stats struct {
	OnlineUsers int `json:"onlineUsers"`
	Connections int `json:"connections"`
	Groups      int `json:"groups"`
	Rooms       int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	users, conns := h.registry.Counts()
	return Stats{
		OnlineUsers: users,
		Connections: conns,
		Groups:      h.groups.GroupCount(),
		Rooms:       h.rooms.RoomCount(),
	}
}

// Shutdown closes every live client. Their read pumps unregister them.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	h.log.Info().Int("clients", len(clients)).Msg("hub shut down")
}

// RunTypingSweeper expires typing indicators older than idle until ctx is
// done.
func (h *Hub) RunTypingSweeper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(idle/2, 100*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.typing.Sweep(idle)
		}
	}
}
