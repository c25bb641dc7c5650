// Package ws is the realtime presence and fanout layer: it tracks connected
// clients, interprets their shift and location events against the durable
// store, and snapshots state out to subscribed dashboards.
package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

// frame is one inbound websocket message paired with its connection.
type frame struct {
	conn    *connection
	payload []byte
}

// fanoutMsg targets a pre-marshalled envelope at either a role set or a
// subscription channel. It is also the unit carried over the redis bridge.
type fanoutMsg struct {
	Roles   []models.Role   `json:"roles,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Hub routes every event through a single run loop: registrations, inbound
// frames, store-change notices and bridge deliveries. Because each event is
// processed to completion before the next one starts, the registry is
// mutated from exactly one goroutine and needs no locking.
type Hub struct {
	logger *zap.Logger
	store  store.Store
	reg    *registry
	rdb    *redis.Client // optional cross-instance bridge

	register   chan *connection
	unregister chan *connection
	inbound    chan frame
	fanout     chan fanoutMsg

	// Store-change notices from outside the hub. One slot per resource:
	// the hub re-reads full state on each notice, so while one is queued
	// further changes need no further tokens.
	notifyResponses chan struct{}
	notifyLocations chan struct{}
}

// New builds a hub around its own registry. rdb may be nil for single-node
// operation; with redis, every broadcast travels through pub/sub so that all
// nodes (including the publisher) deliver it to their local subscribers.
func New(st store.Store, logger *zap.Logger, rdb *redis.Client) *Hub {
	return &Hub{
		logger:     logger,
		store:      st,
		reg:        newRegistry(),
		rdb:        rdb,
		register:        make(chan *connection),
		unregister:      make(chan *connection),
		inbound:         make(chan frame),
		fanout:          make(chan fanoutMsg, 64),
		notifyResponses: make(chan struct{}, 1),
		notifyLocations: make(chan struct{}, 1),
	}
}

// Run is the serialized event loop. It owns the registry for its lifetime.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.runBridge(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.reg.add(c)
			h.logger.Debug("websocket client connected",
				zap.String("connection_id", c.id.String()),
				zap.Int("connections", h.reg.len()))

		case c := <-h.unregister:
			h.closeConnection(ctx, c)

		case f := <-h.inbound:
			h.handleFrame(ctx, f.conn, f.payload)

		case <-h.notifyResponses:
			h.broadcastResponses(ctx)

		case <-h.notifyLocations:
			h.broadcastLocations(ctx)

		case f := <-h.fanout:
			h.deliver(ctx, f)
		}
	}
}

// NotifyResponsesChanged is the hook the CRUD layer calls after persisting a
// new survey response; the hub re-sends the full response list to channel
// subscribers on its next loop turn. Never blocks the caller: with a token
// already queued the pending broadcast covers this change too.
func (h *Hub) NotifyResponsesChanged() {
	select {
	case h.notifyResponses <- struct{}{}:
	default:
	}
}

// NotifyLocationsChanged re-broadcasts the location snapshot; used when
// location state is mutated outside the websocket path. Never blocks.
func (h *Hub) NotifyLocationsChanged() {
	select {
	case h.notifyLocations <- struct{}{}:
	default:
	}
}

// closeConnection runs the disconnect handling exactly once per connection:
// the registry remove result guards against the pumps and an eviction both
// reporting the same connection.
func (h *Hub) closeConnection(ctx context.Context, c *connection) {
	if !h.reg.remove(c) {
		return
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected",
		zap.String("connection_id", c.id.String()),
		zap.Int("connections", h.reg.len()))

	if c.identity == nil {
		return
	}
	// Going away mid-shift flips the surveyor inactive but keeps the last
	// known position on the row.
	userID := c.identity.userID
	if _, err := h.store.UpsertLocation(ctx, userID, nil, false); err != nil {
		h.logger.Error("failed to deactivate surveyor on disconnect",
			zap.Int("user_id", userID), zap.Error(err))
		return
	}
	h.broadcastToRoles(ctx, models.ServerMessage{
		Type: models.MsgSurveyorStatus,
		Data: models.SurveyorStatus{UserID: userID, IsActive: false, Timestamp: timestamp()},
	}, models.RoleAdmin, models.RoleSupervisor)
	h.broadcastLocations(ctx)
}

// broadcastToRoles targets every authenticated connection holding one of the
// given roles.
func (h *Hub) broadcastToRoles(ctx context.Context, msg models.ServerMessage, roles ...models.Role) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.dispatch(ctx, fanoutMsg{Roles: roles, Payload: payload})
}

// broadcastToChannel targets every connection subscribed to the channel.
func (h *Hub) broadcastToChannel(ctx context.Context, channel string, msg models.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.dispatch(ctx, fanoutMsg{Channel: channel, Payload: payload})
}

// dispatch routes a fanout through redis when bridged, falling back to local
// delivery so a redis outage degrades to single-node behavior.
func (h *Hub) dispatch(ctx context.Context, f fanoutMsg) {
	if h.rdb == nil {
		h.deliver(ctx, f)
		return
	}
	raw, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("failed to marshal bridge message", zap.Error(err))
		return
	}
	if err := h.rdb.Publish(ctx, bridgeChannel, raw).Err(); err != nil {
		h.logger.Error("redis publish failed, delivering locally", zap.Error(err))
		h.deliver(ctx, f)
	}
}

// deliver writes the envelope to every matching connection. Delivery is
// best-effort per connection: a full send buffer evicts that connection,
// never the loop, and failures on one connection do not reach the others.
func (h *Hub) deliver(ctx context.Context, f fanoutMsg) {
	var evicted []*connection
	h.reg.forEach(func(c *connection) {
		if !f.matches(c) {
			return
		}
		select {
		case c.send <- f.Payload:
		default:
			evicted = append(evicted, c)
		}
	})
	for _, c := range evicted {
		h.logger.Warn("evicting slow websocket client",
			zap.String("connection_id", c.id.String()))
		h.closeConnection(ctx, c)
	}
}

func (f fanoutMsg) matches(c *connection) bool {
	if f.Channel != "" {
		_, ok := c.subs[f.Channel]
		return ok
	}
	if c.identity == nil {
		return false
	}
	for _, role := range f.Roles {
		if c.identity.role == role {
			return true
		}
	}
	return false
}

// sendTo queues an envelope for a single connection (catch-up snapshots and
// error replies go only to the requester).
func (h *Hub) sendTo(ctx context.Context, c *connection, msg models.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal reply", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	if !h.reg.has(c) {
		return
	}
	select {
	case c.send <- payload:
	default:
		h.logger.Warn("evicting slow websocket client",
			zap.String("connection_id", c.id.String()))
		h.closeConnection(ctx, c)
	}
}

func (h *Hub) sendError(ctx context.Context, c *connection, message string) {
	h.sendTo(ctx, c, models.ServerMessage{
		Type: models.MsgError,
		Data: models.ErrorPayload{Message: message},
	})
}
