package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// handleFrame interprets one inbound client message. Runs on the hub loop, so
// every store call and broadcast below completes before the next frame from
// any connection is handled.
func (h *Hub) handleFrame(ctx context.Context, c *connection, payload []byte) {
	if !h.reg.has(c) {
		// Frame raced with an eviction; the connection is already gone.
		return
	}
	var msg models.ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.sendError(ctx, c, "invalid message format")
		return
	}

	switch msg.Type {
	case models.MsgAuthenticate:
		h.handleAuthenticate(ctx, c, msg.Data)

	case models.MsgSubscribe:
		switch msg.Channel {
		case models.ChannelResponses:
			h.handleSubscribeResponses(ctx, c)
		case models.ChannelLocations:
			h.handleSubscribeLocations(ctx, c)
		case models.ChannelUpdateLocation:
			h.handleLocationUpdate(ctx, c, msg.Data)
		default:
			h.sendError(ctx, c, "unknown channel")
		}

	case models.MsgStartShift:
		h.handleShift(ctx, c, msg.Data, true)

	case models.MsgEndShift:
		h.handleShift(ctx, c, msg.Data, false)

	default:
		h.sendError(ctx, c, "invalid message format")
	}
}

// handleAuthenticate attaches the pre-authenticated identity to the
// connection. The identity is fixed for the connection's lifetime; there is
// no way back to the unauthenticated state.
func (h *Hub) handleAuthenticate(ctx context.Context, c *connection, data json.RawMessage) {
	var in models.AuthenticatePayload
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(ctx, c, "invalid message format")
		return
	}
	if c.identity != nil {
		h.sendError(ctx, c, "already authenticated")
		return
	}
	h.reg.setIdentity(c, in.UserID, in.Role)

	if in.UserID != 0 {
		if _, err := h.store.UpsertLocation(ctx, in.UserID, in.Location, true); err != nil {
			h.logger.Error("failed to activate surveyor",
				zap.Int("user_id", in.UserID), zap.Error(err))
			h.sendError(ctx, c, "failed to update status")
			return
		}
		h.broadcastToRoles(ctx, models.ServerMessage{
			Type: models.MsgSurveyorStatus,
			Data: models.SurveyorStatus{UserID: in.UserID, IsActive: true, Timestamp: timestamp()},
		}, models.RoleAdmin, models.RoleSupervisor)
		h.broadcastLocations(ctx)
	}

	h.logger.Info("websocket client authenticated",
		zap.String("connection_id", c.id.String()),
		zap.Int("user_id", in.UserID),
		zap.String("role", string(in.Role)))
}

// handleSubscribeResponses adds the channel and immediately sends the full
// current response list to the requester as a catch-up snapshot.
func (h *Hub) handleSubscribeResponses(ctx context.Context, c *connection) {
	h.reg.subscribe(c, models.ChannelResponses)

	responses, err := h.store.ListResponses(ctx)
	if err != nil {
		h.logger.Error("failed to list responses", zap.Error(err))
		h.sendError(ctx, c, "failed to load responses")
		return
	}
	h.sendTo(ctx, c, models.ServerMessage{Type: models.ChannelResponses, Data: responses})
}

// handleSubscribeLocations adds the channel and sends the enriched location
// snapshot to the requester only.
func (h *Hub) handleSubscribeLocations(ctx context.Context, c *connection) {
	h.reg.subscribe(c, models.ChannelLocations)

	snapshot, err := h.locationSnapshot(ctx)
	if err != nil {
		h.logger.Error("failed to build location snapshot", zap.Error(err))
		h.sendError(ctx, c, "failed to load locations")
		return
	}
	h.sendTo(ctx, c, models.ServerMessage{Type: models.ChannelLocations, Data: snapshot})
}

// handleLocationUpdate is the high-frequency ping path: validate, persist,
// notify admins immediately, then snapshot to all location subscribers.
func (h *Hub) handleLocationUpdate(ctx context.Context, c *connection, data json.RawMessage) {
	var in models.LocationPayload
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(ctx, c, "invalid message format")
		return
	}
	if in.Location == nil || in.Location.Validate() != nil {
		h.sendError(ctx, c, "invalid location")
		return
	}

	if _, err := h.store.UpsertLocation(ctx, in.UserID, in.Location, true); err != nil {
		h.logger.Error("failed to upsert location",
			zap.Int("user_id", in.UserID), zap.Error(err))
		h.sendError(ctx, c, "failed to update location")
		return
	}

	h.broadcastToRoles(ctx, models.ServerMessage{
		Type: models.MsgLocationUpdate,
		Data: models.LocationUpdate{UserID: in.UserID, Location: *in.Location, Timestamp: timestamp()},
	}, models.RoleAdmin, models.RoleSupervisor)
	h.broadcastLocations(ctx)
}

// handleShift starts or ends a work session: same persistence as a location
// ping but with the active flag driven by the event.
func (h *Hub) handleShift(ctx context.Context, c *connection, data json.RawMessage, active bool) {
	var in models.LocationPayload
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(ctx, c, "invalid message format")
		return
	}

	if _, err := h.store.UpsertLocation(ctx, in.UserID, in.Location, active); err != nil {
		h.logger.Error("failed to update shift state",
			zap.Int("user_id", in.UserID), zap.Bool("active", active), zap.Error(err))
		h.sendError(ctx, c, "failed to update status")
		return
	}

	h.broadcastToRoles(ctx, models.ServerMessage{
		Type: models.MsgSurveyorStatus,
		Data: models.SurveyorStatus{UserID: in.UserID, IsActive: active, Timestamp: timestamp()},
	}, models.RoleAdmin, models.RoleSupervisor)
	h.broadcastLocations(ctx)
}

// locationSnapshot joins active location rows with user profiles and keeps
// only surveyors: supervisors and admins monitor but are never tracked
// targets themselves.
func (h *Hub) locationSnapshot(ctx context.Context) ([]models.LocationWithUser, error) {
	locations, err := h.store.GetActiveLocations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.LocationWithUser, 0, len(locations))
	for _, loc := range locations {
		user, err := h.store.GetUser(ctx, loc.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if user.Role != models.RoleSurveyor {
			continue
		}
		profile := user.Profile()
		out = append(out, models.LocationWithUser{SurveyorLocation: loc, User: &profile})
	}
	return out, nil
}

// broadcastLocations sends the full active-location snapshot to every channel
// subscriber. Full snapshots rather than deltas: clients never reconcile
// partial updates, at the cost of O(active surveyors) payload per ping.
func (h *Hub) broadcastLocations(ctx context.Context) {
	snapshot, err := h.locationSnapshot(ctx)
	if err != nil {
		h.logger.Error("failed to build location snapshot", zap.Error(err))
		return
	}
	h.broadcastToChannel(ctx, models.ChannelLocations, models.ServerMessage{
		Type: models.ChannelLocations,
		Data: snapshot,
	})
}

// broadcastResponses sends the full response list to every channel subscriber.
func (h *Hub) broadcastResponses(ctx context.Context) {
	responses, err := h.store.ListResponses(ctx)
	if err != nil {
		h.logger.Error("failed to list responses", zap.Error(err))
		return
	}
	h.broadcastToChannel(ctx, models.ChannelResponses, models.ServerMessage{
		Type: models.ChannelResponses,
		Data: responses,
	})
}
