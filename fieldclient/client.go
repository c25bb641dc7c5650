// Package fieldclient is the consuming side of the realtime layer: it keeps
// one websocket to the server, authenticates, subscribes to the response and
// location channels, and exposes the inbound stream as coalesced snapshots.
package fieldclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
)

// ErrNotConnected is returned when a send is attempted while the transport is
// down. The message is dropped, not queued.
var ErrNotConnected = errors.New("websocket is not connected")

const (
	defaultDebounce   = 200 * time.Millisecond
	initialBackoff    = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Config configures a Client. UserID and Role form the pre-authenticated
// identity announced on connect.
type Config struct {
	URL    string
	UserID int
	Role   models.Role

	Logger *zap.Logger
	Dialer *websocket.Dialer

	// DebounceWindow is the quiet window for response coalescing.
	DebounceWindow time.Duration
	// MinPingInterval gates outbound location samples; zero sends every one.
	MinPingInterval time.Duration
	// Reconnect enables capped exponential backoff after a dropped session.
	Reconnect bool
	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
	// Positions, when set, drives the outbound location watch.
	Positions PositionSource
}

// Message is a server envelope that is neither a response nor a location
// snapshot, kept for callers that want to observe status events.
type Message struct {
	Type string
	Data json.RawMessage
}

// Client is a connected dashboard or field-agent endpoint.
type Client struct {
	cfg    Config
	logger *zap.Logger

	responses *responseCoalescer

	// writeMu serializes websocket writes: the transport allows a single
	// concurrent writer, and the position watch and shift calls may run on
	// different goroutines.
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	locations []models.LocationWithUser
	lastMsg   *Message
}

// New validates the config and builds a client. Run must be called to
// connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("fieldclient: URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = defaultDebounce
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Client{
		cfg:       cfg,
		logger:    cfg.Logger,
		responses: newResponseCoalescer(cfg.DebounceWindow),
	}, nil
}

// Run connects and serves until ctx is cancelled. With Reconnect set it
// retries dropped sessions with capped exponential backoff, resetting the
// delay after each successful connect; otherwise it returns the session
// error.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			c.responses.close()
			return ctx.Err()
		}
		if !c.cfg.Reconnect {
			c.responses.close()
			return err
		}
		if connected {
			backoff = initialBackoff
		}
		c.logger.Warn("websocket session ended, reconnecting",
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			c.responses.close()
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
}

// session runs one connection lifetime. The first return value reports
// whether the dial succeeded at all.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
		conn.Close()
	}()

	// Close the socket when ctx is cancelled so the read loop unblocks.
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	if err := c.announce(); err != nil {
		return true, err
	}
	if c.cfg.Positions != nil {
		go c.watchPositions(sessionCtx)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.dispatch(payload)
	}
}

// announce sends the authenticate message and the channel subscriptions a
// fresh connection needs.
func (c *Client) announce() error {
	auth := models.ClientMessage{Type: models.MsgAuthenticate}
	data, err := json.Marshal(models.AuthenticatePayload{UserID: c.cfg.UserID, Role: c.cfg.Role})
	if err != nil {
		return err
	}
	auth.Data = data
	if err := c.Send(auth); err != nil {
		return err
	}
	if err := c.Send(models.ClientMessage{Type: models.MsgSubscribe, Channel: models.ChannelResponses}); err != nil {
		return err
	}
	return c.Send(models.ClientMessage{Type: models.MsgSubscribe, Channel: models.ChannelLocations})
}

func (c *Client) dispatch(payload []byte) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("failed to parse server message", zap.Error(err))
		return
	}

	switch msg.Type {
	case models.ChannelResponses:
		var batch []models.SurveyResponse
		if err := json.Unmarshal(msg.Data, &batch); err != nil {
			c.logger.Error("failed to parse responses batch", zap.Error(err))
			return
		}
		c.responses.add(batch)

	case models.ChannelLocations:
		var snapshot []models.LocationWithUser
		if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
			c.logger.Error("failed to parse location snapshot", zap.Error(err))
			return
		}
		// The server snapshots the complete list; replace, never merge.
		c.mu.Lock()
		c.locations = snapshot
		c.mu.Unlock()

	default:
		c.mu.Lock()
		c.lastMsg = &msg
		c.mu.Unlock()
	}
}

// watchPositions forwards device samples as updateLocation messages,
// optionally gated by MinPingInterval.
func (c *Client) watchPositions(ctx context.Context) {
	samples, err := c.cfg.Positions.Positions(ctx)
	if err != nil {
		c.logger.Error("failed to start position watch", zap.Error(err))
		return
	}
	var lastSent time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-samples:
			if !ok {
				return
			}
			if c.cfg.MinPingInterval > 0 && time.Since(lastSent) < c.cfg.MinPingInterval {
				continue
			}
			if err := c.UpdateLocation(p); err != nil {
				c.logger.Error("failed to send location update", zap.Error(err))
				continue
			}
			lastSent = time.Now()
		}
	}
}

// Send writes one envelope. If the transport is not open the message is
// dropped with an error; nothing is queued or retried.
func (c *Client) Send(msg models.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.logger.Error("dropping message, websocket is not connected",
			zap.String("type", msg.Type))
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (c *Client) sendLocationEvent(msgType string, p *models.Point) error {
	data, err := json.Marshal(models.LocationPayload{UserID: c.cfg.UserID, Location: p})
	if err != nil {
		return err
	}
	return c.Send(models.ClientMessage{Type: msgType, Data: data})
}

// UpdateLocation sends one location ping.
func (c *Client) UpdateLocation(p models.Point) error {
	data, err := json.Marshal(models.LocationPayload{UserID: c.cfg.UserID, Location: &p})
	if err != nil {
		return err
	}
	return c.Send(models.ClientMessage{
		Type:    models.MsgSubscribe,
		Channel: models.ChannelUpdateLocation,
		Data:    data,
	})
}

// StartShift marks the surveyor active, optionally with a position.
func (c *Client) StartShift(p *models.Point) error {
	return c.sendLocationEvent(models.MsgStartShift, p)
}

// EndShift marks the surveyor inactive.
func (c *Client) EndShift(p *models.Point) error {
	return c.sendLocationEvent(models.MsgEndShift, p)
}

// Connected reports whether the transport is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Responses returns the coalesced, deduplicated response sequence.
func (c *Client) Responses() []models.SurveyResponse {
	return c.responses.snapshot()
}

// SurveyorLocations returns the latest location snapshot.
func (c *Client) SurveyorLocations() []models.LocationWithUser {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.LocationWithUser, len(c.locations))
	copy(out, c.locations)
	return out
}

// LastMessage returns the most recent envelope outside the two aggregated
// channels, if any.
func (c *Client) LastMessage() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMsg == nil {
		return Message{}, false
	}
	return *c.lastMsg, true
}
