// Package subscriber is a reconnecting client for the audit live-tail websocket.
package subscriber

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"inventory-audit/internal/domain"
	"inventory-audit/internal/realtime"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type State string

const (
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateReconnected  State = "reconnected"
	StateClosed       State = "closed"
)

// DefaultBackoff is the wait before each successive dial attempt; the last entry repeats.
var DefaultBackoff = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

var errNotConnected = errors.New("subscriber is not connected")

type roomKey struct {
	joinType  string
	leaveType string
	id        string
}

type Client struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	backoff []time.Duration

	onEvent func(domain.AuditEvent)
	onState func(State)

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	rooms   map[roomKey]struct{}
}

type Option func(*Client)

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

func WithBackoff(schedule []time.Duration) Option {
	return func(c *Client) {
		if len(schedule) > 0 {
			c.backoff = schedule
		}
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func OnEvent(fn func(domain.AuditEvent)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// OnState is called from the Run goroutine on every state transition.
func OnState(fn func(State)) Option {
	return func(c *Client) { c.onState = fn }
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		dialer:  websocket.DefaultDialer,
		backoff: DefaultBackoff,
		rooms:   make(map[roomKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run keeps the client connected until ctx ends. Joined rooms are remembered and re-sent
// after every reconnect, since the server forgets them when a connection drops.
func (c *Client) Run(ctx context.Context) error {
	defer c.setState(StateClosed)

	connectedBefore := false
	attempt := 0
	for {
		if err := sleep(ctx, c.delay(attempt)); err != nil {
			return nil
		}

		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempt++
			log.WithError(err).WithField("attempt", attempt).Warn("Audit stream dial failed")
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		if connectedBefore {
			c.setState(StateReconnected)
		} else {
			c.setState(StateConnected)
			connectedBefore = true
		}
		c.rejoin()

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		c.setState(StateReconnecting)
	}
}

func (c *Client) JoinEntity(entityID string) error {
	return c.track(roomKey{realtime.TypeJoinEntityRoom, realtime.TypeLeaveEntityRoom, entityID}, true)
}

func (c *Client) LeaveEntity(entityID string) error {
	return c.track(roomKey{realtime.TypeJoinEntityRoom, realtime.TypeLeaveEntityRoom, entityID}, false)
}

func (c *Client) JoinUser(userID string) error {
	return c.track(roomKey{realtime.TypeJoinUserRoom, realtime.TypeLeaveUserRoom, userID}, true)
}

func (c *Client) LeaveUser(userID string) error {
	return c.track(roomKey{realtime.TypeJoinUserRoom, realtime.TypeLeaveUserRoom, userID}, false)
}

// track records the membership and sends it now if connected. While disconnected the
// change is applied on the next reconnect, so errNotConnected is not returned for it.
func (c *Client) track(key roomKey, join bool) error {
	c.mu.Lock()
	if join {
		c.rooms[key] = struct{}{}
	} else {
		delete(c.rooms, key)
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	msgType := key.leaveType
	if join {
		msgType = key.joinType
	}
	return c.send(conn, realtime.Message{Type: msgType, ID: key.id})
}

func (c *Client) rejoin() {
	c.mu.Lock()
	conn := c.conn
	keys := make([]roomKey, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		if err := c.send(conn, realtime.Message{Type: k.joinType, ID: k.id}); err != nil {
			log.WithError(err).WithField("id", k.id).Warn("Failed to rejoin audit room")
			return
		}
	}
}

func (c *Client) send(conn *websocket.Conn, msg realtime.Message) error {
	if conn == nil {
		return errNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(msg)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case realtime.TypeAuditLog:
			if msg.Data != nil && c.onEvent != nil {
				c.onEvent(*msg.Data)
			}
		case realtime.TypeError:
			log.WithField("error", msg.Error).Warn("Audit stream rejected a message")
		}
	}
}

func (c *Client) delay(attempt int) time.Duration {
	if attempt >= len(c.backoff) {
		return c.backoff[len(c.backoff)-1]
	}
	return c.backoff[attempt]
}

func (c *Client) setState(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
