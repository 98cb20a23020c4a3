package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeTimeout   = 5 * time.Second
	maxClientFrame = 4096
)

type session struct {
	conn    *websocket.Conn
	sub     *Subscription
	writeMu sync.Mutex
}

// Serve runs one websocket subscriber until the peer disconnects or ctx ends. The
// subscription and every room it joined are released on return.
func Serve(ctx context.Context, hub *Hub, conn *websocket.Conn, keepAlive time.Duration) {
	sub := hub.Subscribe()
	s := &session{conn: conn, sub: sub}

	logger := log.WithField("connection_id", sub.ID())
	logger.Debug("Realtime subscriber connected")

	conn.SetReadLimit(maxClientFrame)
	if keepAlive > 0 {
		conn.SetReadDeadline(time.Now().Add(2 * keepAlive))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * keepAlive))
		})
	}

	if err := s.write(Message{Type: TypeConnected, ConnectionID: sub.ID()}); err != nil {
		sub.Close()
		conn.Close()
		return
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop(ctx, done, keepAlive)
	}()

	s.readLoop()

	close(done)
	sub.Close()
	conn.Close()
	wg.Wait()
	logger.Debug("Realtime subscriber disconnected")
}

func (s *session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.write(Message{Type: TypeError, Error: "malformed message"})
			continue
		}

		room, join, err := RoomCommand(msg)
		if err != nil {
			s.write(Message{Type: TypeError, Error: err.Error()})
			continue
		}

		if join {
			s.sub.Join(room)
			s.write(Message{Type: TypeJoinedRoom, Room: room})
		} else {
			s.sub.Leave(room)
			s.write(Message{Type: TypeLeftRoom, Room: room})
		}
	}
}

func (s *session) writeLoop(ctx context.Context, done <-chan struct{}, keepAlive time.Duration) {
	var ping <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			s.conn.Close()
			return
		case event, ok := <-s.sub.Events():
			if !ok {
				s.conn.Close()
				return
			}
			if err := s.write(Message{Type: TypeAuditLog, Data: &event}); err != nil {
				s.conn.Close()
				return
			}
		case <-ping:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

func (s *session) write(msg Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}
