package realtime

import (
	"fmt"

	"inventory-audit/internal/domain"
)

// Message types exchanged over the websocket.
const (
	TypeConnected       = "connected"
	TypeAuditLog        = "auditLog"
	TypeJoinedRoom      = "joinedRoom"
	TypeLeftRoom        = "leftRoom"
	TypeError           = "error"
	TypeJoinEntityRoom  = "joinEntityRoom"
	TypeLeaveEntityRoom = "leaveEntityRoom"
	TypeJoinUserRoom    = "joinUserRoom"
	TypeLeaveUserRoom   = "leaveUserRoom"
)

type Message struct {
	Type         string             `json:"type"`
	ConnectionID string             `json:"connectionId,omitempty"`
	Room         string             `json:"room,omitempty"`
	ID           string             `json:"id,omitempty"`
	Error        string             `json:"error,omitempty"`
	Data         *domain.AuditEvent `json:"data,omitempty"`
}

// RoomCommand resolves a client join/leave message to the room it names.
func RoomCommand(msg Message) (room string, join bool, err error) {
	if msg.ID == "" {
		return "", false, fmt.Errorf("%s: missing id", msg.Type)
	}
	switch msg.Type {
	case TypeJoinEntityRoom:
		return domain.EntityRoom(msg.ID), true, nil
	case TypeLeaveEntityRoom:
		return domain.EntityRoom(msg.ID), false, nil
	case TypeJoinUserRoom:
		return domain.UserRoom(msg.ID), true, nil
	case TypeLeaveUserRoom:
		return domain.UserRoom(msg.ID), false, nil
	}
	return "", false, fmt.Errorf("unknown message type %q", msg.Type)
}
