package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	// MaxPageSize bounds a single page of audit events.
	MaxPageSize     = 100
	DefaultPageSize = 20
	// MaxScanLimit bounds every unpaged audit listing.
	MaxScanLimit        = 1000
	DefaultUserTop      = 100
	SeverityScanLimit   = 500
	DefaultTopActors    = 10
	maxEventTypeLength  = 100
	maxEntityTypeLength = 100
)

var (
	ErrAuditEventNotFound = errors.New("audit event not found")
	ErrInvalidAuditEvent  = errors.New("invalid audit event")
	ErrUnauthenticated    = errors.New("authentication required")
)

type Action string

const (
	ActionCreate Action = "Create"
	ActionUpdate Action = "Update"
	ActionDelete Action = "Delete"
	ActionLogin  Action = "Login"
	ActionLogout Action = "Logout"
)

// PastTense renders the verb used in event descriptions.
// Unknown actions fall back to a plain "-ed" suffix.
func (a Action) PastTense() string {
	switch a {
	case ActionLogin:
		return "logged in"
	case ActionLogout:
		return "logged out"
	}
	verb := strings.ToLower(string(a))
	if verb == "" {
		return "acted on"
	}
	if strings.HasSuffix(verb, "e") {
		return verb + "d"
	}
	return verb + "ed"
}

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusPending Status = "Pending"
)

type Origin string

const (
	OriginWeb    Origin = "Web"
	OriginAPI    Origin = "API"
	OriginSystem Origin = "System"
	OriginMobile Origin = "Mobile"
)

type RequestContext struct {
	SourceAddress string `json:"sourceAddress"`
	ClientAgent   string `json:"clientAgent"`
	Origin        Origin `json:"origin"`
}

// AuditEvent is immutable once the store has assigned ID and CreatedAt.
type AuditEvent struct {
	ID             string         `json:"id"`
	EventType      string         `json:"eventType"`
	EntityType     string         `json:"entityType"`
	EntityID       string         `json:"entityId"`
	EntityName     string         `json:"entityName"`
	Action         Action         `json:"action"`
	Description    string         `json:"description"`
	OldValues      *string        `json:"oldValues"`
	NewValues      *string        `json:"newValues"`
	ChangesSummary *string        `json:"changesSummary"`
	ActorID        string         `json:"actorId"`
	ActorName      string         `json:"actorName"`
	ActorEmail     string         `json:"actorEmail"`
	RequestContext RequestContext `json:"requestContext"`
	CreatedAt      time.Time      `json:"createdAt"`
	CorrelationID  string         `json:"correlationId"`
	Status         Status         `json:"status"`
	Severity       Severity       `json:"severity"`
}

// Rooms lists the realtime rooms this event belongs to.
func (e AuditEvent) Rooms() []string {
	rooms := make([]string, 0, 2)
	if e.EntityID != "" {
		rooms = append(rooms, EntityRoom(e.EntityID))
	}
	if e.ActorID != "" {
		rooms = append(rooms, UserRoom(e.ActorID))
	}
	return rooms
}

func EntityRoom(entityID string) string { return "entity:" + entityID }

func UserRoom(userID string) string { return "user:" + userID }

func ValidateAuditEvent(e *AuditEvent) error {
	if e == nil {
		return ErrInvalidAuditEvent
	}
	if e.EventType == "" || len(e.EventType) > maxEventTypeLength {
		return ErrInvalidAuditEvent
	}
	if e.EntityType == "" || len(e.EntityType) > maxEntityTypeLength {
		return ErrInvalidAuditEvent
	}
	if e.Action == "" {
		return ErrInvalidAuditEvent
	}
	return nil
}
