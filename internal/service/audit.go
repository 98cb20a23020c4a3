package service

import (
	"context"
	"encoding/json"
	"fmt"

	"inventory-audit/internal/changes"
	"inventory-audit/internal/domain"
	"inventory-audit/internal/metrics"
	"inventory-audit/internal/requestctx"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type AuditStore interface {
	Create(ctx context.Context, event *domain.AuditEvent) (*domain.AuditEvent, error)
}

// AuditNotifier is told about every stored event. Implementations must not block.
type AuditNotifier interface {
	Notify(ctx context.Context, event domain.AuditEvent)
}

type Outcome string

const (
	OutcomeLogged  Outcome = "logged"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// LogResult reports what happened to one audit call. Err is only set for OutcomeFailed and
// is never meant to be returned to the business caller.
type LogResult struct {
	Outcome Outcome
	Event   *domain.AuditEvent
	Err     error
}

type ActionInput struct {
	EventType     string
	EntityType    string
	EntityID      string
	EntityName    string
	Action        domain.Action
	OldValues     interface{}
	NewValues     interface{}
	Severity      domain.Severity
	CorrelationID string
}

type AuditLogger struct {
	store    AuditStore
	notifier AuditNotifier
}

func NewAuditLogger(store AuditStore, notifier AuditNotifier) *AuditLogger {
	return &AuditLogger{store: store, notifier: notifier}
}

// LogAction records one action for the actor found on ctx. It never fails the caller:
// without an actor the call is skipped, and errors or panics come back as OutcomeFailed.
func (l *AuditLogger) LogAction(ctx context.Context, in ActionInput) (result LogResult) {
	defer func() {
		if r := recover(); r != nil {
			result = LogResult{Outcome: OutcomeFailed, Err: fmt.Errorf("audit logging panicked: %v", r)}
		}
		if result.Outcome == OutcomeFailed {
			log.WithError(result.Err).WithFields(log.Fields{
				"event_type": in.EventType,
				"entity_id":  in.EntityID,
			}).Warn("Audit event was not recorded")
		}
		metrics.AuditLogOutcomes.WithLabelValues(string(result.Outcome), string(in.Action)).Inc()
	}()

	if l == nil || l.store == nil {
		return LogResult{Outcome: OutcomeSkipped}
	}

	actor, ok := requestctx.ActorFrom(ctx)
	if !ok {
		return LogResult{Outcome: OutcomeSkipped}
	}

	event, err := l.buildEvent(ctx, actor, in)
	if err != nil {
		return LogResult{Outcome: OutcomeFailed, Err: err}
	}

	stored, err := l.store.Create(ctx, event)
	if err != nil {
		return LogResult{Outcome: OutcomeFailed, Err: err}
	}

	if l.notifier != nil {
		l.notifier.Notify(ctx, *stored)
	}

	return LogResult{Outcome: OutcomeLogged, Event: stored}
}

func (l *AuditLogger) buildEvent(ctx context.Context, actor requestctx.Actor, in ActionInput) (*domain.AuditEvent, error) {
	oldValues, err := snapshotJSON(in.OldValues)
	if err != nil {
		return nil, fmt.Errorf("encode old values: %w", err)
	}
	newValues, err := snapshotJSON(in.NewValues)
	if err != nil {
		return nil, fmt.Errorf("encode new values: %w", err)
	}

	info := requestctx.RequestInfoFrom(ctx)

	correlationID := in.CorrelationID
	if correlationID == "" {
		correlationID = info.CorrelationID
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	origin := info.Origin
	if origin == "" {
		origin = domain.OriginSystem
	}

	actorName := actor.Name
	if actorName == "" {
		actorName = "Unknown"
	}

	severity := in.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}

	event := &domain.AuditEvent{
		EventType:   in.EventType,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		EntityName:  in.EntityName,
		Action:      in.Action,
		Description: fmt.Sprintf("%s %s %s '%s'", actorName, in.Action.PastTense(), in.EntityType, in.EntityName),
		OldValues:   toStringPtr(oldValues),
		NewValues:   toStringPtr(newValues),
		ActorID:     actor.ID,
		ActorName:   actorName,
		ActorEmail:  actor.Email,
		RequestContext: domain.RequestContext{
			SourceAddress: info.SourceAddress,
			ClientAgent:   info.ClientAgent,
			Origin:        origin,
		},
		CorrelationID: correlationID,
		Status:        domain.StatusSuccess,
		Severity:      severity,
	}
	_, event.ChangesSummary = changes.Compute(oldValues, newValues)

	return event, nil
}

func (l *AuditLogger) LogCreate(ctx context.Context, entityType, entityID, entityName string, newValues interface{}) LogResult {
	return l.LogAction(ctx, ActionInput{
		EventType:  entityType + "Created",
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Action:     domain.ActionCreate,
		NewValues:  newValues,
		Severity:   domain.SeverityMedium,
	})
}

func (l *AuditLogger) LogUpdate(ctx context.Context, entityType, entityID, entityName string, oldValues, newValues interface{}) LogResult {
	return l.LogAction(ctx, ActionInput{
		EventType:  entityType + "Updated",
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Action:     domain.ActionUpdate,
		OldValues:  oldValues,
		NewValues:  newValues,
		Severity:   domain.SeverityMedium,
	})
}

func (l *AuditLogger) LogDelete(ctx context.Context, entityType, entityID, entityName string, oldValues interface{}) LogResult {
	return l.LogAction(ctx, ActionInput{
		EventType:  entityType + "Deleted",
		EntityType: entityType,
		EntityID:   entityID,
		EntityName: entityName,
		Action:     domain.ActionDelete,
		OldValues:  oldValues,
		Severity:   domain.SeverityHigh,
	})
}

type sessionSnapshot struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LogLogin records a login for the actor on ctx.
func (l *AuditLogger) LogLogin(ctx context.Context) LogResult {
	return l.logSession(ctx, "UserLoggedIn", domain.ActionLogin)
}

func (l *AuditLogger) LogLogout(ctx context.Context) LogResult {
	return l.logSession(ctx, "UserLoggedOut", domain.ActionLogout)
}

func (l *AuditLogger) logSession(ctx context.Context, eventType string, action domain.Action) LogResult {
	actor, _ := requestctx.ActorFrom(ctx)
	return l.LogAction(ctx, ActionInput{
		EventType:  eventType,
		EntityType: "User",
		EntityID:   actor.ID,
		EntityName: actor.Name,
		Action:     action,
		NewValues:  sessionSnapshot{UserID: actor.ID, Username: actor.Name, Email: actor.Email},
		Severity:   domain.SeverityLow,
	})
}

// snapshotJSON encodes v for storage. nil and JSON null both mean "no snapshot".
func snapshotJSON(v interface{}) ([]byte, error) {
	var data []byte
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		data = val
	case []byte:
		data = val
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	if string(data) == "null" || len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func toStringPtr(data []byte) *string {
	if data == nil {
		return nil
	}
	s := string(data)
	return &s
}
