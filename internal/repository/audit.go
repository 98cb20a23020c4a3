package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"inventory-audit/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const auditColumns = `id, event_type, entity_type, entity_id, entity_name, action, description,
	old_values, new_values, changes_summary, actor_id, actor_name, actor_email,
	source_address, client_agent, origin, created_at, correlation_id, status, severity`

// stamper hands out UTC timestamps at microsecond precision (what Postgres keeps).
// Each stamp is strictly later than the previous one within the process.
type stamper struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newStamper() *stamper {
	return &stamper{now: time.Now}
}

func (s *stamper) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

type postgresAuditRepository struct {
	db    *sql.DB
	clock *stamper
}

func NewPostgresAuditRepository(db *sql.DB) *postgresAuditRepository {
	return &postgresAuditRepository{db: db, clock: newStamper()}
}

func (r *postgresAuditRepository) Create(ctx context.Context, event *domain.AuditEvent) (*domain.AuditEvent, error) {
	if err := domain.ValidateAuditEvent(event); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stored := *event
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.clock.next()

	query := `INSERT INTO audit_events (` + auditColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := r.db.ExecContext(ctx, query,
		stored.ID,
		stored.EventType,
		stored.EntityType,
		stored.EntityID,
		stored.EntityName,
		string(stored.Action),
		stored.Description,
		nullString(stored.OldValues),
		nullString(stored.NewValues),
		nullString(stored.ChangesSummary),
		stored.ActorID,
		stored.ActorName,
		stored.ActorEmail,
		stored.RequestContext.SourceAddress,
		stored.RequestContext.ClientAgent,
		string(stored.RequestContext.Origin),
		stored.CreatedAt,
		stored.CorrelationID,
		string(stored.Status),
		string(stored.Severity),
	)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"event_type": stored.EventType,
			"entity_id":  stored.EntityID,
		}).Error("Failed to insert audit event")
		return nil, fmt.Errorf("insert audit event: %w", err)
	}

	return &stored, nil
}

func (r *postgresAuditRepository) GetByID(ctx context.Context, id string) (*domain.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `SELECT ` + auditColumns + ` FROM audit_events WHERE id = $1`

	event, err := scanAuditEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrAuditEventNotFound
	}
	if err != nil {
		log.WithError(err).WithField("audit_id", id).Error("Failed to get audit event by ID")
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return event, nil
}

// Query returns one window of matching events plus the number of matches before windowing.
func (r *postgresAuditRepository) Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEvent, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	where, args := buildAuditWhere(q.Filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&total); err != nil {
		log.WithError(err).Error("Failed to count audit events")
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	argPos := len(args) + 1
	var query strings.Builder
	query.WriteString(`SELECT ` + auditColumns + ` FROM audit_events`)
	query.WriteString(where)
	query.WriteString(orderClause(q.Sort))
	query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1))
	args = append(args, q.EffectiveLimit(), max(q.Offset, 0))

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		log.WithError(err).Error("Failed to query audit events")
		return nil, 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []domain.AuditEvent{}
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan audit event row")
			return nil, 0, err
		}
		events = append(events, *event)
	}

	return events, total, rows.Err()
}

func (r *postgresAuditRepository) Stats(ctx context.Context, filter domain.AuditFilter, topN int) (*domain.AuditStats, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	where, args := buildAuditWhere(filter)
	stats := &domain.AuditStats{}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&stats.TotalLogs); err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}

	var err error
	if stats.BySeverity, err = r.groupCounts(ctx, "severity", where, args); err != nil {
		return nil, err
	}
	if stats.ByAction, err = r.groupCounts(ctx, "action", where, args); err != nil {
		return nil, err
	}
	if stats.ByEntityType, err = r.groupCounts(ctx, "entity_type", where, args); err != nil {
		return nil, err
	}

	if topN <= 0 {
		topN = domain.DefaultTopActors
	}
	query := fmt.Sprintf(`SELECT actor_id, MAX(actor_name), COUNT(*) AS n FROM audit_events%s
	                      GROUP BY actor_id ORDER BY n DESC, actor_id ASC LIMIT $%d`, where, len(args)+1)
	rows, err := r.db.QueryContext(ctx, query, append(args, topN)...)
	if err != nil {
		log.WithError(err).Error("Failed to aggregate top actors")
		return nil, fmt.Errorf("aggregate top actors: %w", err)
	}
	defer rows.Close()

	stats.TopUsers = []domain.ActorCount{}
	for rows.Next() {
		var ac domain.ActorCount
		if err := rows.Scan(&ac.ActorID, &ac.ActorName, &ac.Count); err != nil {
			return nil, err
		}
		stats.TopUsers = append(stats.TopUsers, ac)
	}

	return stats, rows.Err()
}

// groupCounts column is always one of the fixed names used by Stats, never caller input.
func (r *postgresAuditRepository) groupCounts(ctx context.Context, column, where string, args []interface{}) ([]domain.GroupCount, error) {
	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*) AS n FROM audit_events%[2]s GROUP BY %[1]s ORDER BY n DESC, %[1]s ASC`, column, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).WithField("column", column).Error("Failed to group audit events")
		return nil, fmt.Errorf("group audit events by %s: %w", column, err)
	}
	defer rows.Close()

	groups := []domain.GroupCount{}
	for rows.Next() {
		var g domain.GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// buildAuditWhere renders f as " WHERE 1=1 AND ..." with positional arguments.
func buildAuditWhere(f domain.AuditFilter) (string, []interface{}) {
	var where strings.Builder
	args := []interface{}{}
	argPos := 1

	where.WriteString(" WHERE 1=1")

	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		where.WriteString(fmt.Sprintf(
			" AND (description ILIKE $%[1]d OR entity_name ILIKE $%[1]d OR actor_name ILIKE $%[1]d OR entity_id ILIKE $%[1]d)",
			argPos))
		args = append(args, "%"+escapeLike(term)+"%")
		argPos++
	}

	exact := []struct {
		column string
		value  string
	}{
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
		{"action", f.Action},
		{"severity", f.Severity},
		{"actor_id", f.ActorID},
		{"correlation_id", f.CorrelationID},
	}
	for _, c := range exact {
		if c.value == "" {
			continue
		}
		where.WriteString(fmt.Sprintf(" AND %s = $%d", c.column, argPos))
		args = append(args, c.value)
		argPos++
	}

	if f.StartDate != nil {
		where.WriteString(fmt.Sprintf(" AND created_at >= $%d", argPos))
		args = append(args, *f.StartDate)
		argPos++
	}
	if f.EndDate != nil {
		where.WriteString(fmt.Sprintf(" AND created_at <= $%d", argPos))
		args = append(args, *f.EndDate)
	}

	return where.String(), args
}

var sortColumns = map[domain.SortField]string{
	domain.SortByCreatedAt:  "created_at",
	domain.SortByUsername:   "actor_name",
	domain.SortByAction:     "action",
	domain.SortBySeverity:   "severity",
	domain.SortByEntityType: "entity_type",
	domain.SortByEventType:  "event_type",
}

func orderClause(s domain.AuditSort) string {
	column, ok := sortColumns[s.Field]
	if !ok {
		s = domain.DefaultAuditSort
		column = sortColumns[s.Field]
	}
	direction := "ASC"
	if s.Descending {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", column, direction)
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditEvent(row rowScanner) (*domain.AuditEvent, error) {
	var event domain.AuditEvent
	var action, origin, status, severity string
	var oldValues, newValues, summary sql.NullString

	err := row.Scan(
		&event.ID,
		&event.EventType,
		&event.EntityType,
		&event.EntityID,
		&event.EntityName,
		&action,
		&event.Description,
		&oldValues,
		&newValues,
		&summary,
		&event.ActorID,
		&event.ActorName,
		&event.ActorEmail,
		&event.RequestContext.SourceAddress,
		&event.RequestContext.ClientAgent,
		&origin,
		&event.CreatedAt,
		&event.CorrelationID,
		&status,
		&severity,
	)
	if err != nil {
		return nil, err
	}

	event.Action = domain.Action(action)
	event.RequestContext.Origin = domain.Origin(origin)
	event.Status = domain.Status(status)
	event.Severity = domain.Severity(severity)
	event.OldValues = stringPtr(oldValues)
	event.NewValues = stringPtr(newValues)
	event.ChangesSummary = stringPtr(summary)
	event.CreatedAt = event.CreatedAt.UTC()

	return &event, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
