package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"inventory-audit/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditRowColumns = []string{
	"id", "event_type", "entity_type", "entity_id", "entity_name", "action", "description",
	"old_values", "new_values", "changes_summary", "actor_id", "actor_name", "actor_email",
	"source_address", "client_agent", "origin", "created_at", "correlation_id", "status", "severity",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func strPtr(s string) *string { return &s }

func TestPostgresAuditRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns id and timestamp", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		event := &domain.AuditEvent{
			EventType:      "ProductUpdated",
			EntityType:     "Product",
			EntityID:       "p-1",
			EntityName:     "Widget",
			Action:         domain.ActionUpdate,
			Description:    "alice updated Product 'Widget'",
			OldValues:      strPtr(`{"price":10}`),
			NewValues:      strPtr(`{"price":12}`),
			ChangesSummary: strPtr("price: 10 → 12"),
			ActorID:        "u-1",
			ActorName:      "alice",
			ActorEmail:     "alice@example.com",
			RequestContext: domain.RequestContext{SourceAddress: "10.0.0.1", ClientAgent: "curl", Origin: domain.OriginAPI},
			CorrelationID:  "corr-1",
			Status:         domain.StatusSuccess,
			Severity:       domain.SeverityMedium,
		}

		mock.ExpectExec("INSERT INTO audit_events").
			WithArgs(
				sqlmock.AnyArg(), "ProductUpdated", "Product", "p-1", "Widget", "Update",
				"alice updated Product 'Widget'", `{"price":10}`, `{"price":12}`, "price: 10 → 12",
				"u-1", "alice", "alice@example.com", "10.0.0.1", "curl", "API",
				sqlmock.AnyArg(), "corr-1", "Success", "Medium",
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		before := time.Now().UTC().Truncate(time.Microsecond)
		stored, err := repo.Create(ctx, event)
		require.NoError(t, err)

		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.CreatedAt.Before(before))
		assert.Empty(t, event.ID, "caller's event is not mutated")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an event without a type", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		_, err := repo.Create(ctx, &domain.AuditEvent{EntityType: "Product", Action: domain.ActionCreate})
		assert.ErrorIs(t, err, domain.ErrInvalidAuditEvent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates storage errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		dbErr := errors.New("connection refused")
		mock.ExpectExec("INSERT INTO audit_events").WillReturnError(dbErr)

		_, err := repo.Create(ctx, &domain.AuditEvent{EventType: "Login", EntityType: "User", Action: domain.ActionLogin})
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAuditRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rows := sqlmock.NewRows(auditRowColumns).AddRow(
			"a-1", "ProductCreated", "Product", "p-1", "Widget", "Create", "alice created Product 'Widget'",
			nil, `{"price":10}`, nil, "u-1", "alice", "alice@example.com",
			"127.0.0.1", "Mozilla", "Web", createdAt, "corr-1", "Success", "Medium",
		)
		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE id = \$1`).WithArgs("a-1").WillReturnRows(rows)

		event, err := repo.GetByID(ctx, "a-1")
		require.NoError(t, err)
		assert.Equal(t, domain.ActionCreate, event.Action)
		assert.Nil(t, event.OldValues)
		require.NotNil(t, event.NewValues)
		assert.Equal(t, `{"price":10}`, *event.NewValues)
		assert.Nil(t, event.ChangesSummary)
		assert.Equal(t, domain.OriginWeb, event.RequestContext.Origin)
		assert.Equal(t, createdAt, event.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE id = \$1`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrAuditEventNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresAuditRepository_Query(t *testing.T) {
	ctx := context.Background()
	db, mock := setupMockDB(t)
	repo := NewPostgresAuditRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_events WHERE 1=1 AND action = \$1 AND severity = \$2`).
		WithArgs("Delete", "Critical").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))

	rows := sqlmock.NewRows(auditRowColumns).AddRow(
		"a-9", "ProductDeleted", "Product", "p-1", "Widget", "Delete", "alice deleted Product 'Widget'",
		`{"price":10}`, nil, nil, "u-1", "alice", "", "", "", "API",
		time.Now().UTC(), "corr-9", "Success", "Critical",
	)
	mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE 1=1 AND action = \$1 AND severity = \$2 ORDER BY created_at DESC, id ASC LIMIT \$3 OFFSET \$4`).
		WithArgs("Delete", "Critical", 20, 20).
		WillReturnRows(rows)

	events, total, err := repo.Query(ctx, domain.AuditQuery{
		Filter: domain.AuditFilter{Action: "Delete", Severity: "Critical"},
		Sort:   domain.DefaultAuditSort,
		Limit:  20,
		Offset: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 21, total)
	require.Len(t, events, 1)
	assert.Equal(t, "a-9", events[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAuditRepository_Stats(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	rangeWhere := `WHERE 1=1 AND created_at >= \$1 AND created_at <= \$2`

	t.Run("aggregates within the range", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_events ` + rangeWhere).
			WithArgs(start, end).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
		mock.ExpectQuery(`SELECT severity, COUNT\(\*\) AS n FROM audit_events ` + rangeWhere + ` GROUP BY severity ORDER BY n DESC, severity ASC`).
			WithArgs(start, end).
			WillReturnRows(sqlmock.NewRows([]string{"severity", "n"}).AddRow("Medium", 5).AddRow("Critical", 2))
		mock.ExpectQuery(`SELECT action, COUNT\(\*\) AS n FROM audit_events ` + rangeWhere + ` GROUP BY action ORDER BY n DESC, action ASC`).
			WithArgs(start, end).
			WillReturnRows(sqlmock.NewRows([]string{"action", "n"}).AddRow("Update", 5).AddRow("Delete", 2))
		mock.ExpectQuery(`SELECT entity_type, COUNT\(\*\) AS n FROM audit_events ` + rangeWhere + ` GROUP BY entity_type ORDER BY n DESC, entity_type ASC`).
			WithArgs(start, end).
			WillReturnRows(sqlmock.NewRows([]string{"entity_type", "n"}).AddRow("Product", 7))
		mock.ExpectQuery(`SELECT actor_id, MAX\(actor_name\), COUNT\(\*\) AS n FROM audit_events ` + rangeWhere + ` GROUP BY actor_id ORDER BY n DESC, actor_id ASC LIMIT \$3`).
			WithArgs(start, end, 3).
			WillReturnRows(sqlmock.NewRows([]string{"actor_id", "actor_name", "n"}).
				AddRow("u-1", "alice", 4).
				AddRow("u-2", "bob", 3))

		stats, err := repo.Stats(ctx, domain.AuditFilter{StartDate: &start, EndDate: &end}, 3)
		require.NoError(t, err)

		assert.Equal(t, 7, stats.TotalLogs)
		assert.Equal(t, []domain.GroupCount{{Key: "Medium", Count: 5}, {Key: "Critical", Count: 2}}, stats.BySeverity)
		assert.Equal(t, []domain.GroupCount{{Key: "Update", Count: 5}, {Key: "Delete", Count: 2}}, stats.ByAction)
		assert.Equal(t, []domain.GroupCount{{Key: "Product", Count: 7}}, stats.ByEntityType)
		require.Len(t, stats.TopUsers, 2)
		assert.Equal(t, domain.ActorCount{ActorID: "u-1", ActorName: "alice", Count: 4}, stats.TopUsers[0])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unbounded uses the default top actors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_events WHERE 1=1`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		for _, column := range []string{"severity", "action", "entity_type"} {
			mock.ExpectQuery(`SELECT ` + column + `, COUNT\(\*\) AS n FROM audit_events WHERE 1=1 GROUP BY ` + column).
				WillReturnRows(sqlmock.NewRows([]string{column, "n"}))
		}
		mock.ExpectQuery(`SELECT actor_id, (.+) GROUP BY actor_id ORDER BY n DESC, actor_id ASC LIMIT \$1`).
			WithArgs(domain.DefaultTopActors).
			WillReturnRows(sqlmock.NewRows([]string{"actor_id", "actor_name", "n"}))

		stats, err := repo.Stats(ctx, domain.AuditFilter{}, 0)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalLogs)
		assert.Empty(t, stats.BySeverity)
		assert.Empty(t, stats.TopUsers)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("group failure is returned", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostgresAuditRepository(db)

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_events`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectQuery(`SELECT severity, COUNT\(\*\) AS n FROM audit_events`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Stats(ctx, domain.AuditFilter{}, 5)
		assert.ErrorContains(t, err, "group audit events by severity")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBuildAuditWhere(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	where, args := buildAuditWhere(domain.AuditFilter{
		SearchTerm: " 50%_off ",
		EntityType: "Product",
		ActorID:    "u-1",
		StartDate:  &start,
		EndDate:    &end,
	})

	assert.Equal(t,
		" WHERE 1=1 AND (description ILIKE $1 OR entity_name ILIKE $1 OR actor_name ILIKE $1 OR entity_id ILIKE $1)"+
			" AND entity_type = $2 AND actor_id = $3 AND created_at >= $4 AND created_at <= $5",
		where)
	assert.Equal(t, []interface{}{`%50\%\_off%`, "Product", "u-1", start, end}, args)

	where, args = buildAuditWhere(domain.AuditFilter{})
	assert.Equal(t, " WHERE 1=1", where)
	assert.Empty(t, args)
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, " ORDER BY created_at DESC, id ASC", orderClause(domain.DefaultAuditSort))
	assert.Equal(t, " ORDER BY actor_name ASC, id ASC", orderClause(domain.AuditSort{Field: domain.SortByUsername}))
	assert.Equal(t, " ORDER BY event_type DESC, id ASC", orderClause(domain.AuditSort{Field: domain.SortByEventType, Descending: true}))
	assert.Equal(t, " ORDER BY created_at DESC, id ASC", orderClause(domain.AuditSort{Field: "bogus"}))
}

func TestStamperIsStrictlyIncreasing(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	s := &stamper{now: func() time.Time { t := ticks[i]; i++; return t }}

	first := s.next()
	second := s.next()
	third := s.next()

	assert.Equal(t, base, first)
	assert.Equal(t, base.Add(time.Microsecond), second)
	assert.Equal(t, base.Add(time.Second), third)
}
