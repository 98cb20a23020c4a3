package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"inventory-audit/internal/changes"
	"inventory-audit/internal/domain"
	"inventory-audit/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturingReader records the last query so tests can check how parameters were normalized.
type capturingReader struct {
	query  domain.AuditQuery
	filter domain.AuditFilter
	topN   int
	err    error
}

func (r *capturingReader) GetByID(context.Context, string) (*domain.AuditEvent, error) {
	return nil, domain.ErrAuditEventNotFound
}

func (r *capturingReader) Query(_ context.Context, q domain.AuditQuery) ([]domain.AuditEvent, int, error) {
	r.query = q
	return []domain.AuditEvent{}, 0, r.err
}

func (r *capturingReader) Stats(_ context.Context, f domain.AuditFilter, topN int) (*domain.AuditStats, error) {
	r.filter = f
	r.topN = topN
	return &domain.AuditStats{}, r.err
}

func seedStore(t *testing.T, n int) *AuditQueryService {
	t.Helper()
	store := repository.NewMemoryAuditRepository()
	for i := 0; i < n; i++ {
		_, err := store.Create(context.Background(), &domain.AuditEvent{
			EventType:     "ProductUpdated",
			EntityType:    "Product",
			EntityID:      fmt.Sprintf("p-%d", i%3),
			EntityName:    fmt.Sprintf("Item %d", i),
			Action:        domain.ActionUpdate,
			ActorID:       fmt.Sprintf("u-%d", i%2),
			ActorName:     fmt.Sprintf("user%d", i%2),
			CorrelationID: fmt.Sprintf("c-%d", i%4),
			Severity:      domain.SeverityMedium,
			Status:        domain.StatusSuccess,
		})
		require.NoError(t, err)
	}
	return NewAuditQueryService(store, 0)
}

func TestAuditQueryService_SearchNormalizesParams(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		params       SearchParams
		wantLimit    int
		wantOffset   int
		wantPage     int
		wantPageSize int
		wantSort     domain.AuditSort
	}{
		{
			name:         "defaults",
			params:       SearchParams{},
			wantLimit:    domain.DefaultPageSize,
			wantOffset:   0,
			wantPage:     1,
			wantPageSize: domain.DefaultPageSize,
			wantSort:     domain.AuditSort{Field: domain.SortByCreatedAt},
		},
		{
			name:         "page size is capped",
			params:       SearchParams{Page: 3, PageSize: 500, SortBy: "severity", SortDescending: true},
			wantLimit:    domain.MaxPageSize,
			wantOffset:   2 * domain.MaxPageSize,
			wantPage:     3,
			wantPageSize: domain.MaxPageSize,
			wantSort:     domain.AuditSort{Field: domain.SortBySeverity, Descending: true},
		},
		{
			name:         "unknown sort falls back to newest first",
			params:       SearchParams{Page: -4, PageSize: 15, SortBy: "password"},
			wantLimit:    15,
			wantOffset:   0,
			wantPage:     1,
			wantPageSize: 15,
			wantSort:     domain.DefaultAuditSort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &capturingReader{}
			svc := NewAuditQueryService(reader, 0)

			page, err := svc.Search(ctx, tt.params)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLimit, reader.query.Limit)
			assert.Equal(t, tt.wantOffset, reader.query.Offset)
			assert.Equal(t, tt.wantSort, reader.query.Sort)
			assert.Equal(t, tt.wantPage, page.Page)
			assert.Equal(t, tt.wantPageSize, page.PageSize)
		})
	}
}

func TestAuditQueryService_SearchSwapsInvertedRange(t *testing.T) {
	reader := &capturingReader{}
	svc := NewAuditQueryService(reader, 0)

	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.AddDate(0, 0, 7)

	_, err := svc.Search(context.Background(), SearchParams{StartDate: &late, EndDate: &early, UserID: "u-1"})
	require.NoError(t, err)

	assert.Equal(t, early, *reader.query.Filter.StartDate)
	assert.Equal(t, late, *reader.query.Filter.EndDate)
	assert.Equal(t, "u-1", reader.query.Filter.ActorID)
}

func TestAuditQueryService_SearchPaging(t *testing.T) {
	svc := seedStore(t, 25)

	page, err := svc.Search(context.Background(), SearchParams{Page: 2, PageSize: 10})
	require.NoError(t, err)

	assert.Len(t, page.Items, 10)
	assert.Equal(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.TotalPages())
	assert.True(t, page.HasPrevious())
	assert.True(t, page.HasNext())

	last, err := svc.Search(context.Background(), SearchParams{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, last.Items, 5)
	assert.False(t, last.HasNext())
}

func TestAuditQueryService_SearchFarPastTheEnd(t *testing.T) {
	svc := seedStore(t, 5)

	for _, page := range []int{math.MaxInt/20 + 2, math.MaxInt} {
		result, err := svc.Search(context.Background(), SearchParams{Page: page, PageSize: 20})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
		assert.Equal(t, 5, result.TotalCount)
		assert.Equal(t, page, result.Page)
		assert.False(t, result.HasNext())
	}

	reader := &capturingReader{}
	_, err := NewAuditQueryService(reader, 0).Search(context.Background(), SearchParams{Page: math.MaxInt, PageSize: 7})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, reader.query.Offset)
}

func TestAuditQueryService_GetByID(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAuditRepository()
	svc := NewAuditQueryService(store, 0)

	stored, err := store.Create(ctx, &domain.AuditEvent{
		EventType: "ProductCreated", EntityType: "Product", Action: domain.ActionCreate,
	})
	require.NoError(t, err)

	found, err := svc.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, found.ID)

	for _, id := range []string{"", "not-a-uuid", "123", stored.ID + "x"} {
		_, err := svc.GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrAuditEventNotFound, id)
	}

	_, err = svc.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrAuditEventNotFound)
}

// failingReader fails every call so tests can tell whether a request reached the store.
type failingReader struct {
	capturingReader
	calls int
}

func (r *failingReader) GetByID(context.Context, string) (*domain.AuditEvent, error) {
	r.calls++
	return nil, errors.New(`pq: invalid input syntax for type uuid`)
}

func TestAuditQueryService_MalformedIDNeverReachesStore(t *testing.T) {
	reader := &failingReader{}
	svc := NewAuditQueryService(reader, 0)

	_, err := svc.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrAuditEventNotFound)

	_, err = svc.Changes(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrAuditEventNotFound)
	assert.Zero(t, reader.calls)
}

func TestAuditQueryService_TargetedReads(t *testing.T) {
	ctx := context.Background()
	svc := seedStore(t, 12)

	t.Run("by entity", func(t *testing.T) {
		events, err := svc.ByEntity(ctx, "p-0", "")
		require.NoError(t, err)
		assert.Len(t, events, 4)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i].CreatedAt.After(events[i-1].CreatedAt))
		}

		events, err = svc.ByEntity(ctx, "p-0", "Category")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("by user honors top", func(t *testing.T) {
		events, err := svc.ByUser(ctx, "u-1", 2)
		require.NoError(t, err)
		assert.Len(t, events, 2)
		for _, e := range events {
			assert.Equal(t, "u-1", e.ActorID)
		}
	})

	t.Run("by correlation is oldest first", func(t *testing.T) {
		events, err := svc.ByCorrelation(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i := 1; i < len(events); i++ {
			assert.False(t, events[i].CreatedAt.Before(events[i-1].CreatedAt))
		}
	})

	t.Run("by severity", func(t *testing.T) {
		events, err := svc.BySeverity(ctx, "Medium")
		require.NoError(t, err)
		assert.Len(t, events, 12)

		events, err = svc.BySeverity(ctx, "Critical")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("blank keys return nothing", func(t *testing.T) {
		for _, read := range []func() ([]domain.AuditEvent, error){
			func() ([]domain.AuditEvent, error) { return svc.ByEntity(ctx, "", "") },
			func() ([]domain.AuditEvent, error) { return svc.ByUser(ctx, "", 0) },
			func() ([]domain.AuditEvent, error) { return svc.ByCorrelation(ctx, "") },
			func() ([]domain.AuditEvent, error) { return svc.BySeverity(ctx, "") },
		} {
			events, err := read()
			require.NoError(t, err)
			assert.Empty(t, events)
		}
	})

	t.Run("recent", func(t *testing.T) {
		events, err := svc.Recent(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 12)
	})
}

func TestAuditQueryService_Changes(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryAuditRepository()
	svc := NewAuditQueryService(store, 0)

	oldValues, newValues := `{"price":10,"qty":5}`, `{"price":12,"qty":5}`
	stored, err := store.Create(ctx, &domain.AuditEvent{
		EventType: "ProductUpdated", EntityType: "Product", Action: domain.ActionUpdate,
		OldValues: &oldValues, NewValues: &newValues,
	})
	require.NoError(t, err)

	rows, err := svc.Changes(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, changes.KindChanged, rows[0].Kind)
	assert.Equal(t, changes.KindUnchanged, rows[1].Kind)

	_, err = svc.Changes(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAuditEventNotFound)

	corrupt := `{"price":`
	broken, err := store.Create(ctx, &domain.AuditEvent{
		EventType: "ProductUpdated", EntityType: "Product", Action: domain.ActionUpdate,
		OldValues: &corrupt, NewValues: &newValues,
	})
	require.NoError(t, err)

	rows, err = svc.Changes(ctx, broken.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAuditQueryService_Stats(t *testing.T) {
	reader := &capturingReader{}
	svc := NewAuditQueryService(reader, 5)

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Stats(context.Background(), &start, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, reader.topN)
	assert.Equal(t, &start, reader.filter.StartDate)
	assert.Nil(t, reader.filter.EndDate)

	reader.err = errors.New("db down")
	_, err = svc.Stats(context.Background(), nil, nil)
	assert.Error(t, err)
}
