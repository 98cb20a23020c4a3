package service

import (
	"context"
	"math"
	"time"

	"inventory-audit/internal/changes"
	"inventory-audit/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type AuditReader interface {
	GetByID(ctx context.Context, id string) (*domain.AuditEvent, error)
	Query(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEvent, int, error)
	Stats(ctx context.Context, filter domain.AuditFilter, topN int) (*domain.AuditStats, error)
}

type SearchParams struct {
	Page           int
	PageSize       int
	SearchTerm     string
	EntityType     string
	Action         string
	Severity       string
	UserID         string
	StartDate      *time.Time
	EndDate        *time.Time
	SortBy         string
	SortDescending bool
}

// AuditQueryService is the read side of the audit trail. Every method funnels into the
// store's single Query/Stats primitive with a different filter, sort and window.
type AuditQueryService struct {
	repo      AuditReader
	topActors int
}

func NewAuditQueryService(repo AuditReader, topActors int) *AuditQueryService {
	if topActors <= 0 {
		topActors = domain.DefaultTopActors
	}
	return &AuditQueryService{repo: repo, topActors: topActors}
}

func (s *AuditQueryService) Search(ctx context.Context, p SearchParams) (*domain.AuditPage, error) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	pageSize := p.PageSize
	if pageSize < 1 {
		pageSize = domain.DefaultPageSize
	}
	if pageSize > domain.MaxPageSize {
		pageSize = domain.MaxPageSize
	}

	start, end := orderedRange(p.StartDate, p.EndDate)
	filter := domain.AuditFilter{
		SearchTerm: p.SearchTerm,
		EntityType: p.EntityType,
		Action:     p.Action,
		Severity:   p.Severity,
		ActorID:    p.UserID,
		StartDate:  start,
		EndDate:    end,
	}

	items, total, err := s.repo.Query(ctx, domain.AuditQuery{
		Filter: filter,
		Sort:   domain.ParseAuditSort(p.SortBy, p.SortDescending),
		Limit:  pageSize,
		Offset: pageOffset(page, pageSize),
	})
	if err != nil {
		log.WithError(err).Error("Failed to search audit events")
		return nil, err
	}

	return &domain.AuditPage{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// GetByID treats an id that is not a UUID as absent; no stored event can carry one.
func (s *AuditQueryService) GetByID(ctx context.Context, id string) (*domain.AuditEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrAuditEventNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// Changes renders the field-by-field comparison of one stored event.
func (s *AuditQueryService) Changes(ctx context.Context, id string) ([]changes.FieldChange, error) {
	event, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := changes.Compare(event.OldValues, event.NewValues)
	if err != nil {
		// a corrupt snapshot shows as "no changes" rather than failing the view
		log.WithError(err).WithField("audit_id", id).Warn("Stored audit snapshot is not valid JSON")
		return []changes.FieldChange{}, nil
	}
	return rows, nil
}

// ByEntity lists the newest events for one entity; entityType narrows ids shared across types.
func (s *AuditQueryService) ByEntity(ctx context.Context, entityID, entityType string) ([]domain.AuditEvent, error) {
	// an empty filter field is no constraint, so a blank id would list everything
	if entityID == "" {
		return []domain.AuditEvent{}, nil
	}
	return s.list(ctx, domain.AuditFilter{EntityID: entityID, EntityType: entityType}, domain.DefaultAuditSort, domain.MaxScanLimit)
}

func (s *AuditQueryService) ByUser(ctx context.Context, userID string, top int) ([]domain.AuditEvent, error) {
	if userID == "" {
		return []domain.AuditEvent{}, nil
	}
	if top <= 0 || top > domain.MaxScanLimit {
		top = domain.DefaultUserTop
	}
	return s.list(ctx, domain.AuditFilter{ActorID: userID}, domain.DefaultAuditSort, top)
}

// ByCorrelation returns one logical operation in the order it happened.
func (s *AuditQueryService) ByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEvent, error) {
	if correlationID == "" {
		return []domain.AuditEvent{}, nil
	}
	return s.list(ctx, domain.AuditFilter{CorrelationID: correlationID},
		domain.AuditSort{Field: domain.SortByCreatedAt}, domain.MaxScanLimit)
}

func (s *AuditQueryService) BySeverity(ctx context.Context, severity string) ([]domain.AuditEvent, error) {
	if severity == "" {
		return []domain.AuditEvent{}, nil
	}
	return s.list(ctx, domain.AuditFilter{Severity: severity}, domain.DefaultAuditSort, domain.SeverityScanLimit)
}

func (s *AuditQueryService) Recent(ctx context.Context) ([]domain.AuditEvent, error) {
	return s.list(ctx, domain.AuditFilter{}, domain.DefaultAuditSort, domain.MaxScanLimit)
}

func (s *AuditQueryService) Stats(ctx context.Context, startDate, endDate *time.Time) (*domain.AuditStats, error) {
	start, end := orderedRange(startDate, endDate)
	stats, err := s.repo.Stats(ctx, domain.AuditFilter{StartDate: start, EndDate: end}, s.topActors)
	if err != nil {
		log.WithError(err).Error("Failed to aggregate audit statistics")
		return nil, err
	}
	return stats, nil
}

// list is the shared core of the unpaged read paths.
func (s *AuditQueryService) list(ctx context.Context, filter domain.AuditFilter, sort domain.AuditSort, limit int) ([]domain.AuditEvent, error) {
	items, _, err := s.repo.Query(ctx, domain.AuditQuery{Filter: filter, Sort: sort, Limit: limit})
	if err != nil {
		log.WithError(err).Error("Failed to list audit events")
		return nil, err
	}
	return items, nil
}

// pageOffset saturates instead of overflowing, so a page far past the end stays empty.
func pageOffset(page, pageSize int) int {
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

// orderedRange swaps an inverted range instead of rejecting it.
func orderedRange(start, end *time.Time) (*time.Time, *time.Time) {
	if start != nil && end != nil && start.After(*end) {
		return end, start
	}
	return start, end
}
