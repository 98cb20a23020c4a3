package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inventory-audit/internal/changes"
	"inventory-audit/internal/domain"
	"inventory-audit/internal/requestctx"
	"inventory-audit/internal/service"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

type AuditQueryService interface {
	Search(ctx context.Context, p service.SearchParams) (*domain.AuditPage, error)
	GetByID(ctx context.Context, id string) (*domain.AuditEvent, error)
	Changes(ctx context.Context, id string) ([]changes.FieldChange, error)
	ByEntity(ctx context.Context, entityID, entityType string) ([]domain.AuditEvent, error)
	ByUser(ctx context.Context, userID string, top int) ([]domain.AuditEvent, error)
	ByCorrelation(ctx context.Context, correlationID string) ([]domain.AuditEvent, error)
	BySeverity(ctx context.Context, severity string) ([]domain.AuditEvent, error)
	Recent(ctx context.Context) ([]domain.AuditEvent, error)
	Stats(ctx context.Context, startDate, endDate *time.Time) (*domain.AuditStats, error)
}

type auditServer struct {
	auditService AuditQueryService
}

func NewAuditServer(auditService AuditQueryService) *auditServer {
	return &auditServer{
		auditService: auditService,
	}
}

type auditPageResponse struct {
	Items       []domain.AuditEvent `json:"items"`
	TotalCount  int                 `json:"totalCount"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"pageSize"`
	TotalPages  int                 `json:"totalPages"`
	HasPrevious bool                `json:"hasPrevious"`
	HasNext     bool                `json:"hasNext"`
}

type changesResponse struct {
	ID      string                `json:"id"`
	Changes []changes.FieldChange `json:"changes"`
}

func handleAuditError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuditEventNotFound):
		return http.StatusNotFound, "audit log not found"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (s *auditServer) ListAuditLogs(c echo.Context) error {
	params := service.SearchParams{
		Page:           1,
		PageSize:       domain.DefaultPageSize,
		SearchTerm:     c.QueryParam("searchTerm"),
		EntityType:     c.QueryParam("entityType"),
		Action:         c.QueryParam("action"),
		Severity:       c.QueryParam("severity"),
		UserID:         c.QueryParam("userId"),
		StartDate:      parseTimeParam(c.QueryParam("startDate")),
		EndDate:        parseTimeParam(c.QueryParam("endDate")),
		SortBy:         c.QueryParam("sortBy"),
		SortDescending: true,
	}

	if pageStr := c.QueryParam("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			params.Page = p
		}
	}
	if sizeStr := c.QueryParam("pageSize"); sizeStr != "" {
		if ps, err := strconv.Atoi(sizeStr); err == nil && ps > 0 {
			params.PageSize = ps
		}
	}
	if descStr := c.QueryParam("sortDescending"); descStr != "" {
		if d, err := strconv.ParseBool(descStr); err == nil {
			params.SortDescending = d
		}
	}

	page, err := s.auditService.Search(c.Request().Context(), params)
	if err != nil {
		log.WithError(err).Error("Failed to search audit logs")
		statusCode, errorMsg := handleAuditError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, auditPageResponse{
		Items:       page.Items,
		TotalCount:  page.TotalCount,
		Page:        page.Page,
		PageSize:    page.PageSize,
		TotalPages:  page.TotalPages(),
		HasPrevious: page.HasPrevious(),
		HasNext:     page.HasNext(),
	})
}

func (s *auditServer) GetAuditLog(c echo.Context) error {
	id := c.Param("id")

	event, err := s.auditService.GetByID(c.Request().Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrAuditEventNotFound) {
			log.WithError(err).WithField("audit_id", id).Error("Failed to get audit log")
		}
		statusCode, errorMsg := handleAuditError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, event)
}

func (s *auditServer) GetAuditLogChanges(c echo.Context) error {
	id := c.Param("id")

	fieldChanges, err := s.auditService.Changes(c.Request().Context(), id)
	if err != nil {
		log.WithError(err).WithField("audit_id", id).Warn("Failed to render audit log changes")
		statusCode, errorMsg := handleAuditError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}
	if fieldChanges == nil {
		fieldChanges = []changes.FieldChange{}
	}

	return c.JSON(http.StatusOK, changesResponse{ID: id, Changes: fieldChanges})
}

func (s *auditServer) GetEntityAuditLogs(c echo.Context) error {
	entityID := c.Param("entityId")
	events, err := s.auditService.ByEntity(c.Request().Context(), entityID, c.QueryParam("entityType"))
	return s.respondList(c, events, err, "entity_id", entityID)
}

func (s *auditServer) GetUserAuditLogs(c echo.Context) error {
	userID := c.Param("userId")
	events, err := s.auditService.ByUser(c.Request().Context(), userID, topParam(c))
	return s.respondList(c, events, err, "user_id", userID)
}

// GetMyAuditLogs lists the caller's own trail.
func (s *auditServer) GetMyAuditLogs(c echo.Context) error {
	actor, ok := requestctx.ActorFrom(c.Request().Context())
	if !ok {
		statusCode, errorMsg := handleAuditError(domain.ErrUnauthenticated)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}
	events, err := s.auditService.ByUser(c.Request().Context(), actor.ID, topParam(c))
	return s.respondList(c, events, err, "user_id", actor.ID)
}

func (s *auditServer) GetCorrelatedAuditLogs(c echo.Context) error {
	correlationID := c.Param("correlationId")
	events, err := s.auditService.ByCorrelation(c.Request().Context(), correlationID)
	return s.respondList(c, events, err, "correlation_id", correlationID)
}

func (s *auditServer) GetAuditLogsBySeverity(c echo.Context) error {
	severity := c.Param("severity")
	events, err := s.auditService.BySeverity(c.Request().Context(), severity)
	return s.respondList(c, events, err, "severity", severity)
}

func (s *auditServer) GetRecentAuditLogs(c echo.Context) error {
	events, err := s.auditService.Recent(c.Request().Context())
	return s.respondList(c, events, err, "view", "recent")
}

func (s *auditServer) GetAuditStats(c echo.Context) error {
	stats, err := s.auditService.Stats(c.Request().Context(),
		parseTimeParam(c.QueryParam("startDate")),
		parseTimeParam(c.QueryParam("endDate")))
	if err != nil {
		log.WithError(err).Error("Failed to get audit stats")
		statusCode, errorMsg := handleAuditError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}

	return c.JSON(http.StatusOK, stats)
}

func (s *auditServer) respondList(c echo.Context, events []domain.AuditEvent, err error, field, value string) error {
	if err != nil {
		log.WithError(err).WithField(field, value).Error("Failed to list audit logs")
		statusCode, errorMsg := handleAuditError(err)
		return c.JSON(statusCode, map[string]string{
			"error": errorMsg,
		})
	}
	if events == nil {
		events = []domain.AuditEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

func topParam(c echo.Context) int {
	top := domain.DefaultUserTop
	if topStr := c.QueryParam("top"); topStr != "" {
		if t, err := strconv.Atoi(topStr); err == nil && t > 0 {
			top = t
		}
	}
	return top
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates; anything else is no bound.
// An unescaped "+hh:mm" offset arrives as " hh:mm" after query decoding and is restored.
func parseTimeParam(value string) *time.Time {
	if value == "" {
		return nil
	}
	candidates := []string{value}
	if i := strings.LastIndex(value, " "); i > 0 {
		candidates = append(candidates, value[:i]+"+"+value[i+1:])
	}
	for _, candidate := range candidates {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
			if t, err := time.Parse(layout, candidate); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	log.WithField("value", value).Debug("Ignoring unparseable time bound")
	return nil
}
