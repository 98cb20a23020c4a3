package domain

import (
	"math"
	"strings"
	"time"
)

// AuditFilter is the single predicate shape every audit read path is built from.
// Empty fields are no-ops; all set fields are ANDed.
type AuditFilter struct {
	SearchTerm    string
	EntityType    string
	EntityID      string
	Action        string
	Severity      string
	ActorID       string
	CorrelationID string
	StartDate     *time.Time
	EndDate       *time.Time
}

// Matches reports whether e satisfies every criterion set on f.
// The search term is matched case-insensitively.
func (f AuditFilter) Matches(e AuditEvent) bool {
	if term := strings.TrimSpace(f.SearchTerm); term != "" {
		term = strings.ToLower(term)
		if !containsFold(e.Description, term) &&
			!containsFold(e.EntityName, term) &&
			!containsFold(e.ActorName, term) &&
			!containsFold(e.EntityID, term) {
			return false
		}
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Action != "" && string(e.Action) != f.Action {
		return false
	}
	if f.Severity != "" && string(e.Severity) != f.Severity {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	if f.StartDate != nil && e.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}

type SortField string

const (
	SortByCreatedAt  SortField = "createdAt"
	SortByUsername   SortField = "username"
	SortByAction     SortField = "action"
	SortBySeverity   SortField = "severity"
	SortByEntityType SortField = "entityType"
	SortByEventType  SortField = "eventType"
)

// AuditSort orders by Field then by ID ascending, so equal keys page deterministically.
type AuditSort struct {
	Field      SortField
	Descending bool
}

var DefaultAuditSort = AuditSort{Field: SortByCreatedAt, Descending: true}

// ParseAuditSort maps a caller-supplied sort key onto a known field.
// An empty key keeps the requested direction; an unknown key falls back to DefaultAuditSort.
func ParseAuditSort(sortBy string, descending bool) AuditSort {
	switch strings.ToLower(strings.TrimSpace(sortBy)) {
	case "":
		return AuditSort{Field: SortByCreatedAt, Descending: descending}
	case "createdat":
		return AuditSort{Field: SortByCreatedAt, Descending: descending}
	case "username":
		return AuditSort{Field: SortByUsername, Descending: descending}
	case "action":
		return AuditSort{Field: SortByAction, Descending: descending}
	case "severity":
		return AuditSort{Field: SortBySeverity, Descending: descending}
	case "entitytype":
		return AuditSort{Field: SortByEntityType, Descending: descending}
	case "eventtype":
		return AuditSort{Field: SortByEventType, Descending: descending}
	default:
		return DefaultAuditSort
	}
}

// Less is the in-process rendering of the sort, including the id tie-break.
func (s AuditSort) Less(a, b AuditEvent) bool {
	var cmp int
	switch s.Field {
	case SortByUsername:
		cmp = strings.Compare(a.ActorName, b.ActorName)
	case SortByAction:
		cmp = strings.Compare(string(a.Action), string(b.Action))
	case SortBySeverity:
		cmp = strings.Compare(string(a.Severity), string(b.Severity))
	case SortByEntityType:
		cmp = strings.Compare(a.EntityType, b.EntityType)
	case SortByEventType:
		cmp = strings.Compare(a.EventType, b.EventType)
	default:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	}
	if s.Descending {
		cmp = -cmp
	}
	if cmp != 0 {
		return cmp < 0
	}
	return a.ID < b.ID
}

// AuditQuery is a filter plus ordering plus a row window.
// Limit <= 0 means "up to MaxScanLimit".
type AuditQuery struct {
	Filter AuditFilter
	Sort   AuditSort
	Limit  int
	Offset int
}

func (q AuditQuery) EffectiveLimit() int {
	if q.Limit <= 0 || q.Limit > MaxScanLimit {
		return MaxScanLimit
	}
	return q.Limit
}

type AuditPage struct {
	Items      []AuditEvent `json:"items"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
}

func (p AuditPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(p.TotalCount) / float64(p.PageSize)))
}

func (p AuditPage) HasPrevious() bool { return p.Page > 1 }

func (p AuditPage) HasNext() bool { return p.Page < p.TotalPages() }

type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type ActorCount struct {
	ActorID   string `json:"actorId"`
	ActorName string `json:"username"`
	Count     int    `json:"count"`
}

type AuditStats struct {
	TotalLogs    int          `json:"totalLogs"`
	BySeverity   []GroupCount `json:"bySeverity"`
	ByAction     []GroupCount `json:"byAction"`
	ByEntityType []GroupCount `json:"byEntityType"`
	TopUsers     []ActorCount `json:"topUsers"`
}
