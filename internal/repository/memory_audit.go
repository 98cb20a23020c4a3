package repository

import (
	"context"
	"sort"
	"sync"

	"inventory-audit/internal/domain"

	"github.com/google/uuid"
)

// memoryAuditRepository keeps events in process memory. It filters with
// domain.AuditFilter.Matches and orders with domain.AuditSort.Less, so it answers queries
// the same way the Postgres store does.
type memoryAuditRepository struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
	index  map[string]int
	clock  *stamper
}

func NewMemoryAuditRepository() *memoryAuditRepository {
	return &memoryAuditRepository{
		index: make(map[string]int),
		clock: newStamper(),
	}
}

func (r *memoryAuditRepository) Create(_ context.Context, event *domain.AuditEvent) (*domain.AuditEvent, error) {
	if err := domain.ValidateAuditEvent(event); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *event
	stored.ID = uuid.NewString()
	stored.CreatedAt = r.clock.next()

	r.index[stored.ID] = len(r.events)
	r.events = append(r.events, stored)

	return &stored, nil
}

func (r *memoryAuditRepository) GetByID(_ context.Context, id string) (*domain.AuditEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return nil, domain.ErrAuditEventNotFound
	}
	event := r.events[i]
	return &event, nil
}

func (r *memoryAuditRepository) Query(_ context.Context, q domain.AuditQuery) ([]domain.AuditEvent, int, error) {
	matched := r.matching(q.Filter)

	s := q.Sort
	if s.Field == "" {
		s = domain.DefaultAuditSort
	}
	sort.SliceStable(matched, func(i, j int) bool { return s.Less(matched[i], matched[j]) })

	total := len(matched)
	offset := max(q.Offset, 0)
	if offset >= total {
		return []domain.AuditEvent{}, total, nil
	}
	end := min(offset+q.EffectiveLimit(), total)

	return matched[offset:end], total, nil
}

func (r *memoryAuditRepository) Stats(_ context.Context, filter domain.AuditFilter, topN int) (*domain.AuditStats, error) {
	matched := r.matching(filter)
	if topN <= 0 {
		topN = domain.DefaultTopActors
	}

	severity := map[string]int{}
	action := map[string]int{}
	entityType := map[string]int{}
	actors := map[string]*domain.ActorCount{}

	for _, e := range matched {
		severity[string(e.Severity)]++
		action[string(e.Action)]++
		entityType[e.EntityType]++

		ac, ok := actors[e.ActorID]
		if !ok {
			ac = &domain.ActorCount{ActorID: e.ActorID}
			actors[e.ActorID] = ac
		}
		if e.ActorName > ac.ActorName {
			ac.ActorName = e.ActorName
		}
		ac.Count++
	}

	top := make([]domain.ActorCount, 0, len(actors))
	for _, ac := range actors {
		top = append(top, *ac)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].ActorID < top[j].ActorID
	})
	if len(top) > topN {
		top = top[:topN]
	}

	return &domain.AuditStats{
		TotalLogs:    len(matched),
		BySeverity:   sortedGroups(severity),
		ByAction:     sortedGroups(action),
		ByEntityType: sortedGroups(entityType),
		TopUsers:     top,
	}, nil
}

func (r *memoryAuditRepository) matching(filter domain.AuditFilter) []domain.AuditEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []domain.AuditEvent{}
	for _, e := range r.events {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	return matched
}

// sortedGroups orders like the SQL store: count descending, then key.
func sortedGroups(counts map[string]int) []domain.GroupCount {
	groups := make([]domain.GroupCount, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, domain.GroupCount{Key: k, Count: n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}
