package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/domain"
)

// memStore keeps events in memory and applies the same closed-window rule
// as the database exclusion constraint on every write.
type memStore struct {
	mu     sync.Mutex
	events map[string]domain.Event
	clock  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		events: make(map[string]domain.Event),
		clock:  time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) seed(start, end time.Time, sortOrder int, active bool) domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := domain.Event{
		ID:        uuid.New().String(),
		Image:     "/uploads/banner.jpg",
		StartDate: start,
		EndDate:   end,
		SortOrder: sortOrder,
		IsActive:  active,
	}
	s.events[e.ID] = e
	return e
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]domain.Event, len(s.events))
	for id, e := range s.events {
		snapshot[id] = e
	}
	if err := fn(memTx{s}); err != nil {
		s.events = snapshot
		return err
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *memStore) ListActive(ctx context.Context, at *time.Time) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []domain.Event{}
	for _, e := range s.events {
		if !e.IsActive || (at != nil && !e.Window().Contains(*at)) {
			continue
		}
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].SortOrder != list[j].SortOrder {
			return list[i].SortOrder < list[j].SortOrder
		}
		return list[i].StartDate.Before(list[j].StartDate)
	})
	return list, nil
}

func (s *memStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return false, nil
	}
	delete(s.events, id)
	return true, nil
}

type memTx struct {
	store *memStore
}

func (t memTx) Conflicting(ctx context.Context, w domain.Window, excludeID string) ([]domain.Event, error) {
	var out []domain.Event
	for id, e := range t.store.events {
		if id != excludeID && e.IsActive && e.Window().Overlaps(w) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t memTx) Lock(ctx context.Context, id string) (*domain.Event, error) {
	e, ok := t.store.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return &e, nil
}

func (t memTx) Insert(ctx context.Context, event *domain.Event) error {
	event.ID = uuid.New().String()
	if err := t.constraint(*event); err != nil {
		return err
	}
	t.store.clock = t.store.clock.Add(time.Second)
	event.CreatedAt, event.UpdatedAt = t.store.clock, t.store.clock
	t.store.events[event.ID] = *event
	return nil
}

func (t memTx) Update(ctx context.Context, event *domain.Event) error {
	if _, ok := t.store.events[event.ID]; !ok {
		return domain.ErrEventNotFound
	}
	if err := t.constraint(*event); err != nil {
		return err
	}
	t.store.clock = t.store.clock.Add(time.Second)
	event.UpdatedAt = t.store.clock
	t.store.events[event.ID] = *event
	return nil
}

func (t memTx) constraint(event domain.Event) error {
	if !event.IsActive {
		return nil
	}
	for id, e := range t.store.events {
		if id != event.ID && e.IsActive && e.Window().Overlaps(event.Window()) {
			return domain.ErrEventOverlap
		}
	}
	return nil
}
