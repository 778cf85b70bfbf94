// Package events schedules the promotional banners shown on the storefront.
// At most one active event covers any instant.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/parashop/internal/domain"
)

var tracer = otel.Tracer("parashop/events")

// Tx is an open transaction over the events table.
type Tx interface {
	// Conflicting returns the active events whose window overlaps w, other
	// than excludeID.
	Conflicting(ctx context.Context, w domain.Window, excludeID string) ([]domain.Event, error)
	// Lock loads the event and holds its row until the transaction ends.
	Lock(ctx context.Context, id string) (*domain.Event, error)
	Insert(ctx context.Context, event *domain.Event) error
	Update(ctx context.Context, event *domain.Event) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id string) (*domain.Event, error)
	// ListActive returns active events by sort order. With a non-nil at,
	// only events running at that instant are returned.
	ListActive(ctx context.Context, at *time.Time) ([]domain.Event, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EventRequest is the body of a create or update. Dates accept RFC 3339 and
// the browser's datetime-local and date formats (read as UTC).
type EventRequest struct {
	Image     string `json:"image"`
	URL       string `json:"url"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	SortOrder *int   `json:"sortOrder"`
	IsActive  *bool  `json:"isActive"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s is not a valid date", domain.ErrValidation, field)
}

func (r EventRequest) window() (domain.Window, error) {
	if strings.TrimSpace(r.StartDate) == "" || strings.TrimSpace(r.EndDate) == "" {
		return domain.Window{}, fmt.Errorf("%w: start date and end date are required", domain.ErrValidation)
	}
	start, err := parseDate("startDate", r.StartDate)
	if err != nil {
		return domain.Window{}, err
	}
	end, err := parseDate("endDate", r.EndDate)
	if err != nil {
		return domain.Window{}, err
	}
	if !end.After(start) {
		return domain.Window{}, fmt.Errorf("%w: end date must be after start date", domain.ErrValidation)
	}
	return domain.Window{Start: start, End: end}, nil
}

func (r EventRequest) apply(event *domain.Event, w domain.Window) {
	if image := strings.TrimSpace(r.Image); image != "" {
		event.Image = image
	}
	event.URL = nil
	if url := strings.TrimSpace(r.URL); url != "" {
		event.URL = &url
	}
	event.StartDate, event.EndDate = w.Start, w.End
	if r.SortOrder != nil {
		event.SortOrder = *r.SortOrder
	}
	if r.IsActive != nil {
		event.IsActive = *r.IsActive
	}
}

// checkFree fails with ErrEventOverlap when an active event other than
// excludeID shares an instant with w.
func checkFree(ctx context.Context, tx Tx, w domain.Window, excludeID string) error {
	conflicts, err := tx.Conflicting(ctx, w, excludeID)
	if err != nil {
		return fmt.Errorf("find overlapping events: %w", err)
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: conflicts with event %s", domain.ErrEventOverlap, conflicts[0].ID)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req EventRequest) (*domain.Event, error) {
	w, err := req.window()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, fmt.Errorf("%w: image is required", domain.ErrValidation)
	}

	ctx, span := tracer.Start(ctx, "events.Create", trace.WithAttributes(
		attribute.String("event.start", w.Start.Format(time.RFC3339)),
		attribute.String("event.end", w.End.Format(time.RFC3339)),
	))
	defer span.End()

	event := &domain.Event{IsActive: true}
	req.apply(event, w)

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := checkFree(ctx, tx, w, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, event)
	})
	if err != nil {
		s.fail(span, err)
		return nil, err
	}

	s.logger.Info("event created", "event_id", event.ID, "start", event.StartDate, "end", event.EndDate)
	return event, nil
}

// Update replaces the event's window and content. The event does not
// conflict with its own previous window.
func (s *Service) Update(ctx context.Context, id string, req EventRequest) (*domain.Event, error) {
	w, err := req.window()
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "events.Update", trace.WithAttributes(attribute.String("event.id", id)))
	defer span.End()

	var event *domain.Event
	err = s.store.InTx(ctx, func(tx Tx) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := checkFree(ctx, tx, w, id); err != nil {
			return err
		}
		req.apply(current, w)
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		event = current
		return nil
	})
	if err != nil {
		s.fail(span, err)
		return nil, err
	}

	s.logger.Info("event updated", "event_id", id, "start", event.StartDate, "end", event.EndDate)
	return event, nil
}

func (s *Service) fail(span trace.Span, err error) {
	span.RecordError(err)
	if errors.Is(err, domain.ErrEventOverlap) || errors.Is(err, domain.ErrEventNotFound) {
		return
	}
	span.SetStatus(codes.Error, err.Error())
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Event, error) {
	event, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.ErrEventNotFound
	}
	return event, nil
}

// Current returns the event to show right now, if any: the first running
// active event by sort order.
func (s *Service) Current(ctx context.Context) ([]domain.Event, error) {
	now := s.now()
	events, err := s.store.ListActive(ctx, &now)
	if err != nil {
		return nil, err
	}
	if len(events) > 1 {
		events = events[:1]
	}
	return events, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Event, error) {
	return s.store.ListActive(ctx, nil)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrEventNotFound
	}
	s.logger.Info("event deleted", "event_id", id)
	return nil
}
