package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

type eventRepo struct{ s *Store }

func (r eventRepo) GetByID(_ context.Context, id string) (*events.Event, error) {
	event, ok := lookup(r.s, eventsTable, id)
	if !ok {
		return nil, apperr.NotFound("event with id=%s was not found", id)
	}
	return &event, nil
}

func (r eventRepo) GetByInitiatorAndID(ctx context.Context, initiatorID, id string) (*events.Event, error) {
	event, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.InitiatorID != initiatorID {
		return nil, apperr.NotFound("event with id=%s was not found", id)
	}
	return event, nil
}

func (r eventRepo) LockEvent(ctx context.Context, id string) (*events.Event, error) {
	if _, ok := lookup(r.s, eventsTable, id); !ok {
		return nil, apperr.NotFound("event with id=%s was not found", id)
	}
	if err := r.s.lockEvent(ctx, id); err != nil {
		return nil, err
	}
	// Re-read under the lock.
	return r.GetByID(ctx, id)
}

func (r eventRepo) Create(ctx context.Context, event *events.Event) error {
	return r.s.write(ctx, func(tx *Store) error {
		if _, ok := lookup(tx, eventsTable, event.ID); ok {
			return apperr.Conflict("event with id=%s already exists", event.ID)
		}
		put(tx, eventsTable, event.ID, *event)
		return nil
	})
}

func (r eventRepo) Update(ctx context.Context, event *events.Event) error {
	return r.s.write(ctx, func(tx *Store) error {
		if _, ok := lookup(tx, eventsTable, event.ID); !ok {
			return apperr.NotFound("event with id=%s was not found", event.ID)
		}
		put(tx, eventsTable, event.ID, *event)
		return nil
	})
}

func (r eventRepo) ListByInitiator(_ context.Context, initiatorID string, page events.Page) ([]events.Event, error) {
	out := filterEvents(r.s, func(e events.Event) bool { return e.InitiatorID == initiatorID })
	sortByID(out)
	return events.Apply(out, page), nil
}

func (r eventRepo) Search(_ context.Context, f events.AdminFilters, page events.Page) ([]events.Event, error) {
	out := filterEvents(r.s, func(e events.Event) bool {
		return matchAny(f.Users, e.InitiatorID) &&
			matchAny(f.States, e.State) &&
			matchAny(f.Categories, e.CategoryID) &&
			inRange(e, f.RangeStart, f.RangeEnd)
	})
	sortByID(out)
	return events.Apply(out, page), nil
}

func (r eventRepo) SearchPublished(_ context.Context, f events.PublicFilters, page events.Page) ([]events.Event, error) {
	text := strings.ToLower(f.Text)
	var confirmed map[string]int
	if f.OnlyAvailable {
		confirmed = countConfirmed(r.s)
	}
	out := filterEvents(r.s, func(e events.Event) bool {
		if e.State != events.StatePublished {
			return false
		}
		if text != "" && !strings.Contains(strings.ToLower(e.Annotation), text) &&
			!strings.Contains(strings.ToLower(e.Description), text) {
			return false
		}
		if f.Paid != nil && e.Paid != *f.Paid {
			return false
		}
		if f.OnlyAvailable && !e.Unlimited() && confirmed[e.ID] >= e.ParticipantLimit {
			return false
		}
		return matchAny(f.Categories, e.CategoryID) && inRange(e, f.RangeStart, f.RangeEnd)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].EventDate.Before(out[j].EventDate)
		}
		return out[i].ID < out[j].ID
	})
	return events.Apply(out, page), nil
}

func filterEvents(s *Store, keep func(events.Event) bool) []events.Event {
	var out []events.Event
	for _, event := range scan(s, eventsTable) {
		if keep(event) {
			out = append(out, event)
		}
	}
	return out
}

func countConfirmed(s *Store) map[string]int {
	counts := map[string]int{}
	for _, request := range scan(s, requestsTable) {
		if request.Status == events.StatusConfirmed {
			counts[request.EventID]++
		}
	}
	return counts
}

func matchAny[T comparable](allowed []T, value T) bool {
	return len(allowed) == 0 || slices.Contains(allowed, value)
}

func inRange(e events.Event, start, end *time.Time) bool {
	if start != nil && e.EventDate.Before(*start) {
		return false
	}
	if end != nil && e.EventDate.After(*end) {
		return false
	}
	return true
}

func sortByID(list []events.Event) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
