package events

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
)

// LifecycleService owns event creation and the moderation state machine.
type LifecycleService struct {
	store    Store
	capacity CapacityAccountant
	opts     options
}

func NewLifecycleService(store Store, opts ...Option) *LifecycleService {
	return &LifecycleService{
		store: store,
		opts:  newOptions("lifecycle", opts),
	}
}

// CreateEvent stores a new PENDING event for initiatorID.
func (s *LifecycleService) CreateEvent(ctx context.Context, initiatorID string, in NewEvent) (*Event, error) {
	ctx, span := s.opts.tracer.Start(ctx, "events.CreateEvent")
	defer span.End()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.opts.now()
	if in.EventDate.Before(now.Add(MinLeadTimeOnCreate)) {
		return nil, apperr.Invalid("eventDate", "must be at least 2 hours in the future, got %s", in.EventDate.UTC().Format(DateTimeLayout))
	}
	if _, err := s.store.Users().GetUser(ctx, initiatorID); err != nil {
		return nil, err
	}
	if _, err := s.store.Categories().GetCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint event id: %w", err)
	}
	event := &Event{
		ID:                id,
		Title:             in.Title,
		Annotation:        in.Annotation,
		Description:       in.Description,
		CategoryID:        in.CategoryID,
		InitiatorID:       initiatorID,
		Location:          *in.Location,
		EventDate:         in.EventDate.UTC(),
		RequestModeration: true,
		State:             StatePending,
		CreatedOn:         now,
	}
	if in.Paid != nil {
		event.Paid = *in.Paid
	}
	if in.ParticipantLimit != nil {
		event.ParticipantLimit = *in.ParticipantLimit
	}
	if in.RequestModeration != nil {
		event.RequestModeration = *in.RequestModeration
	}

	if err := s.store.Events().Create(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create event: %w", err)
	}
	span.SetAttributes(attribute.String("event.id", event.ID))
	s.opts.logger.Info().Str("event_id", event.ID).Str("initiator_id", initiatorID).Msg("event created")
	return event, nil
}

func checkOwnerPatch(patch OwnerPatch, now time.Time) error {
	if err := validateInput(patch.EventPatch); err != nil {
		return err
	}
	if patch.StateAction != nil && !patch.StateAction.OwnerAction() {
		return apperr.Invalid("stateAction", "%s is not available to the event owner", *patch.StateAction)
	}
	if patch.EventDate != nil && patch.EventDate.Before(now.Add(MinLeadTimeOnCreate)) {
		return apperr.Invalid("eventDate", "must be at least 2 hours in the future, got %s", patch.EventDate.UTC().Format(DateTimeLayout))
	}
	return nil
}

// UpdateAsOwner applies the organizer's patch. Published events are frozen.
func (s *LifecycleService) UpdateAsOwner(ctx context.Context, initiatorID, eventID string, patch OwnerPatch) (*Event, error) {
	ctx, span := s.opts.tracer.Start(ctx, "events.UpdateAsOwner")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	if _, err := s.store.Users().GetUser(ctx, initiatorID); err != nil {
		return nil, err
	}

	var updated *Event
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		event, err := tx.Events().LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.InitiatorID != initiatorID {
			return apperr.NotFound("event with id=%s was not found", eventID)
		}
		// A published event rejects every patch, valid or not.
		if event.State == StatePublished {
			return apperr.Conflict("only pending or canceled events can be changed")
		}
		if err := checkOwnerPatch(patch, s.opts.now()); err != nil {
			return err
		}
		if patch.CategoryID != nil {
			if _, err := tx.Categories().GetCategory(ctx, *patch.CategoryID); err != nil {
				return err
			}
		}

		patch.applyTo(event)
		if patch.StateAction != nil {
			next, err := Transition(event.State, *patch.StateAction)
			if err != nil {
				return err
			}
			event.State = next
		}
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event %s: %w", eventID, err)
		}
		updated = event
		return nil
	})
	s.recordTransition(ctx, audit.ActionEventUpdate, patch.StateAction, initiatorID, eventID, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return updated, nil
}

// UpdateAsAdmin applies a moderator's patch, including publication and rejection.
func (s *LifecycleService) UpdateAsAdmin(ctx context.Context, eventID string, patch AdminPatch) (*Event, error) {
	ctx, span := s.opts.tracer.Start(ctx, "events.UpdateAsAdmin")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	if err := validateInput(patch.EventPatch); err != nil {
		return nil, err
	}
	if patch.StateAction != nil && !patch.StateAction.AdminAction() {
		return nil, apperr.Invalid("stateAction", "%s is not available to moderators", *patch.StateAction)
	}
	now := s.opts.now()
	if patch.EventDate != nil && patch.EventDate.Before(now.Add(MinLeadTimeOnPublish)) {
		return nil, apperr.Invalid("eventDate", "must be at least 1 hour in the future, got %s", patch.EventDate.UTC().Format(DateTimeLayout))
	}

	var updated *Event
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		event, err := tx.Events().LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.State == StatePublished {
			if patch.StateAction != nil {
				_, err := Transition(event.State, *patch.StateAction)
				return err
			}
			return apperr.Conflict("published events cannot be changed")
		}
		if patch.CategoryID != nil {
			if _, err := tx.Categories().GetCategory(ctx, *patch.CategoryID); err != nil {
				return err
			}
		}

		patch.applyTo(event)
		if patch.StateAction != nil {
			next, err := Transition(event.State, *patch.StateAction)
			if err != nil {
				return err
			}
			if next == StatePublished {
				if event.EventDate.Before(now.Add(MinLeadTimeOnPublish)) {
					return apperr.Conflict("cannot publish the event because it starts less than 1 hour from now")
				}
				published := now
				event.PublishedOn = &published
			} else {
				event.PublishedOn = nil
			}
			event.State = next
		}
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event %s: %w", eventID, err)
		}
		updated = event
		return nil
	})
	s.recordTransition(ctx, audit.ActionEventModerate, patch.StateAction, "admin", eventID, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return updated, nil
}

func (s *LifecycleService) recordTransition(ctx context.Context, kind audit.Action, action *StateAction, actor, eventID string, err error) {
	name := "PATCH"
	if action != nil {
		name = string(*action)
	}
	s.opts.observer.LifecycleTransition(name, outcome(err))
	if action == nil {
		return
	}
	details := map[string]string{"state_action": name}
	s.opts.audit.Record(ctx, kind, actor, eventID, err, details)
	if err != nil {
		return
	}
	s.opts.logger.Info().Str("event_id", eventID).Str("state_action", name).Msg("event state changed")
}

// GetOwned returns one of initiatorID's events.
func (s *LifecycleService) GetOwned(ctx context.Context, initiatorID, eventID string) (*EventView, error) {
	if _, err := s.store.Users().GetUser(ctx, initiatorID); err != nil {
		return nil, err
	}
	event, err := s.store.Events().GetByInitiatorAndID(ctx, initiatorID, eventID)
	if err != nil {
		return nil, err
	}
	views, err := s.Describe(ctx, []Event{*event})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *LifecycleService) ListOwned(ctx context.Context, initiatorID string, page Page) ([]EventView, error) {
	if _, err := s.store.Users().GetUser(ctx, initiatorID); err != nil {
		return nil, err
	}
	events, err := s.store.Events().ListByInitiator(ctx, initiatorID, page)
	if err != nil {
		return nil, fmt.Errorf("list events of %s: %w", initiatorID, err)
	}
	return s.Describe(ctx, events)
}

// Search is the moderator's view over events in any state.
func (s *LifecycleService) Search(ctx context.Context, filters AdminFilters, page Page) ([]EventView, error) {
	events, err := s.store.Events().Search(ctx, filters, page)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	return s.Describe(ctx, events)
}

// GetPublished returns a published event and reports the view.
func (s *LifecycleService) GetPublished(ctx context.Context, eventID string, hit Hit) (*EventView, error) {
	event, err := s.store.Events().GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.State != StatePublished {
		return nil, apperr.NotFound("event with id=%s was not found", eventID)
	}
	hit.URI = ids.EventPath(event.ID)
	s.recordHit(ctx, hit)

	views, err := s.Describe(ctx, []Event{*event})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// SearchPublished is the public catalogue. Sorting by views needs the full
// result set, so paging happens after the sort in that case.
func (s *LifecycleService) SearchPublished(ctx context.Context, filters PublicFilters, page Page, hit Hit) ([]EventView, error) {
	storePage := page
	if filters.Sort == SortViews {
		storePage = Page{}
	}
	events, err := s.store.Events().SearchPublished(ctx, filters, storePage)
	if err != nil {
		return nil, fmt.Errorf("search published events: %w", err)
	}
	hit.URI = "/events"
	s.recordHit(ctx, hit)

	views, err := s.Describe(ctx, events)
	if err != nil {
		return nil, err
	}
	if filters.Sort == SortViews {
		sort.SliceStable(views, func(i, j int) bool {
			return views[i].Views > views[j].Views
		})
		views = Apply(views, page)
	}
	return views, nil
}

func (s *LifecycleService) recordHit(ctx context.Context, hit Hit) {
	if s.opts.hits == nil {
		return
	}
	if hit.Timestamp.IsZero() {
		hit.Timestamp = s.opts.now()
	}
	if err := s.opts.hits.RecordHit(ctx, hit); err != nil {
		s.opts.logger.Warn().Err(err).Str("uri", hit.URI).Msg("failed to record hit")
	}
}

// Describe builds read projections. Confirmed counts come from the request
// table; view counts are best effort and fall back to zero.
func (s *LifecycleService) Describe(ctx context.Context, events []Event) ([]EventView, error) {
	if len(events) == 0 {
		return []EventView{}, nil
	}
	eventIDs := make([]string, 0, len(events))
	for _, event := range events {
		eventIDs = append(eventIDs, event.ID)
	}

	confirmed, err := s.capacity.ConfirmedCounts(ctx, s.store.Requests(), eventIDs)
	if err != nil {
		return nil, err
	}
	views := s.viewsFor(ctx, eventIDs)

	categories := map[string]Category{}
	users := map[string]User{}
	out := make([]EventView, 0, len(events))
	for _, event := range events {
		category, ok := categories[event.CategoryID]
		if !ok {
			found, err := s.store.Categories().GetCategory(ctx, event.CategoryID)
			if err != nil {
				return nil, fmt.Errorf("resolve category of event %s: %w", event.ID, err)
			}
			category = *found
			categories[category.ID] = category
		}
		initiator, ok := users[event.InitiatorID]
		if !ok {
			found, err := s.store.Users().GetUser(ctx, event.InitiatorID)
			if err != nil {
				return nil, fmt.Errorf("resolve initiator of event %s: %w", event.ID, err)
			}
			initiator = *found
			users[initiator.ID] = initiator
		}
		out = append(out, EventView{
			Event:             event,
			Category:          category,
			Initiator:         initiator,
			ConfirmedRequests: confirmed[event.ID],
			Views:             views[event.ID],
		})
	}
	return out, nil
}

func (s *LifecycleService) viewsFor(ctx context.Context, eventIDs []string) map[string]int64 {
	if s.opts.views == nil {
		return map[string]int64{}
	}
	views, err := s.opts.views.ViewsFor(ctx, eventIDs)
	if err != nil {
		s.opts.logger.Warn().Err(err).Int("events", len(eventIDs)).Msg("view statistics unavailable")
		return map[string]int64{}
	}
	return views
}
