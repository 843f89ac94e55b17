package events

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Togather-Foundation/gatherings/internal/audit"
	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
)

// AdmissionService decides who may attend an event. Every decision that
// depends on the confirmed count runs in one transaction holding the event
// lock, so concurrent callers cannot oversell an event.
type AdmissionService struct {
	store    Store
	capacity CapacityAccountant
	opts     options
}

func NewAdmissionService(store Store, opts ...Option) *AdmissionService {
	return &AdmissionService{
		store: store,
		opts:  newOptions("admission", opts),
	}
}

// CreateRequest files userID's request to attend eventID. Requests are
// confirmed immediately when the event is unmoderated or unlimited.
func (s *AdmissionService) CreateRequest(ctx context.Context, userID, eventID string) (*ParticipationRequest, error) {
	ctx, span := s.opts.tracer.Start(ctx, "events.CreateRequest")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID), attribute.String("user.id", userID))

	if _, err := s.store.Users().GetUser(ctx, userID); err != nil {
		return nil, err
	}

	var created *ParticipationRequest
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		event, err := tx.Events().LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.InitiatorID == userID {
			return apperr.Conflict("the initiator of an event cannot request to participate in it")
		}
		if event.State != StatePublished {
			return apperr.Conflict("cannot participate in an unpublished event")
		}
		live, err := tx.Requests().HasLive(ctx, eventID, userID)
		if err != nil {
			return fmt.Errorf("check existing request: %w", err)
		}
		if live {
			return apperr.Conflict("user %s has already requested to participate in event %s", userID, eventID)
		}
		availability, err := s.capacity.Available(ctx, tx.Requests(), event)
		if err != nil {
			return err
		}
		if availability.Exhausted() {
			return apperr.Conflict("participant limit reached")
		}

		status := StatusPending
		if event.AutoConfirms() {
			status = StatusConfirmed
		}
		id, err := ids.NewULID()
		if err != nil {
			return fmt.Errorf("mint request id: %w", err)
		}
		request := &ParticipationRequest{
			ID:          id,
			EventID:     eventID,
			RequesterID: userID,
			Created:     s.opts.now(),
			Status:      status,
		}
		if err := tx.Requests().Create(ctx, request); err != nil {
			return err
		}
		created = request
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.opts.observer.AdmissionDecision(outcome(err), 1)
		return nil, err
	}

	s.opts.observer.AdmissionDecision(string(created.Status), 1)
	s.opts.logger.Info().
		Str("event_id", eventID).
		Str("request_id", created.ID).
		Str("status", string(created.Status)).
		Msg("participation request created")
	return created, nil
}

// UpdateRequestStatuses applies the organizer's decision to a batch of
// pending requests. When confirmations fill the event, the rest of the batch
// and every other pending request for the event are rejected.
func (s *AdmissionService) UpdateRequestStatuses(ctx context.Context, ownerID, eventID string, update StatusUpdate) (*StatusUpdateResult, error) {
	ctx, span := s.opts.tracer.Start(ctx, "events.UpdateRequestStatuses")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", eventID),
		attribute.String("status", string(update.Status)),
		attribute.Int("batch.size", len(update.RequestIDs)),
	)

	if update.Status != StatusConfirmed && update.Status != StatusRejected {
		return nil, apperr.Invalid("status", "must be CONFIRMED or REJECTED")
	}
	requestIDs, err := dedupeRequestIDs(update.RequestIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Users().GetUser(ctx, ownerID); err != nil {
		return nil, err
	}

	var result *StatusUpdateResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		event, err := tx.Events().LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.InitiatorID != ownerID {
			return apperr.NotFound("event with id=%s was not found", eventID)
		}

		batch, err := loadPendingBatch(ctx, tx.Requests(), eventID, requestIDs)
		if err != nil {
			return err
		}

		res := &StatusUpdateResult{
			Confirmed: []ParticipationRequest{},
			Rejected:  []ParticipationRequest{},
			Cascaded:  []ParticipationRequest{},
		}
		if update.Status == StatusRejected {
			for _, request := range batch {
				request.Status = StatusRejected
				res.Rejected = append(res.Rejected, request)
			}
		} else {
			availability, err := s.capacity.Available(ctx, tx.Requests(), event)
			if err != nil {
				return err
			}
			if availability.Exhausted() {
				return apperr.Conflict("participant limit reached")
			}
			for _, request := range batch {
				if availability.Unlimited || availability.Remaining > 0 {
					request.Status = StatusConfirmed
					res.Confirmed = append(res.Confirmed, request)
					availability.Remaining--
					continue
				}
				request.Status = StatusRejected
				res.Rejected = append(res.Rejected, request)
			}
			if availability.Exhausted() {
				res.Cascaded, err = closeWaitlist(ctx, tx.Requests(), eventID, requestIDs)
				if err != nil {
					return err
				}
			}
		}

		changed := make([]ParticipationRequest, 0, len(batch)+len(res.Cascaded))
		changed = append(changed, res.Confirmed...)
		changed = append(changed, res.Rejected...)
		changed = append(changed, res.Cascaded...)
		if err := tx.Requests().UpdateStatuses(ctx, changed); err != nil {
			return fmt.Errorf("update request statuses: %w", err)
		}
		result = res
		return nil
	})

	details := map[string]string{"status": string(update.Status)}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.opts.observer.AdmissionDecision(outcome(err), 1)
		s.opts.audit.Record(ctx, audit.ActionRequestsDecide, ownerID, eventID, err, details)
		return nil, err
	}

	s.opts.observer.AdmissionDecision(string(StatusConfirmed), len(result.Confirmed))
	s.opts.observer.AdmissionDecision(string(StatusRejected), len(result.Rejected))
	s.opts.observer.AdmissionDecision("cascade_rejected", len(result.Cascaded))
	details["confirmed"] = fmt.Sprint(len(result.Confirmed))
	details["rejected"] = fmt.Sprint(len(result.Rejected))
	details["cascaded"] = fmt.Sprint(len(result.Cascaded))
	s.opts.audit.Record(ctx, audit.ActionRequestsDecide, ownerID, eventID, nil, details)
	return result, nil
}

// loadPendingBatch returns the requests in the order of requestIDs, checking
// that each exists, belongs to eventID and is still PENDING.
func loadPendingBatch(ctx context.Context, requests RequestRepository, eventID string, requestIDs []string) ([]ParticipationRequest, error) {
	found, err := requests.FindByIDs(ctx, requestIDs)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}
	byID := make(map[string]ParticipationRequest, len(found))
	for _, request := range found {
		byID[request.ID] = request
	}

	batch := make([]ParticipationRequest, 0, len(requestIDs))
	for _, id := range requestIDs {
		request, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("request with id=%s was not found", id)
		}
		if request.EventID != eventID {
			return nil, apperr.Conflict("request %s does not belong to event %s", id, eventID)
		}
		if request.Status != StatusPending {
			return nil, apperr.Conflict("request %s must have status PENDING, but is %s", id, request.Status)
		}
		batch = append(batch, request)
	}
	return batch, nil
}

// closeWaitlist rejects the pending requests of eventID that were not part of the batch.
func closeWaitlist(ctx context.Context, requests RequestRepository, eventID string, batchIDs []string) ([]ParticipationRequest, error) {
	pending, err := requests.FindByEventAndStatus(ctx, eventID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("load pending requests: %w", err)
	}
	inBatch := make(map[string]struct{}, len(batchIDs))
	for _, id := range batchIDs {
		inBatch[id] = struct{}{}
	}
	cascaded := []ParticipationRequest{}
	for _, request := range pending {
		if _, ok := inBatch[request.ID]; ok {
			continue
		}
		request.Status = StatusRejected
		cascaded = append(cascaded, request)
	}
	return cascaded, nil
}

// CancelOwnRequest withdraws userID's request from any status. A freed slot
// is not handed to anyone already waiting.
func (s *AdmissionService) CancelOwnRequest(ctx context.Context, userID, requestID string) (*ParticipationRequest, error) {
	ctx, span := s.opts.tracer.Start(ctx, "events.CancelOwnRequest")
	defer span.End()

	if _, err := s.store.Users().GetUser(ctx, userID); err != nil {
		return nil, err
	}
	request, err := s.store.Requests().GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.RequesterID != userID {
		return nil, apperr.NotFound("request with id=%s was not found", requestID)
	}

	var canceled *ParticipationRequest
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Events().LockEvent(ctx, request.EventID); err != nil {
			return err
		}
		current, err := tx.Requests().GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		current.Status = StatusCanceled
		if err := tx.Requests().UpdateStatuses(ctx, []ParticipationRequest{*current}); err != nil {
			return fmt.Errorf("cancel request %s: %w", requestID, err)
		}
		canceled = current
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.opts.observer.AdmissionDecision(string(StatusCanceled), 1)
	return canceled, nil
}

func (s *AdmissionService) ListOwnRequests(ctx context.Context, userID string) ([]ParticipationRequest, error) {
	if _, err := s.store.Users().GetUser(ctx, userID); err != nil {
		return nil, err
	}
	requests, err := s.store.Requests().ListByRequester(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests of %s: %w", userID, err)
	}
	return requests, nil
}

// ListEventRequests returns every request for an event owned by ownerID.
func (s *AdmissionService) ListEventRequests(ctx context.Context, ownerID, eventID string) ([]ParticipationRequest, error) {
	if _, err := s.store.Users().GetUser(ctx, ownerID); err != nil {
		return nil, err
	}
	if _, err := s.store.Events().GetByInitiatorAndID(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	requests, err := s.store.Requests().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list requests of event %s: %w", eventID, err)
	}
	return requests, nil
}

// dedupeRequestIDs keeps the first occurrence of each id. A blank id fails
// the whole batch.
func dedupeRequestIDs(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, apperr.Invalid("requestIds", "must not be empty")
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			return nil, apperr.Invalid("requestIds", "entry %d is blank", i)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}
