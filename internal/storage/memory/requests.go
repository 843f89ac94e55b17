package memory

import (
	"context"
	"sort"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

type requestRepo struct{ s *Store }

func (r requestRepo) GetByID(_ context.Context, id string) (*events.ParticipationRequest, error) {
	request, ok := lookup(r.s, requestsTable, id)
	if !ok {
		return nil, apperr.NotFound("request with id=%s was not found", id)
	}
	return &request, nil
}

func (r requestRepo) FindByIDs(_ context.Context, ids []string) ([]events.ParticipationRequest, error) {
	out := make([]events.ParticipationRequest, 0, len(ids))
	for _, id := range ids {
		if request, ok := lookup(r.s, requestsTable, id); ok {
			out = append(out, request)
		}
	}
	return out, nil
}

func (r requestRepo) FindByEventAndStatus(_ context.Context, eventID string, status events.RequestStatus) ([]events.ParticipationRequest, error) {
	return r.filter(func(p events.ParticipationRequest) bool {
		return p.EventID == eventID && p.Status == status
	}), nil
}

func (r requestRepo) ListByEvent(_ context.Context, eventID string) ([]events.ParticipationRequest, error) {
	return r.filter(func(p events.ParticipationRequest) bool { return p.EventID == eventID }), nil
}

func (r requestRepo) ListByRequester(_ context.Context, requesterID string) ([]events.ParticipationRequest, error) {
	return r.filter(func(p events.ParticipationRequest) bool { return p.RequesterID == requesterID }), nil
}

func (r requestRepo) CountByEventAndStatus(_ context.Context, eventID string, status events.RequestStatus) (int, error) {
	return len(r.filter(func(p events.ParticipationRequest) bool {
		return p.EventID == eventID && p.Status == status
	})), nil
}

func (r requestRepo) CountConfirmedByEvents(_ context.Context, eventIDs []string) (map[string]int, error) {
	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}
	counts := map[string]int{}
	for eventID, n := range countConfirmed(r.s) {
		if _, ok := wanted[eventID]; ok {
			counts[eventID] = n
		}
	}
	return counts, nil
}

func (r requestRepo) HasLive(_ context.Context, eventID, requesterID string) (bool, error) {
	live := r.filter(func(p events.ParticipationRequest) bool {
		return p.EventID == eventID && p.RequesterID == requesterID && p.Live()
	})
	return len(live) > 0, nil
}

func (r requestRepo) Create(ctx context.Context, request *events.ParticipationRequest) error {
	return r.s.write(ctx, func(tx *Store) error {
		if _, ok := lookup(tx, requestsTable, request.ID); ok {
			return apperr.Conflict("request with id=%s already exists", request.ID)
		}
		if request.Live() {
			live, _ := requestRepo{tx}.HasLive(ctx, request.EventID, request.RequesterID)
			if live {
				return apperr.Conflict("user %s has already requested to participate in event %s", request.RequesterID, request.EventID)
			}
		}
		put(tx, requestsTable, request.ID, *request)
		return nil
	})
}

func (r requestRepo) UpdateStatuses(ctx context.Context, requests []events.ParticipationRequest) error {
	return r.s.write(ctx, func(tx *Store) error {
		for _, request := range requests {
			current, ok := lookup(tx, requestsTable, request.ID)
			if !ok {
				return apperr.NotFound("request with id=%s was not found", request.ID)
			}
			current.Status = request.Status
			put(tx, requestsTable, current.ID, current)
		}
		return nil
	})
}

func (r requestRepo) filter(keep func(events.ParticipationRequest) bool) []events.ParticipationRequest {
	out := []events.ParticipationRequest{}
	for _, request := range scan(r.s, requestsTable) {
		if keep(request) {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
