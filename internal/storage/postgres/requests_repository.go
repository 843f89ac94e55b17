package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

const selectRequest = `
SELECT id, event_id, requester_id, created, status
  FROM participation_requests`

const liveRequestIndex = "participation_requests_live_key"

type RequestRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *RequestRepository) queryer() queryer {
	return pick(r.pool, r.tx)
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*events.ParticipationRequest, error) {
	rows, err := query(ctx, r.queryer(), "requests_get", selectRequest+` WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	request, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("request with id=%s was not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("requests_get: %w", err)
	}
	return &request, nil
}

func (r *RequestRepository) FindByIDs(ctx context.Context, ids []string) ([]events.ParticipationRequest, error) {
	return r.list(ctx, "requests_find_by_ids", selectRequest+` WHERE id = ANY($1) ORDER BY created, id`, ids)
}

func (r *RequestRepository) FindByEventAndStatus(ctx context.Context, eventID string, status events.RequestStatus) ([]events.ParticipationRequest, error) {
	return r.list(ctx, "requests_find_by_event_status",
		selectRequest+` WHERE event_id = $1 AND status = $2 ORDER BY created, id`, eventID, string(status))
}

func (r *RequestRepository) ListByEvent(ctx context.Context, eventID string) ([]events.ParticipationRequest, error) {
	return r.list(ctx, "requests_list_by_event", selectRequest+` WHERE event_id = $1 ORDER BY created, id`, eventID)
}

func (r *RequestRepository) ListByRequester(ctx context.Context, requesterID string) ([]events.ParticipationRequest, error) {
	return r.list(ctx, "requests_list_by_requester", selectRequest+` WHERE requester_id = $1 ORDER BY created, id`, requesterID)
}

func (r *RequestRepository) CountByEventAndStatus(ctx context.Context, eventID string, status events.RequestStatus) (int, error) {
	var count int
	err := r.queryer().QueryRow(ctx,
		`SELECT count(*) FROM participation_requests WHERE event_id = $1 AND status = $2`,
		eventID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

func (r *RequestRepository) CountConfirmedByEvents(ctx context.Context, eventIDs []string) (map[string]int, error) {
	rows, err := query(ctx, r.queryer(), "requests_count_confirmed", `
SELECT event_id, count(*)
  FROM participation_requests
 WHERE event_id = ANY($1) AND status = $2
 GROUP BY event_id`, eventIDs, string(events.StatusConfirmed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int, len(eventIDs))
	for rows.Next() {
		var (
			eventID string
			count   int
		)
		if err := rows.Scan(&eventID, &count); err != nil {
			return nil, fmt.Errorf("scan confirmed count: %w", err)
		}
		counts[eventID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate confirmed counts: %w", err)
	}
	return counts, nil
}

func (r *RequestRepository) HasLive(ctx context.Context, eventID, requesterID string) (bool, error) {
	var exists bool
	err := r.queryer().QueryRow(ctx, `
SELECT EXISTS (
  SELECT 1 FROM participation_requests
   WHERE event_id = $1 AND requester_id = $2 AND status <> $3
)`, eventID, requesterID, string(events.StatusCanceled)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check live request: %w", err)
	}
	return exists, nil
}

func (r *RequestRepository) Create(ctx context.Context, request *events.ParticipationRequest) error {
	_, err := exec(ctx, r.queryer(), "requests_insert", `
INSERT INTO participation_requests (id, event_id, requester_id, created, status)
VALUES ($1, $2, $3, $4, $5)`,
		request.ID, request.EventID, request.RequesterID, request.Created, string(request.Status),
	)
	switch {
	case err == nil:
		return nil
	case constraintViolation(err, sqlStateUniqueViolation, liveRequestIndex):
		return apperr.Conflict("user %s has already requested to participate in event %s", request.RequesterID, request.EventID)
	case constraintViolation(err, sqlStateForeignKeyViolation, "participation_requests_event_id_fkey"):
		return apperr.NotFound("event with id=%s was not found", request.EventID)
	case constraintViolation(err, sqlStateForeignKeyViolation, "participation_requests_requester_id_fkey"):
		return apperr.NotFound("user with id=%s was not found", request.RequesterID)
	}
	return fmt.Errorf("insert request: %w", err)
}

// UpdateStatuses writes every status in one round trip. Callers run it inside
// a transaction so the batch is applied atomically.
func (r *RequestRepository) UpdateStatuses(ctx context.Context, requests []events.ParticipationRequest) error {
	if len(requests) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, request := range requests {
		batch.Queue(`UPDATE participation_requests SET status = $2 WHERE id = $1`, request.ID, string(request.Status))
	}
	results := r.queryer().SendBatch(ctx, batch)
	defer results.Close()

	for _, request := range requests {
		tag, err := results.Exec()
		if err != nil {
			if constraintViolation(err, sqlStateUniqueViolation, liveRequestIndex) {
				return apperr.Conflict("user %s has already requested to participate in event %s", request.RequesterID, request.EventID)
			}
			return fmt.Errorf("update request %s: %w", request.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("request with id=%s was not found", request.ID)
		}
	}
	return nil
}

func (r *RequestRepository) list(ctx context.Context, operation, sql string, args ...any) ([]events.ParticipationRequest, error) {
	rows, err := query(ctx, r.queryer(), operation, sql, args...)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if list == nil {
		list = []events.ParticipationRequest{}
	}
	return list, nil
}

func scanRequest(row pgx.CollectableRow) (events.ParticipationRequest, error) {
	var (
		request events.ParticipationRequest
		status  string
	)
	if err := row.Scan(&request.ID, &request.EventID, &request.RequesterID, &request.Created, &status); err != nil {
		return request, err
	}
	request.Status = events.RequestStatus(status)
	request.Created = request.Created.UTC()
	return request, nil
}
