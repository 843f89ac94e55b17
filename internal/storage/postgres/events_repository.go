package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

var dialect = goqu.Dialect("postgres")

var eventColumns = []any{
	"id", "title", "annotation", "description", "category_id", "initiator_id",
	"lat", "lon", "event_date", "paid", "participant_limit", "request_moderation",
	"state", "created_on", "published_on",
}

const selectEvent = `
SELECT id, title, annotation, description, category_id, initiator_id,
       lat, lon, event_date, paid, participant_limit, request_moderation,
       state, created_on, published_on
  FROM events`

type EventRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func (r *EventRepository) queryer() queryer {
	return pick(r.pool, r.tx)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	return r.getOne(ctx, "events_get", selectEvent+` WHERE id = $1`, id)
}

func (r *EventRepository) GetByInitiatorAndID(ctx context.Context, initiatorID, id string) (*events.Event, error) {
	return r.getOne(ctx, "events_get_owned", selectEvent+` WHERE id = $1 AND initiator_id = $2`, id, initiatorID)
}

// LockEvent takes the row lock that serializes admission decisions and
// state changes for one event. It must be the first statement touching the
// event in the transaction.
func (r *EventRepository) LockEvent(ctx context.Context, id string) (*events.Event, error) {
	if r.tx == nil {
		return r.GetByID(ctx, id)
	}
	return r.getOne(ctx, "events_lock", selectEvent+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *EventRepository) getOne(ctx context.Context, operation, sql string, args ...any) (*events.Event, error) {
	rows, err := query(ctx, r.queryer(), operation, sql, args...)
	if err != nil {
		return nil, err
	}
	event, err := pgx.CollectExactlyOneRow(rows, scanEvent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("event with id=%s was not found", args[0])
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return &event, nil
}

func (r *EventRepository) Create(ctx context.Context, event *events.Event) error {
	_, err := exec(ctx, r.queryer(), "events_insert", `
INSERT INTO events (id, title, annotation, description, category_id, initiator_id,
                    lat, lon, event_date, paid, participant_limit, request_moderation,
                    state, created_on, published_on)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		event.ID, event.Title, event.Annotation, event.Description, event.CategoryID, event.InitiatorID,
		event.Location.Lat, event.Location.Lon, event.EventDate, event.Paid, event.ParticipantLimit,
		event.RequestModeration, string(event.State), event.CreatedOn, event.PublishedOn,
	)
	if err != nil {
		return eventWriteError(err, event)
	}
	return nil
}

func (r *EventRepository) Update(ctx context.Context, event *events.Event) error {
	tag, err := exec(ctx, r.queryer(), "events_update", `
UPDATE events
   SET title = $2, annotation = $3, description = $4, category_id = $5,
       lat = $6, lon = $7, event_date = $8, paid = $9, participant_limit = $10,
       request_moderation = $11, state = $12, published_on = $13
 WHERE id = $1`,
		event.ID, event.Title, event.Annotation, event.Description, event.CategoryID,
		event.Location.Lat, event.Location.Lon, event.EventDate, event.Paid, event.ParticipantLimit,
		event.RequestModeration, string(event.State), event.PublishedOn,
	)
	if err != nil {
		return eventWriteError(err, event)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("event with id=%s was not found", event.ID)
	}
	return nil
}

func eventWriteError(err error, event *events.Event) error {
	switch {
	case constraintViolation(err, sqlStateForeignKeyViolation, "events_category_id_fkey"):
		return apperr.NotFound("category with id=%s was not found", event.CategoryID)
	case constraintViolation(err, sqlStateForeignKeyViolation, "events_initiator_id_fkey"):
		return apperr.NotFound("user with id=%s was not found", event.InitiatorID)
	case constraintViolation(err, sqlStateUniqueViolation, "events_pkey"):
		return apperr.Conflict("event with id=%s already exists", event.ID)
	}
	return fmt.Errorf("write event %s: %w", event.ID, err)
}

func (r *EventRepository) ListByInitiator(ctx context.Context, initiatorID string, page events.Page) ([]events.Event, error) {
	ds := dialect.From("events").Select(eventColumns...).
		Where(goqu.C("initiator_id").Eq(initiatorID)).
		Order(goqu.C("id").Asc())
	return r.list(ctx, "events_list_owned", paginate(ds, page))
}

func (r *EventRepository) Search(ctx context.Context, f events.AdminFilters, page events.Page) ([]events.Event, error) {
	ds := dialect.From("events").Select(eventColumns...)
	if len(f.Users) > 0 {
		ds = ds.Where(goqu.C("initiator_id").In(f.Users))
	}
	if len(f.States) > 0 {
		states := make([]string, 0, len(f.States))
		for _, s := range f.States {
			states = append(states, string(s))
		}
		ds = ds.Where(goqu.C("state").In(states))
	}
	if len(f.Categories) > 0 {
		ds = ds.Where(goqu.C("category_id").In(f.Categories))
	}
	ds = ds.Where(dateRange(f.RangeStart, f.RangeEnd)...).Order(goqu.C("id").Asc())
	return r.list(ctx, "events_search", paginate(ds, page))
}

func (r *EventRepository) SearchPublished(ctx context.Context, f events.PublicFilters, page events.Page) ([]events.Event, error) {
	ds := dialect.From("events").Select(eventColumns...).
		Where(goqu.C("state").Eq(string(events.StatePublished)))
	if f.Text != "" {
		pattern := "%" + escapeLike(f.Text) + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("annotation").ILike(pattern),
			goqu.C("description").ILike(pattern),
		))
	}
	if len(f.Categories) > 0 {
		ds = ds.Where(goqu.C("category_id").In(f.Categories))
	}
	if f.Paid != nil {
		ds = ds.Where(goqu.C("paid").Eq(*f.Paid))
	}
	if f.OnlyAvailable {
		confirmed := dialect.From(goqu.T("participation_requests").As("pr")).
			Select(goqu.COUNT(goqu.Star())).
			Where(
				goqu.I("pr.event_id").Eq(goqu.I("events.id")),
				goqu.I("pr.status").Eq(string(events.StatusConfirmed)),
			)
		ds = ds.Where(goqu.Or(
			goqu.C("participant_limit").Eq(0),
			goqu.C("participant_limit").Gt(confirmed),
		))
	}
	ds = ds.Where(dateRange(f.RangeStart, f.RangeEnd)...).
		Order(goqu.C("event_date").Asc(), goqu.C("id").Asc())
	return r.list(ctx, "events_search_published", paginate(ds, page))
}

func (r *EventRepository) list(ctx context.Context, operation string, ds *goqu.SelectDataset) ([]events.Event, error) {
	sql, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", operation, err)
	}
	rows, err := query(ctx, r.queryer(), operation, sql, args...)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return list, nil
}

func dateRange(start, end *time.Time) []exp.Expression {
	var where []exp.Expression
	if start != nil {
		where = append(where, goqu.C("event_date").Gte(*start))
	}
	if end != nil {
		where = append(where, goqu.C("event_date").Lte(*end))
	}
	return where
}

func paginate(ds *goqu.SelectDataset, page events.Page) *goqu.SelectDataset {
	if page.From > 0 {
		ds = ds.Offset(uint(page.From))
	}
	if page.Size > 0 {
		ds = ds.Limit(uint(page.Size))
	}
	return ds
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanEvent(row pgx.CollectableRow) (events.Event, error) {
	var (
		event events.Event
		state string
	)
	err := row.Scan(
		&event.ID, &event.Title, &event.Annotation, &event.Description, &event.CategoryID, &event.InitiatorID,
		&event.Location.Lat, &event.Location.Lon, &event.EventDate, &event.Paid, &event.ParticipantLimit,
		&event.RequestModeration, &state, &event.CreatedOn, &event.PublishedOn,
	)
	if err != nil {
		return event, err
	}
	event.State = events.State(state)
	event.EventDate = event.EventDate.UTC()
	event.CreatedOn = event.CreatedOn.UTC()
	if event.PublishedOn != nil {
		published := event.PublishedOn.UTC()
		event.PublishedOn = &published
	}
	return event, nil
}
