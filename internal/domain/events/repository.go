package events

import (
	"context"
	"time"
)

// Repository persists events. Missing rows are reported as apperr.NotFound.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByInitiatorAndID(ctx context.Context, initiatorID, id string) (*Event, error)
	// LockEvent loads the event and holds an exclusive lock on it until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByID.
	LockEvent(ctx context.Context, id string) (*Event, error)
	Create(ctx context.Context, event *Event) error
	Update(ctx context.Context, event *Event) error
	ListByInitiator(ctx context.Context, initiatorID string, page Page) ([]Event, error)
	Search(ctx context.Context, filters AdminFilters, page Page) ([]Event, error)
	// SearchPublished applies every public filter including OnlyAvailable.
	// Results are ordered by event date; view ordering happens in the service.
	SearchPublished(ctx context.Context, filters PublicFilters, page Page) ([]Event, error)
}

// RequestRepository persists participation requests.
type RequestRepository interface {
	GetByID(ctx context.Context, id string) (*ParticipationRequest, error)
	// FindByIDs returns the requests that exist; absent ids are skipped.
	FindByIDs(ctx context.Context, ids []string) ([]ParticipationRequest, error)
	FindByEventAndStatus(ctx context.Context, eventID string, status RequestStatus) ([]ParticipationRequest, error)
	ListByEvent(ctx context.Context, eventID string) ([]ParticipationRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]ParticipationRequest, error)
	CountByEventAndStatus(ctx context.Context, eventID string, status RequestStatus) (int, error)
	CountConfirmedByEvents(ctx context.Context, eventIDs []string) (map[string]int, error)
	HasLive(ctx context.Context, eventID, requesterID string) (bool, error)
	// Create fails with apperr.Conflict when a live request already exists
	// for the same event and requester.
	Create(ctx context.Context, request *ParticipationRequest) error
	UpdateStatuses(ctx context.Context, requests []ParticipationRequest) error
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*User, error)
}

type CategoryLookup interface {
	GetCategory(ctx context.Context, id string) (*Category, error)
}

type UserRepository interface {
	UserLookup
	CreateUser(ctx context.Context, user *User) error
}

type CategoryRepository interface {
	CategoryLookup
	CreateCategory(ctx context.Context, category *Category) error
}

// Store groups the repositories and runs units of work. Inside fn every
// repository obtained from tx shares one transaction; it commits when fn
// returns nil and rolls back otherwise. Implementations may run fn more than
// once when the backend reports a retryable conflict, so fn must not have
// side effects outside tx.
type Store interface {
	Events() Repository
	Requests() RequestRepository
	Users() UserRepository
	Categories() CategoryRepository
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// ViewStatsReader returns unique view counts keyed by event id. Events
// without recorded views may be absent from the result.
type ViewStatsReader interface {
	ViewsFor(ctx context.Context, eventIDs []string) (map[string]int64, error)
}

// Hit is a single public view of an event page.
type Hit struct {
	URI       string
	IP        string
	Timestamp time.Time
}

// HitRecorder forwards public views to the statistics service.
type HitRecorder interface {
	RecordHit(ctx context.Context, hit Hit) error
}
