// Package memory is an in-process events.Store used for development and
// tests. Transactions serialize on a per-event lock and stage their writes,
// which are applied all at once when the transaction function succeeds.
package memory

import (
	"context"
	"sync"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

type tables struct {
	events     map[string]events.Event
	requests   map[string]events.ParticipationRequest
	users      map[string]events.User
	categories map[string]events.Category
}

func newTables() *tables {
	return &tables{
		events:     map[string]events.Event{},
		requests:   map[string]events.ParticipationRequest{},
		users:      map[string]events.User{},
		categories: map[string]events.Category{},
	}
}

type database struct {
	mu   sync.RWMutex
	data *tables

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func (d *database) eventLock(id string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()
	lock, ok := d.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[id] = lock
	}
	return lock
}

type txState struct {
	staged *tables
	held   map[string]*sync.Mutex
}

// Store implements events.Store. The zero value is not usable; call New.
type Store struct {
	db *database
	tx *txState
}

var _ events.Store = (*Store)(nil)

func New() *Store {
	return &Store{db: &database{data: newTables(), locks: map[string]*sync.Mutex{}}}
}

func (s *Store) Events() events.Repository             { return eventRepo{s} }
func (s *Store) Requests() events.RequestRepository    { return requestRepo{s} }
func (s *Store) Users() events.UserRepository          { return userRepo{s} }
func (s *Store) Categories() events.CategoryRepository { return categoryRepo{s} }

// WithTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, events.Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}
	txStore := &Store{db: s.db, tx: &txState{staged: newTables(), held: map[string]*sync.Mutex{}}}
	defer txStore.release()

	if err := fn(ctx, txStore); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return txStore.commit()
}

func (s *Store) lockEvent(ctx context.Context, id string) error {
	if s.tx == nil {
		return nil
	}
	if _, ok := s.tx.held[id]; ok {
		return nil
	}
	lock := s.db.eventLock(id)
	acquired := make(chan struct{})
	go func() {
		lock.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
		s.tx.held[id] = lock
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			lock.Unlock()
		}()
		return ctx.Err()
	}
}

func (s *Store) release() {
	for _, lock := range s.tx.held {
		lock.Unlock()
	}
	s.tx.held = nil
}

func (s *Store) commit() error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	staged := s.tx.staged
	if err := checkUnique(s.db.data, staged); err != nil {
		return err
	}

	for id, row := range staged.events {
		s.db.data.events[id] = row
	}
	for id, row := range staged.requests {
		s.db.data.requests[id] = row
	}
	for id, row := range staged.users {
		s.db.data.users[id] = row
	}
	for id, row := range staged.categories {
		s.db.data.categories[id] = row
	}
	return nil
}

// checkUnique enforces the constraints a relational schema would: one live
// request per event and requester, unique user emails and category names.
func checkUnique(committed, staged *tables) error {
	for _, request := range staged.requests {
		if !request.Live() {
			continue
		}
		for _, other := range committed.requests {
			if other.ID == request.ID || !other.Live() {
				continue
			}
			if next, ok := staged.requests[other.ID]; ok && !next.Live() {
				continue
			}
			if other.EventID == request.EventID && other.RequesterID == request.RequesterID {
				return apperr.Conflict("user %s has already requested to participate in event %s", request.RequesterID, request.EventID)
			}
		}
	}
	for _, user := range staged.users {
		for _, other := range committed.users {
			if other.ID != user.ID && other.Email == user.Email {
				return apperr.Conflict("user with email %s already exists", user.Email)
			}
		}
	}
	for _, category := range staged.categories {
		for _, other := range committed.categories {
			if other.ID != category.ID && other.Name == category.Name {
				return apperr.Conflict("category %q already exists", category.Name)
			}
		}
	}
	return nil
}

// lookup reads a row, preferring the transaction's staged copy.
func lookup[T any](s *Store, pick func(*tables) map[string]T, id string) (T, bool) {
	if s.tx != nil {
		if row, ok := pick(s.tx.staged)[id]; ok {
			return row, true
		}
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	row, ok := pick(s.db.data)[id]
	return row, ok
}

// scan returns every row visible to s.
func scan[T any](s *Store, pick func(*tables) map[string]T) []T {
	s.db.mu.RLock()
	merged := make(map[string]T, len(pick(s.db.data)))
	for id, row := range pick(s.db.data) {
		merged[id] = row
	}
	s.db.mu.RUnlock()
	if s.tx != nil {
		for id, row := range pick(s.tx.staged) {
			merged[id] = row
		}
	}
	out := make([]T, 0, len(merged))
	for _, row := range merged {
		out = append(out, row)
	}
	return out
}

// put stages a row. Only valid inside a transaction; see write.
func put[T any](s *Store, pick func(*tables) map[string]T, id string, row T) {
	pick(s.tx.staged)[id] = row
}

// write runs fn inside the current transaction, or a new one.
func (s *Store) write(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.WithTx(ctx, func(ctx context.Context, tx events.Store) error {
		return fn(tx.(*Store))
	})
}

func eventsTable(t *tables) map[string]events.Event                  { return t.events }
func requestsTable(t *tables) map[string]events.ParticipationRequest { return t.requests }
func usersTable(t *tables) map[string]events.User                    { return t.users }
func categoriesTable(t *tables) map[string]events.Category           { return t.categories }
