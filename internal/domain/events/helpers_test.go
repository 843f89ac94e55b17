package events_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/storage/memory"
)

var testNow = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	directory *events.DirectoryService
	lifecycle *events.LifecycleService
	admission *events.AdmissionService
	views     *fakeViews
	hits      *fakeHits
	category  string
	owner     string
	seq       int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	views := &fakeViews{counts: map[string]int64{}}
	hits := &fakeHits{}
	clock := events.WithClock(func() time.Time { return testNow })
	f := &fixture{
		store:     store,
		directory: events.NewDirectoryService(store),
		lifecycle: events.NewLifecycleService(store, clock, events.WithViewStats(views), events.WithHitRecorder(hits)),
		admission: events.NewAdmissionService(store, clock),
		views:     views,
		hits:      hits,
	}
	f.owner = f.user(t)
	category, err := f.directory.CreateCategory(context.Background(), events.NewCategory{Name: "Concerts"})
	require.NoError(t, err)
	f.category = category.ID
	return f
}

func (f *fixture) user(t *testing.T) string {
	t.Helper()
	f.seq++
	user, err := f.directory.CreateUser(context.Background(), events.NewUser{
		Name:  fmt.Sprintf("User %d", f.seq),
		Email: fmt.Sprintf("user%d@example.com", f.seq),
	})
	require.NoError(t, err)
	return user.ID
}

func (f *fixture) draft(mods ...func(*events.NewEvent)) events.NewEvent {
	in := events.NewEvent{
		Title:       "Evening jazz",
		Annotation:  "An evening of live jazz in the park",
		Description: "Bring a blanket and enjoy three sets of live jazz.",
		CategoryID:  f.category,
		Location:    &events.Location{Lat: 55.75, Lon: 37.62},
		EventDate:   testNow.Add(3 * time.Hour),
	}
	for _, mod := range mods {
		mod(&in)
	}
	return in
}

func (f *fixture) pendingEvent(t *testing.T, mods ...func(*events.NewEvent)) *events.Event {
	t.Helper()
	event, err := f.lifecycle.CreateEvent(context.Background(), f.owner, f.draft(mods...))
	require.NoError(t, err)
	return event
}

func (f *fixture) publishedEvent(t *testing.T, limit int, moderation bool) *events.Event {
	t.Helper()
	event := f.pendingEvent(t, func(in *events.NewEvent) {
		in.ParticipantLimit = &limit
		in.RequestModeration = &moderation
	})
	published, err := f.lifecycle.UpdateAsAdmin(context.Background(), event.ID, events.AdminPatch{
		StateAction: action(events.ActionPublish),
	})
	require.NoError(t, err)
	return published
}

func (f *fixture) confirmedCount(t *testing.T, eventID string) int {
	t.Helper()
	count, err := events.CapacityAccountant{}.ConfirmedCount(context.Background(), f.store.Requests(), eventID)
	require.NoError(t, err)
	return count
}

func action(a events.StateAction) *events.StateAction { return &a }

func ptr[T any](v T) *T { return &v }

type fakeViews struct {
	counts map[string]int64
	err    error
}

func (f *fakeViews) ViewsFor(_ context.Context, ids []string) (map[string]int64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]int64{}
	for _, id := range ids {
		if n, ok := f.counts[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

type fakeHits struct {
	mu   sync.Mutex
	hits []events.Hit
}

func (f *fakeHits) RecordHit(_ context.Context, hit events.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, hit)
	return nil
}

func (f *fakeHits) recorded() []events.Hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Hit(nil), f.hits...)
}
