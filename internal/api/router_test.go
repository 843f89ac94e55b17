package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/api/handlers"
	"github.com/Togather-Foundation/gatherings/internal/api/problem"
	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/Togather-Foundation/gatherings/internal/storage/memory"
)

type fakeStats struct {
	mu    sync.Mutex
	views map[string]int64
	hits  []events.Hit
}

func (f *fakeStats) ViewsFor(_ context.Context, eventIDs []string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(eventIDs))
	for _, id := range eventIDs {
		out[id] = f.views[ids.EventPath(id)]
	}
	return out, nil
}

func (f *fakeStats) RecordHit(_ context.Context, hit events.Hit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, hit)
	return nil
}

func (f *fakeStats) recorded() []events.Hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Hit(nil), f.hits...)
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	stats   *fakeStats
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	stats := &fakeStats{views: map[string]int64{}}
	cfg := config.Config{Environment: "test"}
	handler := NewRouter(cfg, zerolog.Nop(), Dependencies{
		Store:   memory.New(),
		Views:   stats,
		Hits:    stats,
		Version: "test",
	})
	return &apiClient{t: t, handler: handler, stats: stats}
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:5555"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *apiClient) decode(rec *httptest.ResponseRecorder, status int, out any) {
	c.t.Helper()
	require.Equal(c.t, status, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(c.t, json.NewDecoder(rec.Body).Decode(out))
	}
}

func (c *apiClient) problem(rec *httptest.ResponseRecorder, status int) problem.ProblemDetails {
	c.t.Helper()
	var details problem.ProblemDetails
	c.decode(rec, status, &details)
	require.Equal(c.t, status, details.Status)
	return details
}

func (c *apiClient) user(name string) string {
	var user handlers.UserDto
	c.decode(c.do(http.MethodPost, "/admin/users", map[string]any{
		"name": name, "email": strings.ToLower(name) + "@example.com",
	}), http.StatusCreated, &user)
	return user.ID
}

func (c *apiClient) category(name string) string {
	var category handlers.CategoryDto
	c.decode(c.do(http.MethodPost, "/admin/categories", map[string]any{"name": name}), http.StatusCreated, &category)
	return category.ID
}

func eventBody(categoryID string, overrides map[string]any) map[string]any {
	body := map[string]any{
		"title":       "Go meetup",
		"annotation":  "An evening of talks about Go in production",
		"description": "Three talks, pizza and plenty of time for questions afterwards",
		"category":    categoryID,
		"location":    map[string]any{"lat": 55.75, "lon": 37.62},
		"eventDate":   time.Now().UTC().Add(72 * time.Hour).Format(events.DateTimeLayout),
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

// publishedEvent creates an event as ownerID and publishes it through moderation.
func (c *apiClient) publishedEvent(ownerID, categoryID string, overrides map[string]any) handlers.EventFullDto {
	var created handlers.EventFullDto
	c.decode(c.do(http.MethodPost, "/users/"+ownerID+"/events", eventBody(categoryID, overrides)), http.StatusCreated, &created)
	var published handlers.EventFullDto
	c.decode(c.do(http.MethodPatch, "/admin/events/"+created.ID, map[string]any{"stateAction": "PUBLISH_EVENT"}), http.StatusOK, &published)
	return published
}

func TestOrganizerEventLifecycle(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")

	var created handlers.EventFullDto
	c.decode(c.do(http.MethodPost, "/users/"+owner+"/events", eventBody(category, nil)), http.StatusCreated, &created)
	require.Equal(t, "PENDING", created.State)
	require.True(t, created.RequestModeration)
	require.False(t, created.Paid)
	require.Zero(t, created.ParticipantLimit)
	require.Nil(t, created.PublishedOn)
	require.Equal(t, owner, created.Initiator.ID)
	require.Equal(t, "Meetups", created.Category.Name)

	var updated handlers.EventFullDto
	c.decode(c.do(http.MethodPatch, "/users/"+owner+"/events/"+created.ID, map[string]any{
		"title": "Go meetup #2", "stateAction": "CANCEL_REVIEW",
	}), http.StatusOK, &updated)
	require.Equal(t, "Go meetup #2", updated.Title)
	require.Equal(t, "CANCELED", updated.State)

	c.decode(c.do(http.MethodPatch, "/users/"+owner+"/events/"+created.ID, map[string]any{"stateAction": "SEND_TO_REVIEW"}), http.StatusOK, &updated)
	require.Equal(t, "PENDING", updated.State)

	var published handlers.EventFullDto
	c.decode(c.do(http.MethodPatch, "/admin/events/"+created.ID, map[string]any{"stateAction": "PUBLISH_EVENT"}), http.StatusOK, &published)
	require.Equal(t, "PUBLISHED", published.State)
	require.NotNil(t, published.PublishedOn)

	// Published events are frozen for their owner.
	c.problem(c.do(http.MethodPatch, "/users/"+owner+"/events/"+created.ID, map[string]any{"title": "Changed"}), http.StatusConflict)
	// A second publication is refused.
	c.problem(c.do(http.MethodPatch, "/admin/events/"+created.ID, map[string]any{"stateAction": "PUBLISH_EVENT"}), http.StatusConflict)
	// Rejecting a published event is refused.
	c.problem(c.do(http.MethodPatch, "/admin/events/"+created.ID, map[string]any{"stateAction": "REJECT_EVENT"}), http.StatusConflict)

	var owned []handlers.EventShortDto
	c.decode(c.do(http.MethodGet, "/users/"+owner+"/events", nil), http.StatusOK, &owned)
	require.Len(t, owned, 1)

	var fetched handlers.EventFullDto
	c.decode(c.do(http.MethodGet, "/users/"+owner+"/events/"+created.ID, nil), http.StatusOK, &fetched)
	require.Equal(t, "PUBLISHED", fetched.State)

	// Someone else's event is not visible through their path.
	other := c.user("Other")
	c.problem(c.do(http.MethodGet, "/users/"+other+"/events/"+created.ID, nil), http.StatusNotFound)
}

func TestCreateEventValidation(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")

	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{"too soon", eventBody(category, map[string]any{"eventDate": time.Now().UTC().Add(time.Hour).Format(events.DateTimeLayout)}), http.StatusBadRequest, "eventDate"},
		{"bad date format", eventBody(category, map[string]any{"eventDate": "2030-01-01T10:00:00Z"}), http.StatusBadRequest, "eventDate"},
		{"short annotation", eventBody(category, map[string]any{"annotation": "short"}), http.StatusBadRequest, "annotation"},
		{"negative limit", eventBody(category, map[string]any{"participantLimit": -1}), http.StatusBadRequest, "participantLimit"},
		{"unknown field", eventBody(category, map[string]any{"color": "red"}), http.StatusBadRequest, "body"},
		{"unknown category", eventBody("missing", nil), http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := c.problem(c.do(http.MethodPost, "/users/"+owner+"/events", tt.body), tt.status)
			if tt.field != "" {
				require.Contains(t, details.Errors, tt.field)
			}
		})
	}

	c.problem(c.do(http.MethodPost, "/users/nobody/events", eventBody(category, nil)), http.StatusNotFound)
}

func TestModeratedAdmissionWithCascade(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")
	event := c.publishedEvent(owner, category, map[string]any{"participantLimit": 2})

	users := []string{c.user("Alice"), c.user("Bobby"), c.user("Carol"), c.user("David")}
	requestIDs := make([]string, 0, len(users))
	for _, u := range users {
		var req handlers.ParticipationRequestDto
		c.decode(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", u, event.ID), nil), http.StatusCreated, &req)
		require.Equal(t, "PENDING", req.Status)
		requestIDs = append(requestIDs, req.ID)
	}

	// Duplicate live requests are refused.
	c.problem(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", users[0], event.ID), nil), http.StatusConflict)
	// The initiator cannot join their own event.
	c.problem(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", owner, event.ID), nil), http.StatusConflict)

	var result handlers.StatusUpdateResultDto
	c.decode(c.do(http.MethodPatch, "/users/"+owner+"/events/"+event.ID+"/requests", map[string]any{
		"requestIds": requestIDs[:3], "status": "CONFIRMED",
	}), http.StatusOK, &result)
	require.Len(t, result.ConfirmedRequests, 2)
	require.Len(t, result.RejectedRequests, 1)
	require.Equal(t, requestIDs[2], result.RejectedRequests[0].ID)
	require.Len(t, result.CascadedRequests, 1)
	require.Equal(t, requestIDs[3], result.CascadedRequests[0].ID)
	require.Equal(t, "REJECTED", result.CascadedRequests[0].Status)

	var view handlers.EventFullDto
	c.decode(c.do(http.MethodGet, "/users/"+owner+"/events/"+event.ID, nil), http.StatusOK, &view)
	require.Equal(t, 2, view.ConfirmedRequests)

	// The event is full now.
	late := c.user("Erin")
	c.problem(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", late, event.ID), nil), http.StatusConflict)

	// Only pending requests can be decided.
	c.problem(c.do(http.MethodPatch, "/users/"+owner+"/events/"+event.ID+"/requests", map[string]any{
		"requestIds": requestIDs[:1], "status": "REJECTED",
	}), http.StatusConflict)

	var listed []handlers.ParticipationRequestDto
	c.decode(c.do(http.MethodGet, "/users/"+owner+"/events/"+event.ID+"/requests", nil), http.StatusOK, &listed)
	require.Len(t, listed, 4)
}

func TestUnmoderatedAdmissionAndCancel(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")
	event := c.publishedEvent(owner, category, map[string]any{"participantLimit": 1, "requestModeration": false})

	alice := c.user("Alice")
	var req handlers.ParticipationRequestDto
	c.decode(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", alice, event.ID), nil), http.StatusCreated, &req)
	require.Equal(t, "CONFIRMED", req.Status)

	bob := c.user("Bobby")
	c.problem(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", bob, event.ID), nil), http.StatusConflict)

	// Only the requester can cancel.
	c.problem(c.do(http.MethodPatch, "/users/"+bob+"/requests/"+req.ID+"/cancel", nil), http.StatusNotFound)

	var canceled handlers.ParticipationRequestDto
	c.decode(c.do(http.MethodPatch, "/users/"+alice+"/requests/"+req.ID+"/cancel", nil), http.StatusOK, &canceled)
	require.Equal(t, "CANCELED", canceled.Status)

	// The freed seat is available again.
	c.decode(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", bob, event.ID), nil), http.StatusCreated, &req)
	require.Equal(t, "CONFIRMED", req.Status)

	var own []handlers.ParticipationRequestDto
	c.decode(c.do(http.MethodGet, "/users/"+alice+"/requests", nil), http.StatusOK, &own)
	require.Len(t, own, 1)
	require.Equal(t, "CANCELED", own[0].Status)
}

func TestRequestsRequireEventID(t *testing.T) {
	c := newTestAPI(t)
	alice := c.user("Alice")
	details := c.problem(c.do(http.MethodPost, "/users/"+alice+"/requests", nil), http.StatusBadRequest)
	require.Contains(t, details.Errors, "eventId")
}

func TestPendingEventIsNotJoinable(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")
	var created handlers.EventFullDto
	c.decode(c.do(http.MethodPost, "/users/"+owner+"/events", eventBody(category, nil)), http.StatusCreated, &created)

	alice := c.user("Alice")
	c.problem(c.do(http.MethodPost, fmt.Sprintf("/users/%s/requests?eventId=%s", alice, created.ID), nil), http.StatusConflict)
}

func TestPublicCatalogue(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")
	free := c.publishedEvent(owner, category, map[string]any{"title": "Free talk"})
	paid := c.publishedEvent(owner, category, map[string]any{"title": "Paid workshop", "paid": true,
		"eventDate": time.Now().UTC().Add(96 * time.Hour).Format(events.DateTimeLayout)})
	var pending handlers.EventFullDto
	c.decode(c.do(http.MethodPost, "/users/"+owner+"/events", eventBody(category, nil)), http.StatusCreated, &pending)

	c.stats.mu.Lock()
	c.stats.views[ids.EventPath(free.ID)] = 7
	c.stats.mu.Unlock()

	var all []handlers.EventShortDto
	c.decode(c.do(http.MethodGet, "/events", nil), http.StatusOK, &all)
	require.Len(t, all, 2)
	require.Equal(t, free.ID, all[0].ID)
	require.EqualValues(t, 7, all[0].Views)

	var onlyPaid []handlers.EventShortDto
	c.decode(c.do(http.MethodGet, "/events?paid=true", nil), http.StatusOK, &onlyPaid)
	require.Len(t, onlyPaid, 1)
	require.Equal(t, paid.ID, onlyPaid[0].ID)

	var got handlers.EventFullDto
	c.decode(c.do(http.MethodGet, "/events/"+free.ID, nil), http.StatusOK, &got)
	require.Equal(t, "Free talk", got.Title)

	c.problem(c.do(http.MethodGet, "/events/"+pending.ID, nil), http.StatusNotFound)
	c.problem(c.do(http.MethodGet, "/events?sort=NEWEST", nil), http.StatusBadRequest)

	hits := c.stats.recorded()
	require.Len(t, hits, 3)
	require.Equal(t, "/events", hits[0].URI)
	require.Equal(t, ids.EventPath(free.ID), hits[2].URI)
	require.Equal(t, "203.0.113.7", hits[2].IP)
}

func TestAdminSearchAndDirectory(t *testing.T) {
	c := newTestAPI(t)
	owner := c.user("Owner")
	category := c.category("Meetups")
	published := c.publishedEvent(owner, category, nil)
	var pending handlers.EventFullDto
	c.decode(c.do(http.MethodPost, "/users/"+owner+"/events", eventBody(category, nil)), http.StatusCreated, &pending)

	var found []handlers.EventFullDto
	c.decode(c.do(http.MethodGet, "/admin/events?states=PENDING", nil), http.StatusOK, &found)
	require.Len(t, found, 1)
	require.Equal(t, pending.ID, found[0].ID)

	c.decode(c.do(http.MethodGet, "/admin/events?users="+owner+"&from=0&size=10", nil), http.StatusOK, &found)
	require.Len(t, found, 2)
	_ = published

	c.problem(c.do(http.MethodGet, "/admin/events?size=0", nil), http.StatusBadRequest)

	c.problem(c.do(http.MethodPost, "/admin/users", map[string]any{"name": "Dup", "email": "owner@example.com"}), http.StatusConflict)
	c.problem(c.do(http.MethodPost, "/admin/categories", map[string]any{"name": "Meetups"}), http.StatusConflict)
	details := c.problem(c.do(http.MethodPost, "/admin/users", map[string]any{"name": "X", "email": "not-an-email"}), http.StatusBadRequest)
	require.NotEmpty(t, details.Errors)

	// Moderators cannot use owner-only actions.
	c.problem(c.do(http.MethodPatch, "/admin/events/"+pending.ID, map[string]any{"stateAction": "SEND_TO_REVIEW"}), http.StatusBadRequest)
	c.problem(c.do(http.MethodPatch, "/admin/events/"+pending.ID, map[string]any{"stateAction": "ARCHIVE"}), http.StatusBadRequest)

	var rejected handlers.EventFullDto
	c.decode(c.do(http.MethodPatch, "/admin/events/"+pending.ID, map[string]any{"stateAction": "REJECT_EVENT"}), http.StatusOK, &rejected)
	require.Equal(t, "CANCELED", rejected.State)
}

func TestOperationalEndpoints(t *testing.T) {
	c := newTestAPI(t)

	rec := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"version":"test"`)

	c.do(http.MethodGet, "/events", nil)
	rec = c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gatherings_http_requests_total")

	rec = c.do(http.MethodGet, "/events", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = c.do(http.MethodDelete, "/events", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	stats := &fakeStats{views: map[string]int64{}}
	cfg := config.Config{Environment: "test", Server: config.ServerConfig{MaxBodyBytes: 64}}
	handler := NewRouter(cfg, zerolog.Nop(), Dependencies{Store: memory.New(), Views: stats, Hits: stats})

	body := strings.NewReader(`{"name":"` + strings.Repeat("x", 200) + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/categories", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
