package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

var fixedNow = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "gatherings",
		WithRateLimit(1000),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestViewsFor(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/stats", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "2000-01-01 00:00:00", q.Get("start"))
		require.Equal(t, "2030-01-01 10:00:00", q.Get("end"))
		require.Equal(t, "true", q.Get("unique"))
		require.ElementsMatch(t, []string{"/events/a", "/events/b"}, q["uris"])

		_ = json.NewEncoder(w).Encode([]ViewStat{
			{App: "gatherings", URI: "/events/a", Hits: 7},
			{App: "gatherings", URI: "/events/unknown", Hits: 99},
		})
	}))

	views, err := client.ViewsFor(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"a": 7, "b": 0}, views)
}

func TestViewsForEmptyMakesNoCall(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected request")
	}))

	views, err := client.ViewsFor(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, views)
}

func TestViewsForChunksLargeRequests(t *testing.T) {
	var (
		mu    sync.Mutex
		sizes []int
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uris := r.URL.Query()["uris"]
		mu.Lock()
		sizes = append(sizes, len(uris))
		mu.Unlock()

		stats := make([]ViewStat, 0, len(uris))
		for _, uri := range uris {
			stats = append(stats, ViewStat{URI: uri, Hits: 1})
		}
		_ = json.NewEncoder(w).Encode(stats)
	}))

	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("e%03d", i)
	}
	views, err := client.ViewsFor(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, views, 250)
	for _, id := range ids {
		require.Equal(t, int64(1), views[id])
	}
	require.ElementsMatch(t, []int{100, 100, 50}, sizes)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]ViewStat{{URI: "/events/a", Hits: 2}})
	}))

	views, err := client.ViewsFor(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Equal(t, int64(2), views["a"])
	require.Equal(t, int32(3), calls.Load())
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad uris", http.StatusBadRequest)
	}))

	_, err := client.ViewsFor(context.Background(), []string{"a"})
	require.Error(t, err)
	require.True(t, IsStatus(err, http.StatusBadRequest))
	require.Equal(t, int32(1), calls.Load())
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)
	client := NewClient(server.URL, "gatherings", WithRateLimit(1000), WithMaxAttempts(2))

	_, err := client.ViewsFor(context.Background(), []string{"a"})
	require.True(t, IsStatus(err, http.StatusServiceUnavailable))
	require.Equal(t, int32(2), calls.Load())
}

func TestRecordHit(t *testing.T) {
	received := make(chan EndpointHit, 1)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hit", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var hit EndpointHit
		require.NoError(t, json.NewDecoder(r.Body).Decode(&hit))
		received <- hit
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.RecordHit(context.Background(), events.Hit{URI: "/events/a", IP: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, EndpointHit{
		App:       "gatherings",
		URI:       "/events/a",
		IP:        "10.0.0.1",
		Timestamp: "2030-01-01 10:00:00",
	}, <-received)
}

func TestNoop(t *testing.T) {
	views, err := Noop{}.ViewsFor(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"a": 0}, views)
	require.NoError(t, Noop{}.RecordHit(context.Background(), events.Hit{}))
}

func TestIsRejected(t *testing.T) {
	require.True(t, IsRejected(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: http.StatusBadRequest})))
	require.False(t, IsRejected(&StatusError{StatusCode: http.StatusTooManyRequests}))
	require.False(t, IsRejected(&StatusError{StatusCode: http.StatusBadGateway}))
	require.False(t, IsRejected(context.Canceled))
}
