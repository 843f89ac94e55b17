package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/require"

	"github.com/Togather-Foundation/gatherings/internal/config"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{RetryRecordHit: 7})

	require.Equal(t, DefaultMaxAttempts, policy.Default.MaxAttempts)
	require.Equal(t, RetryConfig{MaxAttempts: 7, BaseDelay: 5 * time.Second, MaxDelay: 5 * time.Minute}, policy.ByKind[JobKindRecordHit])

	fallback := NewRetryPolicy(config.JobsConfig{})
	require.Equal(t, DefaultMaxAttempts, fallback.ByKind[JobKindRecordHit].MaxAttempts)
}

func TestRetryPolicy_NextRetry(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{})
	now := time.Now()

	tests := []struct {
		name    string
		kind    string
		attempt int
		want    time.Duration
	}{
		{name: "record hit first attempt", kind: JobKindRecordHit, attempt: 1, want: 5 * time.Second},
		{name: "record hit third attempt", kind: JobKindRecordHit, attempt: 3, want: 20 * time.Second},
		{name: "record hit capped", kind: JobKindRecordHit, attempt: 20, want: 5 * time.Minute},
		{name: "zero attempt treated as first", kind: JobKindRecordHit, attempt: 0, want: 5 * time.Second},
		{name: "unknown kind uses default", kind: "other", attempt: 2, want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := policy.NextRetry(&rivertype.JobRow{Kind: tt.kind, Attempt: tt.attempt, AttemptedAt: &now})
			require.Equal(t, tt.want, next.Sub(now))
		})
	}
}

func TestInsertOpts(t *testing.T) {
	policy := NewRetryPolicy(config.JobsConfig{RetryRecordHit: 3})

	opts := policy.InsertOpts(JobKindRecordHit)
	require.Equal(t, 3, opts.MaxAttempts)
	require.Equal(t, QueueStats, opts.Queue)

	other := policy.InsertOpts("other")
	require.Equal(t, DefaultMaxAttempts, other.MaxAttempts)
	require.Empty(t, other.Queue)
}

func TestNewClientConfig(t *testing.T) {
	cfg := NewClientConfig(config.JobsConfig{Workers: 6}, river.NewWorkers(), nil, nil)

	require.Equal(t, 6, cfg.Queues[river.QueueDefault].MaxWorkers)
	require.Equal(t, 3, cfg.Queues[QueueStats].MaxWorkers)
	require.Nil(t, cfg.ErrorHandler)

	single := NewClientConfig(config.JobsConfig{Workers: 1}, river.NewWorkers(), nil, nil)
	require.Equal(t, 1, single.Queues[QueueStats].MaxWorkers)
}
