package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/Togather-Foundation/gatherings/internal/config"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/stats"
)

// RecordHitArgs carries one public page view to the statistics service.
type RecordHitArgs struct {
	URI       string    `json:"uri"`
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

func (RecordHitArgs) Kind() string { return JobKindRecordHit }

// RecordHitWorker posts queued hits. Rejections other than 429 cancel the
// job since retrying the same payload cannot succeed.
type RecordHitWorker struct {
	river.WorkerDefaults[RecordHitArgs]
	Recorder events.HitRecorder
}

func (RecordHitWorker) Kind() string { return JobKindRecordHit }

func (w RecordHitWorker) Work(ctx context.Context, job *river.Job[RecordHitArgs]) error {
	if w.Recorder == nil {
		return fmt.Errorf("hit recorder not configured")
	}
	if job == nil {
		return fmt.Errorf("record hit job missing")
	}

	err := w.Recorder.RecordHit(ctx, events.Hit{
		URI:       job.Args.URI,
		IP:        job.Args.IP,
		Timestamp: job.Args.Timestamp,
	})
	if err == nil {
		return nil
	}
	if stats.IsRejected(err) {
		return river.JobCancel(err)
	}
	return err
}

func (RecordHitWorker) Timeout(*river.Job[RecordHitArgs]) time.Duration {
	return 30 * time.Second
}

// NewWorkers registers every worker the service runs.
func NewWorkers(recorder events.HitRecorder) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[RecordHitArgs](workers, RecordHitWorker{Recorder: recorder})
	return workers
}

// Inserter is the subset of the River client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// HitQueue records hits by enqueuing record_hit jobs, keeping the stats
// round-trip off the request path.
type HitQueue struct {
	inserter Inserter
	policy   *RetryPolicy
}

func NewHitQueue(inserter Inserter, cfg config.JobsConfig) *HitQueue {
	return &HitQueue{inserter: inserter, policy: NewRetryPolicy(cfg)}
}

func (q *HitQueue) RecordHit(ctx context.Context, hit events.Hit) error {
	_, err := q.inserter.Insert(ctx, RecordHitArgs{
		URI:       hit.URI,
		IP:        hit.IP,
		Timestamp: hit.Timestamp,
	}, q.policy.InsertOpts(JobKindRecordHit))
	if err != nil {
		return fmt.Errorf("enqueue hit: %w", err)
	}
	return nil
}
