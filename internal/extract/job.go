package extract

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle state of a batch job.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhaseDone      Phase = "done"
	PhaseCancelled Phase = "cancelled"
	PhaseFailed    Phase = "failed"
)

// Progress is a point-in-time snapshot of a job, safe to read while the job
// is running.
type Progress struct {
	Total     int64     `json:"total"`
	Processed int64     `json:"processed"`
	Resolved  int64     `json:"resolved"`
	Failed    int64     `json:"failed"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}

// Job is a handle on one running or finished batch extraction.
type Job struct {
	ID        uuid.UUID
	startedAt time.Time

	total     atomic.Int64
	processed atomic.Int64
	resolved  atomic.Int64
	failed    atomic.Int64

	mu    sync.Mutex
	phase Phase
	err   error

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob() *Job {
	return &Job{
		ID:        uuid.New(),
		startedAt: time.Now(),
		phase:     PhasePending,
		done:      make(chan struct{}),
	}
}

// Progress returns a snapshot of the job's counters and phase.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	phase, err := j.phase, j.err
	j.mu.Unlock()

	p := Progress{
		Total:     j.total.Load(),
		Processed: j.processed.Load(),
		Resolved:  j.resolved.Load(),
		Failed:    j.failed.Load(),
		Phase:     phase,
		StartedAt: j.startedAt,
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// Cancel requests the job stop. Already-completed work is kept; the job
// settles into PhaseCancelled once in-flight words drain.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job reaches a terminal phase.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx expires, returning the job's
// terminal error if any.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-j.done:
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) setPhase(p Phase) {
	j.mu.Lock()
	j.phase = p
	j.mu.Unlock()
}

func (j *Job) finish(p Phase, err error) {
	j.mu.Lock()
	j.phase = p
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
