package extract

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jidhr/internal/source"
	"jidhr/internal/store"
)

// BatchConfig tunes the batch runner.
type BatchConfig struct {
	// Workers bounds concurrent extractions within a chunk.
	Workers int

	// ChunkSize is how many tokens are dispatched between cancellation
	// checkpoints. RunBatch callers can override it per run.
	ChunkSize int
}

// DefaultBatchConfig returns the batch defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{Workers: 4, ChunkSize: 50}
}

// JobManager owns batch extraction jobs: it starts them, tracks them by id,
// and keeps finished jobs around for later progress queries.
type JobManager struct {
	cfg    BatchConfig
	orch   *Orchestrator
	tokens store.TokenStore
	log    *zap.Logger

	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewJobManager creates a job manager over the given orchestrator.
func NewJobManager(cfg BatchConfig, orch *Orchestrator, tokens store.TokenStore, log *zap.Logger) *JobManager {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultBatchConfig().Workers
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultBatchConfig().ChunkSize
	}
	return &JobManager{
		cfg:    cfg,
		orch:   orch,
		tokens: tokens,
		log:    log,
		jobs:   make(map[uuid.UUID]*Job),
	}
}

// Get returns the job with the given id.
func (m *JobManager) Get(id uuid.UUID) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// List returns all known jobs, newest first.
func (m *JobManager) List() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].startedAt.After(out[k].startedAt) })
	return out
}

// RunBatch starts an asynchronous extraction pass over every unresolved token
// in the range and returns its handle immediately. chunkSize <= 0 uses the
// configured default. Cancelling ctx or calling Job.Cancel stops the job at
// the next chunk boundary; per-word failures are counted and skipped, never
// fatal.
func (m *JobManager) RunBatch(ctx context.Context, rng store.CorpusRange, chunkSize int) (*Job, error) {
	if chunkSize <= 0 {
		chunkSize = m.cfg.ChunkSize
	}

	tokens, err := m.tokens.ListTokens(ctx, rng)
	if err != nil {
		return nil, err
	}
	pending := tokens[:0]
	for _, tok := range tokens {
		if tok.Root == "" {
			pending = append(pending, tok)
		}
	}

	job := newJob()
	job.total.Store(int64(len(pending)))

	jobCtx, cancel := context.WithCancel(ctx)
	job.cancel = cancel

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(jobCtx, job, pending, chunkSize)
	return job, nil
}

func (m *JobManager) run(ctx context.Context, job *Job, pending []*store.Token, chunkSize int) {
	defer job.cancel()

	job.setPhase(PhaseRunning)
	m.log.Info("batch started",
		zap.String("job", job.ID.String()),
		zap.Int("pending", len(pending)),
		zap.Int("chunk_size", chunkSize))

	for start := 0; start < len(pending); start += chunkSize {
		if ctx.Err() != nil {
			break
		}
		end := start + chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		m.runChunk(ctx, job, pending[start:end])
	}

	// Any dead context means the range was not fully covered, so the job
	// must not settle as done. A deadline is a failure, not a cancellation.
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		m.log.Info("batch cancelled", zap.String("job", job.ID.String()),
			zap.Int64("processed", job.processed.Load()))
		job.finish(PhaseCancelled, err)
		return
	case err != nil:
		m.log.Warn("batch aborted", zap.String("job", job.ID.String()),
			zap.Int64("processed", job.processed.Load()), zap.Error(err))
		job.finish(PhaseFailed, err)
		return
	}
	m.log.Info("batch finished", zap.String("job", job.ID.String()),
		zap.Int64("resolved", job.resolved.Load()),
		zap.Int64("failed", job.failed.Load()))
	job.finish(PhaseDone, nil)
}

// runChunk fans one chunk out over the worker pool and waits for it to
// drain. Worker errors are folded into the failure counter so one bad word
// cannot sink the batch.
func (m *JobManager) runChunk(ctx context.Context, job *Job, chunk []*store.Token) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for _, tok := range chunk {
		tok := tok
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			loc := &source.Location{Sura: tok.Sura, Aya: tok.Aya, Position: tok.Position}
			out, err := m.orch.ExtractRoot(ctx, tok.TextAr, loc)
			job.processed.Add(1)
			switch {
			case err != nil:
				job.failed.Add(1)
				m.log.Warn("extraction failed",
					zap.String("job", job.ID.String()),
					zap.String("word", tok.TextAr),
					zap.String("loc", loc.Key()),
					zap.Error(err))
			case out.Resolved:
				job.resolved.Add(1)
			default:
				job.failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
}
