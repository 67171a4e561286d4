package extract

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"jidhr/internal/consensus"
	"jidhr/internal/source"
	"jidhr/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	name  string
	kind  source.Kind
	root  string
	fail  bool
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeSource) Name() string      { return f.name }
func (f *fakeSource) Kind() source.Kind { return f.kind }

func (f *fakeSource) Fetch(ctx context.Context, word string, loc *source.Location) source.Observation {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return source.Observation{Source: f.name, Kind: f.kind, Word: word, Err: ctx.Err().Error()}
		}
	}
	if f.fail {
		return source.Observation{Source: f.name, Kind: f.kind, Word: word, Err: "lookup failed"}
	}
	return source.Observation{Source: f.name, Kind: f.kind, Word: word, Root: f.root, Success: true}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrchestrator(s *store.Store, offline source.Source, network, local []source.Source) *Orchestrator {
	cfg := Config{
		Consensus:       consensus.DefaultConfig(),
		Tier2Timeout:    time.Second,
		PersistOutcomes: true,
	}
	return New(cfg, offline, network, local, s, s, zap.NewNop())
}

func seedToken(t *testing.T, s *store.Store, sura, aya, pos int, text string) *store.Token {
	t.Helper()
	tok := &store.Token{Sura: sura, Aya: aya, Position: pos, TextAr: text, Normalized: text}
	require.NoError(t, s.InsertToken(context.Background(), tok))
	return tok
}

func TestOfflineHitSkipsNetwork(t *testing.T) {
	s := testStore(t)
	seedToken(t, s, 1, 1, 0, "بسم")

	offline := &fakeSource{name: "offline", kind: source.KindOffline, root: "سمو"}
	network := &fakeSource{name: "qurancorpus", kind: source.KindReference, root: "سمو"}
	o := testOrchestrator(s, offline, []source.Source{network}, nil)

	loc := &source.Location{Sura: 1, Aya: 1, Position: 0}
	out, err := o.ExtractRoot(context.Background(), "بِسْمِ", loc)
	require.NoError(t, err)

	assert.True(t, out.Resolved)
	assert.Equal(t, "سمو", out.Root)
	assert.Equal(t, 1.0, out.Confidence)
	assert.Equal(t, MethodOffline, out.Method)
	assert.Zero(t, network.calls.Load(), "network must not be consulted after an offline hit")

	tok, err := s.GetTokenAt(context.Background(), 1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "سمو", tok.Root)
	assert.Equal(t, store.StatusVerified, tok.Status)
}

func TestCacheHitSkipsAllSources(t *testing.T) {
	s := testStore(t)
	offline := &fakeSource{name: "offline", kind: source.KindOffline, root: "سمو"}
	o := testOrchestrator(s, offline, nil, nil)

	loc := &source.Location{Sura: 1, Aya: 1, Position: 0}
	_, err := o.ExtractRoot(context.Background(), "بسم", loc)
	require.NoError(t, err)
	require.Equal(t, int32(1), offline.calls.Load())

	out, err := o.ExtractRoot(context.Background(), "بسم", loc)
	require.NoError(t, err)
	assert.Equal(t, MethodCache, out.Method)
	assert.Equal(t, "سمو", out.Root)
	assert.Equal(t, int32(1), offline.calls.Load(), "repeat extraction must not re-fetch")
}

func TestNetworkConsensus(t *testing.T) {
	s := testStore(t)
	seedToken(t, s, 2, 1, 0, "كتاب")

	corpus := &fakeSource{name: "qurancorpus", kind: source.KindReference, root: "كتب"}
	dict := &fakeSource{name: "almaany", kind: source.KindDictionary, root: "كتب"}
	down := &fakeSource{name: "baheth", kind: source.KindDictionary, fail: true}
	o := testOrchestrator(s, nil, []source.Source{corpus, dict, down}, nil)

	loc := &source.Location{Sura: 2, Aya: 1, Position: 0}
	out, err := o.ExtractRoot(context.Background(), "كتاب", loc)
	require.NoError(t, err)

	assert.True(t, out.Resolved)
	assert.Equal(t, "كتب", out.Root)
	assert.Equal(t, MethodNetwork, out.Method)
	assert.Equal(t, 2, out.AgreementCount)
	assert.Equal(t, 2, out.TotalSources)
	assert.Contains(t, out.Failures, "baheth")

	tok, err := s.GetTokenAt(context.Background(), 2, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "كتب", tok.Root)
	assert.Equal(t, "فعال", tok.Pattern)
}

func TestAlgorithmicFallback(t *testing.T) {
	s := testStore(t)
	down := &fakeSource{name: "qurancorpus", kind: source.KindReference, fail: true}
	local := &fakeSource{name: "alkhalil", kind: source.KindAlgorithmic, root: "كتب"}
	o := testOrchestrator(s, nil, []source.Source{down}, []source.Source{local})

	out, err := o.ExtractRoot(context.Background(), "كتاب", nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved)
	assert.Equal(t, MethodAlgorithmic, out.Method)
	assert.Equal(t, "كتب", out.Root)
	assert.Equal(t, int32(1), local.calls.Load())
}

func TestFallbackKeepsNetworkFailures(t *testing.T) {
	s := testStore(t)
	down := &fakeSource{name: "qurancorpus", kind: source.KindReference, fail: true}
	local := &fakeSource{name: "alkhalil", kind: source.KindAlgorithmic, root: "كتب"}
	o := testOrchestrator(s, nil, []source.Source{down}, []source.Source{local})

	out, err := o.ExtractRoot(context.Background(), "كتاب", nil)
	require.NoError(t, err)
	require.True(t, out.Resolved)
	assert.Equal(t, MethodAlgorithmic, out.Method)
	assert.Contains(t, out.Failures, "qurancorpus",
		"network failures survive the algorithmic fallback")

	brokenLocal := &fakeSource{name: "alkhalil", kind: source.KindAlgorithmic, fail: true}
	o = testOrchestrator(s, nil, []source.Source{down}, []source.Source{brokenLocal})
	out, err = o.ExtractRoot(context.Background(), "قمر", nil)
	require.NoError(t, err)
	require.False(t, out.Resolved)
	assert.Contains(t, out.Failures, "qurancorpus")
	assert.Contains(t, out.Failures, "alkhalil")
}

func TestUnresolvedIsNotAnError(t *testing.T) {
	s := testStore(t)
	down := &fakeSource{name: "qurancorpus", kind: source.KindReference, fail: true}
	o := testOrchestrator(s, nil, []source.Source{down}, nil)

	out, err := o.ExtractRoot(context.Background(), "كتاب", nil)
	require.NoError(t, err)
	assert.False(t, out.Resolved)
	assert.Equal(t, MethodNone, out.Method)
	assert.Empty(t, out.Root)
}

func TestSlowAdapterIsBoundedByTierTimeout(t *testing.T) {
	s := testStore(t)
	slow := &fakeSource{name: "baheth", kind: source.KindDictionary, root: "كتب", delay: 5 * time.Second}
	fast := &fakeSource{name: "qurancorpus", kind: source.KindReference, root: "كتب"}
	o := testOrchestrator(s, nil, []source.Source{slow, fast}, nil)
	o.cfg.Tier2Timeout = 50 * time.Millisecond

	start := time.Now()
	out, err := o.ExtractRoot(context.Background(), "كتاب", nil)
	require.NoError(t, err)

	assert.True(t, out.Resolved, "fast source alone carries the verdict")
	assert.Equal(t, "كتب", out.Root)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunBatchResolvesPendingTokens(t *testing.T) {
	s := testStore(t)
	seedToken(t, s, 1, 1, 0, "بسم")
	seedToken(t, s, 1, 1, 1, "الله")
	resolved := seedToken(t, s, 1, 1, 2, "الرحمن")
	require.NoError(t, s.ApplyExtraction(context.Background(), resolved.ID, "رحم", nil, store.StatusVerified, 1.0, ""))

	offline := &fakeSource{name: "offline", kind: source.KindOffline, root: "سمو"}
	o := testOrchestrator(s, offline, nil, nil)
	m := NewJobManager(DefaultBatchConfig(), o, s, zap.NewNop())

	job, err := m.RunBatch(context.Background(), store.CorpusRange{}, 10)
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	p := job.Progress()
	assert.Equal(t, PhaseDone, p.Phase)
	assert.Equal(t, int64(2), p.Total, "already-resolved tokens are skipped")
	assert.Equal(t, int64(2), p.Processed)
	assert.Equal(t, int64(2), p.Resolved)
	assert.Zero(t, p.Failed)

	got, ok := m.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
}

func TestRunBatchCountsFailuresAndContinues(t *testing.T) {
	s := testStore(t)
	seedToken(t, s, 1, 1, 0, "بسم")
	seedToken(t, s, 1, 1, 1, "الله")

	down := &fakeSource{name: "qurancorpus", kind: source.KindReference, fail: true}
	o := testOrchestrator(s, nil, []source.Source{down}, nil)
	m := NewJobManager(DefaultBatchConfig(), o, s, zap.NewNop())

	job, err := m.RunBatch(context.Background(), store.CorpusRange{}, 1)
	require.NoError(t, err)
	require.NoError(t, job.Wait(context.Background()))

	p := job.Progress()
	assert.Equal(t, PhaseDone, p.Phase)
	assert.Equal(t, int64(2), p.Processed)
	assert.Equal(t, int64(2), p.Failed)
	assert.Zero(t, p.Resolved)
}

func TestRunBatchCancel(t *testing.T) {
	s := testStore(t)
	for i := 0; i < 20; i++ {
		seedToken(t, s, 1, 1, i, "كتاب")
	}

	slow := &fakeSource{name: "qurancorpus", kind: source.KindReference, root: "كتب", delay: 20 * time.Millisecond}
	o := testOrchestrator(s, nil, []source.Source{slow}, nil)
	m := NewJobManager(BatchConfig{Workers: 1, ChunkSize: 1}, o, s, zap.NewNop())

	job, err := m.RunBatch(context.Background(), store.CorpusRange{}, 1)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	job.Cancel()
	err = job.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)

	p := job.Progress()
	assert.Equal(t, PhaseCancelled, p.Phase)
	assert.Less(t, p.Processed, p.Total, "cancellation stops before the batch drains")
}

func TestRunBatchDeadlineDoesNotSettleDone(t *testing.T) {
	s := testStore(t)
	for i := 0; i < 20; i++ {
		seedToken(t, s, 1, 1, i, "كتاب")
	}

	slow := &fakeSource{name: "qurancorpus", kind: source.KindReference, root: "كتب", delay: 20 * time.Millisecond}
	o := testOrchestrator(s, nil, []source.Source{slow}, nil)
	m := NewJobManager(BatchConfig{Workers: 1, ChunkSize: 1}, o, s, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	job, err := m.RunBatch(ctx, store.CorpusRange{}, 1)
	require.NoError(t, err)

	err = job.Wait(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p := job.Progress()
	assert.Equal(t, PhaseFailed, p.Phase, "a job cut off by its deadline is not done")
	assert.Less(t, p.Processed, p.Total)
}

func TestJobListNewestFirst(t *testing.T) {
	s := testStore(t)
	o := testOrchestrator(s, nil, nil, nil)
	m := NewJobManager(DefaultBatchConfig(), o, s, zap.NewNop())

	a, err := m.RunBatch(context.Background(), store.CorpusRange{}, 0)
	require.NoError(t, err)
	require.NoError(t, a.Wait(context.Background()))

	b, err := m.RunBatch(context.Background(), store.CorpusRange{}, 0)
	require.NoError(t, err)
	require.NoError(t, b.Wait(context.Background()))

	jobs := m.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, b.ID, jobs[0].ID)
}

func TestWaitHonoursContext(t *testing.T) {
	j := newJob()
	j.cancel = func() {}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := j.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	close(j.done)
}
