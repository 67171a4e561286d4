// Package extract drives root extraction: the tiered per-word orchestrator
// and the bounded worker pool that runs it across the corpus as a
// cancellable batch job.
package extract

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"jidhr/internal/arabic"
	"jidhr/internal/consensus"
	"jidhr/internal/source"
	"jidhr/internal/store"
)

// Method records which tier produced an outcome.
type Method string

const (
	MethodCache       Method = "cache"
	MethodOffline     Method = "offline"
	MethodNetwork     Method = "network"
	MethodAlgorithmic Method = "algorithmic"
	MethodNone        Method = "none"
)

// Outcome is the per-word extraction result. Resolved=false means no source
// produced anything usable, which is distinct from a resolved root with low
// confidence; an unresolved outcome never writes a root.
type Outcome struct {
	Word           string            `json:"word"`
	Resolved       bool              `json:"resolved"`
	Root           string            `json:"root,omitempty"`
	Confidence     float64           `json:"confidence"`
	Sources        map[string]string `json:"sources,omitempty"`
	Failures       map[string]string `json:"failures,omitempty"`
	AgreementCount int               `json:"agreement_count"`
	TotalSources   int               `json:"total_sources"`
	Method         Method            `json:"method"`
}

// Config tunes the orchestrator.
type Config struct {
	Consensus consensus.Config

	// Tier2Timeout bounds the whole network fan-out for one word.
	Tier2Timeout time.Duration

	// PersistOutcomes controls whether resolved roots are written to the
	// token and cache stores. Disabled for dry runs.
	PersistOutcomes bool
}

// Orchestrator consults adapters tier by tier and folds their observations
// through the consensus engine. Cheap authoritative tiers are never skipped;
// expensive tiers are never consulted once a cheaper one has answered.
type Orchestrator struct {
	cfg     Config
	offline source.Source
	network []source.Source
	local   []source.Source
	tokens  store.TokenStore
	cache   store.CacheStore
	log     *zap.Logger
}

// New creates an orchestrator. offline may be nil when no snapshot is
// configured; network and local hold the enabled adapters in priority order.
func New(cfg Config, offline source.Source, network, local []source.Source,
	tokens store.TokenStore, cache store.CacheStore, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		offline: offline,
		network: network,
		local:   local,
		tokens:  tokens,
		cache:   cache,
		log:     log,
	}
}

// ExtractRoot resolves the root for one word. The word is normalized first;
// loc is optional and unlocks the location-keyed tiers. The call is
// synchronous but fans out internally.
func (o *Orchestrator) ExtractRoot(ctx context.Context, word string, loc *source.Location) (*Outcome, error) {
	normalized := arabic.Normalize(word)
	if normalized == "" {
		return &Outcome{Word: word, Method: MethodNone}, nil
	}

	// Tier 0: persisted consensus cache. Zero source calls on repeat runs.
	locKey := ""
	if loc != nil {
		locKey = loc.Key()
	}
	if entry, ok, err := o.cache.GetCached(ctx, normalized, locKey); err != nil {
		o.log.Warn("cache lookup failed", zap.String("word", normalized), zap.Error(err))
	} else if ok {
		out := &Outcome{
			Word: normalized, Resolved: true, Root: entry.Root,
			Confidence: entry.Confidence, Sources: entry.Sources,
			AgreementCount: len(entry.Sources), TotalSources: len(entry.Sources),
			Method: MethodCache,
		}
		return out, o.persist(ctx, out, loc, false)
	}

	// Tier 1: offline snapshot, only when the coordinate is known.
	if o.offline != nil && loc != nil {
		obs := o.offline.Fetch(ctx, normalized, loc)
		if obs.Success {
			out := &Outcome{
				Word: normalized, Resolved: true, Root: obs.Root, Confidence: 1.0,
				Sources:        map[string]string{obs.Source: obs.Root},
				AgreementCount: 1, TotalSources: 1,
				Method: MethodOffline,
			}
			return out, o.persist(ctx, out, loc, true)
		}
	}

	// Tier 2: parallel fan-out to the live sources.
	obsList := o.fanOut(ctx, normalized, loc)
	if out := o.fold(normalized, obsList, MethodNetwork); out != nil {
		return out, o.persist(ctx, out, loc, true)
	}

	// Tier 3: algorithmic fallback, consulted only when everything above
	// came back empty. The network failures stay in obsList so the
	// disagreement record keeps them.
	for _, src := range o.local {
		obsList = append(obsList, src.Fetch(ctx, normalized, loc))
	}
	if out := o.fold(normalized, obsList, MethodAlgorithmic); out != nil {
		return out, o.persist(ctx, out, loc, true)
	}

	// Terminal failure for this attempt: the word stays unresolved and
	// nothing is written.
	out := &Outcome{Word: normalized, Method: MethodNone, Failures: failures(obsList)}
	o.log.Debug("word unresolved", zap.String("word", normalized))
	return out, nil
}

// fanOut queries every network adapter concurrently, bounded by the tier-2
// timeout, and returns all observations, failures included, so the
// disagreement record stays complete. A slow adapter times out alone; it
// does not fail the word.
func (o *Orchestrator) fanOut(ctx context.Context, word string, loc *source.Location) []source.Observation {
	if len(o.network) == 0 {
		return nil
	}
	tierCtx := ctx
	if o.cfg.Tier2Timeout > 0 {
		var cancel context.CancelFunc
		tierCtx, cancel = context.WithTimeout(ctx, o.cfg.Tier2Timeout)
		defer cancel()
	}

	obsList := make([]source.Observation, len(o.network))
	var wg sync.WaitGroup
	for i, src := range o.network {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()
			obsList[i] = src.Fetch(tierCtx, word, loc)
		}(i, src)
	}
	wg.Wait()
	return obsList
}

// fold runs consensus over a tier's observations. nil means the tier
// produced no successful observation at all.
func (o *Orchestrator) fold(word string, obsList []source.Observation, method Method) *Outcome {
	verdict, err := consensus.Resolve(o.cfg.Consensus, obsList)
	if errors.Is(err, consensus.ErrNoSources) {
		return nil
	}
	return &Outcome{
		Word:           word,
		Resolved:       true,
		Root:           verdict.Root,
		Confidence:     verdict.Confidence,
		Sources:        verdict.Sources,
		Failures:       failures(obsList),
		AgreementCount: verdict.AgreementCount,
		TotalSources:   verdict.TotalSources,
		Method:         method,
	}
}

func failures(obsList []source.Observation) map[string]string {
	var out map[string]string
	for _, obs := range obsList {
		if obs.Success {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[obs.Source] = obs.Err
	}
	return out
}

// persist writes a resolved outcome: the consensus cache entry and, when the
// token exists at the given coordinate, the token row itself. Token root,
// sources, status, and confidence go through ApplyExtraction as one atomic
// unit; a write conflict is retried once with a fresh read.
func (o *Orchestrator) persist(ctx context.Context, out *Outcome, loc *source.Location, cacheToo bool) error {
	if !o.cfg.PersistOutcomes || !out.Resolved {
		return nil
	}

	if cacheToo {
		entry := &store.CacheEntry{
			Word: out.Word, Root: out.Root,
			Sources: out.Sources, Confidence: out.Confidence,
		}
		if loc != nil {
			entry.LocKey = loc.Key()
		}
		if err := o.cache.PutCached(ctx, entry); err != nil {
			o.log.Warn("cache write failed", zap.String("word", out.Word), zap.Error(err))
		}
	}

	if loc == nil {
		return nil
	}
	tok, err := o.tokens.GetTokenAt(ctx, loc.Sura, loc.Aya, loc.Position)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pattern := arabic.Pattern(tok.TextAr, out.Root)
	apply := func() error {
		return o.tokens.ApplyExtraction(ctx, tok.ID, out.Root, out.Sources,
			store.StatusVerified, out.Confidence, pattern)
	}
	if err := apply(); err != nil {
		if !errors.Is(err, store.ErrWriteConflict) {
			return err
		}
		return apply()
	}
	return nil
}
