// Package resolve reclassifies extracted tokens after a batch run: it
// re-weighs every token's recorded source opinions and settles each one into
// verified, discrepancy, or manual review.
package resolve

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"jidhr/internal/arabic"
	"jidhr/internal/store"
)

// Config tunes the resolution pass.
type Config struct {
	// SourceWeights maps adapter names to their trust weight. Unknown
	// adapters fall back to DefaultWeight.
	SourceWeights map[string]float64 `yaml:"source_weights"`
	DefaultWeight float64            `yaml:"default_weight"`

	// VerifyThreshold is the weighted-majority ratio at or above which a
	// token is verified; ReviewThreshold is the ratio below which it goes
	// to manual review. Ratios in between mark a discrepancy.
	VerifyThreshold float64 `yaml:"verify_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold"`

	// MinAgreeingSources is the agreement count at which unanimous sources
	// verify a token outright, before the ratio thresholds are consulted.
	MinAgreeingSources int `yaml:"min_agreeing_sources"`
}

// DefaultConfig returns the resolution defaults.
func DefaultConfig() Config {
	return Config{
		SourceWeights: map[string]float64{
			"offline_corpus_cache": 10,
			"qurancorpus":          10,
			"almaany":              5,
			"baheth":               5,
			"alkhalil":             3,
			"stemmer":              3,
		},
		DefaultWeight:      1,
		VerifyThreshold:    0.8,
		ReviewThreshold:    0.5,
		MinAgreeingSources: 2,
	}
}

func (c Config) weight(name string) float64 {
	if w, ok := c.SourceWeights[name]; ok {
		return w
	}
	return c.DefaultWeight
}

// Summary reports what one resolution pass did.
type Summary struct {
	Examined     int `json:"examined"`
	Verified     int `json:"verified"`
	Discrepancy  int `json:"discrepancy"`
	ManualReview int `json:"manual_review"`
	Missing      int `json:"missing"`
	Rewritten    int `json:"rewritten"`
}

// Resolver runs the classification pass. The pass is idempotent: running it
// twice over the same data produces the same statuses and counts.
type Resolver struct {
	cfg    Config
	tokens store.TokenStore
	log    *zap.Logger
}

// New creates a resolver.
func New(cfg Config, tokens store.TokenStore, log *zap.Logger) *Resolver {
	return &Resolver{cfg: cfg, tokens: tokens, log: log}
}

// Run examines every token in the range and settles its status from the
// weighted majority of its recorded sources. Tokens whose majority root
// differs from the stored root are rewritten to the majority root.
func (r *Resolver) Run(ctx context.Context, rng store.CorpusRange) (*Summary, error) {
	tokens, err := r.tokens.ListTokens(ctx, rng)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sum.Examined++
		if err := r.settle(ctx, tok, sum); err != nil {
			return nil, err
		}
	}

	r.log.Info("resolution pass finished",
		zap.Int("examined", sum.Examined),
		zap.Int("verified", sum.Verified),
		zap.Int("discrepancy", sum.Discrepancy),
		zap.Int("manual_review", sum.ManualReview),
		zap.Int("missing", sum.Missing))
	return sum, nil
}

func (r *Resolver) settle(ctx context.Context, tok *store.Token, sum *Summary) error {
	if len(tok.RootSources) == 0 {
		if tok.Root == "" {
			sum.Missing++
			return r.write(ctx, tok, "", store.StatusMissing, 0, sum)
		}
		// A root with no recorded opinions was assigned by hand; leave it.
		sum.Verified++
		return nil
	}

	majority, ratio := r.majority(tok.RootSources)

	var st store.Status
	switch {
	case ratio == 1 && len(tok.RootSources) >= r.cfg.MinAgreeingSources:
		st = store.StatusVerified
		sum.Verified++
	case ratio >= r.cfg.VerifyThreshold:
		st = store.StatusVerified
		sum.Verified++
	case ratio < r.cfg.ReviewThreshold:
		st = store.StatusManualReview
		sum.ManualReview++
	default:
		st = store.StatusDiscrepancy
		sum.Discrepancy++
	}
	return r.write(ctx, tok, majority, st, ratio, sum)
}

// majority returns the root with the highest weighted score and its share of
// the total weight. Ties break toward the lexicographically smaller root so
// repeated passes pick the same winner.
func (r *Resolver) majority(sources map[string]string) (string, float64) {
	scores := map[string]float64{}
	total := 0.0
	for name, root := range sources {
		w := r.cfg.weight(name)
		scores[root] += w
		total += w
	}

	roots := make([]string, 0, len(scores))
	for root := range scores {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	best, bestScore := "", -1.0
	for _, root := range roots {
		if scores[root] > bestScore {
			best, bestScore = root, scores[root]
		}
	}
	return best, bestScore / total
}

// write persists the settled state, skipping tokens that already carry it.
func (r *Resolver) write(ctx context.Context, tok *store.Token, root string, st store.Status, confidence float64, sum *Summary) error {
	if tok.Root == root && tok.Status == st && tok.Confidence == confidence {
		return nil
	}
	if root != "" && root != tok.Root {
		sum.Rewritten++
		r.log.Debug("majority root differs from stored root",
			zap.String("stored", tok.Root),
			zap.String("majority", root),
			zap.Int("sura", tok.Sura), zap.Int("aya", tok.Aya), zap.Int("position", tok.Position))
	}
	pattern := tok.Pattern
	if root != "" && root != tok.Root {
		pattern = arabic.Pattern(tok.TextAr, root)
	}
	err := r.tokens.ApplyExtraction(ctx, tok.ID, root, tok.RootSources, st, confidence, pattern)
	if errors.Is(err, store.ErrWriteConflict) {
		return r.tokens.ApplyExtraction(ctx, tok.ID, root, tok.RootSources, st, confidence, pattern)
	}
	return err
}
