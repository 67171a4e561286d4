// Package index materializes the root-to-token reverse index: per-root
// membership blobs, bounded per-token reference samples, and the
// related-roots graph.
package index

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"jidhr/internal/arabic"
	"jidhr/internal/store"
)

// Config tunes the indexer.
type Config struct {
	// CompressThreshold is the member count above which a root's
	// membership blob is xz-compressed.
	CompressThreshold int `yaml:"compress_threshold"`

	// MaxRefs caps the per-token sibling sample. High-frequency roots
	// would otherwise attach thousands of ids to every token row.
	MaxRefs int `yaml:"max_refs"`

	// RelatedDistance is the maximum edit distance for two roots to be
	// considered related.
	RelatedDistance int `yaml:"related_distance"`
}

// DefaultConfig returns the indexing defaults.
func DefaultConfig() Config {
	return Config{CompressThreshold: 400, MaxRefs: 100, RelatedDistance: 1}
}

// Summary reports what one rebuild did.
type Summary struct {
	RootsUpdated    int `json:"roots_updated"`
	TokensReindexed int `json:"tokens_reindexed"`
}

// Indexer rebuilds the reverse index from the token table. A rebuild is a
// full recomputation, so it is safe to run at any time and repeat runs
// converge on the same state.
type Indexer struct {
	cfg    Config
	tokens store.TokenStore
	roots  store.RootStore
	log    *zap.Logger
}

// New creates an indexer.
func New(cfg Config, tokens store.TokenStore, roots store.RootStore, log *zap.Logger) *Indexer {
	if cfg.CompressThreshold <= 0 {
		cfg.CompressThreshold = DefaultConfig().CompressThreshold
	}
	if cfg.MaxRefs <= 0 {
		cfg.MaxRefs = DefaultConfig().MaxRefs
	}
	return &Indexer{cfg: cfg, tokens: tokens, roots: roots, log: log}
}

// Run rewrites the membership blob, authoritative count, and per-token
// samples of every root that has a token in the range, then clears roots
// whose last token has moved away, and recomputes the related-roots graph.
// Membership is always corpus-wide: a ranged run picks which roots to
// rebuild, never how much of each root's membership to keep.
func (ix *Indexer) Run(ctx context.Context, rng store.CorpusRange) (*Summary, error) {
	tokens, err := ix.tokens.ListTokens(ctx, rng)
	if err != nil {
		return nil, err
	}

	touched := map[string]bool{}
	for _, tok := range tokens {
		if tok.Root != "" {
			touched[tok.Root] = true
		}
	}

	rootList := make([]string, 0, len(touched))
	for root := range touched {
		rootList = append(rootList, root)
	}
	sort.Strings(rootList)

	sum := &Summary{}
	for _, root := range rootList {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// FindByRoot returns corpus order, so the id list is already
		// sorted by occurrence.
		members, err := ix.tokens.FindByRoot(ctx, root)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(members))
		for _, tok := range members {
			ids = append(ids, tok.ID)
		}

		data, codec, err := encodeMembers(ids, ix.cfg.CompressThreshold)
		if err != nil {
			return nil, err
		}
		if _, err := ix.roots.GetOrCreateRoot(ctx, root); err != nil {
			return nil, err
		}
		if err := ix.roots.SetRootMembers(ctx, root, len(ids), data, codec); err != nil {
			return nil, err
		}
		sum.RootsUpdated++

		for _, id := range ids {
			refs := sampleRefs(ids, id, ix.cfg.MaxRefs)
			if err := ix.tokens.SetTokenRefs(ctx, id, refs); err != nil {
				return nil, err
			}
			sum.TokensReindexed++
		}
	}

	if err := ix.sweepEmptied(ctx, touched, sum); err != nil {
		return nil, err
	}
	if err := ix.relate(ctx, rootList); err != nil {
		return nil, err
	}

	ix.log.Info("index rebuilt",
		zap.Int("roots", sum.RootsUpdated),
		zap.Int("tokens", sum.TokensReindexed))
	return sum, nil
}

// sweepEmptied clears the stored membership and count of roots that no
// longer own any tokens. A correction that moves a root's last occurrence
// elsewhere must not leave the old membership served as current.
func (ix *Indexer) sweepEmptied(ctx context.Context, touched map[string]bool, sum *Summary) error {
	roots, err := ix.roots.ListRoots(ctx)
	if err != nil {
		return err
	}
	for _, r := range roots {
		if touched[r.Root] {
			continue
		}
		if r.TokenCount == 0 && len(r.Members) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining, err := ix.tokens.FindByRoot(ctx, r.Root)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			continue
		}
		if err := ix.roots.SetRootMembers(ctx, r.Root, 0, nil, CodecJSON); err != nil {
			return err
		}
		sum.RootsUpdated++
	}
	return nil
}

// relate links every pair of roots within the configured edit distance.
func (ix *Indexer) relate(ctx context.Context, roots []string) error {
	if ix.cfg.RelatedDistance <= 0 {
		return nil
	}
	for _, a := range roots {
		if err := ctx.Err(); err != nil {
			return err
		}
		var related []string
		for _, b := range roots {
			if a == b {
				continue
			}
			if arabic.Levenshtein(a, b) <= ix.cfg.RelatedDistance {
				related = append(related, b)
			}
		}
		if err := ix.roots.SetRelatedRoots(ctx, a, related); err != nil {
			return err
		}
	}
	return nil
}

// sampleRefs returns up to max sibling ids for one token, excluding the
// token itself. Oversized groups are sampled at an even stride so the
// selection stays deterministic and spans the whole corpus.
func sampleRefs(ids []int64, self int64, max int) []int64 {
	siblings := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != self {
			siblings = append(siblings, id)
		}
	}
	if len(siblings) <= max {
		return siblings
	}

	out := make([]int64, 0, max)
	stride := float64(len(siblings)) / float64(max)
	for i := 0; i < max; i++ {
		out = append(out, siblings[int(float64(i)*stride)])
	}
	return out
}
