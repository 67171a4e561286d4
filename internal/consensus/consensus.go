// Package consensus folds per-source root observations for one word into a
// single trust-weighted verdict: the winning root, a confidence score, and
// the full disagreement record kept for audit and later re-reconciliation.
package consensus

import (
	"errors"
	"sort"
	"unicode/utf8"

	"jidhr/internal/source"
)

// ErrNoSources is returned when not a single observation succeeded. The word
// stays unresolved; callers must not write any root.
var ErrNoSources = errors.New("no sources succeeded")

// Weights holds the static trust weight per adapter tier. Higher weight wins;
// the exact numbers are policy, not structure.
type Weights struct {
	Offline     float64 `yaml:"offline"`
	Reference   float64 `yaml:"reference"`
	Dictionary  float64 `yaml:"dictionary"`
	Algorithmic float64 `yaml:"algorithmic"`
}

// For returns the weight for an adapter kind.
func (w Weights) For(k source.Kind) float64 {
	switch k {
	case source.KindOffline:
		return w.Offline
	case source.KindReference:
		return w.Reference
	case source.KindDictionary:
		return w.Dictionary
	case source.KindAlgorithmic:
		return w.Algorithmic
	default:
		return 1
	}
}

// Config holds the consensus policy constants.
type Config struct {
	Weights Weights `yaml:"weights"`

	// TopTierFloor is the minimum confidence when the winning group
	// contains an offline or reference observation: an exact match from
	// the authoritative tier is never outvoted down by low-trust guesses.
	TopTierFloor float64 `yaml:"top_tier_floor"`

	// PairBoost and CrowdBoost are optional additive bumps when two,
	// respectively three or more, sources agree on the winner. Zero
	// disables them and confidence stays the plain weight ratio.
	PairBoost  float64 `yaml:"pair_boost"`
	CrowdBoost float64 `yaml:"crowd_boost"`
}

// DefaultConfig returns the production policy: offline/reference 10,
// dictionary 5, algorithmic 3, floor 0.95, boosts disabled.
func DefaultConfig() Config {
	return Config{
		Weights:      Weights{Offline: 10, Reference: 10, Dictionary: 5, Algorithmic: 3},
		TopTierFloor: 0.95,
	}
}

// Verdict is the consensus outcome for one word. Sources retains every
// successful observation, not just the winners.
type Verdict struct {
	Root           string            `json:"root"`
	Confidence     float64           `json:"confidence"`
	Sources        map[string]string `json:"sources"`
	AgreementCount int               `json:"agreement_count"`
	TotalSources   int               `json:"total_sources"`
}

// group accumulates the observations that voted for one root.
type group struct {
	root      string
	score     float64
	count     int
	maxWeight float64
	bestKind  source.Kind
	topTier   bool
}

// Resolve computes the weighted consensus over the observations for one
// word. Unsuccessful observations are ignored for scoring but do not fail
// the call; ErrNoSources is returned only when nothing succeeded.
func Resolve(cfg Config, observations []source.Observation) (*Verdict, error) {
	groups := map[string]*group{}
	sources := map[string]string{}
	total := 0.0
	succeeded := 0

	for _, obs := range observations {
		if !obs.Success || obs.Root == "" {
			continue
		}
		succeeded++
		sources[obs.Source] = obs.Root
		w := cfg.Weights.For(obs.Kind)
		total += w

		g, ok := groups[obs.Root]
		if !ok {
			g = &group{root: obs.Root, bestKind: obs.Kind}
			groups[obs.Root] = g
		}
		g.score += w
		g.count++
		if w > g.maxWeight {
			g.maxWeight = w
		}
		if obs.Kind < g.bestKind {
			g.bestKind = obs.Kind
		}
		if obs.Kind == source.KindOffline || obs.Kind == source.KindReference {
			g.topTier = true
		}
	}

	if succeeded == 0 {
		return nil, ErrNoSources
	}

	candidates := make([]*group, 0, len(groups))
	for _, g := range groups {
		candidates = append(candidates, g)
	}
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })
	winner := candidates[0]

	confidence := winner.score / total
	if winner.count >= 3 {
		confidence += cfg.CrowdBoost
	} else if winner.count == 2 {
		confidence += cfg.PairBoost
	}
	if confidence > 1 {
		confidence = 1
	}
	if winner.topTier && confidence < cfg.TopTierFloor {
		confidence = cfg.TopTierFloor
	}

	return &Verdict{
		Root:           winner.root,
		Confidence:     confidence,
		Sources:        sources,
		AgreementCount: winner.count,
		TotalSources:   succeeded,
	}, nil
}

// less orders candidate groups best-first: highest score, then the group
// holding the single heaviest source, then the shortest root, then source
// priority, then the root string for determinism.
func less(a, b *group) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.maxWeight != b.maxWeight {
		return a.maxWeight > b.maxWeight
	}
	la, lb := utf8.RuneCountInString(a.root), utf8.RuneCountInString(b.root)
	if la != lb {
		return la < lb
	}
	if a.bestKind != b.bestKind {
		return a.bestKind < b.bestKind
	}
	return a.root < b.root
}
