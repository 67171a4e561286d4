// Package source implements the root-provider adapters: an offline corpus
// cache, the live corpus reference service, dictionary scrapers, and pure
// algorithmic extractors. All adapters satisfy the Source interface and
// convert their own failures into unsuccessful Observations; an adapter
// never lets an error escape its Fetch boundary.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies an adapter for trust weighting and tier selection.
type Kind int

const (
	// KindOffline is the pre-built offline lookup table. Highest trust,
	// zero network cost, only usable when the corpus location is known.
	KindOffline Kind = iota

	// KindReference is the authoritative live morphology service.
	KindReference

	// KindDictionary is a third-party dictionary scraper.
	KindDictionary

	// KindAlgorithmic is a local heuristic extractor. Lowest trust,
	// consulted only when nothing else answered.
	KindAlgorithmic
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindReference:
		return "reference"
	case KindDictionary:
		return "dictionary"
	case KindAlgorithmic:
		return "algorithmic"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Location is a fixed corpus coordinate: chapter, verse, word index
// (0-based within the verse).
type Location struct {
	Sura     int `json:"sura"`
	Aya      int `json:"aya"`
	Position int `json:"position"`
}

// Key returns the canonical "sura:aya:position" cache key.
func (l Location) Key() string {
	return fmt.Sprintf("%d:%d:%d", l.Sura, l.Aya, l.Position)
}

// VerseKey returns the "sura:aya" key shared by all words of one verse.
func (l Location) VerseKey() string {
	return fmt.Sprintf("%d:%d", l.Sura, l.Aya)
}

// Observation is one adapter's answer for one word. Unsuccessful fetches
// carry an error string instead of a root; they are still fed to the
// consensus engine so the disagreement record stays complete.
type Observation struct {
	Source  string        `json:"source"`
	Kind    Kind          `json:"kind"`
	Word    string        `json:"word"`
	Root    string        `json:"root,omitempty"`
	Success bool          `json:"success"`
	Err     string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// Source is the single capability all adapters share. Fetch must not panic
// and must not return transport or parse errors to the caller; it reports
// them through the returned Observation.
type Source interface {
	Name() string
	Kind() Kind
	Fetch(ctx context.Context, word string, loc *Location) Observation
}

// Adapter failure taxonomy. These never cross the Fetch boundary; adapters
// stringify them into Observation.Err.
var (
	ErrTimeout  = errors.New("source timeout")
	ErrParse    = errors.New("response parse failure")
	ErrNotFound = errors.New("word not found")
)

// failure builds an unsuccessful Observation for the given source.
func failure(name string, kind Kind, word string, start time.Time, err error) Observation {
	return Observation{
		Source:  name,
		Kind:    kind,
		Word:    word,
		Success: false,
		Err:     err.Error(),
		Latency: time.Since(start),
	}
}

// hit builds a successful Observation.
func hit(name string, kind Kind, word, root string, start time.Time) Observation {
	return Observation{
		Source:  name,
		Kind:    kind,
		Word:    word,
		Root:    root,
		Success: true,
		Latency: time.Since(start),
	}
}
