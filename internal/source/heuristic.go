package source

import (
	"context"
	"fmt"
	"time"

	"jidhr/internal/arabic"
)

// The algorithmic extractors are pure local computation: strip the known
// affix inventory from the normalized word and reduce the residue to a
// consonantal skeleton. They are the lowest-trust tier, consulted only when
// no cache or network source answered.

const (
	khalilName  = "alkhalil"
	stemmerName = "stemmer"
)

// Khalil is the rule-based extractor: affix stripping plus weak-letter and
// gemination handling.
type Khalil struct{}

// NewKhalil creates the rule-based algorithmic extractor.
func NewKhalil() *Khalil { return &Khalil{} }

// Name implements Source.
func (k *Khalil) Name() string { return khalilName }

// Kind implements Source.
func (k *Khalil) Kind() Kind { return KindAlgorithmic }

// Fetch implements Source.
func (k *Khalil) Fetch(_ context.Context, word string, _ *Location) Observation {
	start := time.Now()
	root := khalilRoot(word)
	if root == "" {
		return failure(khalilName, KindAlgorithmic, word, start,
			fmt.Errorf("%w: no plausible root", ErrNotFound))
	}
	return hit(khalilName, KindAlgorithmic, word, root, start)
}

func khalilRoot(word string) string {
	cleaned := arabic.Normalize(word)
	stem, prefix := arabic.StripPrefix(cleaned)
	stem, _ = arabic.StripSuffix(stem)

	runes := []rune(stem)

	// A leading weak letter exposed by prefix removal is usually part of
	// the inflection, not the root.
	if prefix != "" && len(runes) > 3 && arabic.IsWeak(runes[0]) && !arabic.IsWeak(runes[1]) {
		runes = runes[1:]
	}

	// Collapse geminated consonants (shadda is lost in normalization, but
	// some sources spell the doubled letter out).
	dedup := make([]rune, 0, len(runes))
	var prev rune
	for _, r := range runes {
		if r != prev || arabic.IsWeak(r) {
			dedup = append(dedup, r)
		}
		prev = r
	}
	if len(dedup) >= 3 {
		runes = dedup
	}

	switch {
	case len(runes) < 2:
		return ""
	case len(runes) == 2 || len(runes) == 3:
		return string(runes)
	case len(runes) == 4:
		if arabic.IsWeak(runes[3]) && !arabic.IsWeak(runes[2]) {
			return string(runes[:3])
		}
		return string(runes)
	default:
		strong := arabic.StrongLetters(string(runes))
		if len(strong) >= 3 {
			return string(strong[:3])
		}
		return string(runes[:4])
	}
}

// Stemmer is the lighter affix-stripping extractor. It differs from Khalil
// in how it treats weak letters at the stem edges, which gives the consensus
// engine a second independent opinion on hard words.
type Stemmer struct{}

// NewStemmer creates the affix-stripping extractor.
func NewStemmer() *Stemmer { return &Stemmer{} }

// Name implements Source.
func (s *Stemmer) Name() string { return stemmerName }

// Kind implements Source.
func (s *Stemmer) Kind() Kind { return KindAlgorithmic }

// Fetch implements Source.
func (s *Stemmer) Fetch(_ context.Context, word string, _ *Location) Observation {
	start := time.Now()
	root := stemmerRoot(word)
	if root == "" {
		return failure(stemmerName, KindAlgorithmic, word, start,
			fmt.Errorf("%w: no plausible root", ErrNotFound))
	}
	return hit(stemmerName, KindAlgorithmic, word, root, start)
}

func stemmerRoot(word string) string {
	cleaned := arabic.Normalize(word)
	stem, _ := arabic.StripPrefix(cleaned)
	stem, _ = arabic.StripSuffix(stem)

	runes := []rune(stem)

	// Trim weak letters from the edges when enough strong material remains.
	if len(runes) > 3 && arabic.IsWeak(runes[0]) && !arabic.IsWeak(runes[1]) && !arabic.IsWeak(runes[2]) {
		runes = runes[1:]
	}
	if len(runes) > 3 && arabic.IsWeak(runes[len(runes)-1]) && !arabic.IsWeak(runes[len(runes)-2]) {
		runes = runes[:len(runes)-1]
	}

	switch {
	case len(runes) < 2:
		return ""
	case len(runes) <= 3:
		return string(runes)
	case len(runes) == 4:
		return string(runes)
	default:
		strong := arabic.StrongLetters(string(runes))
		if len(strong) >= 3 {
			return string(strong[:3])
		}
		return string(runes[:3])
	}
}
