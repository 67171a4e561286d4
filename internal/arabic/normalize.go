// Package arabic provides the Arabic text utilities shared by the extraction
// pipeline: normalization (diacritics, tatweel, hamza carriers), Buckwalter
// transliteration, affix stripping for the heuristic extractors, and
// morphological pattern derivation.
package arabic

import "strings"

// Tatweel is the Arabic kashida character used for justification.
const Tatweel = 'ـ'

// isDiacritic reports whether r is an Arabic diacritic (tashkeel) mark.
// Covers the harakat block plus the Qur'anic annotation marks that appear
// in fully vocalized texts.
func isDiacritic(r rune) bool {
	switch {
	case r >= 0x0610 && r <= 0x061A:
		return true
	case r >= 0x064B && r <= 0x065F:
		return true
	case r == 0x0670:
		return true
	case r >= 0x06D6 && r <= 0x06DC:
		return true
	case r >= 0x06DF && r <= 0x06E4:
		return true
	case r == 0x06E7 || r == 0x06E8:
		return true
	case r >= 0x06EA && r <= 0x06ED:
		return true
	}
	return false
}

// StripDiacritics removes all tashkeel marks from text.
func StripDiacritics(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if !isDiacritic(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StripTatweel removes the kashida character from text.
func StripTatweel(text string) string {
	return strings.ReplaceAll(text, string(Tatweel), "")
}

// hamzaCarriers maps hamza carrier forms to bare alif. The corpus uses all
// four forms; sources disagree on which one they return, so the normalized
// form collapses them.
var hamzaCarriers = strings.NewReplacer(
	"أ", "ا", // أ
	"إ", "ا", // إ
	"آ", "ا", // آ
	"ٱ", "ا", // ٱ (wasla)
)

// Normalize produces the canonical lookup form of an Arabic word: diacritics
// and tatweel stripped, hamza carriers collapsed to bare alif. Normalize is a
// pure function; equal surface forms always yield equal normalized forms.
func Normalize(text string) string {
	text = StripDiacritics(text)
	text = StripTatweel(text)
	return hamzaCarriers.Replace(text)
}

// IsArabic reports whether every rune of s falls in the Arabic block.
// Empty strings are not Arabic.
func IsArabic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x0600 || r > 0x06FF {
			return false
		}
	}
	return true
}

// buckwalter maps Buckwalter transliteration characters to Arabic letters.
// The live corpus service returns roots in Buckwalter.
var buckwalter = map[rune]rune{
	'A': 'ا', 'b': 'ب', 't': 'ت', 'v': 'ث', 'j': 'ج', 'H': 'ح', 'x': 'خ',
	'd': 'د', '*': 'ذ', 'r': 'ر', 'z': 'ز', 's': 'س', '$': 'ش', 'S': 'ص',
	'D': 'ض', 'T': 'ط', 'Z': 'ظ', 'E': 'ع', 'g': 'غ', 'f': 'ف', 'q': 'ق',
	'k': 'ك', 'l': 'ل', 'm': 'م', 'n': 'ن', 'h': 'ه', 'w': 'و', 'y': 'ي',
	'Y': 'ى', '\'': 'ء', 'p': 'ة', '|': 'آ', '>': 'أ', '<': 'إ', '&': 'ؤ',
	'}': 'ئ',
}

// FromBuckwalter converts Buckwalter transliteration to Arabic script.
// Characters outside the table pass through unchanged.
func FromBuckwalter(text string) string {
	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, r := range text {
		if ar, ok := buckwalter[r]; ok {
			b.WriteRune(ar)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Levenshtein computes the edit distance between two strings, counted in
// runes. Standard dynamic-programming implementation with a rolling row.
func Levenshtein(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, c1 := range a {
		curr[0] = i + 1
		for j, c2 := range b {
			cost := 1
			if c1 == c2 {
				cost = 0
			}
			curr[j+1] = min(curr[j]+1, min(prev[j+1]+1, prev[j]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
