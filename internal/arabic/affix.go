package arabic

import "strings"

// Affix inventories for the heuristic extractors, longest-match-first.
// These cover the clitics and inflectional endings that occur in the corpus;
// a stripped stem of three or four letters is taken as the candidate root.
var (
	// Prefixes: conjunction + article compounds first, then the article,
	// then single-letter clitics.
	Prefixes = []string{
		"والذي", "بالذي", "فالذي", "كالذي",
		"وال", "فال", "بال", "كال", "لل",
		"ال", "و", "ف", "ب", "ل", "ك",
	}

	// Suffixes: object/possessive pronoun clusters first, then plural and
	// feminine endings, then single-letter suffixes.
	Suffixes = []string{
		"ونهم", "ونها", "ونني", "ونكم",
		"ونه", "ونا", "وني", "ومه", "وما",
		"تهم", "تها", "تني", "تكم", "تنا",
		"هما", "كما", "نني",
		"ون", "ين", "ان", "ات", "ية",
		"ته", "تا", "تي", "تك", "تم", "تن",
		"ها", "هم", "هن", "كم", "كن", "نا",
		"ة", "ه", "ي", "ك", "ن", "ا", "ت",
	}
)

// weakLetters are the letters commonly inserted by inflection; they are the
// first candidates for removal when a stem is longer than a root.
const weakLetters = "اويءى"

// IsWeak reports whether r is a weak letter.
func IsWeak(r rune) bool {
	return strings.ContainsRune(weakLetters, r)
}

// StripPrefix removes the longest matching prefix from word, requiring at
// least three letters to remain. Returns the stem and the removed prefix.
func StripPrefix(word string) (stem, removed string) {
	runes := []rune(word)
	for _, p := range Prefixes {
		pr := []rune(p)
		if len(runes) > len(pr)+2 && strings.HasPrefix(word, p) {
			return string(runes[len(pr):]), p
		}
	}
	return word, ""
}

// StripSuffix removes the longest matching suffix from word, requiring at
// least three letters to remain. Returns the stem and the removed suffix.
func StripSuffix(word string) (stem, removed string) {
	runes := []rune(word)
	for _, s := range Suffixes {
		sr := []rune(s)
		if len(runes) > len(sr)+2 && strings.HasSuffix(word, s) {
			return string(runes[:len(runes)-len(sr)]), s
		}
	}
	return word, ""
}

// StrongLetters returns the non-weak letters of word in order.
func StrongLetters(word string) []rune {
	var out []rune
	for _, r := range word {
		if !IsWeak(r) {
			out = append(out, r)
		}
	}
	return out
}
