package arabic

// Paradigm letters for pattern (وزن) derivation: ف = first radical,
// ع = second, ل = third.
const (
	fa  = 'ف'
	ain = 'ع'
	lam = 'ل'
)

// Pattern derives the morphological pattern of word given its root, mapping
// each root letter onto the فعل paradigm and keeping extra letters as-is.
// Returns "" when the root letters cannot all be matched in order; full
// morphological analysis is out of scope, this heuristic covers the common
// corpus patterns.
//
//	Pattern("كتاب", "كتب")   == "فعال"
//	Pattern("مكتوب", "كتب")  == "مفعول"
//	Pattern("استغفر", "غفر") == "استفعل"
func Pattern(word, root string) string {
	if word == "" || root == "" {
		return ""
	}
	w := []rune(Normalize(word))
	r := []rune(Normalize(root))
	if len(r) < 2 {
		return ""
	}

	paradigm := []rune{fa, ain, lam}
	if len(r) > 3 {
		// Quadriliteral: فعلل
		paradigm = []rune{fa, ain, lam, lam}
	}

	out := make([]rune, 0, len(w))
	ri := 0
	for _, c := range w {
		if ri < len(r) && c == r[ri] {
			if ri < len(paradigm) {
				out = append(out, paradigm[ri])
			} else {
				out = append(out, lam)
			}
			ri++
		} else {
			out = append(out, c)
		}
	}
	if ri < len(r) {
		return ""
	}
	return string(out)
}
