// Package answer provides text normalisation and fuzzy matching for
// player-submitted answers.
package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFKD and drops combining marks, so "Pokémon"
// and "Pokemon" normalise identically.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Normalize reduces a string to its comparable form: NFKD-decomposed,
// accent-stripped, lowercased, with every run of non-alphanumerics collapsed
// to a single space.
func Normalize(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)

	var b strings.Builder
	b.Grow(len(out))
	lastWasSpace := true
	for _, r := range out {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			b.WriteRune(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// MatchChoice reports whether a multiple-choice submission selects the
// canonical "Title - Artist" label.
func MatchChoice(submission, label string) bool {
	n := Normalize(submission)
	return n != "" && n == Normalize(label)
}

// Variants is the set of reference strings a free-text submission is matched
// against. Romaji fields are optional and come from the romanisation cache;
// building variants never blocks on network.
type Variants struct {
	Title        string
	Artist       string
	TitleRomaji  string
	ArtistRomaji string
}

// list expands the variant set, including romaji cross-combinations.
func (v Variants) list() []string {
	out := []string{
		v.Title,
		v.Artist,
		v.Title + " " + v.Artist,
		v.Title + " - " + v.Artist,
	}
	if v.TitleRomaji != "" {
		out = append(out,
			v.TitleRomaji,
			v.TitleRomaji+" "+v.Artist,
			v.TitleRomaji+" - "+v.Artist,
		)
	}
	if v.ArtistRomaji != "" {
		out = append(out,
			v.ArtistRomaji,
			v.Title+" "+v.ArtistRomaji,
			v.Title+" - "+v.ArtistRomaji,
		)
	}
	if v.TitleRomaji != "" && v.ArtistRomaji != "" {
		out = append(out,
			v.TitleRomaji+" "+v.ArtistRomaji,
			v.TitleRomaji+" - "+v.ArtistRomaji,
		)
	}
	return out
}

// MatchText reports whether a free-text submission matches any variant of
// the answer track. A match is normalised equality, a bounded edit distance,
// or the submission being a long-enough prefix/suffix of a variant.
func MatchText(submission string, v Variants) bool {
	sub := Normalize(submission)
	if sub == "" {
		return false
	}
	for _, variant := range v.list() {
		if fuzzyEqual(sub, Normalize(variant)) {
			return true
		}
	}
	return false
}

// minAffixLen guards the prefix/suffix rule against trivial one-letter hits.
const minAffixLen = 4

// fuzzyEqual compares two already-normalised strings.
func fuzzyEqual(sub, variant string) bool {
	if variant == "" {
		return false
	}
	if sub == variant {
		return true
	}

	limit := len([]rune(variant)) / 6
	if limit < 1 {
		limit = 1
	}
	if levenshtein(sub, variant) <= limit {
		return true
	}

	if len(sub) >= minAffixLen && (strings.HasPrefix(variant, sub) || strings.HasSuffix(variant, sub)) {
		return true
	}
	return false
}

// levenshtein computes the edit distance between two strings, two rows at a
// time over runes.
func levenshtein(a, b string) int {
	if a == "" {
		return len([]rune(b))
	}
	if b == "" {
		return len([]rune(a))
	}

	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
