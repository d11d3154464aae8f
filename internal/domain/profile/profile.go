// Package profile derives coarse language, genre and vocal tags from track
// text. The tags drive multiple-choice distractor selection: candidates are
// ranked by how coherent they are with the answer track, so a French pop
// round does not offer three metal tracks as decoys.
package profile

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tuneclash/tuneclash/internal/domain/answer"
)

// Language is the detected lyric/title language bucket.
type Language string

const (
	LangJapanese Language = "japanese"
	LangKorean   Language = "korean"
	LangFrench   Language = "french"
	LangEnglish  Language = "english"
	LangLatin    Language = "latin"
	LangOther    Language = "other"
)

// Genre is the detected style bucket.
type Genre string

const (
	GenreMetal   Genre = "metal"
	GenreRock    Genre = "rock"
	GenrePop     Genre = "pop"
	GenreJPop    Genre = "jpop"
	GenreKPop    Genre = "kpop"
	GenreRap     Genre = "rap"
	GenreElectro Genre = "electro"
	GenreOther   Genre = "other"
)

// Vocal is the guessed vocalist gender mix.
type Vocal string

const (
	VocalFemale  Vocal = "female"
	VocalMale    Vocal = "male"
	VocalMixed   Vocal = "mixed"
	VocalUnknown Vocal = "unknown"
)

// Profile aggregates the three tags for one track.
type Profile struct {
	Language Language
	Genre    Genre
	Vocal    Vocal
}

// Of profiles a track from its title and artist text.
func Of(title, artist string) Profile {
	text := title + " " + artist
	lang := detectLanguage(text)
	return Profile{
		Language: lang,
		Genre:    detectGenre(answer.Normalize(text), lang),
		Vocal:    detectVocal(artist),
	}
}

// Closed function-word dictionaries for Latin-script language detection.
// Deliberately small; a handful of hits is enough for a coarse bucket.
var frenchWords = map[string]bool{
	"le": true, "la": true, "les": true, "des": true, "une": true, "du": true,
	"au": true, "aux": true, "et": true, "ou": true, "je": true, "tu": true,
	"il": true, "elle": true, "nous": true, "vous": true, "mon": true,
	"ma": true, "mes": true, "ton": true, "ta": true, "tes": true,
	"ne": true, "pas": true, "que": true, "qui": true, "dans": true,
	"pour": true, "avec": true, "sur": true, "moi": true, "toi": true,
	"rien": true, "tout": true, "est": true, "suis": true, "coeur": true,
	"amour": true, "vie": true, "nuit": true,
}

var englishWords = map[string]bool{
	"the": true, "of": true, "in": true, "on": true, "for": true,
	"with": true, "and": true, "you": true, "me": true, "my": true,
	"your": true, "we": true, "it": true, "is": true, "are": true,
	"this": true, "that": true, "to": true, "from": true, "be": true,
	"not": true, "all": true, "night": true, "love": true, "heart": true,
	"baby": true, "down": true, "never": true, "gonna": true,
}

func detectLanguage(text string) Language {
	var kana, hangul, han, latin int
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if kana > 0 {
		return LangJapanese
	}
	if hangul > 0 {
		return LangKorean
	}
	// Bare CJK ideographs in a music/anime catalogue are almost always
	// Japanese titles written without kana.
	if han > 0 {
		return LangJapanese
	}

	var fr, en int
	for _, w := range strings.Fields(answer.Normalize(text)) {
		if frenchWords[w] {
			fr++
		}
		if englishWords[w] {
			en++
		}
	}
	switch {
	case fr > en:
		return LangFrench
	case en > 0:
		return LangEnglish
	}
	if latin > 0 {
		return LangLatin
	}
	return LangOther
}

// genreRules are evaluated in order against the normalised "title artist"
// text; the first hit wins. Narrow styles come before broad ones so "metal"
// never falls through to "rock".
var genreRules = []struct {
	genre Genre
	re    *regexp.Regexp
}{
	{GenreMetal, regexp.MustCompile(`\b(metal(core)?|deathcore|djent|doom)\b`)},
	{GenreKPop, regexp.MustCompile(`\bk ?(pop|rock)\b`)},
	{GenreJPop, regexp.MustCompile(`\bj ?(pop|rock)\b|\b(anime|vocaloid|utaite)\b`)},
	{GenreRap, regexp.MustCompile(`\b(rap|hip ?hop|trap|drill|freestyle)\b`)},
	{GenreElectro, regexp.MustCompile(`\b(electro|edm|techno|house|dubstep|hardstyle|synthwave|eurobeat|remix)\b`)},
	{GenreRock, regexp.MustCompile(`\b(rock|punk|grunge|emo)\b`)},
	{GenrePop, regexp.MustCompile(`\bpop\b`)},
}

func detectGenre(normalized string, lang Language) Genre {
	genre := GenreOther
	for _, rule := range genreRules {
		if rule.re.MatchString(normalized) {
			genre = rule.genre
			break
		}
	}
	// Plain "pop" in a Japanese or Korean track is its regional scene.
	if genre == GenrePop {
		switch lang {
		case LangJapanese:
			return GenreJPop
		case LangKorean:
			return GenreKPop
		}
	}
	return genre
}

// artistSplit separates collaboration credits: "A feat. B", "A & B", "A x B".
var artistSplit = regexp.MustCompile(`(?i)\s+(?:feat\.?|ft\.?|vs\.?|x)\s+|\s*[&,]\s*`)

var femaleHints = map[string]bool{
	"girl": true, "girls": true, "lady": true, "ladies": true, "queen": true,
	"diva": true, "woman": true, "women": true, "femme": true, "sister": true,
	"sisters": true, "mademoiselle": true,
}

var maleHints = map[string]bool{
	"boy": true, "boys": true, "man": true, "men": true, "king": true,
	"mc": true, "mr": true, "monsieur": true, "brother": true,
	"brothers": true, "sir": true,
}

// Closed first-name allow-lists. Only unambiguous entries belong here.
var femaleNames = map[string]bool{
	"aya": true, "yui": true, "hana": true, "mina": true, "luna": true,
	"emma": true, "alice": true, "marie": true, "julia": true, "clara": true,
	"eva": true, "sarah": true, "lisa": true, "anna": true, "nana": true,
	"miku": true,
}

var maleNames = map[string]bool{
	"ken": true, "taro": true, "hiro": true, "john": true, "david": true,
	"paul": true, "pierre": true, "lucas": true, "leo": true, "hugo": true,
	"adam": true, "victor": true, "louis": true, "tom": true, "jack": true,
	"kenji": true,
}

func detectVocal(artist string) Vocal {
	var sawFemale, sawMale bool
	for _, part := range artistSplit.Split(artist, -1) {
		switch classifyArtistPart(part) {
		case VocalFemale:
			sawFemale = true
		case VocalMale:
			sawMale = true
		}
	}
	switch {
	case sawFemale && sawMale:
		return VocalMixed
	case sawFemale:
		return VocalFemale
	case sawMale:
		return VocalMale
	}
	return VocalUnknown
}

func classifyArtistPart(part string) Vocal {
	for _, w := range strings.Fields(answer.Normalize(part)) {
		if femaleHints[w] || femaleNames[w] {
			return VocalFemale
		}
		if maleHints[w] || maleNames[w] {
			return VocalMale
		}
	}
	return VocalUnknown
}

// Coherence scores how well a candidate distractor fits the answer track's
// profile. Higher is better; scores below the acceptance threshold are
// rejected by the choice builder.
func Coherence(source, cand Profile, sourceArtist, candArtist string) int {
	score := 0
	if source.Language == cand.Language {
		score += 80
	}
	if source.Genre == cand.Genre {
		score += 45
	}
	if source.Vocal != VocalUnknown && source.Vocal == cand.Vocal {
		score += 25
	}
	if sameArtist(sourceArtist, candArtist) {
		score -= 20
	}
	score -= languagePenalty(source.Language, cand.Language)
	if source.Genre != GenreOther && cand.Genre != source.Genre {
		score -= 15
	}
	return score
}

// languagePenalty punishes cross-language decoys. The table is asymmetric:
// a French round offering an English decoy reads as a giveaway, the reverse
// less so.
func languagePenalty(source, cand Language) int {
	if source == cand {
		return 0
	}
	switch source {
	case LangFrench:
		if cand == LangEnglish {
			return 55
		}
		return 30
	case LangEnglish:
		if cand == LangFrench {
			return 35
		}
		if cand == LangLatin {
			return 0
		}
		return 25
	case LangJapanese:
		return 40
	case LangKorean:
		return 35
	}
	return 0
}

// MinScore is the acceptance threshold for distractors against the given
// source profile. Script-distinct languages demand tighter coherence.
func MinScore(source Profile) int {
	switch source.Language {
	case LangJapanese, LangKorean, LangFrench:
		return 35
	}
	return 15
}

func sameArtist(a, b string) bool {
	na := answer.Normalize(a)
	return na != "" && na == answer.Normalize(b)
}
