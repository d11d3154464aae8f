package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_Language(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		artist string
		want   Language
	}{
		{
			name:   "kana is japanese",
			title:  "残酷な天使のテーゼ",
			artist: "高橋洋子",
			want:   LangJapanese,
		},
		{
			name:   "kanji only is japanese",
			title:  "紅蓮華",
			artist: "LiSA",
			want:   LangJapanese,
		},
		{
			name:   "hangul is korean",
			title:  "강남스타일",
			artist: "싸이",
			want:   LangKorean,
		},
		{
			name:   "french function words",
			title:  "La Vie en Rose",
			artist: "Edith Piaf",
			want:   LangFrench,
		},
		{
			name:   "english function words",
			title:  "Love Me Do",
			artist: "The Beatles",
			want:   LangEnglish,
		},
		{
			name:   "latin script without function words",
			title:  "Despacito",
			artist: "Luis Fonsi",
			want:   LangLatin,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.title, tt.artist).Language)
		})
	}
}

func TestOf_Genre(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		artist string
		want   Genre
	}{
		{
			name:   "metal beats rock when both match",
			title:  "Heavy Metal Rock Anthem",
			artist: "Iron Band",
			want:   GenreMetal,
		},
		{
			name:   "kpop marker",
			title:  "K-Pop Star",
			artist: "Seoul Lights",
			want:   GenreKPop,
		},
		{
			name:   "anime marker maps to jpop",
			title:  "Opening Theme (Anime Version)",
			artist: "Studio Singers",
			want:   GenreJPop,
		},
		{
			name:   "hip hop",
			title:  "Hip-Hop Classic",
			artist: "MC Example",
			want:   GenreRap,
		},
		{
			name:   "remix is electro",
			title:  "Midnight (Club Remix)",
			artist: "DJ Nova",
			want:   GenreElectro,
		},
		{
			name:   "plain pop with japanese script upgrades to jpop",
			title:  "POP☆STAR ぽぷそんぐ",
			artist: "アイドル",
			want:   GenreJPop,
		},
		{
			name:   "plain pop with korean script upgrades to kpop",
			title:  "Pop 노래",
			artist: "가수",
			want:   GenreKPop,
		},
		{
			name:   "no marker",
			title:  "Untitled",
			artist: "Somebody",
			want:   GenreOther,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.title, tt.artist).Genre)
		})
	}
}

func TestOf_Vocal(t *testing.T) {
	tests := []struct {
		name   string
		artist string
		want   Vocal
	}{
		{name: "allow-listed female name", artist: "Luna", want: VocalFemale},
		{name: "allow-listed male name", artist: "Kenji Sato", want: VocalMale},
		{name: "feat mixes genders", artist: "Ken feat. Luna", want: VocalMixed},
		{name: "ampersand collaboration", artist: "Tom & Anna", want: VocalMixed},
		{name: "keyword hint", artist: "Ladies of Tokyo", want: VocalFemale},
		{name: "boy band keyword", artist: "City Boys", want: VocalMale},
		{name: "one known part wins", artist: "Shiranami x Hugo", want: VocalMale},
		{name: "nothing recognisable", artist: "Daft Punk", want: VocalUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of("Song", tt.artist).Vocal)
		})
	}
}

func TestCoherence(t *testing.T) {
	tests := []struct {
		name         string
		source, cand Profile
		srcArtist    string
		candArtist   string
		want         int
	}{
		{
			name:       "full match",
			source:     Profile{LangJapanese, GenreJPop, VocalFemale},
			cand:       Profile{LangJapanese, GenreJPop, VocalFemale},
			srcArtist:  "Aya",
			candArtist: "Miku",
			want:       150,
		},
		{
			name:       "french source english candidate",
			source:     Profile{LangFrench, GenrePop, VocalUnknown},
			cand:       Profile{LangEnglish, GenrePop, VocalUnknown},
			srcArtist:  "A",
			candArtist: "B",
			want:       -10,
		},
		{
			name:       "english tolerates latin",
			source:     Profile{LangEnglish, GenreRock, VocalMale},
			cand:       Profile{LangLatin, GenreRock, VocalMale},
			srcArtist:  "A",
			candArtist: "B",
			want:       70,
		},
		{
			name:       "same artist penalised",
			source:     Profile{LangEnglish, GenreOther, VocalUnknown},
			cand:       Profile{LangEnglish, GenreOther, VocalUnknown},
			srcArtist:  "Daft Punk",
			candArtist: "daft punk",
			want:       105,
		},
		{
			name:       "english source french candidate",
			source:     Profile{LangEnglish, GenrePop, VocalFemale},
			cand:       Profile{LangFrench, GenreRock, VocalFemale},
			srcArtist:  "A",
			candArtist: "B",
			want:       -25,
		},
		{
			name:       "japanese source rejects english",
			source:     Profile{LangJapanese, GenreJPop, VocalUnknown},
			cand:       Profile{LangEnglish, GenrePop, VocalUnknown},
			srcArtist:  "A",
			candArtist: "B",
			want:       -55,
		},
		{
			name:       "unknown source vocal earns no bonus",
			source:     Profile{LangEnglish, GenreOther, VocalUnknown},
			cand:       Profile{LangEnglish, GenreOther, VocalUnknown},
			srcArtist:  "A",
			candArtist: "B",
			want:       125,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coherence(tt.source, tt.cand, tt.srcArtist, tt.candArtist)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinScore(t *testing.T) {
	assert.Equal(t, 35, MinScore(Profile{Language: LangJapanese}))
	assert.Equal(t, 35, MinScore(Profile{Language: LangKorean}))
	assert.Equal(t, 35, MinScore(Profile{Language: LangFrench}))
	assert.Equal(t, 15, MinScore(Profile{Language: LangEnglish}))
	assert.Equal(t, 15, MinScore(Profile{Language: LangLatin}))
	assert.Equal(t, 15, MinScore(Profile{Language: LangOther}))
}
