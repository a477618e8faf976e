package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cls  = 0
	sep  = 2
	mask = 50
)

var ids = Specials{CLS: cls, Sep: sep, Mask: mask}

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		tokens []int32
		want   []Sentence
	}{
		{"two terminated", []int32{5, 6, sep, 7, sep}, []Sentence{{5, 6, sep}, {7, sep}}},
		{"trailing remainder", []int32{5, sep, 7, 8}, []Sentence{{5, sep}, {7, 8}}},
		{"separator only", []int32{sep}, []Sentence{{sep}}},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.tokens, sep))
		})
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name   string
		source []int32
		lim    Limits
		want   Document
	}{
		{
			name:   "prefixes class and closes last sentence",
			source: []int32{5, 6, sep, 7},
			want:   Document{{cls, 5, 6, sep}, {cls, 7, sep}},
		},
		{
			name:   "caps sentence length",
			source: []int32{5, 6, 7, 8, 9, sep},
			lim:    Limits{MaxSentenceLen: 3},
			want:   Document{{cls, 5, 6, 7, sep}},
		},
		{
			name:   "sentence at cap is untouched",
			source: []int32{5, 6, 7, sep},
			lim:    Limits{MaxSentenceLen: 3},
			want:   Document{{cls, 5, 6, 7, sep}},
		},
		{
			name:   "caps sentence count",
			source: []int32{5, sep, 6, sep, 7, sep},
			lim:    Limits{MaxSentences: 2},
			want:   Document{{cls, 5, sep}, {cls, 6, sep}},
		},
		{
			name:   "token budget",
			source: []int32{5, sep, 6, 7, sep, 8, sep},
			lim:    Limits{MaxTokens: 7},
			want:   Document{{cls, 5, sep}},
		},
		{
			name:   "empty source",
			source: nil,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Prepare(tt.source, ids, tt.lim))
		})
	}
}

func TestTruncate(t *testing.T) {
	doc := Document{{cls, sep}, {cls, 5, sep}, {cls, sep}}

	assert.Len(t, Truncate(doc, 100), 3)
	assert.Len(t, Truncate(doc, 5), 2)
	assert.Len(t, Truncate(doc, 4), 1)
	assert.Empty(t, Truncate(doc, 1))
}

func TestFlatten(t *testing.T) {
	doc := Document{{cls, 5, sep}, {cls, sep}, {cls, 6, 7, sep}}
	s := doc.Flatten()

	require.Equal(t, []int{0, 3, 5}, s.Offsets)
	require.Equal(t, 3, s.NumSentences())
	for i := range doc {
		assert.Equal(t, doc[i], s.Sentence(i), "sentence %d", i)
		assert.Equal(t, int32(cls), s.Tokens[s.Offsets[i]])
	}
	assert.Equal(t, doc.NumTokens(), len(s.Tokens))
}

func TestClone(t *testing.T) {
	doc := Document{{cls, 5, sep}}
	c := doc.Clone()
	c[0][1] = 9
	assert.Equal(t, int32(5), doc[0][1])
}
