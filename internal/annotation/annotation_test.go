package annotation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIncluded(t *testing.T) {
	r, err := Parse("amusement,http://x/img42.jpg,2,5")
	require.NoError(t, err)

	assert.Equal(t, "amusement", r.Category)
	assert.Equal(t, "http://x/img42.jpg", r.SourceURI)
	assert.Equal(t, 2, r.DisagreeCount)
	assert.Equal(t, 5, r.AgreeCount)
	assert.True(t, r.Included())
	assert.Equal(t, Positive, r.Label())
	assert.Equal(t, "img42.jpg", r.ImageID())
	assert.Equal(t, "img42", r.StemID())
}

func TestParseExcluded(t *testing.T) {
	r, err := Parse("fear,http://x/img7.jpg,9,1")
	require.NoError(t, err)
	assert.False(t, r.Included())
	assert.Equal(t, Negative, r.Label())
}

func TestIncludedOnTie(t *testing.T) {
	r, err := Parse("awe,http://x/a.png,3,3")
	require.NoError(t, err)
	assert.True(t, r.Included())
}

func TestParseIgnoresTrailingTokens(t *testing.T) {
	r, err := Parse("sadness,http://x/s1.jpg,0,4 extra,tokens\n")
	require.NoError(t, err)
	assert.Equal(t, "s1.jpg", r.ImageID())
	assert.Equal(t, 4, r.AgreeCount)
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"   ",
		"amusement,http://x/a.jpg,1",
		"amusement,http://x/a.jpg,one,2",
		"amusement,http://x/a.jpg,1,two",
		"amusement,,1,2",
		"amusement,http://x/a.jpg,1,2,3",
	} {
		_, err := Parse(line)
		assert.True(t, errors.Is(err, ErrMalformed), "line %q: %v", line, err)
	}
}

func TestParseUnknownCategory(t *testing.T) {
	_, err := Parse("boredom,http://x/a.jpg,1,2")
	assert.True(t, errors.Is(err, ErrUnknownCategory))
}

func TestLabelMapping(t *testing.T) {
	expected := map[string]Label{
		"amusement":   Positive,
		"awe":         Positive,
		"contentment": Positive,
		"excitement":  Positive,
		"anger":       Negative,
		"disgust":     Negative,
		"fear":        Negative,
		"sadness":     Negative,
	}
	for _, c := range Categories() {
		l, err := LabelFor(c)
		require.NoError(t, err)
		assert.Equal(t, expected[c], l, c)
	}
	assert.Len(t, Categories(), len(expected))
}

func TestLabelIndex(t *testing.T) {
	assert.Equal(t, 0, Positive.Index())
	assert.Equal(t, 1, Negative.Index())

	l, err := ParseLabel("negative")
	require.NoError(t, err)
	assert.Equal(t, Negative, l)
	_, err = ParseLabel("neutral")
	assert.Error(t, err)
}

func TestImageIDStripsQuery(t *testing.T) {
	r := Record{SourceURI: "https://farm.example.com/1/abc.jpg?size=large"}
	assert.Equal(t, "abc.jpg", r.ImageID())
	assert.Equal(t, "abc", r.StemID())
}

func TestCategoryFromFile(t *testing.T) {
	assert.Equal(t, "amusement", CategoryFromFile("agg/amusement_3.csv"))
	assert.Equal(t, "fear", CategoryFromFile("fear_10.csv"))
	assert.Equal(t, "awe", CategoryFromFile("awe.csv"))
}
