package ratings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScaleOrdering(t *testing.T) {
	s := Default()

	aaa, ok := s.Rank("AAA")
	require.True(t, ok)
	assert.Equal(t, 0, aaa)

	d, ok := s.Rank("D")
	require.True(t, ok)
	assert.Equal(t, s.Len()-1, d)

	worse, err := s.Worse("BB", "BBB")
	require.NoError(t, err)
	assert.True(t, worse, "BB should rank worse than BBB")

	worse, err = s.Worse("A", "BB")
	require.NoError(t, err)
	assert.False(t, worse)
}

func TestUnknownRatingsAreUnrankable(t *testing.T) {
	s := Default()

	_, ok := s.Rank("ZZZ")
	assert.False(t, ok)

	_, err := s.Worse("ZZZ", "BBB")
	assert.Error(t, err)

	assert.False(t, s.IsInvestmentGrade("ZZZ"))
}

func TestInvestmentGradePartition(t *testing.T) {
	s := Default()

	for _, r := range []string{"AAA", "AA-", "A", "BBB+", "BBB", "BBB-"} {
		assert.True(t, s.IsInvestmentGrade(r), r)
	}
	for _, r := range []string{"BB+", "BB", "B", "CCC", "D"} {
		assert.False(t, s.IsInvestmentGrade(r), r)
	}
}

func TestLetterOnlyTaxonomyResolves(t *testing.T) {
	s := Default()
	for _, r := range []string{"AAA", "AA", "A", "BBB", "BB", "B", "CCC", "CC", "C", "D"} {
		assert.True(t, s.Contains(r), r)
	}
}

func TestNewScaleRejectsBadInput(t *testing.T) {
	_, err := NewScale(nil, "BBB-")
	assert.Error(t, err)

	_, err = NewScale([]string{"A", "A"}, "A")
	assert.Error(t, err)

	_, err = NewScale([]string{"A", "B"}, "C")
	assert.Error(t, err)
}
