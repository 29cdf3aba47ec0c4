package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPair_MostUncertainThenClosest(t *testing.T) {
	engine := newTestEngine(t)
	candidates := []Candidate{
		{ID: "a", Belief: Belief{Mu: 10, Sigma: 1}},
		{ID: "b", Belief: Belief{Mu: 30, Sigma: 6}},
		{ID: "c", Belief: Belief{Mu: 29, Sigma: 2}},
		{ID: "d", Belief: Belief{Mu: 45, Sigma: 2}},
	}

	first, second, err := engine.SelectPair(candidates)
	require.NoError(t, err)
	assert.Equal(t, "b", first.ID)
	assert.Equal(t, "c", second.ID)
}

func TestSelectPair_FirstHasMaximalSigma(t *testing.T) {
	engine := newTestEngine(t)
	candidates := []Candidate{
		{ID: "x", Belief: Belief{Mu: 25, Sigma: 3}},
		{ID: "y", Belief: Belief{Mu: 12, Sigma: 7.5}},
		{ID: "z", Belief: Belief{Mu: 40, Sigma: 7.4}},
	}

	first, second, err := engine.SelectPair(candidates)
	require.NoError(t, err)
	assert.Equal(t, "y", first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	for _, c := range candidates {
		assert.LessOrEqual(t, c.Belief.Sigma, first.Belief.Sigma)
	}
}

func TestSelectPair_DeterministicTieBreak(t *testing.T) {
	engine := newTestEngine(t)
	prior := engine.Prior()
	candidates := []Candidate{
		{ID: "m", Belief: prior},
		{ID: "k", Belief: prior},
		{ID: "q", Belief: prior},
	}

	first, second, err := engine.SelectPair(candidates)
	require.NoError(t, err)
	assert.Equal(t, "k", first.ID)
	assert.Equal(t, "m", second.ID)

	// input order must not matter
	reversed := []Candidate{candidates[2], candidates[1], candidates[0]}
	first2, second2, err := engine.SelectPair(reversed)
	require.NoError(t, err)
	assert.Equal(t, first.ID, first2.ID)
	assert.Equal(t, second.ID, second2.ID)
}

func TestSelectPair_InsufficientCandidates(t *testing.T) {
	engine := newTestEngine(t)
	prior := engine.Prior()

	tests := []struct {
		name       string
		candidates []Candidate
	}{
		{"none", nil},
		{"one", []Candidate{{ID: "a", Belief: prior}}},
		{"duplicates only", []Candidate{{ID: "a", Belief: prior}, {ID: "a", Belief: prior}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := engine.SelectPair(tt.candidates)
			assert.ErrorIs(t, err, ErrInsufficientCandidates)
		})
	}
}

func TestSelectPair_RejectsInvalidBelief(t *testing.T) {
	engine := newTestEngine(t)
	_, _, err := engine.SelectPair([]Candidate{
		{ID: "a", Belief: engine.Prior()},
		{ID: "b", Belief: Belief{Mu: 1, Sigma: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidBelief)
}
