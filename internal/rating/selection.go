package rating

import (
	"fmt"
	"slices"
	"strings"
)

// Candidate is an entry eligible for comparison.
type Candidate struct {
	ID     string
	Belief Belief
}

// SelectPair picks the next comparison. The first candidate is the most uncertain
// one; the second is the remaining candidate with the highest match quality against
// it. Ties are broken by the lowest id, so the result is deterministic. Duplicate ids
// are collapsed to their first occurrence.
func (e *Engine) SelectPair(candidates []Candidate) (Candidate, Candidate, error) {
	pool := dedupe(candidates)
	if len(pool) < 2 {
		return Candidate{}, Candidate{}, fmt.Errorf("%w: need 2, got %d", ErrInsufficientCandidates, len(pool))
	}
	for _, c := range pool {
		if err := c.Belief.Validate(); err != nil {
			return Candidate{}, Candidate{}, fmt.Errorf("candidate %s: %w", c.ID, err)
		}
	}

	slices.SortFunc(pool, func(x, y Candidate) int {
		return strings.Compare(x.ID, y.ID)
	})

	first := 0
	for i := 1; i < len(pool); i++ {
		if pool[i].Belief.Sigma > pool[first].Belief.Sigma {
			first = i
		}
	}

	second := -1
	best := -1.0
	for i := range pool {
		if i == first {
			continue
		}
		q := e.MatchQuality(pool[first].Belief, pool[i].Belief)
		if q > best {
			best = q
			second = i
		}
	}

	return pool[first], pool[second], nil
}

func dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
