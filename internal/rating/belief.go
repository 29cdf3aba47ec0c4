// Package rating holds the Gaussian quality model used to rank entries: beliefs,
// the two-player TrueSkill update and the pair selection policy built on top of it.
package rating

import (
	"fmt"
	"math"
)

// Belief is a Gaussian estimate of an entry's latent quality.
type Belief struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

// Validate rejects non-finite means and non-positive or non-finite spreads.
func (b Belief) Validate() error {
	if math.IsNaN(b.Mu) || math.IsInf(b.Mu, 0) {
		return fmt.Errorf("%w: mu %v is not finite", ErrInvalidBelief, b.Mu)
	}
	if math.IsNaN(b.Sigma) || math.IsInf(b.Sigma, 0) || b.Sigma <= 0 {
		return fmt.Errorf("%w: sigma %v must be finite and positive", ErrInvalidBelief, b.Sigma)
	}
	return nil
}

// Conservative returns mu - 3*sigma, the usual leaderboard score.
func (b Belief) Conservative() float64 {
	return b.Mu - 3*b.Sigma
}
