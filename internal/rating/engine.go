package rating

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Below this the normal CDF is treated as zero and the v/w functions fall back to
// their asymptotic forms.
const minCDF = 1e-300

// Config holds the constants of the rating model.
type Config struct {
	Mu              float64 `yaml:"mu"`
	Sigma           float64 `yaml:"sigma"`
	Beta            float64 `yaml:"beta"`
	Tau             float64 `yaml:"tau"`
	DrawProbability float64 `yaml:"drawProbability"`
	MinSigma        float64 `yaml:"minSigma"`
}

// DefaultConfig returns the classic TrueSkill constants.
func DefaultConfig() Config {
	return Config{
		Mu:              25,
		Sigma:           25.0 / 3,
		Beta:            25.0 / 6,
		Tau:             25.0 / 300,
		DrawProbability: 0.1,
		MinSigma:        0.01,
	}
}

// Validate checks that the constants describe a usable model.
func (c Config) Validate() error {
	if err := (Belief{Mu: c.Mu, Sigma: c.Sigma}).Validate(); err != nil {
		return fmt.Errorf("invalid prior: %w", err)
	}
	if !(c.Beta > 0) || math.IsInf(c.Beta, 0) {
		return fmt.Errorf("beta must be positive, got %v", c.Beta)
	}
	if !(c.Tau >= 0) || math.IsInf(c.Tau, 0) {
		return fmt.Errorf("tau must be non-negative, got %v", c.Tau)
	}
	if !(c.DrawProbability >= 0 && c.DrawProbability < 1) {
		return fmt.Errorf("drawProbability must be in [0, 1), got %v", c.DrawProbability)
	}
	if !(c.MinSigma > 0) || c.MinSigma > c.Sigma {
		return fmt.Errorf("minSigma must be in (0, sigma], got %v", c.MinSigma)
	}
	return nil
}

// Engine applies pairwise outcomes to beliefs. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg        Config
	drawMargin float64
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rating config: %w", err)
	}
	return &Engine{
		cfg:        cfg,
		drawMargin: distuv.UnitNormal.Quantile((cfg.DrawProbability+1)/2) * math.Sqrt2 * cfg.Beta,
	}, nil
}

// Prior is the belief assigned to new or invalidated entries.
func (e *Engine) Prior() Belief {
	return Belief{Mu: e.cfg.Mu, Sigma: e.cfg.Sigma}
}

// DrawMargin is the performance difference below which a comparison counts as a draw.
func (e *Engine) DrawMargin() float64 {
	return e.drawMargin
}

// Update returns the posterior beliefs of a and b after the given outcome.
func (e *Engine) Update(a, b Belief, outcome Outcome) (Belief, Belief, error) {
	if err := a.Validate(); err != nil {
		return a, b, fmt.Errorf("first belief: %w", err)
	}
	if err := b.Validate(); err != nil {
		return a, b, fmt.Errorf("second belief: %w", err)
	}

	switch outcome {
	case AWins:
		winner, loser := e.win(a, b)
		return winner, loser, nil
	case BWins:
		winner, loser := e.win(b, a)
		return loser, winner, nil
	case Draw:
		a2, b2 := e.draw(a, b)
		return a2, b2, nil
	default:
		return a, b, fmt.Errorf("%w: %v", ErrInvalidOutcome, outcome)
	}
}

// MatchQuality is the 1-vs-1 draw likelihood of a and b, in (0, 1]. Higher means
// a closer, more informative comparison.
func (e *Engine) MatchQuality(a, b Belief) float64 {
	beta2 := 2 * e.cfg.Beta * e.cfg.Beta
	c2 := beta2 + a.Sigma*a.Sigma + b.Sigma*b.Sigma
	d := a.Mu - b.Mu
	return math.Sqrt(beta2/c2) * math.Exp(-d*d/(2*c2))
}

func (e *Engine) win(winner, loser Belief) (Belief, Belief) {
	wVar := e.dynamicVariance(winner)
	lVar := e.dynamicVariance(loser)
	c := math.Sqrt(2*e.cfg.Beta*e.cfg.Beta + wVar + lVar)
	t := (winner.Mu - loser.Mu) / c
	eps := e.drawMargin / c

	v := vWin(t, eps)
	w := wWin(t, eps)

	return Belief{
			Mu:    winner.Mu + wVar/c*v,
			Sigma: e.shrink(winner.Sigma, wVar, c, w),
		}, Belief{
			Mu:    loser.Mu - lVar/c*v,
			Sigma: e.shrink(loser.Sigma, lVar, c, w),
		}
}

func (e *Engine) draw(a, b Belief) (Belief, Belief) {
	aVar := e.dynamicVariance(a)
	bVar := e.dynamicVariance(b)
	c := math.Sqrt(2*e.cfg.Beta*e.cfg.Beta + aVar + bVar)
	t := (a.Mu - b.Mu) / c
	eps := e.drawMargin / c

	v := vDraw(t, eps)
	w := wDraw(t, eps)

	return Belief{
			Mu:    a.Mu + aVar/c*v,
			Sigma: e.shrink(a.Sigma, aVar, c, w),
		}, Belief{
			Mu:    b.Mu - bVar/c*v,
			Sigma: e.shrink(b.Sigma, bVar, c, w),
		}
}

func (e *Engine) dynamicVariance(b Belief) float64 {
	return b.Sigma*b.Sigma + e.cfg.Tau*e.cfg.Tau
}

// shrink never returns more than the pre-update sigma and never goes below the floor.
func (e *Engine) shrink(old, variance, c, w float64) float64 {
	next := math.Sqrt(variance * math.Max(0, 1-variance/(c*c)*w))
	return math.Min(old, math.Max(e.cfg.MinSigma, next))
}

func vWin(t, eps float64) float64 {
	x := t - eps
	denom := distuv.UnitNormal.CDF(x)
	if denom < minCDF {
		return -x
	}
	return distuv.UnitNormal.Prob(x) / denom
}

func wWin(t, eps float64) float64 {
	x := t - eps
	if distuv.UnitNormal.CDF(x) < minCDF {
		if x < 0 {
			return 1
		}
		return 0
	}
	v := vWin(t, eps)
	return clampUnit(v * (v + x))
}

// vDraw is odd in t: a positive difference pulls the first mean down.
func vDraw(t, eps float64) float64 {
	abs := math.Abs(t)
	hi, lo := eps-abs, -eps-abs
	denom := distuv.UnitNormal.CDF(hi) - distuv.UnitNormal.CDF(lo)
	v := hi
	if denom >= minCDF {
		v = (distuv.UnitNormal.Prob(lo) - distuv.UnitNormal.Prob(hi)) / denom
	}
	if t < 0 {
		return -v
	}
	return v
}

func wDraw(t, eps float64) float64 {
	abs := math.Abs(t)
	hi, lo := eps-abs, -eps-abs
	denom := distuv.UnitNormal.CDF(hi) - distuv.UnitNormal.CDF(lo)
	if denom < minCDF {
		return 1
	}
	v := vDraw(abs, eps)
	return clampUnit(v*v + (hi*distuv.UnitNormal.Prob(hi)-lo*distuv.UnitNormal.Prob(lo))/denom)
}

func clampUnit(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
