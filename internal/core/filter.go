package core

import (
	"strconv"
	"strings"

	"github.com/jo-hoe/promptrank/internal/entry"
)

// EntryFilter narrows an entry listing. Zero values mean "any".
type EntryFilter struct {
	Status  *entry.Status
	Deleted *bool
	Upscale entry.UpscaleState
	// Prompt matches a case-insensitive substring of the prompt text.
	Prompt string
	// Seed matches a substring of the decimal seed; entries without a seed never match.
	Seed string

	MinWidth, MaxWidth   int
	MinHeight, MaxHeight int
	MinMu, MaxMu         *float64
	MinSigma, MaxSigma   *float64
}

func (f EntryFilter) Match(e entry.Entry) bool {
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.Deleted != nil && e.Deleted != *f.Deleted {
		return false
	}
	if f.Upscale != "" && e.Upscale != f.Upscale {
		return false
	}
	if f.Prompt != "" && !strings.Contains(strings.ToLower(e.PromptText), strings.ToLower(f.Prompt)) {
		return false
	}
	if f.Seed != "" && (e.Seed == nil || !strings.Contains(strconv.FormatInt(*e.Seed, 10), f.Seed)) {
		return false
	}
	if !inIntRange(e.Width, f.MinWidth, f.MaxWidth) || !inIntRange(e.Height, f.MinHeight, f.MaxHeight) {
		return false
	}
	return inFloatRange(e.Quality.Mu, f.MinMu, f.MaxMu) && inFloatRange(e.Quality.Sigma, f.MinSigma, f.MaxSigma)
}

func inIntRange(v, lo, hi int) bool {
	return (lo == 0 || v >= lo) && (hi == 0 || v <= hi)
}

func inFloatRange(v float64, lo, hi *float64) bool {
	return (lo == nil || v >= *lo) && (hi == nil || v <= *hi)
}
