package backend

import (
	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/promptrank/internal/core"
	"github.com/jo-hoe/promptrank/internal/entry"
)

// parseEntryFilter reads the listing filters from the query string. Absent parameters
// leave the filter open.
func parseEntryFilter(ctx echo.Context) (core.EntryFilter, error) {
	var (
		filter   core.EntryFilter
		status   string
		upscale  string
		deleted  bool
		minMu    float64
		maxMu    float64
		minSigma float64
		maxSigma float64
	)
	err := echo.QueryParamsBinder(ctx).
		String("status", &status).
		Bool("deleted", &deleted).
		String("upscale", &upscale).
		String("prompt", &filter.Prompt).
		String("seed", &filter.Seed).
		Int("min_width", &filter.MinWidth).
		Int("max_width", &filter.MaxWidth).
		Int("min_height", &filter.MinHeight).
		Int("max_height", &filter.MaxHeight).
		Float64("min_mu", &minMu).
		Float64("max_mu", &maxMu).
		Float64("min_sigma", &minSigma).
		Float64("max_sigma", &maxSigma).
		BindError()
	if err != nil {
		return core.EntryFilter{}, err
	}

	query := ctx.QueryParams()
	if status != "" {
		s, err := entry.ParseStatus(status)
		if err != nil {
			return core.EntryFilter{}, err
		}
		filter.Status = &s
	}
	if query.Has("deleted") {
		filter.Deleted = &deleted
	}
	if upscale != "" {
		filter.Upscale = entry.ParseUpscaleState(upscale)
	}
	optional := func(name string, v float64) *float64 {
		if !query.Has(name) {
			return nil
		}
		return &v
	}
	filter.MinMu = optional("min_mu", minMu)
	filter.MaxMu = optional("max_mu", maxMu)
	filter.MinSigma = optional("min_sigma", minSigma)
	filter.MaxSigma = optional("max_sigma", maxSigma)
	return filter, nil
}
