package backend

import (
	"strings"

	"github.com/jo-hoe/promptrank/internal/entry"
)

// EntryResponse is the wire form of an entry. Broken is null while the entry is
// unmarked.
type EntryResponse struct {
	ID           string  `json:"id"`
	PromptText   string  `json:"prompt_text"`
	Filepath     string  `json:"filepath"`
	OrigFilepath string  `json:"orig_filepath"`
	Broken       *bool   `json:"broken"`
	Upscale      string  `json:"upscale"`
	UpscaleOf    string  `json:"upscale_of,omitempty"`
	ScoreMu      float64 `json:"score_mu"`
	ScoreSigma   float64 `json:"score_sigma"`
	Deleted      bool    `json:"deleted"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	Seed         *int64  `json:"seed"`
}

type PairRequest struct {
	IDs []string `json:"ids"`
}

type PairResponse struct {
	A *EntryResponse `json:"a,omitempty"`
	B *EntryResponse `json:"b,omitempty"`
}

// UpdateRequest carries either winner and loser or a two-element draw.
type UpdateRequest struct {
	Winner string   `json:"winner"`
	Loser  string   `json:"loser"`
	Draw   []string `json:"draw" validate:"omitempty,len=2,dive,required"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=good broken unmarked"`
}

// StreamMessage is one frame of a job stream.
type StreamMessage struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    *EntryResponse `json:"data,omitempty"`
}

const (
	streamProgress = "progress"
	streamResult   = "result"
	streamError    = "error"
)

// imageURL maps a stored render reference to the URL clients load it from.
func imageURL(baseURL, ref string) string {
	if ref == "" {
		return ""
	}
	if baseURL == "" {
		baseURL = "/images"
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(ref, "/")
}

func toEntryResponse(e entry.Entry, baseURL string) EntryResponse {
	out := EntryResponse{
		ID:           e.ID,
		PromptText:   e.PromptText,
		Filepath:     imageURL(baseURL, e.Filepath),
		OrigFilepath: imageURL(baseURL, e.OrigFilepath),
		Upscale:      string(e.Upscale),
		UpscaleOf:    e.UpscaleOf,
		ScoreMu:      e.Quality.Mu,
		ScoreSigma:   e.Quality.Sigma,
		Deleted:      e.Deleted,
		Width:        e.Width,
		Height:       e.Height,
	}
	if out.Upscale == "" {
		out.Upscale = string(entry.UpscaleNone)
	}
	if e.Status != entry.Unmarked {
		broken := e.Status == entry.Broken
		out.Broken = &broken
	}
	if e.Seed != nil {
		seed := *e.Seed
		out.Seed = &seed
	}
	return out
}

func toEntryResponses(entries []entry.Entry, baseURL string) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(e, baseURL)
	}
	return out
}
