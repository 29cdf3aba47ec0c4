// Package entry defines the tracked image-generation item and its small closed enums.
package entry

import (
	"fmt"

	"github.com/jo-hoe/promptrank/internal/rating"
)

// MaxSeed is the largest reproducibility seed accepted by the renderer (31 bits).
const MaxSeed int64 = 1<<31 - 1

// Status is the curator's verdict on the current render.
type Status int

const (
	Unmarked Status = iota
	Good
	Broken
)

func (s Status) String() string {
	switch s {
	case Good:
		return "good"
	case Broken:
		return "broken"
	default:
		return "unmarked"
	}
}

// ParseStatus accepts the names produced by String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "unmarked", "":
		return Unmarked, nil
	case "good":
		return Good, nil
	case "broken":
		return Broken, nil
	default:
		return Unmarked, fmt.Errorf("unknown status %q", s)
	}
}

// Toggled flips Good and Broken. An unmarked entry becomes Broken.
func (s Status) Toggled() Status {
	if s == Broken {
		return Good
	}
	return Broken
}

// UpscaleState records an entry's place in an upscale lineage.
type UpscaleState string

const (
	UpscaleNone UpscaleState = "none"
	IsUpscale   UpscaleState = "is_upscale"
	HasUpscale  UpscaleState = "has_upscale"
)

// ParseUpscaleState maps catalogue and wire values; anything unknown is UpscaleNone.
func ParseUpscaleState(s string) UpscaleState {
	switch UpscaleState(s) {
	case IsUpscale:
		return IsUpscale
	case HasUpscale:
		return HasUpscale
	default:
		return UpscaleNone
	}
}

// Entry is one tracked image. Empty strings and zero dimensions mean absent.
type Entry struct {
	ID           string
	PromptText   string
	Filepath     string
	OrigFilepath string
	Status       Status
	Deleted      bool
	Upscale      UpscaleState
	UpscaleOf    string
	Quality      rating.Belief
	Width        int
	Height       int
	Seed         *int64
}

// HasRender reports whether the entry currently points at a rendered file.
func (e Entry) HasRender() bool {
	return e.Filepath != ""
}

// ClearRender drops the render and its dimensions together.
func (e *Entry) ClearRender() {
	e.Filepath = ""
	e.Width = 0
	e.Height = 0
}

// SetSeed stores a copy of seed.
func (e *Entry) SetSeed(seed int64) {
	e.Seed = &seed
}

// Clone returns a deep copy that shares no memory with e.
func (e Entry) Clone() Entry {
	out := e
	if e.Seed != nil {
		out.SetSeed(*e.Seed)
	}
	return out
}

// Validate checks the structural invariants of an entry.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entry has empty id")
	}
	if !e.HasRender() && (e.Width != 0 || e.Height != 0) {
		return fmt.Errorf("entry %s has dimensions without a render", e.ID)
	}
	if e.Upscale == IsUpscale && e.OrigFilepath == "" {
		return fmt.Errorf("entry %s is an upscale without an original", e.ID)
	}
	if e.Seed != nil && (*e.Seed < 0 || *e.Seed > MaxSeed) {
		return fmt.Errorf("entry %s has seed %d outside [0, %d]", e.ID, *e.Seed, MaxSeed)
	}
	if e.Quality.Sigma < 0 {
		return fmt.Errorf("entry %s has negative sigma", e.ID)
	}
	return nil
}
