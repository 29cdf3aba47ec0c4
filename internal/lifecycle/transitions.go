package lifecycle

import (
	"errors"
	"fmt"

	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/rating"
)

// ErrGenerationResult reports a finished job that did not produce exactly one output.
var ErrGenerationResult = errors.New("generation result error")

// Output is one file reported by the renderer. Zero dimensions mean unknown.
type Output struct {
	Ref    string
	Width  int
	Height int
}

// ApplyJobResult records the render of a finished job. On error e is returned
// unchanged, so its render fields stay unset.
func ApplyJobResult(e entry.Entry, outputs []Output) (entry.Entry, error) {
	if len(outputs) != 1 {
		return e, fmt.Errorf("%w: entry %s expected 1 output, got %d", ErrGenerationResult, e.ID, len(outputs))
	}
	out := outputs[0]
	if out.Ref == "" {
		return e, fmt.Errorf("%w: entry %s got an empty output reference", ErrGenerationResult, e.ID)
	}
	next := e.Clone()
	next.Filepath = out.Ref
	next.Width = out.Width
	next.Height = out.Height
	return next, nil
}

// LinkUpscale marks the origin of a finished upscale. Entries that are already part
// of a lineage keep their state.
func LinkUpscale(origin entry.Entry) (entry.Entry, bool) {
	if origin.Upscale != entry.UpscaleNone && origin.Upscale != "" {
		return origin, false
	}
	next := origin.Clone()
	next.Upscale = entry.HasUpscale
	return next, true
}

// ToggleBroken flips the curator verdict on the current render.
func ToggleBroken(e entry.Entry) entry.Entry {
	next := e.Clone()
	next.Status = e.Status.Toggled()
	return next
}

// SetStatus records an explicit verdict.
func SetStatus(e entry.Entry, s entry.Status) entry.Entry {
	next := e.Clone()
	next.Status = s
	return next
}

// Delete soft-deletes e: the render goes, the seed stays for a later regenerate.
func Delete(e entry.Entry, prior rating.Belief) entry.Entry {
	next := e.Clone()
	next.Deleted = true
	next.ClearRender()
	next.Quality = prior
	return next
}
