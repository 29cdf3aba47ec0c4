// Package lifecycle decides, for every generate or upscale request, which entry
// receives the new render, which seed it is rendered with and which job is emitted.
//
// The decision is a pure function of the source entry: Resolve never modifies its
// argument and returns the resulting entry by value, tagged InPlace or Forked.
// Callers persist the result and must serialise resolutions per entry id.
package lifecycle

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/jo-hoe/promptrank/internal/entry"
	"github.com/jo-hoe/promptrank/internal/rating"
	"github.com/jo-hoe/promptrank/internal/workflow"
)

// Operation is the curator's request.
type Operation string

const (
	Generate Operation = "generate"
	Upscale  Operation = "upscale"
)

// ParseOperation accepts "generate" and "upscale".
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case Generate, Upscale:
		return Operation(s), nil
	default:
		return "", fmt.Errorf("unknown operation %q", s)
	}
}

// Outcome tells the caller whether the source was replaced or a new entry was made.
type Outcome int

const (
	InPlace Outcome = iota + 1
	Forked
)

func (o Outcome) String() string {
	switch o {
	case InPlace:
		return "in_place"
	case Forked:
		return "forked"
	default:
		return "unknown"
	}
}

// Resolution is the result of Resolve.
type Resolution struct {
	Outcome Outcome
	Entry   entry.Entry
	Job     workflow.Job
	// SeedReused is set when the source seed was carried over instead of resampled.
	SeedReused bool
}

// SeedSource draws reproducibility seeds uniformly from [0, entry.MaxSeed].
type SeedSource func() int64

// RandomSeeds draws from math/rand/v2's global generator.
func RandomSeeds() SeedSource {
	return func() int64 {
		return rand.Int64N(entry.MaxSeed + 1)
	}
}

// JobBuilder turns a template kind plus parameters into a render job.
type JobBuilder interface {
	Build(kind workflow.Kind, params workflow.Params) (workflow.Job, error)
}

// Machine holds the collaborators of the decision function.
type Machine struct {
	prior rating.Belief
	jobs  JobBuilder
	seeds SeedSource
	newID func() string
}

// Option customises a Machine.
type Option func(*Machine)

func WithSeedSource(s SeedSource) Option {
	return func(m *Machine) { m.seeds = s }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// NewMachine creates a Machine that resets invalidated entries to prior.
func NewMachine(prior rating.Belief, jobs JobBuilder, opts ...Option) *Machine {
	m := &Machine{
		prior: prior,
		jobs:  jobs,
		seeds: RandomSeeds(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve decides target, seed and job for op on source. It fails only when the job
// builder does; a missing source is the caller's problem.
func (m *Machine) Resolve(source entry.Entry, op Operation) (Resolution, error) {
	src := source.Clone()

	kind := workflow.KindPlain
	if op == Upscale || src.Upscale == entry.IsUpscale {
		kind = workflow.KindUpscale
	}

	var res Resolution
	switch {
	case op == Upscale:
		res.Outcome = Forked
		res.Entry = entry.Entry{
			ID:           m.newID(),
			PromptText:   src.PromptText,
			OrigFilepath: src.Filepath,
			Upscale:      entry.IsUpscale,
			UpscaleOf:    src.ID,
			Quality:      m.prior,
		}
	case src.Status == entry.Broken || src.Deleted || !src.HasRender():
		res.Outcome = InPlace
		res.Entry = src.Clone()
		res.Entry.ClearRender()
		res.Entry.Quality = m.prior
	default:
		res.Outcome = Forked
		res.Entry = m.fork(src)
	}

	// Seed policy looks at the source as it was before this call.
	if src.Deleted && src.Seed != nil {
		res.Entry.SetSeed(*src.Seed)
		res.SeedReused = true
	} else {
		res.Entry.SetSeed(m.seeds())
	}
	res.Entry.Deleted = false

	job, err := m.jobs.Build(kind, workflow.ParamsFor(kind, res.Entry))
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to build job for %s: %w", src.ID, err)
	}
	res.Job = job
	return res, nil
}

func (m *Machine) fork(src entry.Entry) entry.Entry {
	out := entry.Entry{
		ID:           m.newID(),
		PromptText:   src.PromptText,
		OrigFilepath: src.OrigFilepath,
		Upscale:      entry.UpscaleNone,
		Quality:      m.prior,
	}
	if src.Upscale == entry.IsUpscale {
		out.Upscale = entry.IsUpscale
		out.UpscaleOf = src.UpscaleOf
	}
	return out
}
