package workflow

import "github.com/jo-hoe/promptrank/internal/entry"

// Kind selects the render template.
type Kind string

const (
	KindPlain   Kind = "plain"
	KindUpscale Kind = "upscale"
)

// Params are the per-request values substituted into a template.
type Params struct {
	PromptText    string
	Seed          int64
	InputImageRef string
}

// Job is a render request for the external renderer. InputImageRef is only set for
// upscale jobs. Payload is a private copy of the template graph with all bound
// fields filled in.
type Job struct {
	Kind             Kind   `json:"kind"`
	PromptText       string `json:"prompt_text"`
	Seed             int64  `json:"seed"`
	InputImageRef    string `json:"input_image_ref,omitempty"`
	OutputNamePrefix string `json:"output_name_prefix"`
	Payload          Graph  `json:"payload"`
}

// ParamsFor derives job parameters from a resolved entry.
func ParamsFor(kind Kind, e entry.Entry) Params {
	p := Params{PromptText: e.PromptText}
	if e.Seed != nil {
		p.Seed = *e.Seed
	}
	if kind == KindUpscale {
		p.InputImageRef = e.OrigFilepath
	}
	return p
}
