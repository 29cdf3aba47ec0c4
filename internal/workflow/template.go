package workflow

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/jo-hoe/promptrank/internal/entry"
)

// Field names a logical job value that a template binds to a node input.
type Field string

const (
	FieldPrompt       Field = "prompt"
	FieldSeed         Field = "seed"
	FieldInputImage   Field = "inputImage"
	FieldOutputPrefix Field = "outputPrefix"
	FieldResolution   Field = "resolution"
	FieldOrientation  Field = "orientation"
)

var knownFields = []Field{FieldPrompt, FieldSeed, FieldInputImage, FieldOutputPrefix, FieldResolution, FieldOrientation}

// Aspect parameters are fixed until orientation is derived from the source image.
const (
	defaultResolution  = "16:9"
	defaultOrientation = "landscape"
)

// Binding points a field at one input of one node.
type Binding struct {
	Node  string
	Input string
}

// Template is an immutable render graph plus the bindings used to fill it.
type Template struct {
	kind         Kind
	graph        Graph
	bindings     map[Field]Binding
	outputPrefix string
	resolution   string
	orientation  string
}

// TemplateOption customises a template at construction time.
type TemplateOption func(*Template)

// WithAspect overrides the fixed resolution and orientation placeholders.
func WithAspect(resolution, orientation string) TemplateOption {
	return func(t *Template) {
		if resolution != "" {
			t.resolution = resolution
		}
		if orientation != "" {
			t.orientation = orientation
		}
	}
}

// NewTemplate validates the bindings against graph and takes a private copy of it.
// bindings maps field names to "node.input" paths.
func NewTemplate(kind Kind, graph Graph, bindings map[Field]string, outputPrefix string, opts ...TemplateOption) (*Template, error) {
	if kind == "" {
		return nil, fmt.Errorf("template kind cannot be empty")
	}
	if outputPrefix == "" {
		return nil, fmt.Errorf("template %s has empty output prefix", kind)
	}

	for f := range bindings {
		if !slices.Contains(knownFields, f) {
			return nil, fmt.Errorf("template %s binds unknown field %q, known fields are %v", kind, f, knownFields)
		}
	}

	required := []Field{FieldPrompt, FieldSeed, FieldOutputPrefix}
	if kind == KindUpscale {
		required = append(required, FieldInputImage)
	}
	for _, f := range required {
		if _, ok := bindings[f]; !ok {
			return nil, fmt.Errorf("template %s is missing binding for %s", kind, f)
		}
	}

	t := &Template{
		kind:         kind,
		graph:        graph.Clone(),
		bindings:     make(map[Field]Binding, len(bindings)),
		outputPrefix: outputPrefix,
		resolution:   defaultResolution,
		orientation:  defaultOrientation,
	}
	for f, path := range bindings {
		b, err := parseBindingPath(path)
		if err != nil {
			return nil, fmt.Errorf("template %s field %s: %w", kind, f, err)
		}
		node, ok := t.graph[b.Node]
		if !ok {
			return nil, fmt.Errorf("template %s field %s: node %q not in graph", kind, f, b.Node)
		}
		if node.Inputs == nil {
			node.Inputs = map[string]any{}
			t.graph[b.Node] = node
		}
		t.bindings[f] = b
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Template) Kind() Kind {
	return t.kind
}

// Fields lists the bound fields in a stable order.
func (t *Template) Fields() []Field {
	return slices.Sorted(maps.Keys(t.bindings))
}

// Build fills a fresh copy of the graph. The template itself is never modified.
func (t *Template) Build(p Params) (Job, error) {
	if p.Seed < 0 || p.Seed > entry.MaxSeed {
		return Job{}, fmt.Errorf("seed %d outside [0, %d]", p.Seed, entry.MaxSeed)
	}
	if t.kind == KindUpscale && p.InputImageRef == "" {
		return Job{}, fmt.Errorf("upscale job requires an input image")
	}

	graph := t.graph.Clone()
	values := map[Field]any{
		FieldPrompt:       p.PromptText,
		FieldSeed:         p.Seed,
		FieldOutputPrefix: t.outputPrefix,
		FieldResolution:   t.resolution,
		FieldOrientation:  t.orientation,
	}
	if t.kind == KindUpscale {
		values[FieldInputImage] = p.InputImageRef
	}
	for f, v := range values {
		b, ok := t.bindings[f]
		if !ok {
			continue
		}
		graph[b.Node].Inputs[b.Input] = v
	}

	job := Job{
		Kind:             t.kind,
		PromptText:       p.PromptText,
		Seed:             p.Seed,
		OutputNamePrefix: t.outputPrefix,
		Payload:          graph,
	}
	if t.kind == KindUpscale {
		job.InputImageRef = p.InputImageRef
	}
	slog.Debug("workflow: built job", "kind", t.kind, "seed", p.Seed, "prefix", t.outputPrefix)
	return job, nil
}
