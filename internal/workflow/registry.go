package workflow

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

//go:embed defaults/*.json
var defaultsFS embed.FS

// TemplateConfig describes one template as configured in YAML. Params carries the
// optional keys "bindings" (field -> node.input), "resolution" and "orientation".
type TemplateConfig struct {
	Kind             string         `yaml:"kind"`
	Path             string         `yaml:"path"`
	OutputNamePrefix string         `yaml:"outputNamePrefix"`
	Params           map[string]any `yaml:",inline"`
}

// Registry manages the templates available for job building, keyed by kind
type Registry struct {
	templates map[Kind]*Template
}

// NewRegistry creates an empty template registry
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[Kind]*Template),
	}
}

// Register adds a template to the registry
func (r *Registry) Register(t *Template) error {
	if t == nil {
		return fmt.Errorf("template cannot be nil")
	}
	if _, exists := r.templates[t.Kind()]; exists {
		return fmt.Errorf("template %s is already registered", t.Kind())
	}
	r.templates[t.Kind()] = t
	slog.Debug("workflow: template registered", "kind", t.Kind(), "fields", t.Fields())
	return nil
}

// Build creates the job for kind with the given parameters
func (r *Registry) Build(kind Kind, params Params) (Job, error) {
	t, exists := r.templates[kind]
	if !exists {
		return Job{}, fmt.Errorf("unknown template kind: %s", kind)
	}
	job, err := t.Build(params)
	if err != nil {
		return Job{}, fmt.Errorf("failed to build %s job: %w", kind, err)
	}
	return job, nil
}

// IsRegistered checks if a template for kind is registered
func (r *Registry) IsRegistered(kind Kind) bool {
	_, exists := r.templates[kind]
	return exists
}

// GetRegisteredKinds returns all registered kinds, sorted
func (r *Registry) GetRegisteredKinds() []Kind {
	kinds := make([]Kind, 0, len(r.templates))
	for kind := range r.templates {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

var defaultBindings = map[Kind]map[Field]string{
	KindPlain: {
		FieldPrompt:       "1.positive",
		FieldSeed:         "1.seed",
		FieldResolution:   "1.resolution",
		FieldOrientation:  "1.orientation",
		FieldOutputPrefix: "2.filename_prefix",
	},
	KindUpscale: {
		FieldPrompt:       "1.positive",
		FieldSeed:         "1.seed",
		FieldResolution:   "1.resolution",
		FieldOrientation:  "1.orientation",
		FieldOutputPrefix: "2.filename_prefix",
		FieldInputImage:   "3.image",
	},
}

var defaultPrefixes = map[Kind]string{
	KindPlain:   "FluxBatch",
	KindUpscale: "UpscaleBatch",
}

// NewDefaultRegistry registers the embedded plain and upscale templates.
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistryFromConfig(nil)
}

// NewRegistryFromConfig builds a registry from configured templates. Kinds without an
// entry fall back to the embedded defaults.
func NewRegistryFromConfig(configs []TemplateConfig) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range configs {
		t, err := loadTemplate(cfg)
		if err != nil {
			return nil, err
		}
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	for _, kind := range []Kind{KindPlain, KindUpscale} {
		if r.IsRegistered(kind) {
			continue
		}
		t, err := loadTemplate(TemplateConfig{Kind: string(kind)})
		if err != nil {
			return nil, err
		}
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func loadTemplate(cfg TemplateConfig) (*Template, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(cfg.Kind)))
	if kind != KindPlain && kind != KindUpscale {
		return nil, fmt.Errorf("unsupported template kind: %q", cfg.Kind)
	}

	var (
		data []byte
		err  error
	)
	if cfg.Path != "" {
		data, err = os.ReadFile(cfg.Path)
	} else {
		data, err = defaultsFS.ReadFile("defaults/" + string(kind) + ".json")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", kind, err)
	}
	graph, err := ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", kind, err)
	}

	bindings := make(map[Field]string)
	for f, path := range defaultBindings[kind] {
		bindings[f] = path
	}
	for f, path := range GetStringMapParam(cfg.Params, "bindings") {
		bindings[Field(f)] = path
	}

	prefix := cfg.OutputNamePrefix
	if prefix == "" {
		prefix = defaultPrefixes[kind]
	}

	return NewTemplate(kind, graph, bindings, prefix, WithAspect(
		GetStringParam(cfg.Params, "resolution", ""),
		GetStringParam(cfg.Params, "orientation", ""),
	))
}
