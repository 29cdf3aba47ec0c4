package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/promptrank/internal/entry"
)

func mustPlainTemplate(t *testing.T) *Template {
	t.Helper()
	graph, err := ParseGraph([]byte(`{
		"1": {"class_type": "Sampler", "inputs": {"positive": "", "seed": 0, "links": ["3", 0]}},
		"2": {"class_type": "SaveImage", "inputs": {"filename_prefix": ""}}
	}`))
	require.NoError(t, err)
	tmpl, err := NewTemplate(KindPlain, graph, map[Field]string{
		FieldPrompt:       "1.positive",
		FieldSeed:         "1.seed",
		FieldOutputPrefix: "2.filename_prefix",
	}, "Batch")
	require.NoError(t, err)
	return tmpl
}

func TestTemplate_BuildDoesNotShareState(t *testing.T) {
	tmpl := mustPlainTemplate(t)

	first, err := tmpl.Build(Params{PromptText: "one", Seed: 1})
	require.NoError(t, err)

	// Scribble over everything the first job handed out.
	first.Payload["1"].Inputs["positive"] = "tampered"
	first.Payload["1"].Inputs["links"].([]any)[0] = "tampered"
	delete(first.Payload, "2")

	second, err := tmpl.Build(Params{PromptText: "two", Seed: 2})
	require.NoError(t, err)

	assert.Equal(t, "two", second.Payload["1"].Inputs["positive"])
	assert.Equal(t, int64(2), second.Payload["1"].Inputs["seed"])
	assert.Equal(t, "3", second.Payload["1"].Inputs["links"].([]any)[0])
	assert.Contains(t, second.Payload, "2")
	assert.Equal(t, "", tmpl.graph["1"].Inputs["positive"])
}

func TestTemplate_SourceGraphIsCopied(t *testing.T) {
	graph, err := ParseGraph([]byte(`{"1": {"class_type": "X", "inputs": {"p": "", "s": 0}}}`))
	require.NoError(t, err)
	tmpl, err := NewTemplate(KindPlain, graph, map[Field]string{
		FieldPrompt: "1.p", FieldSeed: "1.s", FieldOutputPrefix: "1.o",
	}, "Out")
	require.NoError(t, err)

	graph["1"].Inputs["p"] = "changed after registration"

	job, err := tmpl.Build(Params{PromptText: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "mine", job.Payload["1"].Inputs["p"])
	assert.Equal(t, "Out", job.Payload["1"].Inputs["o"])
}

func TestTemplate_RejectsSeedOutOfRange(t *testing.T) {
	tmpl := mustPlainTemplate(t)
	_, err := tmpl.Build(Params{Seed: entry.MaxSeed + 1})
	assert.Error(t, err)
	_, err = tmpl.Build(Params{Seed: -1})
	assert.Error(t, err)
	_, err = tmpl.Build(Params{Seed: entry.MaxSeed})
	assert.NoError(t, err)
}

func TestNewTemplate_RequiresBindings(t *testing.T) {
	graph := Graph{"1": {ClassType: "X", Inputs: map[string]any{}}}

	_, err := NewTemplate(KindUpscale, graph, map[Field]string{
		FieldPrompt: "1.p", FieldSeed: "1.s", FieldOutputPrefix: "1.o",
	}, "Up")
	assert.Error(t, err, "upscale needs an input image binding")

	_, err = NewTemplate(KindPlain, graph, map[Field]string{FieldPrompt: "1.p"}, "Out")
	assert.Error(t, err)

	_, err = NewTemplate(KindPlain, graph, map[Field]string{
		FieldPrompt: "1.p", FieldSeed: "1.s", FieldOutputPrefix: "1.o",
	}, "")
	assert.Error(t, err, "empty prefix")
}

func TestNewTemplate_RejectsUnknownField(t *testing.T) {
	graph := Graph{"1": {ClassType: "X", Inputs: map[string]any{}}}

	_, err := NewTemplate(KindPlain, graph, map[Field]string{
		FieldPrompt: "1.p", FieldSeed: "1.s", FieldOutputPrefix: "1.o",
		Field("prompt_text"): "1.q",
	}, "Out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt_text")
}

func TestTemplate_Fields(t *testing.T) {
	tmpl := mustPlainTemplate(t)
	assert.Equal(t, []Field{FieldOutputPrefix, FieldPrompt, FieldSeed}, tmpl.Fields())
}

func TestJob_PayloadSerialises(t *testing.T) {
	tmpl := mustPlainTemplate(t)
	job, err := tmpl.Build(Params{PromptText: "fox", Seed: 99})
	require.NoError(t, err)

	data, err := json.Marshal(job.Payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"seed":99`)
	assert.Contains(t, string(data), `"class_type":"SaveImage"`)
}

func TestParamsFor(t *testing.T) {
	e := entry.Entry{ID: "a", PromptText: "p", OrigFilepath: "orig.png"}
	e.SetSeed(5)

	plain := ParamsFor(KindPlain, e)
	assert.Equal(t, Params{PromptText: "p", Seed: 5}, plain)

	up := ParamsFor(KindUpscale, e)
	assert.Equal(t, "orig.png", up.InputImageRef)
}
