package workflow

import (
	"testing"
)

func TestGetStringParam(t *testing.T) {
	params := map[string]any{
		"key1": "value1",
		"key2": 123,
	}

	// Test existing string parameter
	if val := GetStringParam(params, "key1", "default"); val != "value1" {
		t.Errorf("Expected 'value1', got '%s'", val)
	}

	// Test non-string parameter
	if val := GetStringParam(params, "key2", "default"); val != "default" {
		t.Errorf("Expected 'default', got '%s'", val)
	}

	// Test non-existent parameter
	if val := GetStringParam(params, "key3", "default"); val != "default" {
		t.Errorf("Expected 'default', got '%s'", val)
	}
}

func TestGetStringMapParam(t *testing.T) {
	params := map[string]any{
		"yaml":  map[string]any{"prompt": "4.text", "seed": 5},
		"typed": map[string]string{"seed": "4.noise_seed"},
		"wrong": "not-a-map",
	}

	got := GetStringMapParam(params, "yaml")
	if len(got) != 1 || got["prompt"] != "4.text" {
		t.Errorf("Expected only the string entry, got %v", got)
	}

	got = GetStringMapParam(params, "typed")
	if got["seed"] != "4.noise_seed" {
		t.Errorf("Expected typed map to be copied, got %v", got)
	}

	if got := GetStringMapParam(params, "wrong"); len(got) != 0 {
		t.Errorf("Expected empty map for non-map value, got %v", got)
	}
	if got := GetStringMapParam(params, "missing"); len(got) != 0 {
		t.Errorf("Expected empty map for missing key, got %v", got)
	}
}

func TestParseBindingPath(t *testing.T) {
	b, err := parseBindingPath(" 12.filename_prefix ")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if b.Node != "12" || b.Input != "filename_prefix" {
		t.Errorf("Unexpected binding %+v", b)
	}

	for _, bad := range []string{"", "12", ".seed", "12."} {
		if _, err := parseBindingPath(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
