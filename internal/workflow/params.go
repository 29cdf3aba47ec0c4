package workflow

import (
	"fmt"
	"strings"
)

// GetStringParam safely extracts a string parameter from the params map
func GetStringParam(params map[string]any, key string, defaultValue string) string {
	if val, ok := params[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return defaultValue
}

// GetStringMapParam extracts a map of strings, as produced by a YAML mapping
func GetStringMapParam(params map[string]any, key string) map[string]string {
	out := map[string]string{}
	raw, ok := params[key]
	if !ok {
		return out
	}
	switch m := raw.(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// parseBindingPath splits "node.input" into its parts.
func parseBindingPath(path string) (Binding, error) {
	node, input, ok := strings.Cut(strings.TrimSpace(path), ".")
	if !ok || node == "" || input == "" {
		return Binding{}, fmt.Errorf("invalid binding %q (want node.input)", path)
	}
	return Binding{Node: node, Input: input}, nil
}
