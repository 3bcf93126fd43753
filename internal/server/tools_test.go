package server

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()
	if len(tools) != 11 {
		t.Fatalf("tool count: got %d, want 11", len(tools))
	}

	seen := make(map[string]bool)
	for _, tool := range tools {
		if tool.Name == "" {
			t.Error("tool with empty name")
		}
		if seen[tool.Name] {
			t.Errorf("duplicate tool name %q", tool.Name)
		}
		seen[tool.Name] = true

		if tool.Description == "" {
			t.Errorf("%s: empty description", tool.Name)
		}
		if tool.InputSchema["type"] != "object" {
			t.Errorf("%s: schema type is %v, want object", tool.Name, tool.InputSchema["type"])
		}
		if _, ok := tool.InputSchema["properties"]; !ok {
			t.Errorf("%s: schema has no properties", tool.Name)
		}
	}
}

func TestToolDefinitionsMatchDispatch(t *testing.T) {
	// Every advertised tool must dispatch to a handler: an unknown name
	// fails with "unknown tool", anything else fails later (or succeeds).
	s := newTestServer()
	for _, tool := range GetToolDefinitions() {
		_, err := s.executeTool(tool.Name, json.RawMessage(`{"path":"/nonexistent"}`))
		if err != nil && strings.Contains(err.Error(), "unknown tool") {
			t.Errorf("advertised tool %q has no dispatch entry", tool.Name)
		}
	}
}

func TestToolDefinitionsSerializable(t *testing.T) {
	data, err := json.Marshal(GetToolDefinitions())
	if err != nil {
		t.Fatalf("tool definitions must serialize: %v", err)
	}
	if !strings.Contains(string(data), `"inputSchema"`) {
		t.Error("serialized definitions missing inputSchema key")
	}
}

func TestRequiredFieldsDeclared(t *testing.T) {
	required := map[string][]string{
		"field_load":       {"path"},
		"detect_sources":   {"path"},
		"pixel_to_sky":     {"positions"},
		"sky_to_pixel":     {"positions"},
		"export_catalog":   {"path", "output"},
		"render_overlay":   {"path", "output"},
		"render_heatmap":   {"path", "output"},
		"strip_distortion": {"path"},
	}

	byName := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		byName[tool.Name] = tool
	}

	for name, want := range required {
		tool, ok := byName[name]
		if !ok {
			t.Errorf("tool %q missing", name)
			continue
		}
		got, _ := tool.InputSchema["required"].([]string)
		if len(got) != len(want) {
			t.Errorf("%s: required = %v, want %v", name, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: required = %v, want %v", name, got, want)
				break
			}
		}
	}
}
