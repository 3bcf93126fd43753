package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "starfield.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigSparseOverlay(t *testing.T) {
	path := writeConfig(t, "min_pixels = 12\noverlay = \"out.png\"\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.MinPixels != 12 {
		t.Errorf("MinPixels = %d, want 12", cfg.MinPixels)
	}
	if cfg.OverlayPath != "out.png" {
		t.Errorf("OverlayPath = %q, want out.png", cfg.OverlayPath)
	}
	// Keys not in the file keep their defaults.
	if cfg.Sigma != 3.0 {
		t.Errorf("Sigma = %v, want default 3.0", cfg.Sigma)
	}
	if cfg.Connectivity != 8 {
		t.Errorf("Connectivity = %d, want default 8", cfg.Connectivity)
	}
	if !cfg.Deblend {
		t.Error("Deblend should default to true")
	}
}

func TestLoadConfigThresholdDisablesSigma(t *testing.T) {
	path := writeConfig(t, "threshold = 42.5\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Threshold != 42.5 {
		t.Errorf("Threshold = %v, want 42.5", cfg.Threshold)
	}
	if cfg.Sigma != 0 {
		t.Errorf("Sigma = %v, want 0 when threshold is explicit", cfg.Sigma)
	}
}

func TestLoadConfigExplicitFalse(t *testing.T) {
	// deblend = false must override the true default even though false
	// is the zero value.
	path := writeConfig(t, "deblend = false\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Deblend {
		t.Error("Deblend = true, want false from config file")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad connectivity", "connectivity = 6\n", "connectivity"},
		{"zero min pixels", "min_pixels = 0\n", "min_pixels"},
		{"no threshold", "sigma = 0.0\n", "sigma or threshold"},
		{"bad toml", "min_pixels = = 3\n", "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			_, err := loadConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
