package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if cfg.Tracker.DuplicateThreshold != 0.6 {
		t.Errorf("DuplicateThreshold = %v, want 0.6", cfg.Tracker.DuplicateThreshold)
	}
	if cfg.Face.ProcessEveryN != 2 {
		t.Errorf("ProcessEveryN = %d, want 2", cfg.Face.ProcessEveryN)
	}
	if cfg.Transcript.MaxSegments != 100 {
		t.Errorf("MaxSegments = %d, want 100", cfg.Transcript.MaxSegments)
	}
	if cfg.Messaging.Lookback != 15*time.Second {
		t.Errorf("Lookback = %v, want 15s", cfg.Messaging.Lookback)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facegift.yaml")

	yamlData := `
data_dir: ` + dir + `
server:
  addr: ":9090"
tracker:
  duplicate_threshold: 0.5
  quality_gated: true
gesture:
  snap_hold: 2s
`
	if err := os.WriteFile(path, []byte(yamlData), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FACEGIFT_SERVER_ADDR", ":7070")
	t.Setenv("FACEGIFT_PAYMENT_SENDER_PRIVATE_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Errorf("env should override yaml: Addr = %q", cfg.Server.Addr)
	}
	if cfg.Tracker.DuplicateThreshold != 0.5 {
		t.Errorf("DuplicateThreshold = %v, want 0.5", cfg.Tracker.DuplicateThreshold)
	}
	if !cfg.Tracker.QualityGated {
		t.Error("QualityGated should be true")
	}
	if cfg.Gesture.SnapHold != 2*time.Second {
		t.Errorf("SnapHold = %v, want 2s", cfg.Gesture.SnapHold)
	}
	if cfg.Payment.SenderPrivateKey != "secret" {
		t.Error("private key should come from the environment")
	}
	// Untouched values keep their defaults.
	if cfg.Face.MaxFaces != 10 {
		t.Errorf("MaxFaces = %d, want 10", cfg.Face.MaxFaces)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid value", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		os.WriteFile(path, []byte("tracker:\n  duplicate_threshold: -1\n"), 0644)

		_, err := Load(path)
		if err == nil {
			t.Fatal("expected validation error")
		}
		if !strings.Contains(err.Error(), "DuplicateThreshold") {
			t.Errorf("error should name the field, got %v", err)
		}
	})
}

func TestPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/data"

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"registry", cfg.RegistryPath(), "/data/data/face_registry.json"},
		{"detected", cfg.DetectedFacesDir(), "/data/detected_faces"},
		{"known", cfg.KnownFacesDir(), "/data/known_faces"},
		{"db", cfg.DBPath(), "/data/facegift.db"},
		{"plugins", cfg.PluginDir(), "/data/plugins"},
		{"cascade", cfg.CascadePath(), "/data/models/facefinder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "facegift")

	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() failed: %v", err)
	}

	for _, dir := range []string{cfg.DetectedFacesDir(), cfg.KnownFacesDir(), filepath.Dir(cfg.RegistryPath())} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("%s should exist", dir)
		}
	}
}
