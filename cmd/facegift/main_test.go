package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/facegift/internal/config"
)

func TestDashboardHost(t *testing.T) {
	tests := []struct {
		addr, want string
	}{
		{":8080", "localhost:8080"},
		{"127.0.0.1:9000", "127.0.0.1:9000"},
	}
	for _, tt := range tests {
		if got := dashboardHost(tt.addr); got != tt.want {
			t.Errorf("dashboardHost(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestStaticDir(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	cfg.Server.StaticDir = "/srv/dashboard"
	if got := staticDir(cfg); got != "/srv/dashboard" {
		t.Errorf("configured dir = %q", got)
	}

	cfg.Server.StaticDir = ""
	web := filepath.Join(cfg.DataDir, "web")
	if err := os.MkdirAll(web, 0o755); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(wd, "web")); err == nil {
		t.Skip("working directory has its own web dir")
	}
	if got := staticDir(cfg); got != web {
		t.Errorf("staticDir() = %q, want %q", got, web)
	}
}

func TestAppConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Camera.ActiveFPS = 20
	cfg.Gesture.SnapHold = 2 * time.Second
	cfg.Transcript.Keyword = "computer"

	c := appConfig(cfg)
	if c.ActiveFPS != 20 || c.Gesture.SnapHold != 2*time.Second || c.Keyword != "computer" {
		t.Errorf("appConfig() = %+v", c)
	}
	if c.Gesture.PeaceStableFrames == 0 {
		t.Error("gesture defaults should be kept")
	}
}

func TestTrackerConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = "/data"
	tc := trackerConfig(cfg)
	if tc.RegistryPath != cfg.RegistryPath() || tc.DataDir != "/data" || tc.MinSharpness != cfg.Tracker.SharpnessThreshold {
		t.Errorf("trackerConfig() = %+v", tc)
	}
}

func TestServeFlags(t *testing.T) {
	t.Cleanup(func() {
		serveFlags.addr, serveFlags.camera = "", ""
		serveFlags.tray, serveFlags.noDetect = false, false
	})

	if err := serveCmd.Flags().Parse([]string{"--addr", ":9000", "--camera", "1", "--no-detect"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if serveFlags.addr != ":9000" || serveFlags.camera != "1" || !serveFlags.noDetect || serveFlags.tray {
		t.Errorf("serveFlags = %+v", serveFlags)
	}
}

func TestRegistryReset_NeedsConfirmation(t *testing.T) {
	resetConfirmed = false
	if err := registryResetCmd.RunE(registryResetCmd, nil); !errors.Is(err, errNotConfirmed) {
		t.Errorf("reset without --yes error = %v, want errNotConfirmed", err)
	}
}
