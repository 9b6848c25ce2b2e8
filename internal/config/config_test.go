package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yok-tottii/mic-calibrator/internal/logger"
	"github.com/yok-tottii/mic-calibrator/internal/wizard"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Port != 18765 {
		t.Errorf("Expected port 18765, got %d", config.Server.Port)
	}
	if config.Measurement.TestBudget != 5*time.Second {
		t.Errorf("Expected 5s budget, got %v", config.Measurement.TestBudget)
	}
	if config.Catalog.Backend != "portaudio" {
		t.Errorf("Expected portaudio catalog, got %s", config.Catalog.Backend)
	}
	if config.Mute.Backend != "flagfile" {
		t.Errorf("Expected flagfile mute, got %s", config.Mute.Backend)
	}
	if len(config.Catalog.Exclude) != 6 {
		t.Errorf("Expected 6 exclusion patterns, got %v", config.Catalog.Exclude)
	}
	if config.Weights() != wizard.DefaultWeights() {
		t.Errorf("Expected default weights, got %+v", config.Weights())
	}
	if config.UI.Language != "en" {
		t.Errorf("Expected UI language 'en', got '%s'", config.UI.Language)
	}
	if config.Hotkey.Abort != "ctrl+shift+m" {
		t.Errorf("Expected abort hotkey 'ctrl+shift+m', got '%s'", config.Hotkey.Abort)
	}
	if !strings.HasSuffix(config.Selection.Path, "selection.json") {
		t.Errorf("Expected selection.json path, got %s", config.Selection.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	config, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got %v", err)
	}
	if config.Server.Port != 18765 {
		t.Errorf("Expected default port, got %d", config.Server.Port)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 19000
measurement:
  url: http://localhost:9000
  test_budget: 3s
catalog:
  backend: daemon
  exclude: []
mute:
  backend: none
scoring:
  weights:
    snr: 0.5
    voice: 0.2
    delay: 0.1
    clip: 0.1
    drop: 0.1
wizard:
  auto_confirm: true
ui:
  language: ja
log:
  level: debug
`)

	loader := NewLoader(path)
	config, err := loader.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Port != 19000 {
		t.Errorf("Expected port 19000, got %d", config.Server.Port)
	}
	if config.Measurement.TestBudget != 3*time.Second {
		t.Errorf("Expected 3s budget, got %v", config.Measurement.TestBudget)
	}
	if config.Catalog.Backend != "daemon" || len(config.Catalog.Exclude) != 0 {
		t.Errorf("Unexpected catalog config: %+v", config.Catalog)
	}
	if config.UI.Language != "ja" {
		t.Errorf("Expected ja, got %s", config.UI.Language)
	}

	opts := config.WizardOptions()
	if !opts.AutoConfirm || opts.Budget != 3*time.Second || opts.Weights.SNR != 0.5 {
		t.Errorf("Unexpected wizard options: %+v", opts)
	}
	if config.LoggerConfig().Level != logger.DEBUG {
		t.Errorf("Expected debug level, got %v", config.LoggerConfig().Level)
	}
	if loader.Current() != config {
		t.Error("Expected Current to return the loaded config")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("MICCAL_SERVER_PORT", "20001")
	t.Setenv("MICCAL_MEASUREMENT_URL", "http://127.0.0.1:7000")

	config, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if config.Server.Port != 20001 {
		t.Errorf("Expected port 20001, got %d", config.Server.Port)
	}
	if config.Measurement.URL != "http://127.0.0.1:7000" {
		t.Errorf("Expected env URL, got %s", config.Measurement.URL)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad catalog backend", "catalog:\n  backend: alsa\n", "Backend"},
		{"bad mute backend", "mute:\n  backend: loud\n", "Backend"},
		{"bad port", "server:\n  port: 70000\n", "Port"},
		{"bad language", "ui:\n  language: fr\n", "Language"},
		{"bad url", "measurement:\n  url: not a url\n", "URL"},
		{"weights not summing to one", "scoring:\n  weights:\n    snr: 0.9\n", "weights"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
		{"broken yaml", "server: [\n", "failed"},
	}

	for _, test := range tests {
		path := writeConfig(t, test.content)
		_, err := NewLoader(path).Load()
		if err == nil {
			t.Errorf("%s: expected error", test.name)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: expected error mentioning %q, got %v", test.name, test.want, err)
		}
	}
}

func TestRetryConfig(t *testing.T) {
	config := DefaultConfig()
	config.Measurement.MaxRetries = 4
	config.Measurement.RetryDelay = 50 * time.Millisecond

	rc := config.RetryConfig()
	if rc.MaxRetries != 4 || rc.BaseDelay != 50*time.Millisecond {
		t.Errorf("Unexpected retry config: %+v", rc)
	}
}

func TestWatchReloads(t *testing.T) {
	path := writeConfig(t, "wizard:\n  auto_confirm: false\n")

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	changed := make(chan *Config, 4)
	loader.OnChange(func(c *Config) { changed <- c })
	if err := loader.Watch(logger.NewNop()); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("wizard:\n  auto_confirm: true\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Wizard.AutoConfirm {
				if !loader.Current().Wizard.AutoConfirm {
					t.Error("Expected Current to reflect the reload")
				}
				return
			}
		case <-timeout:
			t.Fatal("Expected reload after file change")
		}
	}
}

func TestWatchWithoutFile(t *testing.T) {
	if err := NewLoader("").Watch(nil); err == nil {
		t.Error("Expected error watching without a file")
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"~/calib/selection.json", filepath.Join(homeDir, "calib/selection.json")},
		{"/abs/path.json", "/abs/path.json"},
	}

	for _, test := range tests {
		got, err := ExpandPath(test.input)
		if err != nil {
			t.Errorf("ExpandPath(%q) failed: %v", test.input, err)
			continue
		}
		if got != test.expected {
			t.Errorf("ExpandPath(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}
