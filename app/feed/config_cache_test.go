package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSource(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "fin_tech_news", `
url: "https://fintech.example.com/feed/"

settings:
  enabled: true
  max_items: 25
  timeout: 10
  extract_content: true
  boilerplate:
    - "^Sponsored"

filters:
  - field: "title"
    excludes:
      - "spam"
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 source, got %d", configCache.GetConfigCount())
	}

	config, err := configCache.GetConfig("fin_tech_news")
	if err != nil {
		t.Fatal(err)
	}

	if config.Name != "fin_tech_news" {
		t.Errorf("Expected name 'fin_tech_news', got '%s'", config.Name)
	}
	if !config.Settings.Enabled || !config.Settings.ExtractContent {
		t.Errorf("Expected enabled source with content extraction, got %+v", config.Settings)
	}
	if config.Settings.MaxItems != 25 {
		t.Errorf("Expected max items 25, got %d", config.Settings.MaxItems)
	}
	if config.Settings.GetTimeout() != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", config.Settings.GetTimeout())
	}
	if len(config.Settings.Boilerplate) != 1 {
		t.Errorf("Expected 1 boilerplate pattern, got %d", len(config.Settings.Boilerplate))
	}
}

func TestConfigCacheLoadConfigWithDefaults(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "minimal", `url: "https://example.com/feed.xml"`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	config, err := configCache.GetConfig("minimal")
	if err != nil {
		t.Fatal(err)
	}

	if config.Settings.Enabled {
		t.Error("Expected source to be disabled by default")
	}
	if config.Settings.MaxItems != 20 {
		t.Errorf("Expected default max items 20, got %d", config.Settings.MaxItems)
	}
	if config.Settings.GetTimeout() != defaultTimeout*time.Second {
		t.Errorf("Expected default timeout, got %v", config.Settings.GetTimeout())
	}
}

func TestConfigCacheInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"missing url", "settings:\n  enabled: true\n", "source URL is required"},
		{"negative max items", "url: https://example.com\nsettings:\n  max_items: -1\n", "max items"},
		{"bad pattern", "url: https://example.com\nsettings:\n  boilerplate: ['(unclosed']\n", "boilerplate"},
		{"bad filter field", "url: https://example.com\nfilters:\n  - field: body\n    includes: [x]\n", "invalid filter field"},
		{"empty filter", "url: https://example.com\nfilters:\n  - field: title\n", "at least one include or exclude"},
		{"bad yaml", "url: [unterminated\n", "failed to parse YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeSource(t, tempDir, "broken", tt.content)

			err := NewConfigCache(tempDir).Run()
			if err == nil {
				t.Fatal("Expected error for invalid config")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("Expected error to contain '%s', got: %v", tt.errPart, err)
			}
		})
	}
}

func TestConfigCacheOrderingAndEnabled(t *testing.T) {
	tempDir := t.TempDir()

	writeSource(t, tempDir, "zeta", "url: https://z.example.com\nsettings:\n  enabled: true\n")
	writeSource(t, tempDir, "alpha", "url: https://a.example.com\n")
	writeSource(t, tempDir, "mid", "url: https://m.example.com\nsettings:\n  enabled: true\n")

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	configs := configCache.GetConfigs()
	if len(configs) != 3 || configs[0].Name != "alpha" || configs[1].Name != "mid" || configs[2].Name != "zeta" {
		t.Errorf("Expected sources sorted by name, got %v", configs)
	}

	enabled := configCache.GetEnabledConfigs()
	if len(enabled) != 2 || enabled[0].Name != "mid" || enabled[1].Name != "zeta" {
		t.Errorf("Expected [mid zeta] enabled, got %v", enabled)
	}
}

func TestConfigCacheMissingDirectory(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "missing"))
	if err := configCache.Run(); err != nil {
		t.Errorf("Expected missing directory to be ignored, got: %v", err)
	}
	if _, err := configCache.GetConfig("anything"); err == nil {
		t.Error("Expected error for unknown source")
	}
}
