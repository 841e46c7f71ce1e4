package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SKEIN_CONFIG", "SKEIN_PORT", "SKEIN_DATA_DIR", "SKEIN_CHAT_KEY", "OLLAMA_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8240" {
		t.Errorf("Port = %q, want 8240", cfg.Port)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
	}
	if cfg.EmbedModel != "nomic-embed-text" {
		t.Errorf("EmbedModel = %q", cfg.EmbedModel)
	}
}

func TestLoadYAMLAndEnvPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "skein.yaml")
	yaml := "port: \"9000\"\ndata_dir: /var/lib/skein\nchat_model: some-yaml-model\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SKEIN_CONFIG", path)
	t.Setenv("SKEIN_PORT", "9001") // env beats YAML
	t.Setenv("SKEIN_DATA_DIR", "")
	os.Unsetenv("SKEIN_DATA_DIR")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9001" {
		t.Errorf("Port = %q, want env override 9001", cfg.Port)
	}
	if cfg.DataDir != "/var/lib/skein" {
		t.Errorf("DataDir = %q, want YAML value", cfg.DataDir)
	}
	if cfg.ChatModel != "some-yaml-model" {
		t.Errorf("ChatModel = %q, want YAML value", cfg.ChatModel)
	}
}

func TestLoadBadYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "bad.yaml")
	os.WriteFile(path, []byte("port: [unclosed"), 0644)

	t.Setenv("SKEIN_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}
