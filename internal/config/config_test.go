package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
hub:
  base_url: https://hub.example.com/api
  client_id: cid
  projects:
    federal_runsheets: "1001"
`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if cfg.Hub.BaseURL != "https://hub.example.com/api" {
		t.Fatalf("base url = %q", cfg.Hub.BaseURL)
	}
	if cfg.Hub.Projects["federal_runsheets"] != "1001" {
		t.Fatalf("projects = %v", cfg.Hub.Projects)
	}
}

func TestFromYAMLRejectsMissingBaseURL(t *testing.T) {
	if _, err := FromYAML([]byte(`hub: {client_id: cid}`)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestProjectLocatorEnvPrecedence(t *testing.T) {
	cfg := Default()
	cfg.Hub.Projects = map[string]string{"federal_runsheets": "from-yaml"}

	t.Setenv("ORDERLINE_HUB_PROJECT_FEDERAL_RUNSHEETS", "")
	if got := cfg.ProjectLocator("federal_runsheets"); got != "from-yaml" {
		t.Fatalf("locator = %q, want yaml value", got)
	}

	t.Setenv("ORDERLINE_HUB_PROJECT_FEDERAL_RUNSHEETS", "from-env")
	if got := cfg.ProjectLocator("federal_runsheets"); got != "from-env" {
		t.Fatalf("locator = %q, want env value", got)
	}
}

func TestProjectLocatorUnset(t *testing.T) {
	t.Setenv("ORDERLINE_HUB_PROJECT_STATE_ABSTRACTS", "")
	cfg := Default()
	if got := cfg.ProjectLocator("state_abstracts"); got != "" {
		t.Fatalf("locator = %q, want empty", got)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if cfg.Hub.BaseURL == "" {
		t.Fatal("default config missing hub base url")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("hub:\n  base_url: https://hub.test/api\n")
	if err := os.WriteFile(filepath.Join(dir, "orderline.yml"), data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hub.BaseURL != "https://hub.test/api" {
		t.Fatalf("base url = %q", cfg.Hub.BaseURL)
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("default template does not validate: %v", err)
	}
}
