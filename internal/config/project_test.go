package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProjectFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write project file: %v", err)
	}
	return path
}

func TestLoadProject_EmptyPathReturnsDefaults(t *testing.T) {
	project, err := LoadProject("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.Region != "eastus2" {
		t.Fatalf("unexpected region: %q", project.Region)
	}
	if project.Environment != "dev" {
		t.Fatalf("unexpected environment: %q", project.Environment)
	}
}

func TestLoadProject_ParsesYAML(t *testing.T) {
	path := writeProjectFile(t, `
region: westeurope
environment: prod
tags:
  team: payments
compose_file: deploy/compose.yml
env_files:
  - .env
  - .env.production
`)

	project, err := LoadProject(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.Region != "westeurope" {
		t.Fatalf("unexpected region: %q", project.Region)
	}
	if project.Environment != "prod" {
		t.Fatalf("unexpected environment: %q", project.Environment)
	}
	if project.Tags["team"] != "payments" {
		t.Fatalf("unexpected tags: %+v", project.Tags)
	}
	if len(project.EnvFiles) != 2 {
		t.Fatalf("unexpected env files: %+v", project.EnvFiles)
	}
}

func TestLoadProject_RejectsEmptyRegion(t *testing.T) {
	path := writeProjectFile(t, `
region: ""
environment: prod
`)

	if _, err := LoadProject(path); err == nil {
		t.Fatalf("expected error for empty region")
	}
}

func TestLoadProject_MissingFile(t *testing.T) {
	if _, err := LoadProject(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
