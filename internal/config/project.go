package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultRegion      = "eastus2"
	defaultEnvironment = "dev"
)

// Project holds per-project generation settings parsed from YAML:
// region, environment, extra tags, and where extractors should look.
type Project struct {
	Region      string            `yaml:"region"`
	Environment string            `yaml:"environment"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	ComposeFile string            `yaml:"compose_file,omitempty"`
	EnvFiles    []string          `yaml:"env_files,omitempty"`
}

// DefaultProject returns project settings used when no project file is given.
func DefaultProject() Project {
	return Project{
		Region:      defaultRegion,
		Environment: defaultEnvironment,
	}
}

// LoadProject parses a YAML project file from the given path.
// Returns defaults if path is empty (no project file).
func LoadProject(path string) (Project, error) {
	if path == "" {
		return DefaultProject(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Project{}, fmt.Errorf("read project file: %w", err)
	}

	project := DefaultProject()
	if err := yaml.Unmarshal(data, &project); err != nil {
		return Project{}, fmt.Errorf("parse project file: %w", err)
	}

	if err := validateProject(project); err != nil {
		return Project{}, err
	}

	return project, nil
}

func validateProject(project Project) error {
	if project.Region == "" {
		return fmt.Errorf("project file: region is required")
	}
	if project.Environment == "" {
		return fmt.Errorf("project file: environment is required")
	}
	for key := range project.Tags {
		if key == "" {
			return fmt.Errorf("project file: tag keys must not be empty")
		}
	}
	return nil
}
