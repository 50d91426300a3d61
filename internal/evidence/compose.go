package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
)

const composeImageStrength = 0.9

// Image base names that imply a backing service dependency.
var composeImageServices = map[string]string{
	"postgres":      "database",
	"mysql":         "database",
	"mariadb":       "database",
	"mssql":         "database",
	"redis":         "cache",
	"valkey":        "cache",
	"memcached":     "cache",
	"minio":         "storage",
	"azurite":       "storage",
	"rabbitmq":      "queue",
	"kafka":         "queue",
	"nats":          "queue",
	"elasticsearch": "search",
	"opensearch":    "search",
}

var defaultComposeNames = []string{
	"compose.yml", "compose.yaml", "docker-compose.yml", "docker-compose.yaml",
}

// ComposeExtractor derives manifest-dependency signals from a compose file:
// services running well-known backing images claim the matching service type.
type ComposeExtractor struct {
	relPath string
}

// NewComposeExtractor returns an extractor reading the given compose file
// relative to the project root, or the conventional names if relPath is empty.
func NewComposeExtractor(relPath string) *ComposeExtractor {
	return &ComposeExtractor{relPath: relPath}
}

// Extract implements Extractor.
func (e *ComposeExtractor) Extract(ctx context.Context, projectRoot string) ([]Signal, error) {
	path, body, err := e.readComposeFile(projectRoot)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	project, err := loadComposeProject(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("load compose %s: %w", path, err)
	}

	var signals []Signal
	for name, service := range project.Services {
		serviceType, ok := serviceTypeForImage(service.Image)
		if !ok {
			continue
		}
		signal, err := NewSignal(
			fmt.Sprintf("%s#%s", path, name),
			serviceType,
			composeImageStrength,
			KindManifestDependency,
		)
		if err != nil {
			return nil, err
		}
		signals = append(signals, signal)
	}

	return signals, nil
}

func (e *ComposeExtractor) readComposeFile(projectRoot string) (string, []byte, error) {
	candidates := defaultComposeNames
	if e.relPath != "" {
		candidates = []string{e.relPath}
	}

	for _, name := range candidates {
		path := filepath.Join(projectRoot, name)
		body, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", nil, fmt.Errorf("read compose %s: %w", path, err)
		}
		return name, body, nil
	}

	// No compose file is zero evidence, not an error.
	return "", nil, nil
}

func loadComposeProject(ctx context.Context, body []byte) (*types.Project, error) {
	details := types.ConfigDetails{
		WorkingDir: ".",
		ConfigFiles: []types.ConfigFile{
			{
				Filename: "compose.yml",
				Content:  body,
			},
		},
		Environment: types.Mapping{},
	}

	return loader.LoadWithContext(ctx, details, func(opts *loader.Options) {
		opts.SetProjectName("cloudforge", false)
	})
}

func serviceTypeForImage(image string) (string, bool) {
	if image == "" {
		return "", false
	}
	base := image
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.Index(base, ":"); idx >= 0 {
		base = base[:idx]
	}
	if idx := strings.Index(base, "@"); idx >= 0 {
		base = base[:idx]
	}
	serviceType, ok := composeImageServices[strings.ToLower(base)]
	return serviceType, ok
}
