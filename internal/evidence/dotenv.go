package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	connectionStringStrength = 0.9
	configKeyStrength        = 0.5
)

// Connection-string URI schemes mapped to the service type they imply.
var connectionSchemes = map[string]string{
	"postgres":   "database",
	"postgresql": "database",
	"mysql":      "database",
	"sqlserver":  "database",
	"mongodb":    "database",
	"redis":      "cache",
	"rediss":     "cache",
	"amqp":       "queue",
	"amqps":      "queue",
	"nats":       "queue",
}

// Key-name fragments mapped to the service type they hint at. Weaker than a
// connection string: a key name alone only suggests intent.
var configKeyHints = []struct {
	fragment    string
	serviceType string
}{
	{"STORAGE", "storage"},
	{"BLOB", "storage"},
	{"DATABASE", "database"},
	{"DB_", "database"},
	{"REDIS", "cache"},
	{"CACHE", "cache"},
	{"QUEUE", "queue"},
	{"AMQP", "queue"},
	{"SEARCH", "search"},
}

// DotenvExtractor derives signals from dotenv files: values shaped like
// connection strings claim a service type strongly, key names weakly.
type DotenvExtractor struct {
	relPaths []string
}

// NewDotenvExtractor returns an extractor reading the given dotenv files
// relative to the project root, defaulting to ".env".
func NewDotenvExtractor(relPaths ...string) *DotenvExtractor {
	if len(relPaths) == 0 {
		relPaths = []string{".env"}
	}
	return &DotenvExtractor{relPaths: relPaths}
}

// Extract implements Extractor.
func (e *DotenvExtractor) Extract(ctx context.Context, projectRoot string) ([]Signal, error) {
	var signals []Signal

	for _, rel := range e.relPaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(projectRoot, rel)
		body, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read dotenv %s: %w", path, err)
		}

		values, err := godotenv.Unmarshal(string(body))
		if err != nil {
			return nil, fmt.Errorf("parse dotenv %s: %w", path, err)
		}

		for key, value := range values {
			signal, ok, err := classifyEnvEntry(rel, key, value)
			if err != nil {
				return nil, err
			}
			if ok {
				signals = append(signals, signal)
			}
		}
	}

	return signals, nil
}

func classifyEnvEntry(source, key, value string) (Signal, bool, error) {
	if serviceType, ok := serviceTypeForConnectionString(value); ok {
		signal, err := NewSignal(
			fmt.Sprintf("%s#%s", source, key),
			serviceType,
			connectionStringStrength,
			KindConnectionString,
		)
		return signal, err == nil, err
	}

	upper := strings.ToUpper(key)
	for _, hint := range configKeyHints {
		if strings.Contains(upper, hint.fragment) {
			signal, err := NewSignal(
				fmt.Sprintf("%s#%s", source, key),
				hint.serviceType,
				configKeyStrength,
				KindConfigKey,
			)
			return signal, err == nil, err
		}
	}

	return Signal{}, false, nil
}

func serviceTypeForConnectionString(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if idx := strings.Index(trimmed, "://"); idx > 0 {
		scheme := strings.ToLower(trimmed[:idx])
		if serviceType, ok := connectionSchemes[scheme]; ok {
			return serviceType, true
		}
	}
	// Azure storage account connection strings are key=value pairs.
	if strings.Contains(trimmed, "DefaultEndpointsProtocol=") && strings.Contains(trimmed, "AccountName=") {
		return "storage", true
	}
	return "", false
}
