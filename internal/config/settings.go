package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadSettings loads only the settings section of the config file at path.
// The watcher calls it on every write, so it reads the file directly rather
// than going through the process-wide viper instance.
func ReadSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the user's own config file
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var doc struct {
		Settings map[string]any `yaml:"settings"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if doc.Settings == nil {
		doc.Settings = map[string]any{}
	}
	return doc.Settings, nil
}
