package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadTasksDocument reads and parses a reconfiguration task document
// (§6). Used by the background worker's LoadConfiguration job
// (§4.5); never called from the control thread.
func LoadTasksDocument(path string) (*TasksDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read tasks document %s: %w", path, err)
	}
	var doc TasksDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse tasks document %s: %w", path, err)
	}
	return &doc, nil
}
