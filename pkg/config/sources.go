package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source is one configured remote service endpoint. The harvester
// compares the persisted service catalog against this set: services
// whose (url, name) pair is no longer configured are decommissioned.
type Source struct {
	// Name is the logical name of the source, unique within the file.
	Name string `yaml:"name"`

	// URL is the remote service endpoint.
	URL string `yaml:"url"`

	// Version is a protocol version hint passed to connector selection.
	Version string `yaml:"version"`

	// Type is the remote protocol family, e.g. "SOS".
	Type string `yaml:"type"`

	// Connector optionally pins a registered connector by name,
	// bypassing CanHandle selection.
	Connector string `yaml:"connector,omitempty"`

	// ExpandAllCombinations makes single-station connector variants
	// process every offering/procedure/phenomenon combination instead
	// of just the first one they discover.
	ExpandAllCombinations bool `yaml:"expand_all_combinations,omitempty"`
}

// sourcesFile is the on-disk shape of the sources YAML.
type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the harvest source list from a YAML file.
func LoadSources(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Sources))
	for i, src := range f.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if src.URL == "" {
			return nil, fmt.Errorf("source %q: url is required", src.Name)
		}
		if _, dup := seen[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[src.Name] = struct{}{}
		if f.Sources[i].Type == "" {
			f.Sources[i].Type = "SOS"
		}
	}

	return f.Sources, nil
}
