package writemodel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type yamlAggregate struct {
	Commands []string `yaml:"commands"`
}

// LoadYAML reads a write model from a YAML file.
func LoadYAML(path string) (*WriteModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read write model: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML extracts a write model from YAML. Unknown aggregate fields are
// rejected.
func ParseYAML(data []byte) (*WriteModel, error) {
	var raw map[string]map[string]yamlAggregate

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse write model: %w", err)
	}

	spec := make(map[string]map[string][]string, len(raw))
	for contextName, aggregates := range raw {
		spec[contextName] = make(map[string][]string, len(aggregates))
		for aggregateName, aggregate := range aggregates {
			if aggregate.Commands == nil {
				return nil, &LoadError{Field: contextName + "." + aggregateName, Message: "commands are required"}
			}
			spec[contextName][aggregateName] = aggregate.Commands
		}
	}
	return New(spec)
}
