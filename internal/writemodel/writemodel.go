// Package writemodel describes which commands an application's write model
// accepts.
//
// A write model maps contexts to aggregates to command names:
//
//	planning: {
//		peerGroup: commands: ["start", "join", "leave"]
//	}
//
// It is loaded from CUE or YAML and used by flow code to reject commands the
// application would never handle.
package writemodel

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// WriteModel is an immutable set of (context, aggregate, command) names.
// Safe for concurrent reads.
type WriteModel struct {
	contexts map[string]map[string]map[string]bool
}

// New builds a write model from context -> aggregate -> command names.
// Empty names and duplicate commands are errors.
func New(spec map[string]map[string][]string) (*WriteModel, error) {
	w := &WriteModel{contexts: make(map[string]map[string]map[string]bool, len(spec))}

	for contextName, aggregates := range spec {
		if contextName == "" {
			return nil, &LoadError{Field: "context", Message: "context name is missing"}
		}
		byAggregate := make(map[string]map[string]bool, len(aggregates))
		for aggregateName, commands := range aggregates {
			if aggregateName == "" {
				return nil, &LoadError{Field: contextName, Message: "aggregate name is missing"}
			}
			path := contextName + "." + aggregateName
			set := make(map[string]bool, len(commands))
			for _, command := range commands {
				if command == "" {
					return nil, &LoadError{Field: path, Message: "command name is missing"}
				}
				if set[command] {
					return nil, &LoadError{Field: path, Message: fmt.Sprintf("duplicate command %q", command)}
				}
				set[command] = true
			}
			byAggregate[aggregateName] = set
		}
		w.contexts[contextName] = byAggregate
	}

	return w, nil
}

// Load reads a write model from path, choosing the format by extension
// (.cue, .yaml, .yml).
func Load(path string) (*WriteModel, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return LoadCUE(path)
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return nil, fmt.Errorf("write model %s: unsupported format %q", path, filepath.Ext(path))
	}
}

// Has reports whether the write model defines the command.
// Implements flow.CommandCatalog.
func (w *WriteModel) Has(contextName, aggregateName, commandName string) bool {
	return w.contexts[contextName][aggregateName][commandName]
}

// Contexts returns the context names, sorted.
func (w *WriteModel) Contexts() []string {
	return sortedKeys(w.contexts)
}

// Aggregates returns the aggregate names of a context, sorted.
func (w *WriteModel) Aggregates(contextName string) []string {
	return sortedKeys(w.contexts[contextName])
}

// Commands returns the command names of an aggregate, sorted.
func (w *WriteModel) Commands(contextName, aggregateName string) []string {
	return sortedKeys(w.contexts[contextName][aggregateName])
}

// Len returns the total number of commands.
func (w *WriteModel) Len() int {
	n := 0
	for _, aggregates := range w.contexts {
		for _, commands := range aggregates {
			n += len(commands)
		}
	}
	return n
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
