package writemodel

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// LoadCUE reads a write model from a CUE file.
func LoadCUE(path string) (*WriteModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read write model: %w", err)
	}
	return ParseCUE(data, path)
}

// ParseCUE compiles src and extracts the write model. filename is used in
// error positions only.
func ParseCUE(src []byte, filename string) (*WriteModel, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	spec := map[string]map[string][]string{}

	contexts, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for contexts.Next() {
		contextName := contexts.Label()
		spec[contextName] = map[string][]string{}

		aggregates, err := contexts.Value().Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for aggregates.Next() {
			aggregateName := aggregates.Label()
			commands, err := parseCommands(aggregates.Value(), contextName+"."+aggregateName)
			if err != nil {
				return nil, err
			}
			spec[contextName][aggregateName] = commands
		}
	}

	return New(spec)
}

// parseCommands reads the commands list of one aggregate.
func parseCommands(v cue.Value, path string) ([]string, error) {
	list := v.LookupPath(cue.ParsePath("commands"))
	if !list.Exists() {
		return nil, &LoadError{Field: path, Message: "commands are required", Pos: v.Pos()}
	}

	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var commands []string
	for iter.Next() {
		name, err := iter.Value().String()
		if err != nil {
			return nil, &LoadError{Field: path, Message: "command names must be strings", Pos: iter.Value().Pos()}
		}
		if name == "" {
			return nil, &LoadError{Field: path, Message: "command name is missing", Pos: iter.Value().Pos()}
		}
		commands = append(commands, name)
	}
	return commands, nil
}
