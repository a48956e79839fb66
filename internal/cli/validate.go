package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	WriteModel string
}

// FlowSummary describes one registered flow.
type FlowSummary struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Events []string `json:"events"`
}

// ValidationResult contains the result of validating the application.
type ValidationResult struct {
	Valid    bool          `json:"valid"`
	Flows    []FlowSummary `json:"flows"`
	Commands int           `json:"commands"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions, app App) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate flow definitions and the write model",
		Long: `Validate the application's flows and write model without starting the engine.

Checks that flow names are unique, that every stateful flow has an identity
for each event it handles, and that the write model parses.

Example:
  wolkenkit-flows validate
  wolkenkit-flows validate --writemodel ./writemodel.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, app, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.WriteModel, "writemodel", "", "write model file, .cue or .yaml (defaults to the built-in one)")

	return cmd
}

func runValidate(opts *ValidateOptions, app App, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	registry, err := flow.Classify(app.Flows...)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalidFlows, "invalid flows", err)
	}

	wm, err := loadWriteModel(opts.WriteModel, app)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeWriteModel, "invalid write model", err)
	}

	result := ValidationResult{Valid: true, Flows: []FlowSummary{}}
	for _, name := range registry.Names() {
		def, _ := registry.Flow(name)
		result.Flows = append(result.Flows, FlowSummary{
			Name:   name,
			Kind:   def.Kind().String(),
			Events: handledEvents(def),
		})
		formatter.VerboseLog("flow %s (%s)", name, def.Kind())
	}
	if wm != nil {
		result.Commands = wm.Len()
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	for _, f := range result.Flows {
		fmt.Fprintf(w, "✓ %s (%s): %d events\n", f.Name, f.Kind, len(f.Events))
	}
	if wm != nil {
		fmt.Fprintf(w, "✓ write model: %d commands\n", result.Commands)
	} else {
		fmt.Fprintln(w, "- no write model, commands are not checked")
	}
	fmt.Fprintf(w, "\nAll %d flows valid\n", len(result.Flows))
	return nil
}

// handledEvents returns the sorted names of the events def reacts to.
func handledEvents(def flow.Definition) []string {
	seen := map[string]bool{}
	switch d := def.(type) {
	case *flow.Stateless:
		for name := range d.Reactions {
			seen[name] = true
		}
	case *flow.Stateful:
		for _, events := range d.Transitions {
			for name := range events {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
