package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/writemodel"
)

// App is the application the CLI serves: its flows and the write model
// that commands are checked against.
type App struct {
	Name       string
	Flows      []flow.Definition
	WriteModel *writemodel.WriteModel
}

// catalog returns the write model as a command catalog, or nil when the app
// has none so that every command is accepted.
func (a App) catalog() flow.CommandCatalog {
	if a.WriteModel == nil {
		return nil
	}
	return a.WriteModel
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the flows CLI.
func NewRootCommand(app App) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "wolkenkit-flows",
		Short: "wolkenkit-flows - flows and sagas for event-sourced applications",
		Long: `Reacts to domain events with stateless flows and stateful sagas.

Stateful flows keep their state as an event-sourced saga and issue
commands on state transitions.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts, app))
	cmd.AddCommand(NewValidateCommand(opts, app))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewIDCommand(opts, app))
	cmd.AddCommand(NewTestCommand(opts, app))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
