package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
)

// NewIDCommand creates the id command.
func NewIDCommand(rootOpts *RootOptions, app App) *cobra.Command {
	return &cobra.Command{
		Use:   "id <flow> <key>",
		Short: "Print the saga id for a flow and key",
		Long: `Print the deterministic saga id of a stateful flow for a key.

Example:
  wolkenkit-flows id peerGroupLifecycle group-1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runID(rootOpts, app, args[0], args[1], cmd)
		},
	}
}

func runID(opts *RootOptions, app App, flowName, key string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if !isStatefulFlow(app, flowName) {
		return formatter.Fail(ExitCommandError, ErrCodeUnknownFlow, fmt.Sprintf("unknown stateful flow: %s", flowName), nil)
	}

	id := flow.SagaID(flowName, key)
	if formatter.JSON() {
		return formatter.Success(map[string]string{
			"flow":   flowName,
			"key":    key,
			"sagaId": id,
		})
	}
	return formatter.Success(id)
}

func isStatefulFlow(app App, name string) bool {
	for _, def := range app.Flows {
		if def.FlowName() == name && def.Kind() == flow.KindStateful {
			return true
		}
	}
	return false
}
