package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
}

// SagaEvent is one transitioned event of a saga stream.
type SagaEvent struct {
	Revision    int64       `json:"revision"`
	ID          string      `json:"id"`
	CausationID string      `json:"causationId"`
	Timestamp   time.Time   `json:"timestamp"`
	State       ir.IRObject `json:"state"`
}

// SagaHistory is the stream of one saga.
type SagaHistory struct {
	Flow   string      `json:"flow"`
	Key    string      `json:"key"`
	SagaID string      `json:"sagaId"`
	Events []SagaEvent `json:"events"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <flow> [key]",
		Short: "Show persisted saga state",
		Long: `Show the sagas stored in a SQLite event store.

With a key, prints every state the saga of that key went through.
Without one, lists the latest state of every saga of the flow.

Example:
  wolkenkit-flows inspect --db ./flows.db peerGroupLifecycle
  wolkenkit-flows inspect --db ./flows.db peerGroupLifecycle group-1 --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := ""
			if len(args) == 2 {
				key = args[1]
			}
			return runInspect(opts, args[0], key, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runInspect(opts *InspectOptions, flowName, key string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	// store.Open would create a missing database
	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	if key == "" {
		streams, err := st.ListStreams(ctx, flowName)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list sagas", err)
		}
		if formatter.JSON() {
			return formatter.Success(streams)
		}

		w := cmd.OutOrStdout()
		if len(streams) == 0 {
			fmt.Fprintf(w, "No sagas found for flow %s.\n", flowName)
			return nil
		}
		for _, s := range streams {
			fmt.Fprintf(w, "%s  revision %d  %s\n", s.SagaID, s.Revision, formatState(s.State))
		}
		return nil
	}

	history := SagaHistory{
		Flow:   flowName,
		Key:    key,
		SagaID: flow.SagaID(flowName, key),
		Events: []SagaEvent{},
	}
	events, err := st.ReadStream(ctx, history.SagaID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read saga", err)
	}
	for _, ev := range events {
		state, _ := ev.Data["state"].(ir.IRObject)
		history.Events = append(history.Events, SagaEvent{
			Revision:    ev.Metadata.Revision,
			ID:          ev.ID,
			CausationID: ev.Metadata.CausationID,
			Timestamp:   ev.Metadata.Timestamp,
			State:       state,
		})
	}

	if formatter.JSON() {
		return formatter.Success(history)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "saga %s/%s (%s)\n", history.Flow, history.Key, history.SagaID)
	if len(history.Events) == 0 {
		fmt.Fprintln(w, "  no events")
		return nil
	}
	for _, e := range history.Events {
		fmt.Fprintf(w, "  revision %d  caused by %s  %s\n", e.Revision, e.CausationID, formatState(e.State))
	}
	return nil
}

// formatState renders a saga state as canonical JSON.
func formatState(state ir.IRObject) string {
	if state == nil {
		return "{}"
	}
	data, err := ir.MarshalCanonical(state)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
