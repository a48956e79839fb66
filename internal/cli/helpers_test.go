package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/thenativeweb/wolkenkit-flows/internal/demo"
)

func demoApp(t *testing.T) App {
	t.Helper()

	wm, err := demo.WriteModel()
	require.NoError(t, err)
	return App{Name: demo.Application, Flows: demo.Flows(), WriteModel: wm}
}

// execute runs cmd with args and returns what it wrote to stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
