package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenativeweb/wolkenkit-flows/internal/demo"
	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
)

func TestID_Text(t *testing.T) {
	stdout, _, err := execute(NewRootCommand(demoApp(t)), "id", demo.PeerGroupFlow, "group-1")
	require.NoError(t, err)
	assert.Equal(t, flow.SagaID(demo.PeerGroupFlow, "group-1"), strings.TrimSpace(stdout))
}

func TestID_JSON(t *testing.T) {
	stdout, _, err := execute(NewRootCommand(demoApp(t)), "--format", "json", "id", demo.PeerGroupFlow, "group-1")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{
		"flow":   demo.PeerGroupFlow,
		"key":    "group-1",
		"sagaId": flow.SagaID(demo.PeerGroupFlow, "group-1"),
	}, resp.Data)
}

func TestID_RejectsUnknownAndStatelessFlows(t *testing.T) {
	for _, name := range []string{"unknown", demo.RequestPeerGroupFlow} {
		t.Run(name, func(t *testing.T) {
			stdout, _, err := execute(NewRootCommand(demoApp(t)), "id", name, "group-1")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, "Error [E012]")
		})
	}
}

func TestID_RequiresKey(t *testing.T) {
	_, _, err := execute(NewRootCommand(demoApp(t)), "id", demo.PeerGroupFlow)
	require.Error(t, err)
}
