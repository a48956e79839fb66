package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenativeweb/wolkenkit-flows/internal/bus"
	"github.com/thenativeweb/wolkenkit-flows/internal/demo"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/testutil"
)

// unusedBus satisfies configuration validation; the tests inject a memory bus.
const unusedBus = "nats://127.0.0.1:1"

// publishPeerGroup queues a peer group that fills up and closes.
func publishPeerGroup(mem *bus.Memory, groupID string) {
	mem.Publish(testutil.NewEvent("evt-1", demo.PeerGroupStarted, groupID, ir.IRObject{"destination": ir.IRString("Riva")}))
	mem.Publish(testutil.NewEvent("evt-2", demo.PeerGroupJoined, groupID, ir.IRObject{"participant": ir.IRString("Jenny Doe")}))
	mem.Publish(testutil.NewEvent("evt-3", demo.PeerGroupJoined, groupID, ir.IRObject{"participant": ir.IRString("Jim Doe")}))
}

// runDemo processes the events queued on mem with the run command, storing
// sagas in a SQLite database at dbPath.
func runDemo(t *testing.T, mem *bus.Memory, dbPath string) (string, error) {
	t.Helper()

	mem.Close()
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, Source: mem, Sink: mem}
	stdout, _, err := execute(newRunCommand(opts, demoApp(t)),
		"--store", "sqlite",
		"--db", dbPath,
		"--flow-bus", unusedBus,
		"--command-bus", unusedBus,
	)
	return stdout, err
}

func TestRun_ProcessesEventsUntilSourceCloses(t *testing.T) {
	mem := bus.NewMemory()
	publishPeerGroup(mem, "group-1")

	stdout, err := runDemo(t, mem, filepath.Join(t.TempDir(), "flows.db"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Engine started")

	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, mem.Acked())
	commands := mem.Commands()
	require.Len(t, commands, 1)
	assert.Equal(t, "planning.peerGroup.close", commands[0].FullName())
	assert.Equal(t, "group-1", commands[0].Aggregate.ID)
	assert.Equal(t, "evt-3", commands[0].Metadata.CausationID)
}

func TestRun_InvalidConfiguration(t *testing.T) {
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, Source: bus.NewMemory()}
	_, _, err := execute(newRunCommand(opts, demoApp(t)),
		"--store", "mongodb",
		"--flow-bus", "",
		"--command-bus", "",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "EVENTSTORE_TYPE")
	assert.Contains(t, err.Error(), "FLOWBUS_URL is required")
	assert.Contains(t, err.Error(), "COMMANDBUS_URL is required")
}

func TestRun_InvalidWriteModel(t *testing.T) {
	mem := bus.NewMemory()
	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}, Source: mem, Sink: mem}
	_, _, err := execute(newRunCommand(opts, demoApp(t)),
		"--db", filepath.Join(t.TempDir(), "flows.db"),
		"--flow-bus", unusedBus,
		"--command-bus", unusedBus,
		"--writemodel", filepath.Join("..", "writemodel", "testdata", "invalid.cue"),
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "write model")
}

func TestRun_RejectsArgs(t *testing.T) {
	_, _, err := execute(NewRootCommand(demoApp(t)), "run", "extra")
	require.Error(t, err)
}

func TestResolveConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("FLOWBUS_URL", "nats://env:4222")
	t.Setenv("COMMANDBUS_URL", "nats://env:4222")
	t.Setenv("LOG_LEVEL", "warn")

	opts := &RunOptions{RootOptions: &RootOptions{Format: "text", Verbose: true}}
	cmd := newRunCommand(opts, App{Name: "travel"})
	require.NoError(t, cmd.ParseFlags([]string{"--command-bus", "nats://flag:4222", "--db", "other.db"}))

	cfg, err := resolveConfig(opts, App{Name: "travel"}, cmd)
	require.NoError(t, err)
	assert.Equal(t, "travel", cfg.Application)
	assert.Equal(t, "nats://env:4222", cfg.FlowBusURL)
	assert.Equal(t, "nats://flag:4222", cfg.CommandBusURL)
	assert.Equal(t, "other.db", cfg.EventStoreURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestResolveConfig_EnvironmentApplicationWins(t *testing.T) {
	t.Setenv("APPLICATION", "shop")
	t.Setenv("FLOWBUS_URL", unusedBus)
	t.Setenv("COMMANDBUS_URL", unusedBus)

	opts := &RunOptions{RootOptions: &RootOptions{Format: "text"}}
	cmd := newRunCommand(opts, App{Name: "travel"})

	cfg, err := resolveConfig(opts, App{Name: "travel"}, cmd)
	require.NoError(t, err)
	assert.Equal(t, "shop", cfg.Application)
}
