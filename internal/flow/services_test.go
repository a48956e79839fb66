package flow

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/testutil"
)

type catalogFunc func(context, aggregate, command string) bool

func (f catalogFunc) Has(c, a, cmd string) bool { return f(c, a, cmd) }

func newTestApp(t *testing.T, catalog CommandCatalog) (*App, *CommandBuffer) {
	t.Helper()
	cause := testutil.NewEvent("event-1", "planning.peerGroup.started", "pg-1", nil)
	cause.Metadata.CorrelationID = "corr-1"
	buf := &CommandBuffer{}
	app := NewApp(catalog, cause, buf, testutil.NewSequentialIDs("id"))
	app.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)) }
	return app, buf
}

func TestApp_CommandFields(t *testing.T) {
	app, buf := newTestApp(t, nil)

	data := ir.IRObject{"port": ir.IRInt(3000)}
	err := app.Context("planning").Aggregate("peerGroup").Command("start", data)
	require.NoError(t, err)

	cmds := buf.Commands()
	require.Len(t, cmds, 1)
	cmd := cmds[0]

	assert.Equal(t, "planning.peerGroup.start", cmd.FullName())
	assert.Equal(t, "id-1", cmd.Aggregate.ID, "fresh aggregate id without WithID")
	assert.Equal(t, "id-2", cmd.ID)
	assert.Equal(t, "event-1", cmd.Metadata.CausationID)
	assert.Equal(t, "corr-1", cmd.Metadata.CorrelationID)
	assert.Equal(t, "jane.doe", cmd.Initiator.ID)
	assert.Equal(t, time.UTC, cmd.Metadata.Timestamp.Location())
	assert.Equal(t, ir.IRObject{"port": ir.IRInt(3000)}, cmd.Data)

	data["port"] = ir.IRInt(1)
	assert.Equal(t, ir.IRInt(3000), buf.Commands()[0].Data["port"], "data is copied")
}

func TestApp_WithIDAndInitiator(t *testing.T) {
	app, buf := newTestApp(t, nil)

	err := app.Context("planning").Aggregate("peerGroup").WithID("pg-9").
		Command("join", nil, AsInitiator("system"))
	require.NoError(t, err)

	cmd := buf.Commands()[0]
	assert.Equal(t, "pg-9", cmd.Aggregate.ID)
	assert.Equal(t, "id-1", cmd.ID)
	assert.Equal(t, "system", cmd.Initiator.ID)
	assert.NotNil(t, cmd.Data)
}

func TestApp_UnknownCommand(t *testing.T) {
	app, buf := newTestApp(t, catalogFunc(func(c, a, cmd string) bool {
		return c == "planning" && a == "peerGroup" && cmd == "start"
	}))

	err := app.Context("planning").Aggregate("peerGroup").Command("explode", nil)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnknownCommand))
	assert.Contains(t, err.Error(), "planning.peerGroup.explode")
	assert.Zero(t, buf.Len())

	require.NoError(t, app.Context("planning").Aggregate("peerGroup").Command("start", nil))
	assert.Equal(t, 1, buf.Len())
}

func TestCommandBuffer_PreservesOrder(t *testing.T) {
	app, buf := newTestApp(t, nil)
	agg := app.Context("c").Aggregate("a")

	require.NoError(t, agg.Command("first", nil))
	require.NoError(t, agg.Command("second", nil))
	require.NoError(t, agg.Command("third", nil))

	var names []string
	for _, cmd := range buf.Commands() {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"first", "second", "third"}, names)
}

func TestEvent_FailLogsAndRecords(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ev := NewEvent(testutil.NewEvent("e-1", "a.b.c", "x", nil), logger)
	ev.Fail("no seats left")
	ev.Fail("second")

	assert.Equal(t, []string{"no seats left", "second"}, ev.Failures())
	assert.Contains(t, logs.String(), "failed to run reaction")
	assert.Contains(t, logs.String(), "no seats left")
}

func TestNewEvent_CopiesData(t *testing.T) {
	src := testutil.NewEvent("e-1", "a.b.c", "x", ir.IRObject{"n": ir.IRInt(1)})

	ev := NewEvent(src, nil)
	ev.Data["n"] = ir.IRInt(2)

	assert.Equal(t, ir.IRInt(1), src.Data["n"])
}

func TestSnapshotIs(t *testing.T) {
	assert.Equal(t, "done", Snapshot{State: ir.IRObject{"is": ir.IRString("done")}}.Is())
	assert.Equal(t, "", Snapshot{}.Is())
}
