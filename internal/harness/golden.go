package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// Snapshot is the deterministic part of a Result, rendered as indented
// canonical JSON for golden comparison.
//
// Generated ids, saga ids and command timestamps are left out: ids depend on
// the order in which concurrent flows run, and saga ids are hashes that are
// already covered by flow and key.
func Snapshot(name string, result *Result) ([]byte, error) {
	events := make([]any, 0, len(result.Events))
	for _, e := range result.Events {
		events = append(events, map[string]any{
			"id":      e.ID,
			"name":    e.Name,
			"outcome": e.Outcome,
		})
	}

	commands := make([]any, 0, len(result.Commands))
	for _, cmd := range result.Commands {
		data := cmd.Data
		if data == nil {
			data = ir.IRObject{}
		}
		commands = append(commands, map[string]any{
			"name":           cmd.FullName(),
			"data":           data,
			"causation_id":   cmd.Metadata.CausationID,
			"correlation_id": cmd.Metadata.CorrelationID,
			"initiator":      cmd.Initiator.ID,
		})
	}

	sagas := make([]any, 0, len(result.Sagas))
	for _, s := range result.Sagas {
		sagas = append(sagas, map[string]any{
			"flow":     s.Flow,
			"key":      s.Key,
			"revision": s.Revision,
			"state":    s.State,
		})
	}

	canonical, err := ir.MarshalCanonical(map[string]any{
		"scenario": name,
		"events":   events,
		"commands": commands,
		"sagas":    sagas,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check assertions as well.
func (h *Harness) RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against a golden
// file without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}
