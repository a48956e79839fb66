package store

import (
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/thenativeweb/wolkenkit-flows/internal/flow"
	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

// createTestEvent creates a transitioned event for sagaID at revision.
func createTestEvent(sagaID string, revision int64, is string) ir.DomainEvent {
	return ir.DomainEvent{
		ID:        sagaID + "-ev-" + strconv.FormatInt(revision, 10),
		Context:   ir.ContextRef{Name: ir.FlowsContext},
		Aggregate: ir.AggregateRef{Name: "peerGroupSaga", ID: sagaID},
		Name:      ir.TransitionedEvent,
		Data: ir.IRObject{
			"state": ir.IRObject{"is": ir.IRString(is)},
		},
		Metadata: ir.EventMetadata{
			CorrelationID: "corr-1",
			CausationID:   "cause-1",
			Revision:      revision,
			Timestamp:     testTime,
		},
		Initiator: ir.Initiator{ID: "jane.doe"},
	}
}

func testSagaDefinition() *flow.Stateful {
	return &flow.Stateful{
		Name:         "peerGroupSaga",
		Identity:     map[string]flow.IdentityFunc{},
		InitialState: ir.IRObject{"is": ir.IRString("pristine")},
		Transitions:  map[string]map[string]flow.TransitionFunc{},
		Reactions:    map[string]map[string]flow.ReactionFunc{},
	}
}
