package store

import (
	"context"
	"errors"
	"testing"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/saga"
)

func TestLastEvent_EmptyStream(t *testing.T) {
	s := createTestStore(t)

	ev, err := s.LastEvent(context.Background(), "saga-1")
	if err != nil {
		t.Fatalf("LastEvent() failed: %v", err)
	}
	if ev != nil {
		t.Errorf("LastEvent() = %+v, want nil", ev)
	}
}

func TestSaveEvents_ThenLastEvent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	err := s.SaveEvents(ctx, []ir.DomainEvent{
		createTestEvent("saga-1", 1, "pristine"),
		createTestEvent("saga-1", 2, "completed"),
	})
	if err != nil {
		t.Fatalf("SaveEvents() failed: %v", err)
	}

	ev, err := s.LastEvent(ctx, "saga-1")
	if err != nil {
		t.Fatalf("LastEvent() failed: %v", err)
	}
	if ev == nil {
		t.Fatal("LastEvent() = nil, want event")
	}
	want := createTestEvent("saga-1", 2, "completed")

	if ev.Metadata.Revision != 2 {
		t.Errorf("revision = %d, want 2", ev.Metadata.Revision)
	}
	if ev.ID != want.ID || ev.FullName() != want.FullName() || ev.Aggregate != want.Aggregate {
		t.Errorf("event identity = %s %s %+v, want %s %s %+v",
			ev.ID, ev.FullName(), ev.Aggregate, want.ID, want.FullName(), want.Aggregate)
	}
	if !ir.Equal(ev.Data, want.Data) {
		t.Errorf("data = %v, want %v", ev.Data, want.Data)
	}
	if ev.Metadata.CausationID != "cause-1" || ev.Metadata.CorrelationID != "corr-1" {
		t.Errorf("metadata = %+v", ev.Metadata)
	}
	if !ev.Metadata.Timestamp.Equal(testTime) {
		t.Errorf("timestamp = %v, want %v", ev.Metadata.Timestamp, testTime)
	}
	if ev.Initiator.ID != "jane.doe" {
		t.Errorf("initiator = %q, want jane.doe", ev.Initiator.ID)
	}
}

func TestSaveEvents_CanonicalJSON(t *testing.T) {
	s := createTestStore(t)

	ev := createTestEvent("saga-1", 1, "pristine")
	ev.Data["state"].(ir.IRObject)["zebra"] = ir.IRString("z")
	ev.Data["state"].(ir.IRObject)["apple"] = ir.IRString("a")

	if err := s.SaveEvents(context.Background(), []ir.DomainEvent{ev}); err != nil {
		t.Fatalf("SaveEvents() failed: %v", err)
	}

	var dataJSON string
	err := s.db.QueryRow("SELECT data FROM saga_events WHERE aggregate_id = ?", "saga-1").Scan(&dataJSON)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	expected := `{"state":{"apple":"a","is":"pristine","zebra":"z"}}`
	if dataJSON != expected {
		t.Errorf("data JSON = %q, want %q (canonical order)", dataJSON, expected)
	}
}

func TestSaveEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	if err := s.SaveEvents(context.Background(), nil); err != nil {
		t.Fatalf("SaveEvents(nil) failed: %v", err)
	}
}

func TestSaveEvents_ConflictRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	if err := s.SaveEvents(ctx, []ir.DomainEvent{createTestEvent("saga-1", 1, "pristine")}); err != nil {
		t.Fatalf("SaveEvents() failed: %v", err)
	}

	second := createTestEvent("saga-1", 2, "joined")
	stale := createTestEvent("saga-1", 1, "stale")
	stale.ID = "other-id"

	err := s.SaveEvents(ctx, []ir.DomainEvent{second, stale})
	if !errors.Is(err, saga.ErrRevisionConflict) {
		t.Fatalf("SaveEvents() error = %v, want ErrRevisionConflict", err)
	}

	stream, err := s.ReadStream(ctx, "saga-1")
	if err != nil {
		t.Fatalf("ReadStream() failed: %v", err)
	}
	if len(stream) != 1 {
		t.Errorf("stream length = %d, want 1 (batch rolled back)", len(stream))
	}
}

func TestSaveEvents_DuplicateEventID(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	first := createTestEvent("saga-1", 1, "pristine")
	dup := createTestEvent("saga-2", 1, "pristine")
	dup.ID = first.ID

	if err := s.SaveEvents(ctx, []ir.DomainEvent{first}); err != nil {
		t.Fatalf("SaveEvents() failed: %v", err)
	}
	if err := s.SaveEvents(ctx, []ir.DomainEvent{dup}); !errors.Is(err, saga.ErrRevisionConflict) {
		t.Errorf("SaveEvents() error = %v, want ErrRevisionConflict", err)
	}
}

func TestReadStream_Ordering(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	// Separate batches, inserted out of order across sagas
	batches := [][]ir.DomainEvent{
		{createTestEvent("saga-2", 1, "a")},
		{createTestEvent("saga-1", 1, "a"), createTestEvent("saga-1", 2, "b")},
		{createTestEvent("saga-1", 3, "c")},
	}
	for _, b := range batches {
		if err := s.SaveEvents(ctx, b); err != nil {
			t.Fatalf("SaveEvents() failed: %v", err)
		}
	}

	stream, err := s.ReadStream(ctx, "saga-1")
	if err != nil {
		t.Fatalf("ReadStream() failed: %v", err)
	}
	if len(stream) != 3 {
		t.Fatalf("stream length = %d, want 3", len(stream))
	}
	for i, ev := range stream {
		if ev.Metadata.Revision != int64(i+1) {
			t.Errorf("stream[%d].revision = %d, want %d", i, ev.Metadata.Revision, i+1)
		}
	}
}

func TestReadStream_Empty(t *testing.T) {
	s := createTestStore(t)

	stream, err := s.ReadStream(context.Background(), "missing")
	if err != nil {
		t.Fatalf("ReadStream() failed: %v", err)
	}
	if stream == nil || len(stream) != 0 {
		t.Errorf("ReadStream() = %v, want empty non-nil slice", stream)
	}
}

func TestListStreams(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	other := createTestEvent("saga-3", 1, "pristine")
	other.Aggregate.Name = "otherSaga"

	err := s.SaveEvents(ctx, []ir.DomainEvent{
		createTestEvent("saga-2", 1, "pristine"),
		createTestEvent("saga-1", 1, "pristine"),
		createTestEvent("saga-1", 2, "completed"),
		other,
	})
	if err != nil {
		t.Fatalf("SaveEvents() failed: %v", err)
	}

	streams, err := s.ListStreams(ctx, "peerGroupSaga")
	if err != nil {
		t.Fatalf("ListStreams() failed: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("ListStreams() returned %d streams, want 2", len(streams))
	}
	if streams[0].SagaID != "saga-1" || streams[0].Revision != 2 {
		t.Errorf("streams[0] = %+v, want saga-1 at revision 2", streams[0])
	}
	if is, _ := streams[0].State.String("is"); is != "completed" {
		t.Errorf("streams[0].State.is = %q, want completed", is)
	}
	if streams[1].SagaID != "saga-2" || streams[1].Revision != 1 {
		t.Errorf("streams[1] = %+v, want saga-2 at revision 1", streams[1])
	}

	all, err := s.ListStreams(ctx, "")
	if err != nil {
		t.Fatalf("ListStreams(\"\") failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListStreams(\"\") returned %d streams, want 3", len(all))
	}
}

func TestStore_WithRepository(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	repo := saga.NewRepository(s)

	def := testSagaDefinition()
	cause := createTestEvent("upstream", 1, "x")

	agg, err := repo.LoadForEvent(ctx, def, "saga-1", cause)
	if err != nil {
		t.Fatalf("LoadForEvent() failed: %v", err)
	}
	if err := agg.TransitionTo("completed"); err != nil {
		t.Fatalf("TransitionTo() failed: %v", err)
	}
	if err := agg.PublishTransitioned(); err != nil {
		t.Fatalf("PublishTransitioned() failed: %v", err)
	}
	if err := repo.Save(ctx, agg); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := repo.LoadForEvent(ctx, def, "saga-1", cause)
	if err != nil {
		t.Fatalf("LoadForEvent() failed: %v", err)
	}
	if loaded.Revision() != 1 || loaded.Is() != "completed" {
		t.Errorf("loaded revision=%d is=%q, want 1 completed", loaded.Revision(), loaded.Is())
	}
}
