package flow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
	"github.com/thenativeweb/wolkenkit-flows/internal/testutil"
)

func TestSagaID_Deterministic(t *testing.T) {
	a := SagaID("peerGroupSaga", "pg-1")
	b := SagaID("peerGroupSaga", "pg-1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, SagaID("peerGroupSaga", "pg-2"))
	assert.NotEqual(t, a, SagaID("otherSaga", "pg-1"))
}

func TestSagaID_FormattedAsVersion4(t *testing.T) {
	id := SagaID("peerGroupSaga", "pg-1")

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.Equal(t, uuid.RFC4122, parsed.Variant())
	assert.Equal(t, id, parsed.String())
}

func TestSagaID_HashesDashJoinedName(t *testing.T) {
	// The hashed name is "<flow>-<key>", so the split point is not part of it.
	assert.Equal(t, SagaID("a-b", "c"), SagaID("a", "b-c"))
}

func TestResolveID(t *testing.T) {
	saga := testSaga("peerGroupSaga", "planning.peerGroup.started")
	ev := testutil.NewEvent("e-1", "planning.peerGroup.started", "pg-1", nil)

	id, err := ResolveID(saga, ev)
	require.NoError(t, err)
	assert.Equal(t, SagaID("peerGroupSaga", "pg-1"), id)
}

func TestResolveID_MissingIdentity(t *testing.T) {
	saga := testSaga("peerGroupSaga", "planning.peerGroup.started")
	delete(saga.Identity, "planning.peerGroup.started")
	ev := testutil.NewEvent("e-1", "planning.peerGroup.started", "pg-1", nil)

	_, err := ResolveID(saga, ev)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeMissingIdentity))
	assert.Contains(t, err.Error(), "flow=peerGroupSaga")
	assert.Contains(t, err.Error(), "event=planning.peerGroup.started")
}

func TestResolveID_EmptyKey(t *testing.T) {
	saga := testSaga("peerGroupSaga", "planning.peerGroup.started")
	saga.Identity["planning.peerGroup.started"] = func(ir.DomainEvent) string { return "" }
	ev := testutil.NewEvent("e-1", "planning.peerGroup.started", "pg-1", nil)

	_, err := ResolveID(saga, ev)
	assert.True(t, HasCode(err, ErrCodeMissingIdentity))
}

func TestRandomIDs(t *testing.T) {
	gen := RandomIDs{}
	a, b := gen.NewID(), gen.NewID()

	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestResolveID_PanickingIdentity(t *testing.T) {
	saga := testSaga("peerGroupSaga", "planning.peerGroup.started")
	saga.Identity["planning.peerGroup.started"] = func(ev ir.DomainEvent) string {
		return string(ev.Data["missing"].(ir.IRString))
	}
	ev := testutil.NewEvent("e-1", "planning.peerGroup.started", "pg-1", nil)

	var err error
	require.NotPanics(t, func() {
		_, err = ResolveID(saga, ev)
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeMissingIdentity))
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "identity function panicked")
}
