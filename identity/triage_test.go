package identity

import (
	"context"
	"errors"
	"testing"

	"carelink/db"
	"carelink/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestTriage(t *testing.T) *TriageStore {
	t.Helper()
	gdb, err := db.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	return NewTriageStore(gdb, zap.NewNop())
}

func TestTriage_RecordIsIdempotentPerProviderID(t *testing.T) {
	s := newTestTriage(t)
	ctx := context.Background()
	sid := "SM123"

	e1, dup, err := s.Record(ctx, models.TriageEntry{Channel: models.CHANNEL_SMS, Identifier: "+15550001111", Reason: models.TRIAGE_REASON_UNKNOWN_CONTACT, Body: "hi", ProviderMessageID: &sid})
	require.NoError(t, err)
	assert.False(t, dup)

	e2, dup, err := s.Record(ctx, models.TriageEntry{Channel: models.CHANNEL_SMS, Identifier: "+15550001111", Reason: models.TRIAGE_REASON_UNKNOWN_CONTACT, Body: "hi", ProviderMessageID: &sid})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, e1.ID, e2.ID)

	// sem provider id, cada chamada é uma entrada
	_, _, err = s.Record(ctx, models.TriageEntry{Channel: models.CHANNEL_WEBCHAT, Identifier: "tok", Reason: models.TRIAGE_REASON_UNKNOWN_CONTACT})
	require.NoError(t, err)
	_, _, err = s.Record(ctx, models.TriageEntry{Channel: models.CHANNEL_WEBCHAT, Identifier: "tok", Reason: models.TRIAGE_REASON_UNKNOWN_CONTACT})
	require.NoError(t, err)

	open, err := s.ListOpen(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, open, 3)
}

func TestTriage_ResolveOnlyOnce(t *testing.T) {
	s := newTestTriage(t)
	ctx := context.Background()

	e, _, err := s.Record(ctx, models.TriageEntry{Channel: models.CHANNEL_SMS, Identifier: "+15550001111", Reason: models.TRIAGE_REASON_AMBIGUOUS_CONTACT})
	require.NoError(t, err)

	require.NoError(t, s.MarkLinked(ctx, e.ID, "contact-1", "op-1"))
	assert.ErrorIs(t, s.Discard(ctx, e.ID, "op-2"), ErrTriageNotOpen)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TRIAGE_STATUS_LINKED, got.Status)
	require.NotNil(t, got.ContactID)
	assert.Equal(t, "contact-1", *got.ContactID)

	open, err := s.ListOpen(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, models.TRIAGE_REASON_AMBIGUOUS_CONTACT, ReasonFor(ErrAmbiguousContact))
	assert.Equal(t, models.TRIAGE_REASON_UNKNOWN_CONTACT, ReasonFor(ErrUnknownContact))
	assert.Equal(t, models.TRIAGE_REASON_UNKNOWN_CONTACT, ReasonFor(errors.New("other")))
}
