package unread

import (
	"context"
	"testing"
	"time"

	"carelink/db"
	"carelink/ledger"
	"carelink/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	db      *gorm.DB
	ledger  *ledger.Ledger
	counter *Counter
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gdb, err := db.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	return fixture{db: gdb, ledger: ledger.New(gdb, zap.NewNop()), counter: New(gdb, zap.NewNop())}
}

func (f fixture) contact(t *testing.T, owner string) string {
	c := models.Contact{ID: uuid.NewString(), OwnerID: owner}
	require.NoError(t, f.db.Create(&c).Error)
	return c.ID
}

func (f fixture) append(t *testing.T, contactID string, sender models.SenderType, body string) models.Message {
	m, _, err := f.ledger.Append(context.Background(), ledger.AppendInput{
		ContactID:  contactID,
		Channel:    models.CHANNEL_WEBCHAT,
		SenderType: sender,
		Body:       body,
	})
	require.NoError(t, err)
	return m
}

func TestGetUnread_CountsOnlyPatientMessagesAfterMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contact(t, "clinic-1")

	f.append(t, c, models.SENDER_PATIENT, "hi")
	f.append(t, c, models.SENDER_SYSTEM, "hello, how can I help?")
	m := f.append(t, c, models.SENDER_PATIENT, "I need an appointment")

	n, err := f.counter.GetUnread(ctx, c, "O1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.counter.MarkRead(ctx, c, "O1", m.CreatedAt)
	require.NoError(t, err)

	n, err = f.counter.GetUnread(ctx, c, "O1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// outro operador ainda não leu
	n, err = f.counter.GetUnread(ctx, c, "O2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	time.Sleep(2 * time.Millisecond)
	f.append(t, c, models.SENDER_PATIENT, "are you there?")
	n, err = f.counter.GetUnread(ctx, c, "O1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkRead_IsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.contact(t, "clinic-1")

	later := db.Now()
	earlier := later.Add(-time.Hour)

	got, err := f.counter.MarkRead(ctx, c, "O1", later)
	require.NoError(t, err)
	assert.True(t, got.Equal(later))

	got, err = f.counter.MarkRead(ctx, c, "O1", earlier)
	require.NoError(t, err)
	assert.True(t, got.Equal(later), "last_read_at must not move backwards")

	// futuro é limitado a agora
	got, err = f.counter.MarkRead(ctx, c, "O1", time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, got.After(db.Now()))
	assert.False(t, got.Before(later))
}

func TestUnreadByOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.contact(t, "clinic-1")
	b := f.contact(t, "clinic-1")
	other := f.contact(t, "clinic-2")

	f.append(t, a, models.SENDER_PATIENT, "a1")
	last := f.append(t, a, models.SENDER_PATIENT, "a2")
	f.append(t, b, models.SENDER_PATIENT, "b1")
	f.append(t, b, models.SENDER_OPERATOR, "b reply")
	f.append(t, other, models.SENDER_PATIENT, "o1")

	counts, err := f.counter.UnreadByOperator(ctx, "clinic-1", "O1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{a: 2, b: 1}, counts)

	_, err = f.counter.MarkRead(ctx, a, "O1", last.CreatedAt)
	require.NoError(t, err)

	counts, err = f.counter.UnreadByOperator(ctx, "clinic-1", "O1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{b: 1}, counts)
}
