package fanout

import (
	"context"
	"errors"
	"testing"

	"carelink/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRelay(t *testing.T) *RedisRelay {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })
	return NewRedisRelay(client, "carelink:test", zap.NewNop())
}

func TestRelay_EventsCrossInstances(t *testing.T) {
	relay := newTestRelay(t)

	// duas instâncias compartilhando o mesmo canal
	a := startHub(t, Options{}, relay)
	b := startHub(t, Options{}, relay)

	s := b.NewSession(SESSION_KIND_OPERATOR, "O1")
	b.Subscribe(s, ContactRoom("C1"))

	a.Broadcast(MessageAppended(models.Message{ID: "m-1", ContactID: "C1", Body: "hi"}))

	ev := receive(t, s)
	assert.Equal(t, EVENT_MESSAGE_APPENDED, ev.Type)
	assert.Equal(t, "C1", ev.ContactID)
}

func TestRelay_PublishRoundTrip(t *testing.T) {
	relay := newTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := relay.Subscribe(ctx)
	require.NoError(t, err)

	env := Envelope{Rooms: []string{OperatorRoom("O1")}, Event: ReadUpdated("C1", ReadPayload{OperatorID: "O1", Unread: 0})}
	require.NoError(t, relay.Publish(ctx, env))

	got := <-ch
	assert.Equal(t, env.Rooms, got.Rooms)
	assert.Equal(t, EVENT_READ_UPDATED, got.Event.Type)
}

type brokenRelay struct{}

func (brokenRelay) Publish(ctx context.Context, env Envelope) error {
	return errors.New("redis down")
}

func (brokenRelay) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	return make(chan Envelope), nil
}

func TestRelay_PublishFailureFallsBackToLocal(t *testing.T) {
	h := startHub(t, Options{}, brokenRelay{})

	s := h.NewSession(SESSION_KIND_OPERATOR, "O1")
	h.Subscribe(s, ContactRoom("C1"))
	h.Broadcast(MessageAppended(models.Message{ContactID: "C1"}))

	ev := receive(t, s)
	assert.Equal(t, EVENT_MESSAGE_APPENDED, ev.Type)
}
