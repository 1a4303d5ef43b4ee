package channels

import (
	"context"
	"testing"

	"carelink/fanout"
	"carelink/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	to, text string
}

func (f *fakeSMS) SendText(ctx context.Context, to, text string) (string, error) {
	f.to, f.text = to, text
	return "SM-out-1", nil
}

type fakeHub struct {
	rooms []string
	ev    fanout.Event
}

func (f *fakeHub) BroadcastTo(ev fanout.Event, rooms ...string) {
	f.ev, f.rooms = ev, rooms
}

func TestRegistry_ForEveryChannel(t *testing.T) {
	sms := &fakeSMS{}
	r := NewRegistry(sms, &fakeHub{})

	for _, ch := range models.Channels() {
		s, err := r.For(ch)
		require.NoError(t, err, ch)
		require.NotNil(t, s, ch)
	}

	_, err := r.For("fax")
	assert.Error(t, err)
}

func TestRegistry_VoiceFallsBackToSMS(t *testing.T) {
	sms := &fakeSMS{}
	r := NewRegistry(sms, &fakeHub{})
	phone := "+15551234567"

	s, err := r.For(models.CHANNEL_VOICE_NOTE)
	require.NoError(t, err)
	id, err := s.Deliver(context.Background(), Recipient{Contact: models.Contact{ID: "C1", Phone: &phone}}, models.Message{Body: "we tried to call you"})
	require.NoError(t, err)
	assert.Equal(t, "SM-out-1", id)
	assert.Equal(t, phone, sms.to)
	assert.Equal(t, "we tried to call you", sms.text)
}

func TestSMSSender_NoPhone(t *testing.T) {
	r := NewRegistry(&fakeSMS{}, &fakeHub{})
	s, err := r.For(models.CHANNEL_SMS)
	require.NoError(t, err)

	_, err = s.Deliver(context.Background(), Recipient{Contact: models.Contact{ID: "C1"}}, models.Message{Body: "x"})
	assert.ErrorIs(t, err, ErrNoPhone)
}

func TestSMSSender_PrefersLastInboundPhone(t *testing.T) {
	sms := &fakeSMS{}
	r := NewRegistry(sms, &fakeHub{})
	s, err := r.For(models.CHANNEL_SMS)
	require.NoError(t, err)

	onFile := "+15551112222"
	_, err = s.Deliver(context.Background(), Recipient{
		Contact: models.Contact{ID: "C1", Phone: &onFile},
		Phone:   "+15550007777",
	}, models.Message{Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "+15550007777", sms.to)
}

func TestRegistry_SMSNotConfigured(t *testing.T) {
	r := NewRegistry(nil, &fakeHub{})
	_, err := r.For(models.CHANNEL_SMS)
	assert.Error(t, err)
}

func TestWebchatSender_PushesToPatientRoom(t *testing.T) {
	hub := &fakeHub{}
	r := NewRegistry(nil, hub)

	s, err := r.For(models.CHANNEL_WEBCHAT)
	require.NoError(t, err)
	_, err = s.Deliver(context.Background(), Recipient{Contact: models.Contact{ID: "C1"}}, models.Message{ID: "m-1", ContactID: "C1", Body: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{fanout.PatientRoom("C1")}, hub.rooms)
	assert.Equal(t, fanout.EVENT_MESSAGE_APPENDED, hub.ev.Type)
}
