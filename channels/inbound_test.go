package channels

import (
	"net/url"
	"testing"

	"carelink/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSMSWebhook(t *testing.T) {
	msg, err := ParseSMSWebhook(url.Values{
		"From":       {"+15551234567"},
		"Body":       {" Can I move my appointment? "},
		"MessageSid": {"SM123"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.CHANNEL_SMS, msg.Channel)
	assert.Equal(t, models.SENDER_PATIENT, msg.SenderType)
	assert.Equal(t, "+15551234567", msg.Identifier)
	assert.Equal(t, "Can I move my appointment?", msg.Body)
	assert.Equal(t, "SM123", msg.ProviderMessageID)
}

func TestParseSMSWebhook_MediaOnlyAndErrors(t *testing.T) {
	msg, err := ParseSMSWebhook(url.Values{"From": {"+15551234567"}, "NumMedia": {"2"}, "SmsSid": {"SM9"}})
	require.NoError(t, err)
	assert.Equal(t, "[2 attachment(s)]", msg.Body)
	assert.Equal(t, "SM9", msg.ProviderMessageID)

	_, err = ParseSMSWebhook(url.Values{"From": {"+15551234567"}})
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = ParseSMSWebhook(url.Values{"Body": {"hi"}})
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestParseVoiceStatus(t *testing.T) {
	t.Run("transcription is a patient message", func(t *testing.T) {
		msg, err := ParseVoiceStatus(url.Values{
			"CallSid":           {"CA1"},
			"From":              {"+15551234567"},
			"TranscriptionText": {"Hi, please call me back"},
			"TranscriptionSid":  {"TR1"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.CHANNEL_VOICE_NOTE, msg.Channel)
		assert.Equal(t, models.SENDER_PATIENT, msg.SenderType)
		assert.Equal(t, "TR1", msg.ProviderMessageID)
	})

	t.Run("status only is a system note", func(t *testing.T) {
		msg, err := ParseVoiceStatus(url.Values{
			"CallSid":    {"CA1"},
			"From":       {"+15551234567"},
			"CallStatus": {"no-answer"},
		})
		require.NoError(t, err)
		assert.Equal(t, models.SENDER_SYSTEM, msg.SenderType)
		assert.Equal(t, "CA1:no-answer", msg.ProviderMessageID)
		assert.Contains(t, msg.Body, "Missed call")
	})

	t.Run("outbound call uses callee", func(t *testing.T) {
		msg, err := ParseVoiceStatus(url.Values{
			"CallSid":      {"CA2"},
			"From":         {"+15550000000"},
			"To":           {"+15551234567"},
			"Direction":    {"outbound-api"},
			"CallStatus":   {"completed"},
			"CallDuration": {"42"},
		})
		require.NoError(t, err)
		assert.Equal(t, "+15551234567", msg.Identifier)
		assert.Equal(t, "Voice call completed (42s)", msg.Body)
	})

	t.Run("missing call sid", func(t *testing.T) {
		_, err := ParseVoiceStatus(url.Values{"From": {"+15551234567"}, "CallStatus": {"completed"}})
		assert.ErrorIs(t, err, ErrEmptyPayload)
	})
}

func TestWebchatInput(t *testing.T) {
	msg, err := WebchatInput{Body: "hello", ClientMessageID: "c-1"}.Incoming("tok")
	require.NoError(t, err)
	assert.Equal(t, models.CHANNEL_WEBCHAT, msg.Channel)
	assert.Equal(t, "tok", msg.Identifier)
	assert.Equal(t, "c-1", msg.ProviderMessageID)

	_, err = WebchatInput{Body: "  "}.Incoming("tok")
	assert.ErrorIs(t, err, ErrEmptyPayload)
}
