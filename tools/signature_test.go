package tools

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyTwilioSignature(t *testing.T) {
	params := url.Values{}
	params.Set("MessageSid", "SM123")
	params.Set("From", "+15551234567")
	params.Set("Body", "hello")

	sig := ComputeTwilioSignature("token", "https://hub.example.com/api/webhooks/sms", params)

	assert.True(t, VerifyTwilioSignature("token", "https://hub.example.com/api/webhooks/sms", params, sig))
	assert.False(t, VerifyTwilioSignature("other", "https://hub.example.com/api/webhooks/sms", params, sig))
	assert.False(t, VerifyTwilioSignature("token", "https://evil.example.com/api/webhooks/sms", params, sig))
	assert.False(t, VerifyTwilioSignature("token", "https://hub.example.com/api/webhooks/sms", params, ""))

	params.Set("Body", "tampered")
	assert.False(t, VerifyTwilioSignature("token", "https://hub.example.com/api/webhooks/sms", params, sig))
}
