package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Get(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ApiPort)
	assert.Equal(t, "sqlite3", cfg.Database)
	assert.Equal(t, GATE_POLICY_OPEN, cfg.Gate.FailurePolicy)
	assert.Equal(t, 5, cfg.Conversation.RecentPerContact)
	assert.True(t, cfg.AutoPause())
}

func TestGet_FileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"api_port": "9090",
		"gate": {"failure_policy": "open"},
		"conversation": {"auto_pause_on_operator_reply": false},
		"identity": {"default_country_code": "55"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("GATE_FAILURE_POLICY", "closed")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Get(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ApiPort)
	assert.Equal(t, GATE_POLICY_CLOSED, cfg.Gate.FailurePolicy)
	assert.Equal(t, "s3cret", cfg.Security.JwtSecret)
	assert.Equal(t, "55", cfg.Identity.DefaultCountryCode)
	assert.False(t, cfg.AutoPause())
}

func TestGet_RejectsUnknownGatePolicy(t *testing.T) {
	t.Setenv("GATE_FAILURE_POLICY", "maybe")

	_, err := Get(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failure_policy")
}

func TestGet_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := Get(path)
	require.Error(t, err)
}

func TestValidate_RedisNeedsAddr(t *testing.T) {
	cfg := Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""

	require.Error(t, cfg.Validate())
}

func TestValidate_SmsAuthTokenNeedsPublicWebhookURL(t *testing.T) {
	cfg := Default()
	cfg.Sms.AuthToken = "twilio-secret"
	require.Error(t, cfg.Validate())

	cfg.Sms.PublicWebhookURL = "https://carelink.example.com"
	require.NoError(t, cfg.Validate())
}
