package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	GATE_POLICY_OPEN   = "open"
	GATE_POLICY_CLOSED = "closed"
)

type Configuration struct {
	ApiPort   string `json:"api_port"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // "json" ou "console"

	Database string `json:"database"` // "sqlite3" ou "postgres"
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"` // sqlite3: caminho do arquivo (":memory:" em testes)
	DbPass   string `json:"db_pass"`
	DbSSL    string `json:"db_sslmode"`

	Redis struct {
		Enabled  bool   `json:"enabled"`
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
		Channel  string `json:"channel"`
	} `json:"redis"`

	Security struct {
		JwtSecret        string `json:"jwt_secret"`
		TokenTTLHours    int    `json:"token_ttl_hours"`
		WebchatTokenDays int    `json:"webchat_token_days"`
	} `json:"security"`

	Sms struct {
		BaseURL            string `json:"base_url"`
		AccountSID         string `json:"account_sid"`
		AuthToken          string `json:"auth_token"`
		FromNumber         string `json:"from_number"`
		PublicWebhookURL   string `json:"public_webhook_url"` // base usada na assinatura X-Twilio-Signature
		AutoCreateContacts bool   `json:"auto_create_contacts"`
		DefaultOwnerID     string `json:"default_owner_id"`
	} `json:"sms"`

	Identity struct {
		DefaultCountryCode string `json:"default_country_code"`
	} `json:"identity"`

	Gate struct {
		FailurePolicy string `json:"failure_policy"` // open | closed
	} `json:"gate"`

	Fanout struct {
		QueueSize        int `json:"queue_size"`
		PublishTimeoutMs int `json:"publish_timeout_ms"`
		SessionBuffer    int `json:"session_buffer"`
	} `json:"fanout"`

	Bot struct {
		Enabled         bool   `json:"enabled"`
		DebounceSeconds int    `json:"debounce_seconds"`
		PollIntervalMs  int    `json:"poll_interval_ms"`
		HistorySize     int    `json:"history_size"`
		OpenAIBaseURL   string `json:"openai_base_url"`
		OpenAIKey       string `json:"openai_key"`
		Model           string `json:"model"`
		SystemPrompt    string `json:"system_prompt"`
	} `json:"bot"`

	Conversation struct {
		AutoPauseOnOperatorReply *bool `json:"auto_pause_on_operator_reply"`
		RecentPerContact         int   `json:"recent_per_contact"`
	} `json:"conversation"`
}

// Get lê o arquivo JSON (se existir), aplica defaults e depois overrides de ambiente.
func Get(path string) (Configuration, error) {
	var c Configuration

	b, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := json.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	c.applyEnv()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default devolve a configuração só com defaults (usada em testes).
func Default() Configuration {
	var c Configuration
	c.applyDefaults()
	return c
}

func (c *Configuration) applyDefaults() {
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.DbName == "" && c.Database == "sqlite3" {
		c.DbName = "db/database.db"
	}
	if c.DbSSL == "" {
		c.DbSSL = "disable"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "carelink:fanout"
	}
	if c.Security.JwtSecret == "" {
		c.Security.JwtSecret = "CHANGE_ME"
	}
	if c.Security.TokenTTLHours <= 0 {
		c.Security.TokenTTLHours = 12
	}
	if c.Security.WebchatTokenDays <= 0 {
		c.Security.WebchatTokenDays = 30
	}
	if c.Sms.BaseURL == "" {
		c.Sms.BaseURL = "https://api.twilio.com"
	}
	if c.Identity.DefaultCountryCode == "" {
		c.Identity.DefaultCountryCode = "1"
	}
	if c.Gate.FailurePolicy == "" {
		c.Gate.FailurePolicy = GATE_POLICY_OPEN
	}
	if c.Fanout.QueueSize <= 0 {
		c.Fanout.QueueSize = 1024
	}
	if c.Fanout.PublishTimeoutMs <= 0 {
		c.Fanout.PublishTimeoutMs = 2000
	}
	if c.Fanout.SessionBuffer <= 0 {
		c.Fanout.SessionBuffer = 64
	}
	if c.Bot.DebounceSeconds < 0 {
		c.Bot.DebounceSeconds = 0
	}
	if c.Bot.PollIntervalMs <= 0 {
		c.Bot.PollIntervalMs = 1000
	}
	if c.Bot.HistorySize <= 0 {
		c.Bot.HistorySize = 20
	}
	if c.Bot.OpenAIBaseURL == "" {
		c.Bot.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.Bot.Model == "" {
		c.Bot.Model = "gpt-4.1-mini"
	}
	if c.Bot.SystemPrompt == "" {
		c.Bot.SystemPrompt = "You are the clinic's assistant. Be brief and polite. Never give a diagnosis; offer to connect the patient with staff."
	}
	if c.Conversation.AutoPauseOnOperatorReply == nil {
		v := true
		c.Conversation.AutoPauseOnOperatorReply = &v
	}
	if c.Conversation.RecentPerContact <= 0 {
		c.Conversation.RecentPerContact = 5
	}
}

func (c *Configuration) applyEnv() {
	setString(&c.ApiPort, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.Database, "DATABASE")
	setString(&c.DbHost, "DB_HOST")
	setString(&c.DbPort, "DB_PORT")
	setString(&c.DbUser, "DB_USER")
	setString(&c.DbName, "DB_NAME")
	setString(&c.DbPass, "DB_PASSWORD")
	setString(&c.DbSSL, "DB_SSLMODE")

	setBool(&c.Redis.Enabled, "REDIS_ENABLED")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")

	setString(&c.Security.JwtSecret, "JWT_SECRET")

	setString(&c.Sms.AccountSID, "SMS_ACCOUNT_SID")
	setString(&c.Sms.AuthToken, "SMS_AUTH_TOKEN")
	setString(&c.Sms.FromNumber, "SMS_FROM_NUMBER")
	setString(&c.Sms.PublicWebhookURL, "SMS_PUBLIC_WEBHOOK_URL")

	setString(&c.Gate.FailurePolicy, "GATE_FAILURE_POLICY")

	setBool(&c.Bot.Enabled, "BOT_ENABLED")
	setString(&c.Bot.OpenAIKey, "OPENAI_API_KEY")
	setString(&c.Bot.Model, "OPENAI_MODEL")
	setString(&c.Bot.SystemPrompt, "OPENAI_SYSTEM_PROMPT")
}

// Validate rejeita combinações que o serviço não sabe tratar.
func (c Configuration) Validate() error {
	switch c.Database {
	case "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database %q", c.Database)
	}
	switch c.Gate.FailurePolicy {
	case GATE_POLICY_OPEN, GATE_POLICY_CLOSED:
	default:
		return fmt.Errorf("gate.failure_policy must be %q or %q, got %q", GATE_POLICY_OPEN, GATE_POLICY_CLOSED, c.Gate.FailurePolicy)
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	// a assinatura do provedor cobre a URL pública completa; sem ela todo webhook seria 403
	if c.Sms.AuthToken != "" && strings.TrimSpace(c.Sms.PublicWebhookURL) == "" {
		return errors.New("sms.public_webhook_url is required when sms.auth_token is set")
	}
	return nil
}

func (c Configuration) AutoPause() bool {
	return c.Conversation.AutoPauseOnOperatorReply != nil && *c.Conversation.AutoPauseOnOperatorReply
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	*dst = v == "1" || strings.EqualFold(v, "true")
}
