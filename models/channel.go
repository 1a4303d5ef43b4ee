package models

import (
	"fmt"
	"strings"
)

// Channel é o transporte por onde a mensagem chegou/saiu. Conjunto fechado.
type Channel string

const (
	CHANNEL_WEBCHAT    Channel = "webchat"
	CHANNEL_SMS        Channel = "sms"
	CHANNEL_VOICE_NOTE Channel = "voice_note"
)

// Channels lista todos os canais conhecidos.
func Channels() []Channel {
	return []Channel{CHANNEL_WEBCHAT, CHANNEL_SMS, CHANNEL_VOICE_NOTE}
}

func ParseChannel(raw string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(raw))) {
	case CHANNEL_WEBCHAT:
		return CHANNEL_WEBCHAT, nil
	case CHANNEL_SMS:
		return CHANNEL_SMS, nil
	case CHANNEL_VOICE_NOTE:
		return CHANNEL_VOICE_NOTE, nil
	}
	return "", fmt.Errorf("unsupported channel: %q", raw)
}

func (c Channel) Valid() bool {
	_, err := ParseChannel(string(c))
	return err == nil
}

// PhoneBased indica canais cuja identidade é um telefone.
func (c Channel) PhoneBased() bool {
	switch c {
	case CHANNEL_SMS, CHANNEL_VOICE_NOTE:
		return true
	case CHANNEL_WEBCHAT:
		return false
	}
	return false
}

// SenderType identifica quem escreveu a mensagem.
type SenderType string

const (
	SENDER_PATIENT  SenderType = "patient"
	SENDER_OPERATOR SenderType = "operator"
	SENDER_SYSTEM   SenderType = "system"
)

func (s SenderType) Valid() bool {
	switch s {
	case SENDER_PATIENT, SENDER_OPERATOR, SENDER_SYSTEM:
		return true
	}
	return false
}
