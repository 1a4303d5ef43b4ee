package channels

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"carelink/models"
)

var ErrEmptyPayload = errors.New("webhook payload carries no message")

// IncomingMessage é o formato canônico que todo adaptador entrega ao coordenador.
type IncomingMessage struct {
	Channel           models.Channel
	Identifier        string
	SenderType        models.SenderType
	Body              string
	ProviderMessageID string
	ProviderTimestamp *time.Time
}

// ParseSMSWebhook normaliza o form de um SMS recebido (formato Twilio).
func ParseSMSWebhook(form url.Values) (IncomingMessage, error) {
	msg := IncomingMessage{
		Channel:           models.CHANNEL_SMS,
		SenderType:        models.SENDER_PATIENT,
		Identifier:        strings.TrimSpace(form.Get("From")),
		Body:              strings.TrimSpace(form.Get("Body")),
		ProviderMessageID: firstNonEmpty(form.Get("MessageSid"), form.Get("SmsMessageSid"), form.Get("SmsSid")),
	}
	if msg.Identifier == "" {
		return msg, fmt.Errorf("%w: missing From", ErrEmptyPayload)
	}

	if n, _ := strconv.Atoi(form.Get("NumMedia")); n > 0 {
		note := fmt.Sprintf("[%d attachment(s)]", n)
		if msg.Body == "" {
			msg.Body = note
		} else {
			msg.Body += "\n" + note
		}
	}
	if msg.Body == "" {
		return msg, fmt.Errorf("%w: empty body", ErrEmptyPayload)
	}
	return msg, nil
}

// ParseVoiceStatus normaliza o callback de status/transcrição de uma chamada.
// Com transcrição vira mensagem do paciente; só status vira nota de sistema, com
// provider id "CallSid:status" para que cada transição seja gravada uma vez.
func ParseVoiceStatus(form url.Values) (IncomingMessage, error) {
	callSid := strings.TrimSpace(form.Get("CallSid"))
	if callSid == "" {
		return IncomingMessage{}, fmt.Errorf("%w: missing CallSid", ErrEmptyPayload)
	}

	identifier := form.Get("From")
	if strings.HasPrefix(form.Get("Direction"), "outbound") {
		identifier = form.Get("To")
	}

	msg := IncomingMessage{
		Channel:    models.CHANNEL_VOICE_NOTE,
		Identifier: strings.TrimSpace(identifier),
	}
	if msg.Identifier == "" {
		return msg, fmt.Errorf("%w: missing caller", ErrEmptyPayload)
	}

	if text := strings.TrimSpace(form.Get("TranscriptionText")); text != "" {
		msg.SenderType = models.SENDER_PATIENT
		msg.Body = text
		msg.ProviderMessageID = firstNonEmpty(form.Get("TranscriptionSid"), callSid+":transcription")
		return msg, nil
	}

	status := strings.ToLower(strings.TrimSpace(form.Get("CallStatus")))
	if status == "" {
		return msg, fmt.Errorf("%w: no status or transcription", ErrEmptyPayload)
	}
	msg.SenderType = models.SENDER_SYSTEM
	msg.Body = callNote(status, form.Get("CallDuration"), form.Get("RecordingUrl"))
	msg.ProviderMessageID = callSid + ":" + status
	return msg, nil
}

func callNote(status, duration, recordingURL string) string {
	var note string
	switch status {
	case "completed":
		note = "Voice call completed"
		if duration != "" {
			note += " (" + duration + "s)"
		}
	case "no-answer", "busy":
		note = "Missed call (" + status + ")"
	case "failed", "canceled":
		note = "Call " + status
	default:
		note = "Call status: " + status
	}
	if recordingURL != "" {
		note += "\nRecording: " + recordingURL
	}
	return note
}

// WebchatInput é o corpo do POST do paciente no webchat.
type WebchatInput struct {
	Body            string `json:"body"`
	ClientMessageID string `json:"client_message_id"`
}

// Incoming converte a mensagem do webchat. O client_message_id, quando enviado,
// torna o reenvio pelo navegador idempotente.
func (in WebchatInput) Incoming(sessionToken string) (IncomingMessage, error) {
	msg := IncomingMessage{
		Channel:           models.CHANNEL_WEBCHAT,
		SenderType:        models.SENDER_PATIENT,
		Identifier:        sessionToken,
		Body:              strings.TrimSpace(in.Body),
		ProviderMessageID: strings.TrimSpace(in.ClientMessageID),
	}
	if msg.Body == "" {
		return msg, fmt.Errorf("%w: empty body", ErrEmptyPayload)
	}
	return msg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
