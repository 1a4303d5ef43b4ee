package channels

import (
	"context"
	"errors"
	"fmt"

	"carelink/fanout"
	"carelink/models"
)

var ErrNoPhone = errors.New("contact has no phone number")

// Sender entrega uma mensagem já gravada no canal de saída. O resultado só é logado:
// falha de entrega nunca desfaz o que está no ledger.
type Sender interface {
	Deliver(ctx context.Context, to Recipient, msg models.Message) (providerID string, err error)
}

// Recipient é o destino de uma entrega. Phone, quando preenchido, é o número por onde o
// paciente escreveu por último e vale mais que o telefone do cadastro.
type Recipient struct {
	Contact models.Contact
	Phone   string
}

func (r Recipient) phone() string {
	if r.Phone != "" {
		return r.Phone
	}
	if r.Contact.Phone != nil {
		return *r.Contact.Phone
	}
	return ""
}

type TextSender interface {
	SendText(ctx context.Context, to, text string) (string, error)
}

type Broadcaster interface {
	BroadcastTo(ev fanout.Event, rooms ...string)
}

// Registry escolhe o Sender por canal.
type Registry struct {
	sms     Sender
	webchat Sender
}

func NewRegistry(sms TextSender, hub Broadcaster) *Registry {
	r := &Registry{webchat: WebchatSender{hub: hub}}
	if sms != nil {
		r.sms = SMSSender{client: sms}
	}
	return r
}

// For é exaustivo sobre models.Channel. voice_note não tem envio próprio: responde por SMS.
func (r *Registry) For(channel models.Channel) (Sender, error) {
	switch channel {
	case models.CHANNEL_WEBCHAT:
		return r.webchat, nil
	case models.CHANNEL_SMS, models.CHANNEL_VOICE_NOTE:
		if r.sms == nil {
			return nil, fmt.Errorf("sms sender not configured")
		}
		return r.sms, nil
	}
	return nil, fmt.Errorf("no sender for channel %q", channel)
}

type SMSSender struct {
	client TextSender
}

func (s SMSSender) Deliver(ctx context.Context, to Recipient, msg models.Message) (string, error) {
	phone := to.phone()
	if phone == "" {
		return "", ErrNoPhone
	}
	return s.client.SendText(ctx, phone, msg.Body)
}

// WebchatSender empurra a mensagem para a sala do paciente (widget conectado).
type WebchatSender struct {
	hub Broadcaster
}

func (w WebchatSender) Deliver(ctx context.Context, to Recipient, msg models.Message) (string, error) {
	w.hub.BroadcastTo(fanout.MessageAppended(msg), fanout.PatientRoom(to.Contact.ID))
	return msg.ID, nil
}
