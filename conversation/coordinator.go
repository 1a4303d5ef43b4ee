package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carelink/channels"
	"carelink/control"
	"carelink/fanout"
	"carelink/identity"
	"carelink/ledger"
	"carelink/logger"
	"carelink/models"
	"carelink/unread"

	"go.uber.org/zap"
)

// ErrGateClosed: o bot tentou responder uma conversa pausada.
var ErrGateClosed = errors.New("responder gate closed")

// JobQueue recebe as mensagens do paciente que podem gerar resposta do bot.
type JobQueue interface {
	Enqueue(ctx context.Context, msg models.Message) error
}

type Notifier interface {
	Broadcast(ev fanout.Event, extraRooms ...string)
	BroadcastTo(ev fanout.Event, rooms ...string)
}

type Outbound interface {
	For(channel models.Channel) (channels.Sender, error)
}

type Options struct {
	AutoPauseOnOperatorReply bool
	RecentPerContact         int
}

type Deps struct {
	Resolver *identity.Resolver
	Triage   *identity.TriageStore
	Control  *control.Store
	Gate     *control.Gate
	Ledger   *ledger.Ledger
	Unread   *unread.Counter
	Notifier Notifier
	Outbound Outbound
}

// Coordinator liga adaptadores de canal, identidade, ledger, controle e fan-out.
// Toda escrita durável acontece antes do fan-out, que é só enfileirado.
type Coordinator struct {
	Deps
	jobs   JobQueue
	opts   Options
	logger *zap.Logger
}

func New(deps Deps, opts Options, logger *zap.Logger) *Coordinator {
	if opts.RecentPerContact <= 0 {
		opts.RecentPerContact = 5
	}
	return &Coordinator{Deps: deps, opts: opts, logger: logger}
}

// SetJobQueue liga o worker do bot (criado depois, porque ele depende do coordenador).
func (c *Coordinator) SetJobQueue(q JobQueue) {
	c.jobs = q
}

type IngestResult struct {
	Message   *models.Message `json:"message,omitempty"`
	Duplicate bool            `json:"duplicate"`
	Triaged   bool            `json:"triaged"`
	TriageID  string          `json:"triage_id,omitempty"`
}

// Ingest: resolve -> append -> fan-out -> (paciente) fila do bot.
// Falha de identidade vai para a triagem e o erro de identidade é devolvido junto com
// Triaged=true; o chamador decide o que responder ao provedor.
func (c *Coordinator) Ingest(ctx context.Context, in channels.IncomingMessage) (IngestResult, error) {
	var res IngestResult

	contactID, err := c.Resolver.Resolve(ctx, in.Channel, in.Identifier)
	if err != nil {
		if !errors.Is(err, identity.ErrUnknownContact) && !errors.Is(err, identity.ErrAmbiguousContact) {
			return res, fmt.Errorf("resolve identity: %w", err)
		}
		entry, _, triageErr := c.Triage.Record(ctx, triageEntry(in, err))
		if triageErr != nil {
			return res, triageErr
		}
		res.Triaged = true
		res.TriageID = entry.ID
		return res, err
	}

	msg, dup, err := c.Ledger.Append(ctx, ledger.AppendInput{
		ContactID:         contactID,
		Channel:           in.Channel,
		SenderType:        in.SenderType,
		Body:              in.Body,
		ProviderMessageID: in.ProviderMessageID,
		ProviderTimestamp: in.ProviderTimestamp,
		FromAddress:       c.fromAddress(in.Channel, in.Identifier),
	})
	if err != nil {
		return res, err
	}
	res.Message = &msg
	res.Duplicate = dup
	if dup {
		return res, nil
	}

	c.notifyMessage(ctx, msg)

	if msg.SenderType == models.SENDER_PATIENT && c.jobs != nil {
		if err := c.jobs.Enqueue(ctx, msg); err != nil {
			c.logger.Error("could not enqueue bot job",
				logger.Anomaly("bot_enqueue_failed"),
				zap.String("contact_id", msg.ContactID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

// fromAddress é o telefone normalizado do remetente, guardado na mensagem para que a
// resposta volte ao número por onde o paciente escreveu.
func (c *Coordinator) fromAddress(channel models.Channel, identifier string) string {
	if !channel.PhoneBased() {
		return ""
	}
	phone, err := c.Resolver.NormalizePhone(identifier)
	if err != nil {
		return ""
	}
	return phone
}

func triageEntry(in channels.IncomingMessage, cause error) models.TriageEntry {
	entry := models.TriageEntry{
		Channel:    in.Channel,
		Identifier: in.Identifier,
		Reason:     identity.ReasonFor(cause),
		Body:       in.Body,
		SenderType: in.SenderType,
	}
	if in.Channel == models.CHANNEL_WEBCHAT {
		// nunca guardar o token de sessão em claro
		entry.Identifier = "webchat-session"
	}
	if in.ProviderMessageID != "" {
		id := in.ProviderMessageID
		entry.ProviderMessageID = &id
	}
	return entry
}

// ContactFor carrega o contato e confere o dono. Contato de outro dono = desconhecido.
func (c *Coordinator) ContactFor(ctx context.Context, contactID, ownerID string) (models.Contact, error) {
	contact, err := c.Resolver.GetContact(ctx, contactID)
	if err != nil {
		return contact, err
	}
	if ownerID != "" && contact.OwnerID != ownerID {
		return models.Contact{}, identity.ErrUnknownContact
	}
	return contact, nil
}

func (c *Coordinator) Pause(ctx context.Context, contactID, operatorID, reason string) (*models.ConversationControl, error) {
	state, err := c.Control.Pause(ctx, contactID, operatorID, reason)
	if err != nil {
		return nil, err
	}
	c.notifyControl(ctx, contactID, state)
	return state, nil
}

func (c *Coordinator) Resume(ctx context.Context, contactID, operatorID string) (*models.ConversationControl, error) {
	state, err := c.Control.Resume(ctx, contactID, operatorID)
	if err != nil {
		return nil, err
	}
	c.notifyControl(ctx, contactID, state)
	return state, nil
}

type SendInput struct {
	ContactID  string
	OperatorID string
	Channel    models.Channel
	Body       string
}

type Delivery struct {
	Channel    models.Channel `json:"channel"`
	ProviderID string         `json:"provider_id,omitempty"`
	Error      string         `json:"error,omitempty"`
}

type SendResult struct {
	Message  models.Message              `json:"message"`
	Control  *models.ConversationControl `json:"control,omitempty"`
	Delivery Delivery                    `json:"delivery"`
}

// Send grava a resposta do operador e entrega no canal. Sem canal, responde pelo canal
// da última mensagem do paciente. A falha de entrega vai no resultado, não no erro.
func (c *Coordinator) Send(ctx context.Context, in SendInput) (SendResult, error) {
	var res SendResult

	contact, err := c.Resolver.GetContact(ctx, in.ContactID)
	if err != nil {
		return res, err
	}

	channel := in.Channel
	if channel == "" {
		if channel, err = c.Ledger.LastInboundChannel(ctx, contact.ID); err != nil {
			return res, err
		}
		if channel == "" {
			channel = models.CHANNEL_WEBCHAT
		}
	}

	msg, _, err := c.Ledger.Append(ctx, ledger.AppendInput{
		ContactID:  contact.ID,
		Channel:    channel,
		SenderType: models.SENDER_OPERATOR,
		SenderID:   in.OperatorID,
		Body:       in.Body,
	})
	if err != nil {
		return res, err
	}
	res.Message = msg

	if err := c.Control.TouchHumanResponse(ctx, contact.ID, msg.CreatedAt); err != nil {
		c.logger.Warn("could not stamp human response", zap.String("contact_id", contact.ID), zap.Error(err))
	}
	c.notifyMessage(ctx, msg)

	if c.opts.AutoPauseOnOperatorReply {
		res.Control = c.autoPause(ctx, contact.ID, in.OperatorID)
	}

	res.Delivery = c.deliver(ctx, contact, msg)
	return res, nil
}

func (c *Coordinator) autoPause(ctx context.Context, contactID, operatorID string) *models.ConversationControl {
	current, err := c.Control.Get(ctx, contactID)
	if err != nil {
		c.logger.Warn("auto-pause skipped", zap.String("contact_id", contactID), zap.Error(err))
		return nil
	}
	if !control.ShouldBotRespond(current) {
		return current
	}
	state, err := c.Pause(ctx, contactID, operatorID, models.PAUSE_REASON_OPERATOR_REPLY)
	if err != nil {
		c.logger.Warn("auto-pause failed", zap.String("contact_id", contactID), zap.Error(err))
		return current
	}
	return state
}

// AppendBotReply relê o gate no momento da gravação: se um operador pausou depois que a
// mensagem chegou, nada é gravado e ErrGateClosed é devolvido. O append também confere a
// pausa dentro da própria transação, então uma pausa entre as duas leituras não passa.
func (c *Coordinator) AppendBotReply(ctx context.Context, contactID string, channel models.Channel, body string) (models.Message, error) {
	if !c.Gate.Allow(ctx, contactID) {
		return models.Message{}, ErrGateClosed
	}

	msg, _, err := c.Ledger.Append(ctx, ledger.AppendInput{
		ContactID:     contactID,
		Channel:       channel,
		SenderType:    models.SENDER_SYSTEM,
		Body:          body,
		RequireActive: true,
	})
	if errors.Is(err, ledger.ErrPaused) {
		return models.Message{}, ErrGateClosed
	}
	if err != nil {
		return models.Message{}, err
	}

	if err := c.Control.TouchBotResponse(ctx, contactID, msg.CreatedAt); err != nil {
		c.logger.Warn("could not stamp bot response", zap.String("contact_id", contactID), zap.Error(err))
	}
	c.notifyMessage(ctx, msg)

	contact, err := c.Resolver.GetContact(ctx, contactID)
	if err != nil {
		c.logger.Warn("bot reply not delivered", zap.String("contact_id", contactID), zap.Error(err))
		return msg, nil
	}
	c.deliver(ctx, contact, msg)
	return msg, nil
}

func (c *Coordinator) deliver(ctx context.Context, contact models.Contact, msg models.Message) Delivery {
	d := Delivery{Channel: msg.Channel}

	sender, err := c.Outbound.For(msg.Channel)
	if err == nil {
		d.ProviderID, err = sender.Deliver(ctx, c.recipient(ctx, contact, msg.Channel), msg)
	}
	if err != nil {
		d.Error = err.Error()
		c.logger.Warn("outbound delivery failed",
			zap.String("contact_id", contact.ID),
			zap.String("message_id", msg.ID),
			zap.String("channel", string(msg.Channel)),
			zap.Error(err),
		)
	}
	return d
}

// recipient: em canais de telefone a resposta vai para o último número de onde o paciente
// escreveu. O telefone do cadastro só vale quando nenhuma mensagem trouxe número.
func (c *Coordinator) recipient(ctx context.Context, contact models.Contact, channel models.Channel) channels.Recipient {
	to := channels.Recipient{Contact: contact}
	if !channel.PhoneBased() {
		return to
	}
	phone, err := c.Ledger.LastInboundPhone(ctx, contact.ID)
	if err != nil {
		c.logger.Warn("could not read last inbound phone", zap.String("contact_id", contact.ID), zap.Error(err))
		return to
	}
	to.Phone = phone
	return to
}

// MarkRead avança a marca de leitura e avisa as sessões do próprio operador.
func (c *Coordinator) MarkRead(ctx context.Context, contactID, operatorID string, upto time.Time) (fanout.ReadPayload, error) {
	var p fanout.ReadPayload

	lastRead, err := c.Unread.MarkRead(ctx, contactID, operatorID, upto)
	if err != nil {
		return p, err
	}
	count, err := c.Unread.GetUnread(ctx, contactID, operatorID)
	if err != nil {
		return p, err
	}

	p = fanout.ReadPayload{OperatorID: operatorID, LastReadAt: lastRead, Unread: count}
	c.Notifier.BroadcastTo(fanout.ReadUpdated(contactID, p), fanout.OperatorRoom(operatorID))
	return p, nil
}

func (c *Coordinator) notifyMessage(ctx context.Context, msg models.Message) {
	c.Notifier.Broadcast(fanout.MessageAppended(msg), c.ownerRoom(ctx, msg.ContactID))
}

func (c *Coordinator) notifyControl(ctx context.Context, contactID string, state *models.ConversationControl) {
	c.Notifier.Broadcast(fanout.ControlChanged(contactID, state), c.ownerRoom(ctx, contactID))
}

// ownerRoom é best-effort: sem o contato, o evento vai só para a sala do contato.
func (c *Coordinator) ownerRoom(ctx context.Context, contactID string) string {
	contact, err := c.Resolver.GetContact(ctx, contactID)
	if err != nil {
		return ""
	}
	return fanout.OperatorRoom(contact.OwnerID)
}
