package conversation

import (
	"context"
	"fmt"

	"carelink/identity"
	"carelink/ledger"
	"carelink/models"
)

// LinkTriage vincula a entrada a um contato: registra o identificador (telefone) como
// vínculo explícito, reinjeta a mensagem no ledger com o provider id original e fecha a
// entrada. Não dispara o bot, a mensagem é antiga.
func (c *Coordinator) LinkTriage(ctx context.Context, entryID, contactID, operatorID string) (IngestResult, error) {
	var res IngestResult

	entry, err := c.Triage.Get(ctx, entryID)
	if err != nil {
		return res, err
	}
	if entry.Status != models.TRIAGE_STATUS_OPEN {
		return res, identity.ErrTriageNotOpen
	}
	if _, err := c.Resolver.GetContact(ctx, contactID); err != nil {
		return res, err
	}

	if entry.Channel.PhoneBased() {
		if err := c.Resolver.Link(ctx, contactID, models.IDENTITY_KIND_PHONE, entry.Identifier); err != nil {
			return res, fmt.Errorf("link phone: %w", err)
		}
	}

	in := ledger.AppendInput{
		ContactID:   contactID,
		Channel:     entry.Channel,
		SenderType:  entry.SenderType,
		Body:        entry.Body,
		FromAddress: c.fromAddress(entry.Channel, entry.Identifier),
	}
	if entry.ProviderMessageID != nil {
		in.ProviderMessageID = *entry.ProviderMessageID
	}
	if in.Body != "" {
		msg, dup, err := c.Ledger.Append(ctx, in)
		if err != nil {
			return res, err
		}
		res.Message = &msg
		res.Duplicate = dup
		if !dup {
			c.notifyMessage(ctx, msg)
		}
	}

	if err := c.Triage.MarkLinked(ctx, entryID, contactID, operatorID); err != nil {
		return res, err
	}
	res.TriageID = entryID
	return res, nil
}

func (c *Coordinator) DiscardTriage(ctx context.Context, entryID, operatorID string) error {
	return c.Triage.Discard(ctx, entryID, operatorID)
}

func (c *Coordinator) OpenTriage(ctx context.Context, limit int) ([]models.TriageEntry, error) {
	return c.Triage.ListOpen(ctx, limit)
}

func (c *Coordinator) CreateContact(ctx context.Context, in identity.NewContact) (models.Contact, error) {
	return c.Resolver.CreateContact(ctx, in)
}

func (c *Coordinator) StartWebchatSession(ctx context.Context, in identity.WebchatSessionInput) (identity.WebchatSession, error) {
	return c.Resolver.StartWebchatSession(ctx, in)
}
