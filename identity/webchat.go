package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carelink/db"
	"carelink/models"
	"carelink/tools"
)

type WebchatSessionInput struct {
	OwnerID     string `json:"owner_id"`
	PatientRef  string `json:"patient_ref"`
	Phone       string `json:"phone"`
	DisplayName string `json:"display_name"`
}

// WebchatSession é devolvida uma única vez; só o hash do token fica no banco.
type WebchatSession struct {
	Token     string    `json:"token"`
	ContactID string    `json:"contact_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartWebchatSession encontra (ou cria) o contato do paciente e emite um token de sessão.
// Ordem de busca: prontuário, telefone, senão contato novo.
func (r *Resolver) StartWebchatSession(ctx context.Context, in WebchatSessionInput) (WebchatSession, error) {
	var out WebchatSession
	if strings.TrimSpace(in.OwnerID) == "" {
		return out, errors.New("owner_id is required")
	}

	contactID, err := r.contactForWebchat(ctx, in)
	if err != nil {
		return out, err
	}

	token := tools.RandomString(48)
	expiresAt := db.Now().Add(r.opts.WebchatTTL)
	if err := r.db.Create(newIdentity(contactID, models.IDENTITY_KIND_WEBCHAT_SESSION, tools.EncryptTextSHA512(token), &expiresAt)).Error; err != nil {
		return out, fmt.Errorf("create webchat session: %w", err)
	}

	out.Token = token
	out.ContactID = contactID
	out.ExpiresAt = expiresAt
	return out, nil
}

func (r *Resolver) contactForWebchat(ctx context.Context, in WebchatSessionInput) (string, error) {
	if ref := strings.TrimSpace(in.PatientRef); ref != "" {
		ident, found, err := r.findIdentity(models.IDENTITY_KIND_PATIENT_RECORD, ref)
		if err != nil {
			return "", err
		}
		if found {
			return ident.ContactID, nil
		}
		contact, err := r.CreateContact(ctx, NewContact{OwnerID: in.OwnerID, DisplayName: in.DisplayName, Phone: in.Phone, PatientRef: ref})
		if err == nil {
			return contact.ID, nil
		}
		// outra sessão criou o mesmo prontuário ao mesmo tempo
		if ident, found, _ := r.findIdentity(models.IDENTITY_KIND_PATIENT_RECORD, ref); found {
			return ident.ContactID, nil
		}
		return "", err
	}

	if strings.TrimSpace(in.Phone) != "" {
		phone, err := r.NormalizePhone(in.Phone)
		if err != nil {
			return "", err
		}
		contactID, err := r.LookupByPhone(ctx, phone)
		if err == nil || !errors.Is(err, ErrUnknownContact) {
			return contactID, err
		}
	}

	contact, err := r.CreateContact(ctx, NewContact{OwnerID: in.OwnerID, DisplayName: in.DisplayName, Phone: in.Phone})
	if err != nil {
		return "", err
	}
	return contact.ID, nil
}
