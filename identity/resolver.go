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

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

var (
	// ErrUnknownContact: nenhum contato corresponde ao identificador e o canal não pode criar um.
	ErrUnknownContact = errors.New("unknown contact")
	// ErrAmbiguousContact: mais de um contato corresponde ao identificador.
	ErrAmbiguousContact = errors.New("ambiguous contact")
	ErrIdentityTaken    = errors.New("identity already linked to another contact")
	ErrInvalidKind      = errors.New("invalid identity kind")
)

type Options struct {
	DefaultCountryCode string
	// AutoCreateSMS cria um contato para telefones desconhecidos (dono = DefaultOwnerID).
	AutoCreateSMS  bool
	DefaultOwnerID string
	WebchatTTL     time.Duration
}

// Resolver mapeia identificadores de canal para o contact_id canônico.
type Resolver struct {
	db     *gorm.DB
	opts   Options
	logger *zap.Logger
}

func NewResolver(gdb *gorm.DB, opts Options, logger *zap.Logger) *Resolver {
	if opts.WebchatTTL <= 0 {
		opts.WebchatTTL = 30 * 24 * time.Hour
	}
	return &Resolver{db: gdb, opts: opts, logger: logger}
}

// Resolve devolve o contact_id para (canal, identificador).
func (r *Resolver) Resolve(ctx context.Context, channel models.Channel, identifier string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch channel {
	case models.CHANNEL_WEBCHAT:
		return r.LookupBySession(ctx, identifier)
	case models.CHANNEL_SMS, models.CHANNEL_VOICE_NOTE:
		phone, err := r.NormalizePhone(identifier)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnknownContact, err)
		}
		contactID, err := r.LookupByPhone(ctx, phone)
		if errors.Is(err, ErrUnknownContact) && channel == models.CHANNEL_SMS && r.opts.AutoCreateSMS && r.opts.DefaultOwnerID != "" {
			return r.autoCreateForPhone(ctx, phone)
		}
		return contactID, err
	}
	return "", fmt.Errorf("resolve: unsupported channel %q", channel)
}

func (r *Resolver) NormalizePhone(raw string) (string, error) {
	return tools.NormalizePhone(raw, r.opts.DefaultCountryCode)
}

// LookupBySession resolve um token de sessão de webchat (guardado como hash).
func (r *Resolver) LookupBySession(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnknownContact
	}

	var ident models.ContactIdentity
	err := r.db.
		Where("kind = ? AND value = ?", models.IDENTITY_KIND_WEBCHAT_SESSION, tools.EncryptTextSHA512(token)).
		First(&ident).Error
	if gorm.IsRecordNotFoundError(err) {
		return "", ErrUnknownContact
	}
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if ident.ExpiresAt != nil && ident.ExpiresAt.Before(db.Now()) {
		return "", fmt.Errorf("%w: session expired", ErrUnknownContact)
	}
	return ident.ContactID, nil
}

// LookupByPhone recebe um telefone já normalizado. Um vínculo explícito (kind=phone) vence;
// sem ele, o telefone precisa casar com exatamente um contato.
func (r *Resolver) LookupByPhone(ctx context.Context, phone string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var ident models.ContactIdentity
	err := r.db.Where("kind = ? AND value = ?", models.IDENTITY_KIND_PHONE, phone).First(&ident).Error
	if err == nil {
		return ident.ContactID, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return "", fmt.Errorf("lookup phone identity: %w", err)
	}

	var ids []string
	if err := r.db.Model(&models.Contact{}).Where("phone = ?", phone).Limit(2).Pluck("id", &ids).Error; err != nil {
		return "", fmt.Errorf("lookup contact phone: %w", err)
	}
	switch len(ids) {
	case 0:
		return "", ErrUnknownContact
	case 1:
		return ids[0], nil
	}
	return "", ErrAmbiguousContact
}

// autoCreateForPhone cria contato + identidade de telefone na mesma transação. O índice único
// de (kind, value) faz com que duas criações simultâneas resultem num único vínculo.
func (r *Resolver) autoCreateForPhone(ctx context.Context, phone string) (string, error) {
	contact, err := r.CreateContact(ctx, NewContact{OwnerID: r.opts.DefaultOwnerID, Phone: phone, linkPhone: true})
	if err == nil {
		r.logger.Info("contact auto-created from sms", zap.String("contact_id", contact.ID))
		return contact.ID, nil
	}

	var ident models.ContactIdentity
	if lookupErr := r.db.Where("kind = ? AND value = ?", models.IDENTITY_KIND_PHONE, phone).First(&ident).Error; lookupErr == nil {
		return ident.ContactID, nil
	}
	return "", err
}

type NewContact struct {
	OwnerID     string `json:"owner_id"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
	PatientRef  string `json:"patient_ref"`

	linkPhone bool
}

// CreateContact cria um contato e, se informado, o vínculo com o prontuário.
func (r *Resolver) CreateContact(ctx context.Context, in NewContact) (models.Contact, error) {
	if err := ctx.Err(); err != nil {
		return models.Contact{}, err
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return models.Contact{}, errors.New("owner_id is required")
	}

	contact := models.Contact{
		ID:          uuid.NewString(),
		OwnerID:     strings.TrimSpace(in.OwnerID),
		DisplayName: strings.TrimSpace(in.DisplayName),
	}
	if strings.TrimSpace(in.Phone) != "" {
		phone, err := r.NormalizePhone(in.Phone)
		if err != nil {
			return models.Contact{}, err
		}
		contact.Phone = &phone
	}

	tx := r.db.Begin()
	if err := tx.Create(&contact).Error; err != nil {
		tx.Rollback()
		return models.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	if ref := strings.TrimSpace(in.PatientRef); ref != "" {
		if err := tx.Create(newIdentity(contact.ID, models.IDENTITY_KIND_PATIENT_RECORD, ref, nil)).Error; err != nil {
			tx.Rollback()
			return models.Contact{}, fmt.Errorf("link patient record: %w", err)
		}
	}
	if in.linkPhone && contact.Phone != nil {
		if err := tx.Create(newIdentity(contact.ID, models.IDENTITY_KIND_PHONE, *contact.Phone, nil)).Error; err != nil {
			tx.Rollback()
			return models.Contact{}, fmt.Errorf("link phone: %w", err)
		}
	}
	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Contact{}, err
	}
	return contact, nil
}

func (r *Resolver) GetContact(ctx context.Context, contactID string) (models.Contact, error) {
	var contact models.Contact
	if err := ctx.Err(); err != nil {
		return contact, err
	}
	err := r.db.Where("id = ?", contactID).First(&contact).Error
	if gorm.IsRecordNotFoundError(err) {
		return contact, ErrUnknownContact
	}
	if err != nil {
		return contact, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// Link vincula explicitamente um identificador a um contato (usado na triagem).
// Vincular de novo ao mesmo contato não é erro.
func (r *Resolver) Link(ctx context.Context, contactID, kind, value string) error {
	if _, err := r.GetContact(ctx, contactID); err != nil {
		return err
	}

	switch kind {
	case models.IDENTITY_KIND_PHONE:
		phone, err := r.NormalizePhone(value)
		if err != nil {
			return err
		}
		value = phone
	case models.IDENTITY_KIND_PATIENT_RECORD:
		value = strings.TrimSpace(value)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if value == "" {
		return fmt.Errorf("identity value is required")
	}

	existing, found, err := r.findIdentity(kind, value)
	if err != nil {
		return err
	}
	if !found {
		createErr := r.db.Create(newIdentity(contactID, kind, value, nil)).Error
		if createErr == nil {
			return nil
		}
		// corrida com outro vínculo: o índice único decidiu
		existing, found, err = r.findIdentity(kind, value)
		if err != nil || !found {
			return fmt.Errorf("link identity: %w", createErr)
		}
	}
	if existing.ContactID != contactID {
		return ErrIdentityTaken
	}
	return nil
}

func (r *Resolver) findIdentity(kind, value string) (models.ContactIdentity, bool, error) {
	var ident models.ContactIdentity
	err := r.db.Where("kind = ? AND value = ?", kind, value).First(&ident).Error
	if gorm.IsRecordNotFoundError(err) {
		return ident, false, nil
	}
	if err != nil {
		return ident, false, fmt.Errorf("find identity: %w", err)
	}
	return ident, true, nil
}

func newIdentity(contactID, kind, value string, expiresAt *time.Time) *models.ContactIdentity {
	return &models.ContactIdentity{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Kind:      kind,
		Value:     value,
		ExpiresAt: expiresAt,
	}
}
