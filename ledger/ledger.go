package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carelink/db"
	"carelink/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

var (
	ErrUnknownContact  = errors.New("ledger: unknown contact")
	ErrEmptyBody       = errors.New("ledger: empty body")
	ErrInvalidChannel  = errors.New("ledger: invalid channel")
	ErrInvalidSender   = errors.New("ledger: invalid sender type")
	ErrPaused          = errors.New("ledger: conversation paused")
	errDuplicateInsert = errors.New("ledger: duplicate provider message")
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type AppendInput struct {
	ContactID         string
	Channel           models.Channel
	SenderType        models.SenderType
	SenderID          string
	Body              string
	ProviderMessageID string
	ProviderTimestamp *time.Time
	// FromAddress: telefone normalizado do remetente (sms/voice_note).
	FromAddress string
	// RequireActive faz o append falhar com ErrPaused se o bot estiver pausado. A leitura
	// do controle acontece com a linha do contato travada.
	RequireActive bool
}

// Ledger é o armazenamento append-only e ordenado das mensagens de cada contato.
type Ledger struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

func New(gdb *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: gdb, now: db.Now, logger: logger}
}

// Append grava a mensagem e devolve (mensagem, duplicada, erro).
//
// A ordem por contato vem do incremento de contacts.message_seq dentro da transação: o
// UPDATE trava a linha do contato, então appends do mesmo contato são serializados pelo
// banco (inclusive entre instâncias) e created_at nunca recua. Um provider_message_id já
// gravado devolve a mensagem existente; o índice único (contact_id, provider_message_id)
// garante isso mesmo se duas entregas passarem pela checagem ao mesmo tempo.
func (l *Ledger) Append(ctx context.Context, in AppendInput) (models.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, false, err
	}
	if err := validate(in); err != nil {
		return models.Message{}, false, err
	}

	msg, dup, err := l.appendTx(in)
	if errors.Is(err, errDuplicateInsert) {
		existing, found, findErr := l.findByProvider(l.db, in.ContactID, in.ProviderMessageID)
		if findErr == nil && found {
			return existing, true, nil
		}
	}
	if err != nil {
		return models.Message{}, false, err
	}
	if dup {
		l.logger.Debug("duplicate message ignored",
			zap.String("contact_id", in.ContactID),
			zap.String("provider_message_id", in.ProviderMessageID),
		)
	}
	return msg, dup, nil
}

func (l *Ledger) appendTx(in AppendInput) (models.Message, bool, error) {
	tx := l.db.Begin()
	if tx.Error != nil {
		return models.Message{}, false, fmt.Errorf("begin append: %w", tx.Error)
	}

	res := tx.Model(&models.Contact{}).
		Where("id = ?", in.ContactID).
		UpdateColumn("message_seq", gorm.Expr("message_seq + ?", 1))
	if res.Error != nil {
		tx.Rollback()
		return models.Message{}, false, fmt.Errorf("lock contact: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return models.Message{}, false, ErrUnknownContact
	}

	if in.RequireActive {
		paused, err := botPaused(tx, in.ContactID)
		if err != nil {
			tx.Rollback()
			return models.Message{}, false, err
		}
		if paused {
			tx.Rollback()
			return models.Message{}, false, ErrPaused
		}
	}

	if in.ProviderMessageID != "" {
		existing, found, err := l.findByProvider(tx, in.ContactID, in.ProviderMessageID)
		if err != nil {
			tx.Rollback()
			return models.Message{}, false, err
		}
		if found {
			tx.Rollback()
			return existing, true, nil
		}
	}

	var contact models.Contact
	if err := tx.Where("id = ?", in.ContactID).First(&contact).Error; err != nil {
		tx.Rollback()
		return models.Message{}, false, fmt.Errorf("load contact: %w", err)
	}

	createdAt := l.now()
	if contact.LastMessageAt != nil && contact.LastMessageAt.After(createdAt) {
		createdAt = contact.LastMessageAt.UTC()
	}

	msg := models.Message{
		ID:                uuid.NewString(),
		ContactID:         in.ContactID,
		Seq:               contact.MessageSeq,
		Channel:           in.Channel,
		SenderType:        in.SenderType,
		Body:              in.Body,
		ProviderTimestamp: in.ProviderTimestamp,
		CreatedAt:         createdAt,
	}
	if in.SenderID != "" {
		senderID := in.SenderID
		msg.SenderID = &senderID
	}
	if in.ProviderMessageID != "" {
		providerID := in.ProviderMessageID
		msg.ProviderMessageID = &providerID
	}
	if in.FromAddress != "" {
		from := in.FromAddress
		msg.FromAddress = &from
	}

	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		if msg.ProviderMessageID != nil {
			return models.Message{}, false, fmt.Errorf("%w: %v", errDuplicateInsert, err)
		}
		return models.Message{}, false, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Model(&models.Contact{}).Where("id = ?", in.ContactID).UpdateColumn("last_message_at", createdAt).Error; err != nil {
		tx.Rollback()
		return models.Message{}, false, fmt.Errorf("update contact: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return models.Message{}, false, fmt.Errorf("commit append: %w", err)
	}
	return msg, false, nil
}

func (l *Ledger) findByProvider(q *gorm.DB, contactID, providerID string) (models.Message, bool, error) {
	var existing models.Message
	err := q.Where("contact_id = ? AND provider_message_id = ?", contactID, providerID).First(&existing).Error
	if gorm.IsRecordNotFoundError(err) {
		return existing, false, nil
	}
	if err != nil {
		return existing, false, fmt.Errorf("find message: %w", err)
	}
	return existing, true, nil
}

// botPaused lê o controle dentro da transação do append. Sem registro = ativo.
func botPaused(tx *gorm.DB, contactID string) (bool, error) {
	var ctl models.ConversationControl
	err := tx.Where("contact_id = ?", contactID).First(&ctl).Error
	if gorm.IsRecordNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read control: %w", err)
	}
	return ctl.BotPaused, nil
}

func validate(in AppendInput) error {
	if strings.TrimSpace(in.ContactID) == "" {
		return ErrUnknownContact
	}
	if !in.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, in.Channel)
	}
	if !in.SenderType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSender, in.SenderType)
	}
	if strings.TrimSpace(in.Body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// List devolve as mensagens do contato com seq > afterSeq, em ordem (created_at, seq).
// afterSeq = 0 começa do início.
func (l *Ledger) List(ctx context.Context, contactID string, afterSeq int64, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	msgs := []models.Message{}
	err := l.db.
		Where("contact_id = ? AND seq > ?", contactID, afterSeq).
		Order("created_at asc, seq asc").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Tail devolve as últimas n mensagens do contato, em ordem cronológica.
func (l *Ledger) Tail(ctx context.Context, contactID string, n int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = defaultPageSize
	}

	msgs := []models.Message{}
	err := l.db.
		Where("contact_id = ?", contactID).
		Order("seq desc").
		Limit(n).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("tail messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LastInboundChannel devolve o canal da última mensagem do paciente ("" se não houver).
func (l *Ledger) LastInboundChannel(ctx context.Context, contactID string) (models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var m models.Message
	err := l.db.
		Where("contact_id = ? AND sender_type = ?", contactID, models.SENDER_PATIENT).
		Order("seq desc").
		First(&m).Error
	if gorm.IsRecordNotFoundError(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last inbound channel: %w", err)
	}
	return m.Channel, nil
}

// LastInboundPhone devolve o telefone da última mensagem do paciente que trouxe um
// ("" se nenhuma trouxe).
func (l *Ledger) LastInboundPhone(ctx context.Context, contactID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var m models.Message
	err := l.db.
		Where("contact_id = ? AND sender_type = ? AND from_address IS NOT NULL", contactID, models.SENDER_PATIENT).
		Order("seq desc").
		First(&m).Error
	if gorm.IsRecordNotFoundError(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last inbound phone: %w", err)
	}
	return *m.FromAddress, nil
}
