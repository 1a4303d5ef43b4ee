package identity

import (
	"context"
	"errors"
	"fmt"

	"carelink/db"
	"carelink/logger"
	"carelink/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

var ErrTriageNotOpen = errors.New("triage entry not found or already resolved")

// TriageStore é a fila de mensagens que não puderam ser atribuídas a um contato.
type TriageStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewTriageStore(gdb *gorm.DB, logger *zap.Logger) *TriageStore {
	return &TriageStore{db: gdb, logger: logger}
}

// ReasonFor traduz o erro de resolução no motivo da triagem.
func ReasonFor(err error) string {
	if errors.Is(err, ErrAmbiguousContact) {
		return models.TRIAGE_REASON_AMBIGUOUS_CONTACT
	}
	return models.TRIAGE_REASON_UNKNOWN_CONTACT
}

// Record grava a entrada. Com provider_message_id, um reenvio do webhook devolve a
// entrada existente (duplicate=true) em vez de criar outra.
func (s *TriageStore) Record(ctx context.Context, entry models.TriageEntry) (models.TriageEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return entry, false, err
	}

	if entry.ProviderMessageID != nil {
		if existing, found, err := s.findByProvider(entry.Channel, *entry.ProviderMessageID); err != nil {
			return entry, false, err
		} else if found {
			return existing, true, nil
		}
	}

	entry.ID = uuid.NewString()
	entry.Status = models.TRIAGE_STATUS_OPEN
	if entry.SenderType == "" {
		entry.SenderType = models.SENDER_PATIENT
	}
	if err := s.db.Create(&entry).Error; err != nil {
		if entry.ProviderMessageID != nil {
			if existing, found, _ := s.findByProvider(entry.Channel, *entry.ProviderMessageID); found {
				return existing, true, nil
			}
		}
		return entry, false, fmt.Errorf("record triage: %w", err)
	}

	s.logger.Warn("message routed to triage",
		logger.Anomaly("identity_unresolved"),
		zap.String("triage_id", entry.ID),
		zap.String("channel", string(entry.Channel)),
		zap.String("reason", entry.Reason),
	)
	return entry, false, nil
}

func (s *TriageStore) findByProvider(channel models.Channel, providerID string) (models.TriageEntry, bool, error) {
	var existing models.TriageEntry
	err := s.db.Where("channel = ? AND provider_message_id = ?", channel, providerID).First(&existing).Error
	if gorm.IsRecordNotFoundError(err) {
		return existing, false, nil
	}
	if err != nil {
		return existing, false, fmt.Errorf("find triage: %w", err)
	}
	return existing, true, nil
}

func (s *TriageStore) ListOpen(ctx context.Context, limit int) ([]models.TriageEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries := []models.TriageEntry{}
	err := s.db.Where("status = ?", models.TRIAGE_STATUS_OPEN).
		Order("created_at asc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list triage: %w", err)
	}
	return entries, nil
}

func (s *TriageStore) Get(ctx context.Context, id string) (models.TriageEntry, error) {
	var entry models.TriageEntry
	if err := ctx.Err(); err != nil {
		return entry, err
	}
	err := s.db.Where("id = ?", id).First(&entry).Error
	if gorm.IsRecordNotFoundError(err) {
		return entry, ErrTriageNotOpen
	}
	if err != nil {
		return entry, fmt.Errorf("get triage: %w", err)
	}
	return entry, nil
}

// MarkLinked fecha a entrada; só uma chamada concorrente vence (status ainda "open").
func (s *TriageStore) MarkLinked(ctx context.Context, id, contactID, operatorID string) error {
	return s.resolve(ctx, id, models.TRIAGE_STATUS_LINKED, &contactID, operatorID)
}

func (s *TriageStore) Discard(ctx context.Context, id, operatorID string) error {
	return s.resolve(ctx, id, models.TRIAGE_STATUS_DISCARDED, nil, operatorID)
}

func (s *TriageStore) resolve(ctx context.Context, id, status string, contactID *string, operatorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := db.Now()
	fields := map[string]any{
		"status":      status,
		"resolved_by": operatorID,
		"resolved_at": &now,
	}
	if contactID != nil {
		fields["contact_id"] = *contactID
	}

	res := s.db.Model(&models.TriageEntry{}).
		Where("id = ? AND status = ?", id, models.TRIAGE_STATUS_OPEN).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("resolve triage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTriageNotOpen
	}
	return nil
}
