package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carelink/db"
	"carelink/models"

	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// Um único upsert condicional por mudança de estado. A cláusula WHERE faz o
// last-writer-wins por updated_at: uma escrita com carimbo mais antigo que o gravado
// não altera nada, independente da ordem de chegada.
const upsertControlSQL = `
INSERT INTO conversation_controls
	(contact_id, bot_paused, paused_by, pause_reason, paused_at, updated_by, updated_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (contact_id) DO UPDATE SET
	bot_paused = excluded.bot_paused,
	paused_by = excluded.paused_by,
	pause_reason = excluded.pause_reason,
	paused_at = excluded.paused_at,
	updated_by = excluded.updated_by,
	updated_at = excluded.updated_at
WHERE conversation_controls.updated_at <= excluded.updated_at`

// Os carimbos de resposta não participam do LWW: no insert o updated_at fica na época
// para não vencer nenhum pause/resume concorrente.
const touchBotSQL = `
INSERT INTO conversation_controls (contact_id, bot_paused, last_bot_response_at, updated_at, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (contact_id) DO UPDATE SET last_bot_response_at = excluded.last_bot_response_at`

const touchHumanSQL = `
INSERT INTO conversation_controls (contact_id, bot_paused, last_human_response_at, updated_at, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (contact_id) DO UPDATE SET last_human_response_at = excluded.last_human_response_at`

var epoch = time.Unix(0, 0).UTC()

// Store guarda o estado de controle (bot pausado ou não) por contato.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

func NewStore(gdb *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: gdb, now: db.Now, logger: logger}
}

// Get devolve nil (sem erro) quando o contato não tem registro: isso significa ACTIVE.
func (s *Store) Get(ctx context.Context, contactID string) (*models.ConversationControl, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var c models.ConversationControl
	err := s.db.Where("contact_id = ?", contactID).First(&c).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read control: %w", err)
	}
	return &c, nil
}

// Pause é idempotente: pausar de novo só atualiza paused_by/reason/paused_at.
// reason vazio vira manual_intervention.
func (s *Store) Pause(ctx context.Context, contactID, operatorID, reason string) (*models.ConversationControl, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = models.PAUSE_REASON_MANUAL_INTERVENTION
	}
	if !models.ValidPauseReason(reason) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	return s.apply(ctx, contactID, operatorID, ActionPause, reason, s.now())
}

// Resume é idempotente: retomar uma conversa ativa não falha.
func (s *Store) Resume(ctx context.Context, contactID, operatorID string) (*models.ConversationControl, error) {
	return s.apply(ctx, contactID, operatorID, ActionResume, "", s.now())
}

func (s *Store) apply(ctx context.Context, contactID, operatorID string, action Action, reason string, at time.Time) (*models.ConversationControl, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(contactID) == "" {
		return nil, fmt.Errorf("contact_id is required")
	}
	target, err := Next(models.CONTROL_STATE_ACTIVE, action)
	if err != nil {
		return nil, err
	}

	var (
		paused      = target == models.CONTROL_STATE_PAUSED
		pausedBy    *string
		pauseReason *string
		pausedAt    *time.Time
		updatedBy   *string
	)
	if operatorID != "" {
		updatedBy = &operatorID
	}
	if paused {
		pausedBy = updatedBy
		pauseReason = &reason
		pausedAt = &at
	}

	err = s.db.Exec(upsertControlSQL,
		contactID, paused, pausedBy, pauseReason, pausedAt, updatedBy, at, at,
	).Error
	if err != nil {
		return nil, fmt.Errorf("%s control: %w", action, err)
	}

	s.logger.Info("conversation control updated",
		zap.String("contact_id", contactID),
		zap.String("action", string(action)),
		zap.String("operator_id", operatorID),
		zap.String("reason", reason),
	)

	// estado final autoritativo (pode ser de outro escritor com carimbo mais novo)
	c, err := s.Get(ctx, contactID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) TouchBotResponse(ctx context.Context, contactID string, at time.Time) error {
	return s.touch(ctx, touchBotSQL, contactID, at)
}

func (s *Store) TouchHumanResponse(ctx context.Context, contactID string, at time.Time) error {
	return s.touch(ctx, touchHumanSQL, contactID, at)
}

func (s *Store) touch(ctx context.Context, query, contactID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Exec(query, contactID, false, at, epoch, at).Error; err != nil {
		return fmt.Errorf("touch control: %w", err)
	}
	return nil
}
