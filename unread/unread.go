package unread

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

// Upsert monotônico: a cláusula WHERE descarta qualquer marca que faria last_read_at recuar.
const markReadSQL = `
INSERT INTO read_markers (contact_id, operator_id, last_read_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (contact_id, operator_id) DO UPDATE SET
	last_read_at = excluded.last_read_at,
	updated_at = excluded.updated_at
WHERE read_markers.last_read_at < excluded.last_read_at`

// Counter deriva não lidas a partir do ledger e das marcas de leitura. Nada é contado
// de forma incremental, então o valor nunca fica negativo nem diverge da ordem do ledger.
type Counter struct {
	db     *gorm.DB
	logger *zap.Logger
}

func New(gdb *gorm.DB, logger *zap.Logger) *Counter {
	return &Counter{db: gdb, logger: logger}
}

// MarkRead move last_read_at para upto (zero = agora). Marcas antigas são ignoradas;
// devolve o valor efetivamente gravado.
func (c *Counter) MarkRead(ctx context.Context, contactID, operatorID string, upto time.Time) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if strings.TrimSpace(contactID) == "" || strings.TrimSpace(operatorID) == "" {
		return time.Time{}, fmt.Errorf("contact_id and operator_id are required")
	}

	now := db.Now()
	if upto.IsZero() || upto.After(now) {
		upto = now
	}
	upto = upto.UTC().Truncate(time.Microsecond)

	if err := c.db.Exec(markReadSQL, contactID, operatorID, upto, now).Error; err != nil {
		return time.Time{}, fmt.Errorf("mark read: %w", err)
	}

	marker, err := c.marker(contactID, operatorID)
	if err != nil {
		return time.Time{}, err
	}
	return marker.LastReadAt, nil
}

func (c *Counter) marker(contactID, operatorID string) (*models.ReadMarker, error) {
	var m models.ReadMarker
	err := c.db.Where("contact_id = ? AND operator_id = ?", contactID, operatorID).First(&m).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	return &m, nil
}

// GetUnread conta mensagens do paciente depois do last_read_at do operador.
func (c *Counter) GetUnread(ctx context.Context, contactID, operatorID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q := c.db.Model(&models.Message{}).
		Where("contact_id = ? AND sender_type = ?", contactID, models.SENDER_PATIENT)

	m, err := c.marker(contactID, operatorID)
	if err != nil {
		return 0, err
	}
	if m != nil {
		q = q.Where("created_at > ?", m.LastReadAt)
	}

	var count int
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

type contactUnread struct {
	ContactID string
	Unread    int
}

// UnreadByOperator devolve contact_id -> não lidas para todos os contatos do dono que
// têm ao menos uma mensagem não lida pelo operador.
func (c *Counter) UnreadByOperator(ctx context.Context, ownerID, operatorID string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []contactUnread
	err := c.db.Table("messages").
		Select("messages.contact_id AS contact_id, COUNT(*) AS unread").
		Joins("JOIN contacts ON contacts.id = messages.contact_id").
		Joins("LEFT JOIN read_markers ON read_markers.contact_id = messages.contact_id AND read_markers.operator_id = ?", operatorID).
		Where("contacts.owner_id = ? AND messages.sender_type = ?", ownerID, models.SENDER_PATIENT).
		Where("read_markers.last_read_at IS NULL OR messages.created_at > read_markers.last_read_at").
		Group("messages.contact_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("unread by operator: %w", err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.ContactID] = r.Unread
	}
	return out, nil
}
