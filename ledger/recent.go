package ledger

import (
	"context"
	"fmt"

	"carelink/models"
)

// ListRecentPerContact devolve, para cada contato do dono, as últimas n mensagens em ordem.
// Como seq é contíguo por contato, "últimas n" é o intervalo seq > message_seq - n, que o
// índice único (contact_id, seq) resolve sem varrer o histórico de cada contato.
func (l *Ledger) ListRecentPerContact(ctx context.Context, ownerID string, n int) (map[string][]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 1
	}

	var msgs []models.Message
	err := l.db.Table("messages").
		Select("messages.*").
		Joins("JOIN contacts ON contacts.id = messages.contact_id").
		Where("contacts.owner_id = ? AND messages.seq > contacts.message_seq - ?", ownerID, n).
		Order("messages.contact_id asc, messages.seq asc").
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}

	out := make(map[string][]models.Message)
	for _, m := range msgs {
		out[m.ContactID] = append(out[m.ContactID], m)
	}
	return out, nil
}
