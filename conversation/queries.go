package conversation

import (
	"context"
	"sort"

	"carelink/control"
	"carelink/models"
)

type ControlView struct {
	ContactID string                      `json:"contact_id"`
	State     string                      `json:"state"`
	Control   *models.ConversationControl `json:"control"`
}

// ControlState: sem registro devolve ACTIVE com control nulo.
func (c *Coordinator) ControlState(ctx context.Context, contactID string) (ControlView, error) {
	state, err := c.Control.Get(ctx, contactID)
	if err != nil {
		return ControlView{}, err
	}
	return ControlView{ContactID: contactID, State: state.State(), Control: state}, nil
}

func (c *Coordinator) GateDecision(ctx context.Context, contactID string) control.Decision {
	return c.Gate.Check(ctx, contactID)
}

func (c *Coordinator) History(ctx context.Context, contactID string, afterSeq int64, limit int) ([]models.Message, error) {
	return c.Ledger.List(ctx, contactID, afterSeq, limit)
}

func (c *Coordinator) UnreadCount(ctx context.Context, contactID, operatorID string) (int, error) {
	return c.Unread.GetUnread(ctx, contactID, operatorID)
}

func (c *Coordinator) UnreadByOperator(ctx context.Context, ownerID, operatorID string) (map[string]int, error) {
	return c.Unread.UnreadByOperator(ctx, ownerID, operatorID)
}

type OverviewItem struct {
	ContactID string           `json:"contact_id"`
	Recent    []models.Message `json:"recent"`
	Unread    int              `json:"unread"`
}

// Overview lista os contatos do dono com as últimas mensagens, o mais recente primeiro.
func (c *Coordinator) Overview(ctx context.Context, ownerID, operatorID string) ([]OverviewItem, error) {
	recent, err := c.Ledger.ListRecentPerContact(ctx, ownerID, c.opts.RecentPerContact)
	if err != nil {
		return nil, err
	}
	counts, err := c.Unread.UnreadByOperator(ctx, ownerID, operatorID)
	if err != nil {
		return nil, err
	}

	items := make([]OverviewItem, 0, len(recent))
	for contactID, msgs := range recent {
		items = append(items, OverviewItem{ContactID: contactID, Recent: msgs, Unread: counts[contactID]})
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Recent, items[j].Recent
		return a[len(a)-1].CreatedAt.After(b[len(b)-1].CreatedAt)
	})
	return items, nil
}
