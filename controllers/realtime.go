package controllers

import (
	"context"

	"carelink/fanout"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/realtime (websocket)
// O operador entra na própria sala e na sala da organização (novas mensagens de qualquer
// contato); para acompanhar um contato manda {"action":"subscribe","contact_id":...}.
func (ctl *Controller) OperatorRealtime(c *gin.Context) {
	claims, ok := mustOperator(c)
	if !ok {
		return
	}

	s := ctl.Hub.NewSession(fanout.SESSION_KIND_OPERATOR, claims.OperatorID)
	rooms := []string{fanout.OperatorRoom(claims.OperatorID), fanout.OperatorRoom(claims.OrgID)}

	guard := func(ctx context.Context, _ *fanout.Session, contactID string) bool {
		_, err := ctl.Conversations.ContactFor(ctx, contactID, claims.OrgID)
		return err == nil
	}

	if err := ctl.Hub.ServeSession(c.Writer, c.Request, s, rooms, guard); err != nil {
		ctl.Logger.Debug("realtime upgrade failed", zap.String("operator_id", claims.OperatorID), zap.Error(err))
	}
}
