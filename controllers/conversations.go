package controllers

import (
	"net/http"
	"strings"
	"time"

	"carelink/conversation"
	"carelink/models"
	"carelink/tools"

	"github.com/gin-gonic/gin"
)

type PauseInput struct {
	Reason string `json:"reason"`
}

type SendMessageInput struct {
	Body    string         `json:"body"`
	Channel models.Channel `json:"channel"`
}

type MarkReadInput struct {
	// Upto vazio = agora.
	Upto *time.Time `json:"upto"`
}

// ownedContact lê o :id e confere que o contato pertence à organização do operador.
func (ctl *Controller) ownedContact(c *gin.Context) (tools.OperatorClaims, string, bool) {
	claims, ok := mustOperator(c)
	if !ok {
		return claims, "", false
	}
	contactID, ok := ParamID(c, "id")
	if !ok {
		return claims, "", false
	}
	if _, err := ctl.Conversations.ContactFor(requestCtx(c), contactID, claims.OrgID); err != nil {
		ctl.respondDomainError(c, err)
		return claims, "", false
	}
	return claims, contactID, true
}

// GET /api/contacts/:id/control
func (ctl *Controller) GetControl(c *gin.Context) {
	_, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	view, err := ctl.Conversations.ControlState(requestCtx(c), contactID)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, view)
}

// POST /api/contacts/:id/pause
func (ctl *Controller) PauseConversation(c *gin.Context) {
	claims, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	var in PauseInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			RespondError(c, "payload inválido", http.StatusBadRequest)
			return
		}
	}

	state, err := ctl.Conversations.Pause(requestCtx(c), contactID, claims.OperatorID, strings.TrimSpace(in.Reason))
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, conversation.ControlView{ContactID: contactID, State: state.State(), Control: state})
}

// POST /api/contacts/:id/resume
func (ctl *Controller) ResumeConversation(c *gin.Context) {
	claims, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	state, err := ctl.Conversations.Resume(requestCtx(c), contactID, claims.OperatorID)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, conversation.ControlView{ContactID: contactID, State: state.State(), Control: state})
}

// GET /api/contacts/:id/gate
func (ctl *Controller) GetGate(c *gin.Context) {
	_, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	RespondSuccess(c, ctl.Conversations.GateDecision(requestCtx(c), contactID))
}

// GET /api/contacts/:id/messages?since=<seq>&limit=
func (ctl *Controller) GetMessages(c *gin.Context) {
	_, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	since, ok := QueryInt(c, "since", 0)
	if !ok {
		return
	}
	limit, ok := QueryInt(c, "limit", 0)
	if !ok {
		return
	}

	msgs, err := ctl.Conversations.History(requestCtx(c), contactID, since, int(limit))
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"contact_id": contactID, "messages": msgs})
}

// POST /api/contacts/:id/messages
// A mensagem fica gravada mesmo se a entrega falhar; o resultado da entrega vem no corpo.
func (ctl *Controller) SendMessage(c *gin.Context) {
	claims, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	var in SendMessageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, "payload inválido", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Body) == "" {
		RespondError(c, "body é obrigatório", http.StatusBadRequest)
		return
	}

	res, err := ctl.Conversations.Send(requestCtx(c), conversation.SendInput{
		ContactID:  contactID,
		OperatorID: claims.OperatorID,
		Channel:    in.Channel,
		Body:       in.Body,
	})
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// POST /api/contacts/:id/read
func (ctl *Controller) MarkRead(c *gin.Context) {
	claims, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	var in MarkReadInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			RespondError(c, "payload inválido", http.StatusBadRequest)
			return
		}
	}
	var upto time.Time
	if in.Upto != nil {
		upto = *in.Upto
	}

	p, err := ctl.Conversations.MarkRead(requestCtx(c), contactID, claims.OperatorID, upto)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"contact_id": contactID, "last_read_at": p.LastReadAt, "unread": p.Unread})
}

// GET /api/contacts/:id/unread
func (ctl *Controller) GetUnread(c *gin.Context) {
	claims, contactID, ok := ctl.ownedContact(c)
	if !ok {
		return
	}
	n, err := ctl.Conversations.UnreadCount(requestCtx(c), contactID, claims.OperatorID)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"contact_id": contactID, "unread": n})
}

// GET /api/unread
func (ctl *Controller) GetUnreadByOperator(c *gin.Context) {
	claims, ok := mustOperator(c)
	if !ok {
		return
	}
	counts, err := ctl.Conversations.UnreadByOperator(requestCtx(c), claims.OrgID, claims.OperatorID)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"unread": counts})
}

// GET /api/overview
func (ctl *Controller) GetOverview(c *gin.Context) {
	claims, ok := mustOperator(c)
	if !ok {
		return
	}
	items, err := ctl.Conversations.Overview(requestCtx(c), claims.OrgID, claims.OperatorID)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"contacts": items})
}
