package controllers

import (
	"net/http"
	"strings"

	"carelink/identity"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LinkTriageInput struct {
	ContactID string `json:"contact_id"`
}

// GET /api/triage?limit=
func (ctl *Controller) GetTriage(c *gin.Context) {
	limit, ok := QueryInt(c, "limit", 100)
	if !ok {
		return
	}
	entries, err := ctl.Conversations.OpenTriage(requestCtx(c), int(limit))
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"entries": entries})
}

// POST /api/triage/:id/link
// O contato precisa ser da organização do admin.
func (ctl *Controller) LinkTriage(c *gin.Context) {
	claims, ok := mustOperator(c)
	if !ok {
		return
	}
	entryID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var in LinkTriageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, "payload inválido", http.StatusBadRequest)
		return
	}
	if _, err := uuid.Parse(strings.TrimSpace(in.ContactID)); err != nil {
		RespondError(c, "contact_id inválido", http.StatusBadRequest)
		return
	}
	if _, err := ctl.Conversations.ContactFor(requestCtx(c), in.ContactID, claims.OrgID); err != nil {
		ctl.respondDomainError(c, err)
		return
	}

	res, err := ctl.Conversations.LinkTriage(requestCtx(c), entryID, strings.TrimSpace(in.ContactID), claims.OperatorID)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, res)
}

// POST /api/triage/:id/discard
func (ctl *Controller) DiscardTriage(c *gin.Context) {
	claims, ok := mustOperator(c)
	if !ok {
		return
	}
	entryID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	if err := ctl.Conversations.DiscardTriage(requestCtx(c), entryID, claims.OperatorID); err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	RespondSuccess(c, true)
}

// POST /api/contacts
// owner_id vem do token; o admin só cria contatos na própria organização.
func (ctl *Controller) CreateContact(c *gin.Context) {
	claims, ok := mustOperator(c)
	if !ok {
		return
	}
	var in identity.NewContact
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, "payload inválido", http.StatusBadRequest)
		return
	}
	in.OwnerID = claims.OrgID

	contact, err := ctl.Conversations.CreateContact(requestCtx(c), in)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}
