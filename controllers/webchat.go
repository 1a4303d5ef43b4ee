package controllers

import (
	"errors"
	"net/http"
	"strings"

	"carelink/channels"
	"carelink/fanout"
	"carelink/identity"
	"carelink/tools"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const webchatTokenHeader = "X-Session-Token"

// sessionToken aceita o header próprio, Bearer ou ?session_token= (websocket).
func sessionToken(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(webchatTokenHeader)); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.GetHeader("Authorization")); v != "" {
		return tools.BearerToken(v)
	}
	return strings.TrimSpace(c.Query("session_token"))
}

// webchatContact resolve o token de sessão; sessão inválida ou expirada = 401.
func (ctl *Controller) webchatContact(c *gin.Context) (string, string, bool) {
	token := sessionToken(c)
	if token == "" {
		RespondError(c, "session token required", http.StatusUnauthorized)
		return "", "", false
	}
	contactID, err := ctl.Conversations.Resolver.LookupBySession(requestCtx(c), token)
	if errors.Is(err, identity.ErrUnknownContact) {
		RespondError(c, "session expired", http.StatusUnauthorized)
		return "", "", false
	}
	if err != nil {
		ctl.respondDomainError(c, err)
		return "", "", false
	}
	return token, contactID, true
}

// POST /api/webchat/sessions
func (ctl *Controller) StartWebchatSession(c *gin.Context) {
	var in identity.WebchatSessionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, "payload inválido", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		RespondError(c, "owner_id é obrigatório", http.StatusBadRequest)
		return
	}

	session, err := ctl.Conversations.StartWebchatSession(requestCtx(c), in)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// POST /api/webchat/messages
func (ctl *Controller) PostWebchatMessage(c *gin.Context) {
	token, _, ok := ctl.webchatContact(c)
	if !ok {
		return
	}

	var body channels.WebchatInput
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, "payload inválido", http.StatusBadRequest)
		return
	}
	in, err := body.Incoming(token)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := ctl.Conversations.Ingest(requestCtx(c), in)
	if err != nil {
		ctl.respondDomainError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// GET /api/webchat/messages?since=<seq>&limit=
func (ctl *Controller) GetWebchatMessages(c *gin.Context) {
	_, contactID, ok := ctl.webchatContact(c)
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

// GET /api/webchat/realtime (websocket)
// A sessão do paciente só recebe a sala do próprio contato, sem inscrições extras.
func (ctl *Controller) WebchatRealtime(c *gin.Context) {
	_, contactID, ok := ctl.webchatContact(c)
	if !ok {
		return
	}

	s := ctl.Hub.NewSession(fanout.SESSION_KIND_PATIENT, contactID)
	if err := ctl.Hub.ServeSession(c.Writer, c.Request, s, []string{fanout.PatientRoom(contactID)}, nil); err != nil {
		ctl.Logger.Debug("webchat upgrade failed", zap.String("contact_id", contactID), zap.Error(err))
	}
}
