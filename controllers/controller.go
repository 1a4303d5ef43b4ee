package controllers

import (
	"context"
	"errors"
	"net/http"

	"carelink/channels"
	"carelink/control"
	"carelink/conversation"
	"carelink/fanout"
	"carelink/identity"
	"carelink/ledger"
	"carelink/tools"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Controller agrupa as dependências dos handlers HTTP.
type Controller struct {
	Conversations *conversation.Coordinator
	Hub           *fanout.Hub
	Logger        *zap.Logger

	JwtSecret string
	// SmsAuthToken vazio desliga a verificação de assinatura dos webhooks (dev/local).
	SmsAuthToken     string
	PublicWebhookURL string
}

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

// respondDomainError traduz os erros dos pacotes de domínio para status HTTP.
func (ctl *Controller) respondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrUnknownContact), errors.Is(err, ledger.ErrUnknownContact):
		RespondError(c, "contato não encontrado", http.StatusNotFound)
	case errors.Is(err, identity.ErrAmbiguousContact), errors.Is(err, identity.ErrIdentityTaken):
		RespondError(c, err.Error(), http.StatusConflict)
	case errors.Is(err, identity.ErrTriageNotOpen):
		RespondError(c, err.Error(), http.StatusConflict)
	case errors.Is(err, identity.ErrInvalidKind),
		errors.Is(err, control.ErrInvalidReason),
		errors.Is(err, control.ErrInvalidTransition),
		errors.Is(err, ledger.ErrEmptyBody),
		errors.Is(err, ledger.ErrInvalidChannel),
		errors.Is(err, ledger.ErrInvalidSender),
		errors.Is(err, channels.ErrEmptyPayload),
		errors.Is(err, channels.ErrNoPhone),
		errors.Is(err, tools.ErrInvalidPhone):
		RespondError(c, err.Error(), http.StatusBadRequest)
	case errors.Is(err, conversation.ErrGateClosed):
		RespondError(c, err.Error(), http.StatusConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		RespondError(c, "request cancelled", http.StatusServiceUnavailable)
	default:
		ctl.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		RespondError(c, "internal error", http.StatusInternalServerError)
	}
}

func requestCtx(c *gin.Context) context.Context {
	if c != nil && c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}
