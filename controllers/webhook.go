package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"carelink/channels"
	"carelink/ledger"
	"carelink/logger"
	"carelink/tools"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const twimlAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type webhookParser func(form url.Values) (channels.IncomingMessage, error)

// POST /api/webhooks/sms
func (ctl *Controller) SMSWebhook(c *gin.Context) {
	ctl.providerWebhook(c, channels.ParseSMSWebhook)
}

// POST /api/webhooks/voice
func (ctl *Controller) VoiceWebhook(c *gin.Context) {
	ctl.providerWebhook(c, channels.ParseVoiceStatus)
}

// providerWebhook: assinatura -> parse -> ingest. O ack só sai depois da gravação
// (mensagem, duplicata ou triagem); falha de persistência devolve 500 para o provedor reenviar.
func (ctl *Controller) providerWebhook(c *gin.Context, parse webhookParser) {
	if err := c.Request.ParseForm(); err != nil {
		RespondError(c, "invalid form", http.StatusBadRequest)
		return
	}
	form := c.Request.PostForm

	if ok, reason := ctl.verifySignature(c, form); !ok {
		ctl.Logger.Warn("webhook signature rejected",
			logger.Anomaly("webhook_signature_invalid"),
			zap.String("path", c.Request.URL.Path),
			zap.String("reason", reason),
		)
		RespondError(c, "forbidden: "+reason, http.StatusForbidden)
		return
	}

	in, err := parse(form)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := ctl.Conversations.Ingest(requestCtx(c), in)
	switch {
	case err == nil:
	case res.Triaged:
		// mensagem guardada na triagem: para o provedor está entregue
		ctl.Logger.Info("inbound message triaged",
			zap.String("channel", string(in.Channel)),
			zap.String("triage_id", res.TriageID),
		)
	case errors.Is(err, ledger.ErrEmptyBody), errors.Is(err, ledger.ErrInvalidSender):
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	default:
		ctl.Logger.Error("inbound message not persisted",
			logger.Anomaly("ingest_failed"),
			zap.String("channel", string(in.Channel)),
			zap.String("provider_message_id", in.ProviderMessageID),
			zap.Error(err),
		)
		RespondError(c, "failed to record message", http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(twimlAck))
}

func (ctl *Controller) verifySignature(c *gin.Context, form url.Values) (bool, string) {
	if strings.TrimSpace(ctl.SmsAuthToken) == "" {
		return true, ""
	}
	sig := c.GetHeader("X-Twilio-Signature")
	if sig == "" {
		return false, "missing X-Twilio-Signature"
	}
	fullURL := strings.TrimRight(ctl.PublicWebhookURL, "/") + c.Request.URL.RequestURI()
	if !tools.VerifyTwilioSignature(ctl.SmsAuthToken, fullURL, form, sig) {
		return false, "signature mismatch"
	}
	return true, ""
}
