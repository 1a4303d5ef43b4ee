package router

import (
	"carelink/controllers"
	"carelink/middleware"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// Initialize liga rotas e middlewares.
// Públicas (webhooks, webchat) + autenticadas (operador) + admin.
func Initialize(r *gin.Engine, ctl *controllers.Controller, gdb *gorm.DB, log *zap.Logger) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", controllers.Health(gdb))

	api := r.Group("/api")

	// Webhooks do provedor de SMS/voz (assinatura X-Twilio-Signature)
	api.POST("/webhooks/sms", Logger(log), ctl.SMSWebhook)
	api.POST("/webhooks/voice", Logger(log), ctl.VoiceWebhook)

	// Webchat do paciente (token de sessão)
	api.POST("/webchat/sessions", Logger(log), ctl.StartWebchatSession)
	api.POST("/webchat/messages", Logger(log), ctl.PostWebchatMessage)
	api.GET("/webchat/messages", Logger(log), ctl.GetWebchatMessages)
	api.GET("/webchat/realtime", ctl.WebchatRealtime)

	// Authenticated routes (operator token required)
	auth := api.Group("")
	auth.Use(controllers.AuthRequired(ctl.JwtSecret))

	validated := auth.Group("")
	validated.Use(Authorizer())

	validated.GET("/contacts/:id/control", Logger(log), ctl.GetControl)
	validated.POST("/contacts/:id/pause", Logger(log), ctl.PauseConversation)
	validated.POST("/contacts/:id/resume", Logger(log), ctl.ResumeConversation)
	validated.GET("/contacts/:id/gate", Logger(log), ctl.GetGate)
	validated.GET("/contacts/:id/messages", Logger(log), ctl.GetMessages)
	validated.POST("/contacts/:id/messages", Logger(log), ctl.SendMessage)
	validated.POST("/contacts/:id/read", Logger(log), ctl.MarkRead)
	validated.GET("/contacts/:id/unread", Logger(log), ctl.GetUnread)
	validated.GET("/unread", Logger(log), ctl.GetUnreadByOperator)
	validated.GET("/overview", Logger(log), ctl.GetOverview)
	validated.GET("/realtime", ctl.OperatorRealtime)

	// Admin routes
	admin := validated.Group("")
	admin.Use(Adminizer())

	admin.GET("/triage", Logger(log), ctl.GetTriage)
	admin.POST("/triage/:id/link", Logger(log), ctl.LinkTriage)
	admin.POST("/triage/:id/discard", Logger(log), ctl.DiscardTriage)
	admin.POST("/contacts", Logger(log), ctl.CreateContact)

	log.Info("routes initialized")
}
