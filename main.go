package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carelink/channels"
	"carelink/config"
	"carelink/control"
	"carelink/controllers"
	"carelink/conversation"
	"carelink/db"
	"carelink/fanout"
	"carelink/identity"
	"carelink/ledger"
	"carelink/logger"
	"carelink/router"
	"carelink/tools"
	"carelink/unread"
	"carelink/workers"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// =====================
// Flags
// =====================
//
// -config        caminho do config.json (ou CONFIG_PATH)
// -issue-token   emite um token de operador e sai (uso: -issue-token -operator X -org Y [-admin])
//
// Os valores do arquivo podem ser sobrescritos por variáveis de ambiente (ver config.applyEnv).

func main() {
	configPath := flag.String("config", getenv("CONFIG_PATH", "config.json"), "path to config file")
	issueToken := flag.Bool("issue-token", false, "print an operator token and exit")
	operatorID := flag.String("operator", "", "operator id for -issue-token")
	orgID := flag.String("org", "", "organization (contact owner) id for -issue-token")
	admin := flag.Bool("admin", false, "admin claim for -issue-token")
	flag.Parse()

	cfg, err := config.Get(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken {
		ttl := time.Duration(cfg.Security.TokenTTLHours) * time.Hour
		token, exp, err := tools.IssueOperatorToken(cfg.Security.JwtSecret, *operatorID, *orgID, *admin, ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n# expires at %s\n", token, exp.Format(time.RFC3339))
		return
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "carelink")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Configuration, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg, log)
	if err != nil {
		return err
	}
	defer gdb.Close()
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	// Fan-out: com redis, eventos de uma instância chegam às sessões das outras.
	var relay fanout.Relay
	if cfg.Redis.Enabled {
		client := fanout.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer client.Close()
		relay = fanout.NewRedisRelay(client, cfg.Redis.Channel, log)
	}
	hub := fanout.NewHub(fanout.Options{
		QueueSize:      cfg.Fanout.QueueSize,
		SessionBuffer:  cfg.Fanout.SessionBuffer,
		PublishTimeout: time.Duration(cfg.Fanout.PublishTimeoutMs) * time.Millisecond,
	}, relay, log)
	go hub.Run(ctx)

	resolver := identity.NewResolver(gdb, identity.Options{
		DefaultCountryCode: cfg.Identity.DefaultCountryCode,
		AutoCreateSMS:      cfg.Sms.AutoCreateContacts,
		DefaultOwnerID:     cfg.Sms.DefaultOwnerID,
		WebchatTTL:         time.Duration(cfg.Security.WebchatTokenDays) * 24 * time.Hour,
	}, log)
	store := control.NewStore(gdb, log)
	gate := control.NewGate(store, cfg.Gate.FailurePolicy, log)
	messages := ledger.New(gdb, log)

	// interface nula (e não ponteiro nulo) quando o SMS não está configurado
	var sms channels.TextSender
	if cfg.Sms.AccountSID != "" && cfg.Sms.AuthToken != "" {
		sms = tools.NewSMSClient(cfg.Sms.BaseURL, cfg.Sms.AccountSID, cfg.Sms.AuthToken, cfg.Sms.FromNumber, log)
	} else {
		log.Warn("sms provider not configured; sms/voice replies will fail delivery")
	}

	coordinator := conversation.New(conversation.Deps{
		Resolver: resolver,
		Triage:   identity.NewTriageStore(gdb, log),
		Control:  store,
		Gate:     gate,
		Ledger:   messages,
		Unread:   unread.New(gdb, log),
		Notifier: hub,
		Outbound: channels.NewRegistry(sms, hub),
	}, conversation.Options{
		AutoPauseOnOperatorReply: cfg.AutoPause(),
		RecentPerContact:         cfg.Conversation.RecentPerContact,
	}, log)

	if cfg.Bot.Enabled {
		responder := tools.NewOpenAIResponder(cfg.Bot.OpenAIBaseURL, cfg.Bot.OpenAIKey, cfg.Bot.Model, cfg.Bot.SystemPrompt)
		bot := workers.NewBotProcessor(gdb, gate, responder, coordinator, messages, workers.BotOptions{
			Debounce:     time.Duration(cfg.Bot.DebounceSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Bot.PollIntervalMs) * time.Millisecond,
			HistorySize:  cfg.Bot.HistorySize,
		}, log)
		coordinator.SetJobQueue(bot)
		bot.Start(ctx)
		log.Info("bot worker started", zap.String("model", cfg.Bot.Model))
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	router.Initialize(r, &controllers.Controller{
		Conversations:    coordinator,
		Hub:              hub,
		Logger:           log,
		JwtSecret:        cfg.Security.JwtSecret,
		SmsAuthToken:     cfg.Sms.AuthToken,
		PublicWebhookURL: cfg.Sms.PublicWebhookURL,
	}, gdb, log)

	srv := &http.Server{
		Addr:              ":" + cfg.ApiPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("carelink listening", zap.String("port", cfg.ApiPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
