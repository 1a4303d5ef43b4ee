package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"carelink/conversation"
	"carelink/db"
	"carelink/logger"
	"carelink/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"go.uber.org/zap"
)

// Responder é o motor de decisão do bot (fora deste serviço; ver tools.OpenAIResponder).
type Responder interface {
	Reply(ctx context.Context, contactID string, text string, history []models.Message) (string, error)
}

type Gate interface {
	Allow(ctx context.Context, contactID string) bool
}

type ReplySink interface {
	AppendBotReply(ctx context.Context, contactID string, channel models.Channel, body string) (models.Message, error)
}

type HistorySource interface {
	Tail(ctx context.Context, contactID string, n int) ([]models.Message, error)
}

type BotOptions struct {
	Debounce     time.Duration
	PollInterval time.Duration
	HistorySize  int
	BatchSize    int
	ReplyTimeout time.Duration
}

// BotProcessor guarda as mensagens do paciente em bot_jobs e responde depois da janela
// de debounce. Várias instâncias podem rodar: o job só é processado por quem conseguir
// trocar o status de pending para processing.
type BotProcessor struct {
	db        *gorm.DB
	gate      Gate
	responder Responder
	sink      ReplySink
	history   HistorySource
	opts      BotOptions
	logger    *zap.Logger
}

func NewBotProcessor(gdb *gorm.DB, gate Gate, responder Responder, sink ReplySink, history HistorySource, opts BotOptions, logger *zap.Logger) *BotProcessor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 20
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 60 * time.Second
	}
	return &BotProcessor{
		db:        gdb,
		gate:      gate,
		responder: responder,
		sink:      sink,
		history:   history,
		opts:      opts,
		logger:    logger,
	}
}

// Enqueue cria o job da mensagem. Um job ainda pendente do mesmo contato é invalidado e
// o texto dele é somado ao novo, para o bot responder uma vez a mensagens seguidas.
func (p *BotProcessor) Enqueue(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := db.Now()
	scheduled := now.Add(p.opts.Debounce)

	tx := p.db.Begin()

	var pending []models.BotJob
	err := tx.
		Where("contact_id = ? AND status = ?", msg.ContactID, models.BOT_JOB_STATUS_PENDING).
		Order("created_at asc").
		Find(&pending).Error
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("find pending jobs: %w", err)
	}

	parts := make([]string, 0, len(pending)+1)
	for _, job := range pending {
		res := tx.Model(&models.BotJob{}).
			Where("id = ? AND status = ?", job.ID, models.BOT_JOB_STATUS_PENDING).
			Updates(map[string]any{
				"status":         models.BOT_JOB_STATUS_INVALIDATED,
				"invalidated_at": &now,
			})
		if res.Error != nil {
			tx.Rollback()
			return fmt.Errorf("invalidate job: %w", res.Error)
		}
		// já foi pego pelo worker: segue como resposta separada
		if res.RowsAffected == 0 {
			continue
		}
		if t := strings.TrimSpace(job.Text); t != "" {
			parts = append(parts, t)
		}
	}
	parts = append(parts, strings.TrimSpace(msg.Body))

	job := models.BotJob{
		ID:          uuid.NewString(),
		ContactID:   msg.ContactID,
		MessageID:   msg.ID,
		Channel:     msg.Channel,
		Text:        strings.Join(parts, "\n"),
		Status:      models.BOT_JOB_STATUS_PENDING,
		ScheduledAt: &scheduled,
	}
	if err := tx.Create(&job).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("create job: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		tx.Rollback()
		return err
	}
	return nil
}

// Start roda o loop até ctx terminar.
func (p *BotProcessor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.ProcessDue(ctx)
			}
		}
	}()
}

// ProcessDue pega os jobs vencidos, processa em paralelo e espera terminar.
// Devolve quantos jobs esta instância conseguiu reivindicar.
func (p *BotProcessor) ProcessDue(ctx context.Context) int {
	now := db.Now()

	var jobs []models.BotJob
	if err := p.db.
		Where("status = ?", models.BOT_JOB_STATUS_PENDING).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
		Order("scheduled_at asc").
		Limit(p.opts.BatchSize).
		Find(&jobs).Error; err != nil {
		p.logger.Error("bot worker: query error", zap.Error(err))
		return 0
	}

	var wg sync.WaitGroup
	claimed := 0
	for _, job := range jobs {
		// lock otimista: só processa se conseguir mudar o status
		res := p.db.Model(&models.BotJob{}).
			Where("id = ? AND status = ?", job.ID, models.BOT_JOB_STATUS_PENDING).
			Update("status", models.BOT_JOB_STATUS_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		claimed++

		wg.Add(1)
		go func(job models.BotJob) {
			defer wg.Done()
			p.handleJob(ctx, job)
		}(job)
	}
	wg.Wait()
	return claimed
}

func (p *BotProcessor) handleJob(ctx context.Context, job models.BotJob) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ReplyTimeout)
	defer cancel()

	log := p.logger.With(zap.String("job_id", job.ID), zap.String("contact_id", job.ContactID))

	if !p.gate.Allow(ctx, job.ContactID) {
		p.finish(job.ID, models.BOT_JOB_STATUS_SKIPPED, "", "conversation paused")
		return
	}

	history, err := p.history.Tail(ctx, job.ContactID, p.opts.HistorySize)
	if err != nil {
		log.Warn("bot worker: history unavailable", zap.Error(err))
	}

	reply, err := p.responder.Reply(ctx, job.ContactID, job.Text, trimPending(history))
	if err != nil {
		log.Error("bot worker: responder error", logger.Anomaly("bot_responder_failed"), zap.Error(err))
		p.finish(job.ID, models.BOT_JOB_STATUS_FAILED, "", truncate(err.Error(), 250))
		return
	}

	// o gate é relido aqui, no momento de gravar a resposta
	if _, err := p.sink.AppendBotReply(ctx, job.ContactID, job.Channel, reply); err != nil {
		if errors.Is(err, conversation.ErrGateClosed) {
			log.Info("bot worker: paused while composing, reply dropped")
			p.finish(job.ID, models.BOT_JOB_STATUS_SKIPPED, reply, "paused before reply")
			return
		}
		log.Error("bot worker: append reply failed", zap.Error(err))
		p.finish(job.ID, models.BOT_JOB_STATUS_FAILED, reply, truncate(err.Error(), 250))
		return
	}

	p.finish(job.ID, models.BOT_JOB_STATUS_DONE, reply, "")
}

func (p *BotProcessor) finish(jobID, status, reply, note string) {
	t := db.Now()
	err := p.db.Model(&models.BotJob{}).Where("id = ?", jobID).Updates(map[string]any{
		"status":       status,
		"processed_at": &t,
		"reply_text":   reply,
		"note":         note,
	}).Error
	if err != nil {
		p.logger.Error("bot worker: could not finish job", zap.String("job_id", jobID), zap.Error(err))
	}
}

// trimPending remove do fim do histórico as mensagens do paciente ainda sem resposta;
// elas já vão no texto do job.
func trimPending(history []models.Message) []models.Message {
	end := len(history)
	for end > 0 && history[end-1].SenderType == models.SENDER_PATIENT {
		end--
	}
	return history[:end]
}

// truncate corta em no máximo n bytes sem partir um caractere UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
