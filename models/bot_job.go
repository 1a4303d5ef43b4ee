package models

import "time"

/************************************************
/**** MARK: BOT JOB STATUS ****/
/************************************************/
const BOT_JOB_STATUS_PENDING = "pending"
const BOT_JOB_STATUS_PROCESSING = "processing"
const BOT_JOB_STATUS_DONE = "done"
const BOT_JOB_STATUS_SKIPPED = "skipped"
const BOT_JOB_STATUS_INVALIDATED = "invalidated"
const BOT_JOB_STATUS_FAILED = "failed"

// BotJob representa uma mensagem de paciente aguardando resposta do bot.
// Entra como "pending" e só é processada após a janela de debounce, para agregar
// mensagens seguidas do mesmo contato.
type BotJob struct {
	ID            string     `gorm:"primary_key;type:varchar(36)" json:"id"`
	ContactID     string     `gorm:"not null;index" json:"contact_id"`
	MessageID     string     `gorm:"not null;default:''" json:"message_id"`
	Channel       Channel    `gorm:"not null;type:varchar(16)" json:"channel"`
	Text          string     `gorm:"type:text" json:"text"`
	Status        string     `gorm:"not null;default:'pending';index" json:"status"`
	ScheduledAt   *time.Time `gorm:"index" json:"scheduled_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	InvalidatedAt *time.Time `json:"invalidated_at"`
	ReplyText     string     `gorm:"type:text" json:"reply_text"`
	Note          string     `gorm:"default:''" json:"note"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}
