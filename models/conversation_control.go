package models

import "time"

/************************************************
/**** MARK: PAUSE REASONS ****/
/************************************************/
const PAUSE_REASON_MANUAL_INTERVENTION = "manual_intervention"
const PAUSE_REASON_ESCALATION = "escalation"
const PAUSE_REASON_OPERATOR_REPLY = "operator_reply"
const PAUSE_REASON_OTHER = "other"

const CONTROL_STATE_ACTIVE = "ACTIVE"
const CONTROL_STATE_PAUSED = "PAUSED"

// ConversationControl guarda, por contato, se o bot está pausado.
// Ausência de registro significa bot ativo.
type ConversationControl struct {
	ContactID           string     `gorm:"primary_key;type:varchar(36)" json:"contact_id"`
	BotPaused           bool       `gorm:"not null;default:false" json:"bot_paused"`
	PausedBy            *string    `json:"paused_by,omitempty"`
	PauseReason         *string    `json:"pause_reason,omitempty"`
	PausedAt            *time.Time `json:"paused_at,omitempty"`
	LastBotResponseAt   *time.Time `json:"last_bot_response_at,omitempty"`
	LastHumanResponseAt *time.Time `json:"last_human_response_at,omitempty"`
	UpdatedBy           *string    `json:"updated_by,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

// State devolve ACTIVE/PAUSED. Um registro nil é ACTIVE.
func (c *ConversationControl) State() string {
	if c == nil || !c.BotPaused {
		return CONTROL_STATE_ACTIVE
	}
	return CONTROL_STATE_PAUSED
}

func ValidPauseReason(reason string) bool {
	switch reason {
	case PAUSE_REASON_MANUAL_INTERVENTION, PAUSE_REASON_ESCALATION, PAUSE_REASON_OPERATOR_REPLY, PAUSE_REASON_OTHER:
		return true
	}
	return false
}
