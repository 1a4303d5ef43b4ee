package models

import "time"

/************************************************
/**** MARK: TRIAGE ****/
/************************************************/
const TRIAGE_REASON_UNKNOWN_CONTACT = "unknown_contact"
const TRIAGE_REASON_AMBIGUOUS_CONTACT = "ambiguous_contact"

const TRIAGE_STATUS_OPEN = "open"
const TRIAGE_STATUS_LINKED = "linked"
const TRIAGE_STATUS_DISCARDED = "discarded"

// TriageEntry guarda mensagens que não puderam ser atribuídas a um contato.
// Nada é descartado em silêncio: um operador vincula ou descarta manualmente.
type TriageEntry struct {
	ID                string     `gorm:"primary_key;type:varchar(36)" json:"id"`
	Channel           Channel    `gorm:"not null;type:varchar(16);unique_index:idx_triage_channel_provider" json:"channel"`
	Identifier        string     `gorm:"not null;index" json:"identifier"`
	Reason            string     `gorm:"not null" json:"reason"`
	Body              string     `gorm:"type:text" json:"body"`
	SenderType        SenderType `gorm:"not null;type:varchar(16);default:'patient'" json:"sender_type"`
	ProviderMessageID *string    `gorm:"unique_index:idx_triage_channel_provider" json:"provider_message_id,omitempty"`
	Status            string     `gorm:"not null;default:'open';index" json:"status"`
	ContactID         *string    `json:"contact_id,omitempty"`
	ResolvedBy        *string    `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
