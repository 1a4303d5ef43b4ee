package models

import "time"

// Message é imutável depois de gravada. CreatedAt é atribuído pelo ledger e Seq é a
// posição da mensagem na linha do tempo do contato (1, 2, 3...). FromAddress é o telefone
// normalizado de quem enviou, só em mensagens do paciente por sms/voice_note.
type Message struct {
	ID                string     `gorm:"primary_key;type:varchar(36)" json:"message_id"`
	ContactID         string     `gorm:"not null;index:idx_messages_contact_created;unique_index:idx_messages_contact_seq,idx_messages_contact_provider" json:"contact_id"`
	Seq               int64      `gorm:"not null;unique_index:idx_messages_contact_seq" json:"seq"`
	Channel           Channel    `gorm:"not null;type:varchar(16)" json:"channel"`
	SenderType        SenderType `gorm:"not null;type:varchar(16);index" json:"sender_type"`
	SenderID          *string    `json:"sender_id,omitempty"`
	Body              string     `gorm:"type:text" json:"body"`
	FromAddress       *string    `gorm:"type:varchar(32)" json:"from_address,omitempty"`
	ProviderMessageID *string    `gorm:"unique_index:idx_messages_contact_provider" json:"provider_message_id,omitempty"`
	ProviderTimestamp *time.Time `json:"provider_timestamp,omitempty"`
	CreatedAt         time.Time  `gorm:"not null;index:idx_messages_contact_created" json:"created_at"`
}
