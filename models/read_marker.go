package models

import "time"

// ReadMarker guarda até quando um operador leu a conversa de um contato.
type ReadMarker struct {
	ContactID  string    `gorm:"primary_key;type:varchar(36)" json:"contact_id"`
	OperatorID string    `gorm:"primary_key;type:varchar(64)" json:"operator_id"`
	LastReadAt time.Time `gorm:"not null" json:"last_read_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
