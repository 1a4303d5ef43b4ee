package models

import "time"

/************************************************
/**** MARK: IDENTITY KINDS ****/
/************************************************/
const IDENTITY_KIND_PHONE = "phone"
const IDENTITY_KIND_WEBCHAT_SESSION = "webchat_session"
const IDENTITY_KIND_PATIENT_RECORD = "patient_record"

// Contact é a identidade canônica de um paciente em todos os canais.
// MessageSeq/LastMessageAt são mantidos pelo ledger para ordenar as mensagens do contato.
type Contact struct {
	ID            string     `gorm:"primary_key;type:varchar(36)" json:"id"`
	OwnerID       string     `gorm:"not null;index" json:"owner_id"`
	DisplayName   string     `gorm:"default:''" json:"display_name"`
	Phone         *string    `gorm:"index" json:"phone,omitempty"`
	MessageSeq    int64      `gorm:"not null;default:0" json:"message_seq"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ContactIdentity liga um identificador de canal (sessão de webchat, prontuário, telefone
// vinculado manualmente) a um contato. (kind, value) é único.
type ContactIdentity struct {
	ID        string     `gorm:"primary_key;type:varchar(36)" json:"id"`
	ContactID string     `gorm:"not null;index" json:"contact_id"`
	Kind      string     `gorm:"not null;unique_index:idx_contact_identities_kind_value" json:"kind"`
	Value     string     `gorm:"not null;unique_index:idx_contact_identities_kind_value" json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
