package fanout

import (
	"encoding/json"
	"time"

	"carelink/db"
	"carelink/models"
)

type EventType string

const (
	EVENT_MESSAGE_APPENDED EventType = "message_appended"
	EVENT_CONTROL_CHANGED  EventType = "control_changed"
	EVENT_READ_UPDATED     EventType = "read_updated"
)

// Event é o que a sessão recebe pelo websocket.
type Event struct {
	Type      EventType       `json:"type"`
	ContactID string          `json:"contact_id"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}

// Envelope é a unidade que circula na fila e no relay entre instâncias.
type Envelope struct {
	Rooms []string `json:"rooms"`
	Event Event    `json:"event"`
}

func ContactRoom(contactID string) string  { return "contact:" + contactID }
func OperatorRoom(operatorID string) string { return "operator:" + operatorID }
func PatientRoom(contactID string) string  { return "patient:" + contactID }

type ControlPayload struct {
	State   string                      `json:"state"`
	Control *models.ConversationControl `json:"control"`
}

type ReadPayload struct {
	OperatorID string    `json:"operator_id"`
	LastReadAt time.Time `json:"last_read_at"`
	Unread     int       `json:"unread"`
}

func MessageAppended(msg models.Message) Event {
	return newEvent(EVENT_MESSAGE_APPENDED, msg.ContactID, msg)
}

func ControlChanged(contactID string, c *models.ConversationControl) Event {
	return newEvent(EVENT_CONTROL_CHANGED, contactID, ControlPayload{State: c.State(), Control: c})
}

func ReadUpdated(contactID string, p ReadPayload) Event {
	return newEvent(EVENT_READ_UPDATED, contactID, p)
}

func newEvent(t EventType, contactID string, payload any) Event {
	// payloads são structs do próprio pacote/models; Marshal não falha
	b, _ := json.Marshal(payload)
	return Event{Type: t, ContactID: contactID, Payload: b, At: db.Now()}
}
