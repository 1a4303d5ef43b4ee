package fanout

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4096
)

const (
	FRAME_SUBSCRIBE   = "subscribe"
	FRAME_UNSUBSCRIBE = "unsubscribe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// a autenticação é feita pelo token antes do upgrade
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame é o que o cliente manda pelo socket.
type Frame struct {
	Action    string `json:"action"`
	ContactID string `json:"contact_id"`
}

type frameReply struct {
	Type      string `json:"type"`
	ContactID string `json:"contact_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RoomGuard decide se a sessão pode acompanhar a sala de um contato.
type RoomGuard func(ctx context.Context, s *Session, contactID string) bool

// ServeSession faz o upgrade, inscreve a sessão nas salas iniciais e bloqueia até a
// conexão fechar. guard nil = sessão não aceita frames de inscrição.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, s *Session, initialRooms []string, guard RoomGuard) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	for _, room := range initialRooms {
		h.Subscribe(s, room)
	}
	h.logger.Debug("realtime session connected", zap.String("session_id", s.ID), zap.String("kind", s.Kind))

	go h.writePump(conn, s)
	h.readPump(r.Context(), conn, s, guard)
	return nil
}

func (h *Hub) readPump(ctx context.Context, conn *websocket.Conn, s *Session, guard RoomGuard) {
	defer func() {
		h.Remove(s)
		conn.Close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		reply := frameReply{ContactID: f.ContactID}
		switch {
		case guard == nil || f.ContactID == "":
			reply.Type, reply.Error = "error", "not allowed"
		case f.Action == FRAME_SUBSCRIBE:
			if guard(ctx, s, f.ContactID) {
				h.Subscribe(s, ContactRoom(f.ContactID))
				reply.Type = "subscribed"
			} else {
				reply.Type, reply.Error = "error", "forbidden"
			}
		case f.Action == FRAME_UNSUBSCRIBE:
			h.Unsubscribe(s, ContactRoom(f.ContactID))
			reply.Type = "unsubscribed"
		default:
			reply.Type, reply.Error = "error", "unknown action"
		}

		b, _ := json.Marshal(reply)
		select {
		case s.send <- b:
		default:
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "reconnect"))
			return
		case msg := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.Remove(s)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Remove(s)
				return
			}
		}
	}
}
