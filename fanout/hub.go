package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"carelink/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrDeliveryFailed = errors.New("fanout delivery failed")

const (
	SESSION_KIND_OPERATOR = "operator"
	SESSION_KIND_PATIENT  = "patient"
)

// Relay leva envelopes para as outras instâncias. Subscribe só retorna depois que a
// inscrição está ativa.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}

type Options struct {
	QueueSize      int
	SessionBuffer  int
	PublishTimeout time.Duration
}

// Session é uma conexão viva (operador ou paciente). Nunca é persistida.
type Session struct {
	ID        string
	Kind      string
	Principal string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	rooms     map[string]struct{}
}

func (s *Session) Outbound() <-chan []byte { return s.send }
func (s *Session) Done() <-chan struct{}   { return s.done }

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub mantém as salas (contato, operador, paciente) e entrega eventos às sessões
// inscritas. Broadcast só enfileira: quem grava no banco nunca espera pela entrega.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}

	queue          chan Envelope
	relay          Relay
	publishTimeout time.Duration
	sessionBuffer  int
	ready          chan struct{}
	logger         *zap.Logger
}

func NewHub(opts Options, relay Relay, logger *zap.Logger) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = 64
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 2 * time.Second
	}
	return &Hub{
		rooms:          map[string]map[*Session]struct{}{},
		queue:          make(chan Envelope, opts.QueueSize),
		relay:          relay,
		publishTimeout: opts.PublishTimeout,
		sessionBuffer:  opts.SessionBuffer,
		ready:          make(chan struct{}),
		logger:         logger,
	}
}

func (h *Hub) NewSession(kind, principal string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Principal: principal,
		send:      make(chan []byte, h.sessionBuffer),
		done:      make(chan struct{}),
		rooms:     map[string]struct{}{},
	}
}

func (h *Hub) Subscribe(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = map[*Session]struct{}{}
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

func (h *Hub) Unsubscribe(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(s, room)
}

func (h *Hub) unsubscribeLocked(s *Session, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(s.rooms, room)
}

// Remove tira a sessão de todas as salas e sinaliza Done.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	for room := range s.rooms {
		h.unsubscribeLocked(s, room)
	}
	h.mu.Unlock()
	s.close()
}

func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast enfileira o evento para a sala do contato e as salas extras. Nunca bloqueia:
// com a fila cheia o evento é descartado (as sessões recarregam o estado ao reconectar).
func (h *Hub) Broadcast(ev Event, extraRooms ...string) {
	rooms := make([]string, 0, len(extraRooms)+1)
	if ev.ContactID != "" {
		rooms = append(rooms, ContactRoom(ev.ContactID))
	}
	h.BroadcastTo(ev, append(rooms, extraRooms...)...)
}

// BroadcastTo enfileira o evento só para as salas informadas.
func (h *Hub) BroadcastTo(ev Event, rooms ...string) {
	targets := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if r != "" {
			targets = append(targets, r)
		}
	}
	if len(targets) == 0 {
		return
	}

	select {
	case h.queue <- Envelope{Rooms: targets, Event: ev}:
	default:
		h.logger.Warn("fanout queue full, event dropped",
			logger.Anomaly("fanout_dropped"),
			zap.String("type", string(ev.Type)),
			zap.String("contact_id", ev.ContactID),
		)
	}
}

// Ready fecha quando Run terminou de montar o relay (se houver).
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Run drena a fila até ctx terminar. Com relay, cada envelope é publicado e a entrega
// local acontece quando ele volta pela inscrição; se publicar falhar, entrega só aqui.
func (h *Hub) Run(ctx context.Context) {
	var relayed <-chan Envelope
	if h.relay != nil {
		ch, err := h.relay.Subscribe(ctx)
		if err != nil {
			h.logger.Error("fanout relay subscribe failed, delivering locally only",
				logger.Anomaly("fanout_relay_down"), zap.Error(err))
			h.relay = nil
		} else {
			relayed = ch
		}
	}
	close(h.ready)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.queue:
			if err := h.publish(ctx, env); err != nil {
				h.logger.Warn("fanout relay publish failed, delivering locally",
					logger.Anomaly("fanout_relay_publish"), zap.Error(err))
				h.Deliver(env)
			}
		case env, ok := <-relayed:
			if !ok {
				h.logger.Error("fanout relay subscription closed", logger.Anomaly("fanout_relay_down"))
				relayed = nil
				h.relay = nil
				continue
			}
			h.Deliver(env)
		}
	}
}

func (h *Hub) publish(ctx context.Context, env Envelope) error {
	if h.relay == nil {
		h.Deliver(env)
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()
	if err := h.relay.Publish(pctx, env); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// Deliver entrega o envelope às sessões locais. Uma sessão que pertence a várias salas
// do envelope recebe o evento uma vez. Sessão com buffer cheio é desconectada.
func (h *Hub) Deliver(env Envelope) int {
	payload, err := json.Marshal(env.Event)
	if err != nil {
		h.logger.Error("fanout marshal failed", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	targets := map[*Session]struct{}{}
	for _, room := range env.Rooms {
		for s := range h.rooms[room] {
			targets[s] = struct{}{}
		}
	}
	h.mu.RUnlock()

	delivered := 0
	var slow []*Session
	for s := range targets {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.send <- payload:
			delivered++
		default:
			slow = append(slow, s)
		}
	}

	for _, s := range slow {
		h.logger.Warn("session too slow, disconnecting",
			logger.Anomaly("fanout_slow_session"),
			zap.String("session_id", s.ID),
			zap.String("principal", s.Principal),
		)
		h.Remove(s)
	}
	return delivered
}
