package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carelink/channels"
	"carelink/control"
	"carelink/conversation"
	"carelink/db"
	"carelink/fanout"
	"carelink/identity"
	"carelink/ledger"
	"carelink/models"
	"carelink/unread"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type scriptedResponder struct {
	mu      sync.Mutex
	calls   []string
	reply   string
	err     error
	onReply func()
}

func (r *scriptedResponder) Reply(ctx context.Context, contactID, text string, history []models.Message) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, text)
	r.mu.Unlock()
	if r.onReply != nil {
		r.onReply()
	}
	return r.reply, r.err
}

type stack struct {
	db    *gorm.DB
	coord *conversation.Coordinator
	ctrl  *control.Store
	led   *ledger.Ledger
}

func newStack(t *testing.T) stack {
	t.Helper()
	log := zap.NewNop()
	gdb, err := db.OpenMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })

	hub := fanout.NewHub(fanout.Options{}, nil, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	store := control.NewStore(gdb, log)
	led := ledger.New(gdb, log)
	coord := conversation.New(conversation.Deps{
		Resolver: identity.NewResolver(gdb, identity.Options{DefaultCountryCode: "1"}, log),
		Triage:   identity.NewTriageStore(gdb, log),
		Control:  store,
		Gate:     control.NewGate(store, "open", log),
		Ledger:   led,
		Unread:   unread.New(gdb, log),
		Notifier: hub,
		Outbound: channels.NewRegistry(nil, hub),
	}, conversation.Options{}, log)
	return stack{db: gdb, coord: coord, ctrl: store, led: led}
}

func (s stack) processor(r Responder, debounce time.Duration) *BotProcessor {
	p := NewBotProcessor(s.db, s.coord.Gate, r, s.coord, s.led, BotOptions{Debounce: debounce}, zap.NewNop())
	s.coord.SetJobQueue(p)
	return p
}

func (s stack) webchatPatient(t *testing.T) (string, string) {
	sess, err := s.coord.StartWebchatSession(context.Background(), identity.WebchatSessionInput{OwnerID: "clinic-1"})
	require.NoError(t, err)
	return sess.ContactID, sess.Token
}

func (s stack) say(t *testing.T, token, body string) {
	in, err := channels.WebchatInput{Body: body}.Incoming(token)
	require.NoError(t, err)
	_, err = s.coord.Ingest(context.Background(), in)
	require.NoError(t, err)
}

func (s stack) jobs(t *testing.T, contactID string) []models.BotJob {
	var jobs []models.BotJob
	require.NoError(t, s.db.Where("contact_id = ?", contactID).Order("created_at asc, status asc").Find(&jobs).Error)
	return jobs
}

func TestBotProcessor_RepliesWhenActive(t *testing.T) {
	s := newStack(t)
	r := &scriptedResponder{reply: "We open at 9am."}
	p := s.processor(r, 0)
	contactID, token := s.webchatPatient(t)

	s.say(t, token, "when do you open?")
	assert.Equal(t, 1, p.ProcessDue(context.Background()))

	msgs, err := s.led.List(context.Background(), contactID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SENDER_SYSTEM, msgs[1].SenderType)
	assert.Equal(t, models.CHANNEL_WEBCHAT, msgs[1].Channel)
	assert.Equal(t, "We open at 9am.", msgs[1].Body)

	jobs := s.jobs(t, contactID)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.BOT_JOB_STATUS_DONE, jobs[0].Status)

	// nada mais a processar
	assert.Equal(t, 0, p.ProcessDue(context.Background()))
}

func TestBotProcessor_DebounceFoldsMessages(t *testing.T) {
	s := newStack(t)
	r := &scriptedResponder{reply: "ok"}
	p := s.processor(r, time.Hour)
	contactID, token := s.webchatPatient(t)

	s.say(t, token, "hi")
	s.say(t, token, "I need to reschedule")

	jobs := s.jobs(t, contactID)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.BOT_JOB_STATUS_INVALIDATED, jobs[0].Status)
	assert.Equal(t, models.BOT_JOB_STATUS_PENDING, jobs[1].Status)
	assert.Equal(t, "hi\nI need to reschedule", jobs[1].Text)

	// ainda dentro da janela
	assert.Equal(t, 0, p.ProcessDue(context.Background()))
	assert.Empty(t, r.calls)
}

func TestBotProcessor_SkipsPausedConversation(t *testing.T) {
	s := newStack(t)
	r := &scriptedResponder{reply: "should not be sent"}
	p := s.processor(r, 0)
	contactID, token := s.webchatPatient(t)

	s.say(t, token, "hello?")
	_, err := s.coord.Pause(context.Background(), contactID, "O1", "")
	require.NoError(t, err)

	assert.Equal(t, 1, p.ProcessDue(context.Background()))
	assert.Empty(t, r.calls)

	jobs := s.jobs(t, contactID)
	assert.Equal(t, models.BOT_JOB_STATUS_SKIPPED, jobs[0].Status)
}

func TestBotProcessor_PauseWhileComposingDropsReply(t *testing.T) {
	s := newStack(t)
	contactID, token := s.webchatPatient(t)

	r := &scriptedResponder{reply: "late answer"}
	r.onReply = func() {
		_, err := s.ctrl.Pause(context.Background(), contactID, "O1", models.PAUSE_REASON_MANUAL_INTERVENTION)
		assert.NoError(t, err)
	}
	p := s.processor(r, 0)

	s.say(t, token, "is the doctor in?")
	assert.Equal(t, 1, p.ProcessDue(context.Background()))

	msgs, err := s.led.List(context.Background(), contactID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "bot reply must not be written after the pause")

	jobs := s.jobs(t, contactID)
	assert.Equal(t, models.BOT_JOB_STATUS_SKIPPED, jobs[0].Status)
	assert.Equal(t, "paused before reply", jobs[0].Note)
}

func TestBotProcessor_ResponderFailure(t *testing.T) {
	s := newStack(t)
	r := &scriptedResponder{err: errors.New("model overloaded")}
	p := s.processor(r, 0)
	contactID, token := s.webchatPatient(t)

	s.say(t, token, "hi")
	assert.Equal(t, 1, p.ProcessDue(context.Background()))

	jobs := s.jobs(t, contactID)
	assert.Equal(t, models.BOT_JOB_STATUS_FAILED, jobs[0].Status)
	assert.Contains(t, jobs[0].Note, "model overloaded")
}

func TestTrimPending(t *testing.T) {
	h := []models.Message{
		{SenderType: models.SENDER_PATIENT, Body: "a"},
		{SenderType: models.SENDER_SYSTEM, Body: "b"},
		{SenderType: models.SENDER_PATIENT, Body: "c"},
		{SenderType: models.SENDER_PATIENT, Body: "d"},
	}
	out := trimPending(h)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[1].Body)
	assert.Empty(t, trimPending(nil))
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	// "ã" ocupa dois bytes: cortar no meio recua para antes dele
	assert.Equal(t, "n", truncate("não", 2))
	assert.Equal(t, "nã", truncate("não", 3))
}
