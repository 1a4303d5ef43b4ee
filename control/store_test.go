package control

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"carelink/db"
	"carelink/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.OpenMemory(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { gdb.Close() })
	return NewStore(gdb, zap.NewNop())
}

func TestPauseResumeAcrossOperators(t *testing.T) {
	s := newTestStore(t)
	gate := NewGate(s, "open", zap.NewNop())
	ctx := context.Background()

	c, err := s.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.True(t, gate.Allow(ctx, "C1"))

	c, err = s.Pause(ctx, "C1", "O1", models.PAUSE_REASON_MANUAL_INTERVENTION)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, c.BotPaused)
	require.NotNil(t, c.PausedBy)
	assert.Equal(t, "O1", *c.PausedBy)
	assert.False(t, gate.Allow(ctx, "C1"))

	c, err = s.Resume(ctx, "C1", "O2")
	require.NoError(t, err)
	assert.False(t, c.BotPaused)
	assert.Nil(t, c.PausedBy)
	require.NotNil(t, c.UpdatedBy)
	assert.Equal(t, "O2", *c.UpdatedBy)
	assert.True(t, gate.Allow(ctx, "C1"))
}

func TestPauseIsIdempotentAndLatestCallerWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Pause(ctx, "C1", "O1", "")
	require.NoError(t, err)
	c, err := s.Pause(ctx, "C1", "O2", models.PAUSE_REASON_ESCALATION)
	require.NoError(t, err)

	assert.True(t, c.BotPaused)
	assert.Equal(t, "O2", *c.PausedBy)
	assert.Equal(t, models.PAUSE_REASON_ESCALATION, *c.PauseReason)
}

func TestResumeWithoutRecordIsNoop(t *testing.T) {
	s := newTestStore(t)

	c, err := s.Resume(context.Background(), "C9", "O1")
	require.NoError(t, err)
	assert.Equal(t, models.CONTROL_STATE_ACTIVE, c.State())
}

func TestPauseRejectsUnknownReason(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Pause(context.Background(), "C1", "O1", "lunch")
	assert.ErrorIs(t, err, ErrInvalidReason)
}

func TestLastWriterWinsByTimestampNotArrival(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := db.Now()

	// O2 pausa em t+2 e chega primeiro; O1 pausou em t+1 mas chega depois.
	_, err := s.apply(ctx, "C1", "O2", ActionPause, models.PAUSE_REASON_ESCALATION, base.Add(2*time.Second))
	require.NoError(t, err)
	c, err := s.apply(ctx, "C1", "O1", ActionPause, models.PAUSE_REASON_MANUAL_INTERVENTION, base.Add(1*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "O2", *c.PausedBy)

	// um resume mais antigo também perde
	c, err = s.apply(ctx, "C1", "O3", ActionResume, "", base)
	require.NoError(t, err)
	assert.True(t, c.BotPaused)

	c, err = s.apply(ctx, "C1", "O3", ActionResume, "", base.Add(3*time.Second))
	require.NoError(t, err)
	assert.False(t, c.BotPaused)
}

func TestConcurrentInterleavingsConvergeToLatestTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := db.Now()

	type op struct {
		action   Action
		operator string
		at       time.Time
	}
	ops := make([]op, 40)
	for i := range ops {
		a := ActionPause
		if i%2 == 1 {
			a = ActionResume
		}
		ops[i] = op{action: a, operator: fmt.Sprintf("O%d", i), at: base.Add(time.Duration(i) * time.Millisecond)}
	}
	rand.New(rand.NewSource(7)).Shuffle(len(ops), func(i, j int) { ops[i], ops[j] = ops[j], ops[i] })

	var wg sync.WaitGroup
	for _, o := range ops {
		wg.Add(1)
		go func(o op) {
			defer wg.Done()
			reason := ""
			if o.action == ActionPause {
				reason = models.PAUSE_REASON_OTHER
			}
			_, err := s.apply(ctx, "C1", o.operator, o.action, reason, o.at)
			assert.NoError(t, err)
		}(o)
	}
	wg.Wait()

	// o maior carimbo é i=39 (resume por O39)
	c, err := s.Get(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.BotPaused)
	require.NotNil(t, c.UpdatedBy)
	assert.Equal(t, "O39", *c.UpdatedBy)

	var count int
	require.NoError(t, s.db.Model(&models.ConversationControl{}).Where("contact_id = ?", "C1").Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestTouchDoesNotOverrideControlState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// touch cria o registro sem vencer um pause posterior
	require.NoError(t, s.TouchBotResponse(ctx, "C1", db.Now()))
	c, err := s.Get(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, c.LastBotResponseAt)
	assert.False(t, c.BotPaused)

	_, err = s.Pause(ctx, "C1", "O1", "")
	require.NoError(t, err)

	at := db.Now()
	require.NoError(t, s.TouchHumanResponse(ctx, "C1", at))
	c, err = s.Get(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, c.BotPaused)
	require.NotNil(t, c.LastHumanResponseAt)
	assert.True(t, c.LastHumanResponseAt.Equal(at))
}

func TestNext(t *testing.T) {
	st, err := Next(models.CONTROL_STATE_ACTIVE, ActionPause)
	require.NoError(t, err)
	assert.Equal(t, models.CONTROL_STATE_PAUSED, st)

	st, err = Next(models.CONTROL_STATE_PAUSED, ActionPause)
	require.NoError(t, err)
	assert.Equal(t, models.CONTROL_STATE_PAUSED, st)

	st, err = Next(models.CONTROL_STATE_ACTIVE, ActionResume)
	require.NoError(t, err)
	assert.Equal(t, models.CONTROL_STATE_ACTIVE, st)

	_, err = Next(models.CONTROL_STATE_ACTIVE, Action("archive"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = Next("ARCHIVED", ActionResume)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
