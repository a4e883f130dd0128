package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// gateSender blocks deliveries to chat 1 until release is closed.
type gateSender struct {
	release chan struct{}
}

func (g *gateSender) Send(ctx context.Context, a bot.Action) error {
	if m, ok := a.(bot.SendMessage); ok && m.ChatID == 1 {
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func startDispatcher(t *testing.T, d *Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestDispatcherSlowActionDoesNotBlockOthers(t *testing.T) {
	g := &gateSender{release: make(chan struct{})}
	d := NewDispatcher(g, &recordLog{}, DispatcherConfig{Concurrency: 2})

	outcomes := make(chan Outcome, 2)
	d.OnOutcome = func(o Outcome) { outcomes <- o }
	startDispatcher(t, d)

	err := d.Submit(context.Background(), []bot.Action{
		bot.SendMessage{ChatID: 1, Text: "slow"},
		bot.SendMessage{ChatID: 2, Text: "fast"},
	})
	require.NoError(t, err)

	select {
	case o := <-outcomes:
		assert.Equal(t, telegram.ChatID(2), o.Action.(bot.SendMessage).ChatID)
		assert.Equal(t, uint64(2), o.Seq)
		assert.NoError(t, o.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("second action was blocked by the first")
	}

	close(g.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	delivered, failed := d.Stats()
	assert.Equal(t, uint64(2), delivered)
	assert.Zero(t, failed)
}

func TestDispatcherFailureDoesNotStopSubsequentActions(t *testing.T) {
	s := &recordSender{fail: func(a bot.Action) error {
		if _, ok := a.(bot.AnswerCallbackQuery); ok {
			return errors.New("query is too old")
		}
		return nil
	}}
	log := &recordLog{}
	d := NewDispatcher(s, log, DispatcherConfig{Concurrency: 1})

	var outcomes []Outcome
	d.OnOutcome = func(o Outcome) { outcomes = append(outcomes, o) }
	startDispatcher(t, d)

	require.NoError(t, d.Submit(context.Background(), []bot.Action{
		bot.AnswerCallbackQuery{QueryID: "cb1"},
		bot.SendMessage{ChatID: 3, Text: "after"},
		bot.AnswerInlineQuery{QueryID: "iq1"},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	require.Len(t, s.actions(), 3)
	require.Len(t, outcomes, 3)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)
	assert.NotEqual(t, outcomes[0].ID, outcomes[1].ID)

	errs := log.errorLines()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "answerCallbackQuery query=cb1")
}

func TestDispatcherWaitWithNothingPending(t *testing.T) {
	d := NewDispatcher(&recordSender{}, &recordLog{}, DispatcherConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Wait(ctx))
}

func TestDispatcherSubmitRespectsContextWhenQueueFull(t *testing.T) {
	d := NewDispatcher(&recordSender{}, &recordLog{}, DispatcherConfig{QueueSize: 1})

	// Not running: the first action fills the queue, the second blocks.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := d.Submit(ctx, []bot.Action{
		bot.SendMessage{ChatID: 1, Text: "a"},
		bot.SendMessage{ChatID: 1, Text: "b"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcherCancelReportsQueuedActions(t *testing.T) {
	d := NewDispatcher(&recordSender{}, &recordLog{}, DispatcherConfig{Concurrency: 1})

	outcomes := make(chan Outcome, 2)
	d.OnOutcome = func(o Outcome) { outcomes <- o }

	require.NoError(t, d.Submit(context.Background(), []bot.Action{
		bot.SendMessage{ChatID: 1, Text: "a"},
		bot.SendMessage{ChatID: 1, Text: "b"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx))

	close(outcomes)
	n := 0
	for o := range outcomes {
		n++
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
	assert.Equal(t, 2, n)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "sendMessage chat=9", describe(bot.SendMessage{ChatID: 9}))
	assert.Equal(t, "answerInlineQuery query=q results=0", describe(bot.AnswerInlineQuery{QueryID: "q"}))
	assert.Equal(t, "answerCallbackQuery query=c", describe(bot.AnswerCallbackQuery{QueryID: "c"}))
}

func TestDispatcherRunsTasks(t *testing.T) {
	log := &recordLog{}
	d := NewDispatcher(&gateSender{}, log, DispatcherConfig{Concurrency: 1})

	outcomes := make(chan Outcome, 2)
	d.OnOutcome = func(o Outcome) { outcomes <- o }
	startDispatcher(t, d)

	boom := errors.New("boom")
	err := d.SubmitTasks(context.Background(), []bot.Task{
		{Name: "fails", Run: func(context.Context) error { return boom }},
		{Name: "empty"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	first, second := <-outcomes, <-outcomes
	assert.Equal(t, "fails", first.Task)
	assert.Nil(t, first.Action)
	assert.ErrorIs(t, first.Err, boom)
	assert.Equal(t, "empty", second.Task)
	assert.Error(t, second.Err, "a task without Run fails")

	_, failed := d.Stats()
	assert.Equal(t, uint64(2), failed)
	require.Len(t, log.errorLines(), 2)
	assert.Contains(t, log.errorLines()[0], "task fails")
}

func TestDispatcherRejectsSubmitAfterRun(t *testing.T) {
	d := NewDispatcher(&recordSender{}, &recordLog{}, DispatcherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)

	err := d.Submit(context.Background(), []bot.Action{bot.SendMessage{ChatID: 1, Text: "late"}})
	require.ErrorIs(t, err, ErrDispatcherClosed)
	require.ErrorIs(t, d.SubmitTasks(context.Background(), []bot.Task{{Name: "late"}}), ErrDispatcherClosed)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx), "rejected submissions must not count as pending")
}

func TestDispatcherLateSubmitsNeverHangWait(t *testing.T) {
	d := NewDispatcher(&recordSender{}, &recordLog{}, DispatcherConfig{Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Submit(context.Background(), []bot.Action{bot.SendMessage{ChatID: 2, Text: "x"}})
			}
		}()
	}
	cancel()
	<-done
	wg.Wait()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, d.Wait(waitCtx))
}
