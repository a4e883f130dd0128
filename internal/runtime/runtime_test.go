package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/delivery"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// recordLog counts entries per level.
type recordLog struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (r *recordLog) Infof(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, fmt.Sprintf(format, args...))
}

func (r *recordLog) Errorf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordLog) errorLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

type fakeIdentity struct {
	user  *telegram.User
	err   error
	calls int
}

func (f *fakeIdentity) GetMe(context.Context) (*telegram.User, error) {
	f.calls++
	return f.user, f.err
}

func okIdentity() *fakeIdentity {
	return &fakeIdentity{user: &telegram.User{ID: 42, IsBot: true, FirstName: "Loop", Username: "loop_bot"}}
}

// fetchStep is one scripted Fetch result.
type fetchStep struct {
	batch delivery.Batch
	err   error
}

// scriptSource replays steps, then cancels the loop and reports ctx's error.
type scriptSource struct {
	steps   []fetchStep
	cancel  context.CancelFunc
	cursors []telegram.UpdateID
	// before, if set, runs at the start of every Fetch.
	before func(call int)
}

func (s *scriptSource) Fetch(ctx context.Context, cursor telegram.UpdateID) (delivery.Batch, error) {
	call := len(s.cursors)
	s.cursors = append(s.cursors, cursor)
	if s.before != nil {
		s.before(call)
	}
	if call >= len(s.steps) {
		s.cancel()
		return delivery.Batch{}, ctx.Err()
	}
	step := s.steps[call]
	return step.batch, step.err
}

// recordSender records delivered actions and fails those fail selects.
type recordSender struct {
	mu   sync.Mutex
	sent []bot.Action
	fail func(bot.Action) error
}

func (s *recordSender) Send(ctx context.Context, a bot.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, a)
	s.mu.Unlock()
	if s.fail != nil {
		return s.fail(a)
	}
	return nil
}

func (s *recordSender) actions() []bot.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bot.Action(nil), s.sent...)
}

func msg(id telegram.UpdateID, chat telegram.ChatID, text string) bot.Message {
	return bot.Message{ID: id, Message: telegram.Message{
		MessageID: telegram.MessageID(id),
		Chat:      telegram.Chat{ID: chat, Type: "private"},
		Text:      text,
	}}
}

func batchOf(events ...bot.Event) delivery.Batch {
	b := delivery.Batch{Events: events}
	if n := len(events); n > 0 {
		b.Watermark = events[n-1].UpdateID()
	}
	return b
}

// seenState records every update id folded, in order.
type seenState struct {
	Seen []telegram.UpdateID
}

// welcomeReducer answers /start with a welcome message and records ids.
func welcomeReducer(calls *int) bot.Reducer[seenState] {
	return bot.Funcs[seenState]{
		UpdateFunc: func(ev bot.Event, s seenState) bot.Result[seenState] {
			*calls++
			next := seenState{Seen: append(append([]telegram.UpdateID(nil), s.Seen...), ev.UpdateID())}
			if m, ok := ev.(bot.Message); ok && m.Text() == "/start" {
				return bot.Keep(next, bot.SendMessage{ChatID: m.ChatID(), Text: "Welcome"})
			}
			if m, ok := ev.(bot.Message); ok && strings.HasPrefix(m.Text(), "say ") {
				return bot.Keep(next, bot.SendMessage{ChatID: m.ChatID(), Text: strings.TrimPrefix(m.Text(), "say ")})
			}
			return bot.Keep(next)
		},
	}
}

type harness struct {
	t          *testing.T
	log        *recordLog
	sender     *recordSender
	dispatcher *Dispatcher
	source     *scriptSource
	waits      []time.Duration
}

func newHarness(t *testing.T, steps ...fetchStep) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		log:    &recordLog{},
		sender: &recordSender{},
		source: &scriptSource{steps: steps},
	}
	h.dispatcher = NewDispatcher(h.sender, h.log, DispatcherConfig{Concurrency: 1})

	dctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.dispatcher.Run(dctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func run[S any](h *harness, identity IdentityLookup, r bot.Reducer[S], cfg Config) (*Loop[S], error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.source.cancel = cancel

	l := New[S](identity, h.source, r, h.dispatcher, h.log, cfg)
	l.sleep = func(ctx context.Context, d time.Duration) error {
		h.waits = append(h.waits, d)
		return ctx.Err()
	}

	err := l.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(h.t, h.dispatcher.Wait(waitCtx), "dispatcher did not settle")
	return l, err
}

func TestScenarioStartThenHello(t *testing.T) {
	h := newHarness(t, fetchStep{batch: batchOf(msg(101, 9, "/start"), msg(102, 9, "hello"))})
	calls := 0

	l, err := run(h, okIdentity(), welcomeReducer(&calls), Config{})
	require.ErrorIs(t, err, context.Canceled)

	sent := h.sender.actions()
	require.Len(t, sent, 1)
	assert.Equal(t, bot.SendMessage{ChatID: 9, Text: "Welcome"}, sent[0])

	assert.Equal(t, telegram.UpdateID(103), l.Snapshot().Cursor)
	assert.Equal(t, []telegram.UpdateID{0, 103}, h.source.cursors)
	assert.Equal(t, 2, calls)
	assert.Equal(t, Stopped, l.State())
}

func TestScenarioBootstrapUnauthorized(t *testing.T) {
	h := newHarness(t, fetchStep{batch: batchOf(msg(1, 9, "/start"))})
	identity := &fakeIdentity{err: &telegram.APIError{Method: "getMe", Code: 401, Description: "Unauthorized"}}
	calls := 0

	l, err := run(h, identity, welcomeReducer(&calls), Config{})
	require.Error(t, err)

	var apiErr *telegram.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.Code)

	assert.Equal(t, Errored, l.State())
	assert.Empty(t, h.source.cursors, "no fetch may follow a failed bootstrap")
	assert.Equal(t, 1, identity.calls, "bootstrap must not retry")
	assert.Zero(t, calls)
	assert.Empty(t, h.sender.actions())
}

func TestBootstrapMalformedIdentity(t *testing.T) {
	h := newHarness(t)
	l, err := run(h, &fakeIdentity{user: &telegram.User{}}, welcomeReducer(new(int)), Config{})

	require.ErrorIs(t, err, ErrMalformedIdentity)
	assert.Equal(t, Errored, l.State())
	assert.Empty(t, h.source.cursors)
}

func TestScenarioFetchTimeout(t *testing.T) {
	h := newHarness(t,
		fetchStep{err: fmt.Errorf("fetch updates at 0: %w", context.DeadlineExceeded)},
		fetchStep{batch: batchOf(msg(7, 9, "hello"))},
	)

	l, err := run(h, okIdentity(), welcomeReducer(new(int)), Config{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, h.log.errorLines(), 1)
	assert.Equal(t, []telegram.UpdateID{0, 0, 8}, h.source.cursors, "the retry must reuse the cursor")
	require.Len(t, h.waits, 1)
	assert.Greater(t, h.waits[0], time.Duration(0))
	assert.Equal(t, uint64(1), l.Snapshot().FetchErrors)
}

func TestScenarioDispatchFailure(t *testing.T) {
	h := newHarness(t,
		fetchStep{batch: batchOf(msg(1, 404, "say hi"))},
		fetchStep{batch: batchOf(msg(2, 9, "say again"))},
	)
	h.sender.fail = func(a bot.Action) error {
		if a.(bot.SendMessage).ChatID == 404 {
			return &telegram.APIError{Method: "sendMessage", Code: 400, Description: "Bad Request: chat not found"}
		}
		return nil
	}

	var final seenState
	r := welcomeReducer(new(int))
	observer := bot.Funcs[seenState]{
		UpdateFunc: func(ev bot.Event, s seenState) bot.Result[seenState] {
			res := r.Update(ev, s)
			final = res.State
			return res
		},
	}

	l, err := run[seenState](h, okIdentity(), observer, Config{})
	require.ErrorIs(t, err, context.Canceled)

	errs := h.log.errorLines()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "chat not found")

	assert.Equal(t, []telegram.UpdateID{0, 2, 3}, h.source.cursors)
	assert.Equal(t, []telegram.UpdateID{1, 2}, final.Seen)
	assert.Equal(t, telegram.UpdateID(3), l.Snapshot().Cursor)
	assert.Len(t, h.sender.actions(), 2)

	delivered, failed := h.dispatcher.Stats()
	assert.Equal(t, uint64(1), delivered)
	assert.Equal(t, uint64(1), failed)
}

func TestScenarioEmptyFetch(t *testing.T) {
	h := newHarness(t,
		fetchStep{batch: delivery.Batch{}},
		fetchStep{batch: batchOf(msg(5, 9, "hello"))},
	)
	calls := 0

	l, err := run(h, okIdentity(), welcomeReducer(&calls), Config{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []telegram.UpdateID{0, 0, 6}, h.source.cursors)
	assert.Equal(t, 1, calls, "an empty batch must not be folded")
	assert.Empty(t, h.waits, "no pause without IdlePause")
	assert.Empty(t, h.log.errorLines())
	assert.Equal(t, uint64(1), l.Snapshot().Batches)
}

func TestIdlePause(t *testing.T) {
	h := newHarness(t, fetchStep{batch: delivery.Batch{}})

	_, err := run(h, okIdentity(), welcomeReducer(new(int)), Config{IdlePause: 250 * time.Millisecond})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, h.waits)
}

func TestFoldOrderAcrossBatches(t *testing.T) {
	h := newHarness(t,
		fetchStep{batch: batchOf(msg(1, 9, "a"), msg(2, 9, "b"))},
		fetchStep{batch: batchOf(msg(3, 9, "c"))},
		fetchStep{batch: batchOf(msg(4, 9, "d"), msg(5, 9, "e"))},
	)

	var final seenState
	calls := 0
	r := welcomeReducer(&calls)
	observer := bot.Funcs[seenState]{
		UpdateFunc: func(ev bot.Event, s seenState) bot.Result[seenState] {
			res := r.Update(ev, s)
			final = res.State
			return res
		},
	}

	l, err := run[seenState](h, okIdentity(), observer, Config{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 5, calls)
	assert.Equal(t, []telegram.UpdateID{1, 2, 3, 4, 5}, final.Seen)
	assert.Equal(t, telegram.UpdateID(6), l.Snapshot().Cursor)
	assert.Equal(t, uint64(5), l.Snapshot().Events)
}

func TestCursorSkipsDroppedTail(t *testing.T) {
	b := batchOf(msg(101, 9, "a"))
	b.Watermark = 105
	h := newHarness(t, fetchStep{batch: b}, fetchStep{batch: delivery.Batch{Watermark: 110}})

	l, err := run(h, okIdentity(), welcomeReducer(new(int)), Config{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []telegram.UpdateID{0, 106, 111}, h.source.cursors)
	assert.Equal(t, telegram.UpdateID(111), l.Snapshot().Cursor)
}

func TestSubmissionOrderAcrossEvents(t *testing.T) {
	r := bot.Funcs[int]{
		UpdateFunc: func(ev bot.Event, s int) bot.Result[int] {
			m := ev.(bot.Message)
			switch m.Text() {
			case "A":
				return bot.Keep(s+1,
					bot.SendMessage{ChatID: 1, Text: "e1"},
					bot.SendMessage{ChatID: 1, Text: "e2"},
				)
			default:
				return bot.Keep(s+1, bot.SendMessage{ChatID: 1, Text: "e3"})
			}
		},
	}
	h := newHarness(t, fetchStep{batch: batchOf(msg(1, 1, "A"), msg(2, 1, "B"))})

	_, err := run[int](h, okIdentity(), r, Config{})
	require.ErrorIs(t, err, context.Canceled)

	var texts []string
	for _, a := range h.sender.actions() {
		texts = append(texts, a.(bot.SendMessage).Text)
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, texts)
}

func TestInitActionsAreDispatched(t *testing.T) {
	r := bot.Funcs[string]{
		InitFunc: func(me bot.Identity) bot.Result[string] {
			return bot.Keep(me.Username, bot.SendMessage{ChatID: 1, Text: "online as " + me.Mention()})
		},
	}
	h := newHarness(t)

	l, err := run[string](h, okIdentity(), r, Config{})
	require.ErrorIs(t, err, context.Canceled)

	sent := h.sender.actions()
	require.Len(t, sent, 1)
	assert.Equal(t, "online as @loop_bot", sent[0].(bot.SendMessage).Text)

	snap := l.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, telegram.UserID(42), snap.Identity.ID)
}

func TestBackoffGrowsAndResets(t *testing.T) {
	fail := fetchStep{err: errors.New("connection refused")}
	h := newHarness(t, fail, fail, fail, fail, fetchStep{batch: delivery.Batch{}}, fail)
	cfg := Config{BackoffInitial: 100 * time.Millisecond, BackoffMax: 300 * time.Millisecond}

	_, err := run(h, okIdentity(), welcomeReducer(new(int)), cfg)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, h.waits, 5)
	for i, w := range h.waits {
		assert.Greater(t, w, time.Duration(0), "wait %d", i)
		assert.LessOrEqual(t, w, 450*time.Millisecond, "wait %d exceeds randomized cap", i)
	}
	// After the successful empty fetch the schedule starts over.
	assert.LessOrEqual(t, h.waits[4], 150*time.Millisecond)
	assert.Len(t, h.log.errorLines(), 5)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	blocking := &blockingSource{entered: make(chan struct{})}
	l := New[int](okIdentity(), blocking, bot.Funcs[int]{}, h.dispatcher, h.log, Config{})

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	<-blocking.entered
	assert.Equal(t, Running, l.State())
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	assert.Equal(t, Stopped, l.State())
}

type blockingSource struct {
	once    sync.Once
	entered chan struct{}
}

func (b *blockingSource) Fetch(ctx context.Context, _ telegram.UpdateID) (delivery.Batch, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return delivery.Batch{}, ctx.Err()
}

func TestReplayYieldsIdenticalResult(t *testing.T) {
	r := welcomeReducer(new(int))
	start := seenState{Seen: []telegram.UpdateID{1, 2}}
	events := []bot.Event{msg(3, 9, "/start"), msg(4, 9, "say hi"), msg(5, 9, "noop")}

	first := Fold(r, start, events)
	second := Fold(r, start, events)

	assert.Equal(t, first, second)
	assert.Equal(t, []telegram.UpdateID{1, 2}, start.Seen, "fold must not mutate its input state")
	require.Len(t, first.Actions, 2)
}

func TestFoldEmptyBatch(t *testing.T) {
	res := Fold(welcomeReducer(new(int)), seenState{}, nil)
	assert.Empty(t, res.Actions)
	assert.Empty(t, res.State.Seen)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	text, err := Errored.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "errored", string(text))
	assert.Equal(t, "state(9)", State(9).String())
}

func TestTasksRunAfterActions(t *testing.T) {
	h := newHarness(t, fetchStep{batch: batchOf(msg(7, 9, "ping"))})

	ran := make(chan string, 1)
	r := bot.Funcs[int]{
		UpdateFunc: func(ev bot.Event, s int) bot.Result[int] {
			return bot.Result[int]{
				State:   s + 1,
				Actions: []bot.Action{bot.SendMessage{ChatID: 9, Text: "pong"}},
				Tasks: []bot.Task{{Name: "audit", Run: func(context.Context) error {
					ran <- "audit"
					return nil
				}}},
			}
		},
	}

	l, err := run[int](h, okIdentity(), r, Config{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, "audit", <-ran)
	assert.Len(t, h.sender.actions(), 1)
	snap := l.Snapshot()
	assert.Equal(t, uint64(1), snap.Actions)
	assert.Equal(t, uint64(1), snap.Tasks)
}

func TestFoldConcatenatesTasks(t *testing.T) {
	r := bot.Funcs[int]{
		UpdateFunc: func(ev bot.Event, s int) bot.Result[int] {
			return bot.Result[int]{State: s + 1, Tasks: []bot.Task{{Name: ev.UpdateID().String()}}}
		},
	}

	res := Fold[int](r, 0, []bot.Event{msg(1, 9, "a"), msg(2, 9, "b")})
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "1", res.Tasks[0].Name)
	assert.Equal(t, "2", res.Tasks[1].Name)
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	require.NoError(t, s.UnmarshalText([]byte("stopped")))
	assert.Equal(t, Stopped, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}

// cancellingIdentity cancels the loop's context while getMe is in flight.
type cancellingIdentity struct {
	cancel context.CancelFunc
}

func (c cancellingIdentity) GetMe(ctx context.Context) (*telegram.User, error) {
	c.cancel()
	<-ctx.Done()
	return nil, fmt.Errorf("getMe: %w", ctx.Err())
}

func TestCancelDuringBootstrapStops(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New[int](cancellingIdentity{cancel: cancel}, h.source, bot.Funcs[int]{}, h.dispatcher, h.log, Config{})
	err := l.Run(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Stopped, l.State())
	assert.Empty(t, h.log.errorLines(), "cancellation is not a bootstrap failure")
	assert.Empty(t, h.source.cursors)
}

func TestRetryAfterRaisesBackoff(t *testing.T) {
	limited := fetchStep{err: fmt.Errorf("fetch updates at 0: %w", &telegram.APIError{
		Method: "getUpdates", Code: 429, Description: "Too Many Requests", RetryAfter: 3,
	})}
	h := newHarness(t, limited, fetchStep{err: errors.New("connection refused")})
	cfg := Config{BackoffInitial: 100 * time.Millisecond, BackoffMax: 200 * time.Millisecond}

	_, err := run(h, okIdentity(), welcomeReducer(new(int)), cfg)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, h.waits, 2)
	assert.Equal(t, 3*time.Second, h.waits[0])
	assert.LessOrEqual(t, h.waits[1], 300*time.Millisecond, "plain errors keep the backoff schedule")
}

func TestOnBootstrapReceivesIdentity(t *testing.T) {
	h := newHarness(t)
	var got bot.Identity
	cfg := Config{OnBootstrap: func(me bot.Identity) {
		got = me
		assert.Empty(t, h.source.cursors, "called before the first fetch")
	}}

	_, err := run(h, okIdentity(), welcomeReducer(new(int)), cfg)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, telegram.UserID(42), got.ID)
}
