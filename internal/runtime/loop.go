// Package runtime drives a reducer against the Telegram update stream:
// bootstrap once, then fetch, fold, dispatch and advance the cursor, forever.
package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/delivery"
	"github.com/Enriquefft/tgloop/internal/logsink"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
)

// Config defines configuration for Loop.
type Config struct {
	// IdlePause is waited after an empty fetch. Zero fetches again at once;
	// the long poll already paces the loop.
	IdlePause time.Duration
	// BackoffInitial is the first wait after a failed fetch.
	// If 0, it defaults to DefaultBackoffInitial.
	BackoffInitial time.Duration
	// BackoffMax caps the wait between failed fetches.
	// If 0, it defaults to DefaultBackoffMax.
	BackoffMax time.Duration
	// OnBootstrap, if set, is called from Run with the bot identity once
	// bootstrap succeeds and before the first fetch.
	OnBootstrap func(me bot.Identity)
}

// Snapshot is a point-in-time view of a Loop for status reporting.
type Snapshot struct {
	State       State             `json:"state"`
	Cursor      telegram.UpdateID `json:"cursor"`
	Identity    *bot.Identity     `json:"identity,omitempty"`
	Batches     uint64            `json:"batches"`
	Events      uint64            `json:"events"`
	Actions     uint64            `json:"actions"`
	Tasks       uint64            `json:"tasks"`
	FetchErrors uint64            `json:"fetch_errors"`
	LastFetch   time.Time         `json:"last_fetch"`
}

// Loop owns the reducer state and the cursor. Both live in Run's frame and
// are touched by no other goroutine; the atomics below only mirror them for
// Snapshot.
type Loop[S any] struct {
	identity   IdentityLookup
	source     delivery.Source
	reducer    bot.Reducer[S]
	dispatcher *Dispatcher
	log        logsink.Logger
	config     Config

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	state       atomic.Int32
	cursor      atomic.Int64
	me          atomic.Pointer[bot.Identity]
	batches     atomic.Uint64
	events      atomic.Uint64
	actions     atomic.Uint64
	tasks       atomic.Uint64
	fetchErrors atomic.Uint64
	lastFetch   atomic.Int64
}

// New creates a Loop. The dispatcher must be running (Dispatcher.Run) for
// submitted actions to be delivered.
func New[S any](
	identity IdentityLookup,
	source delivery.Source,
	reducer bot.Reducer[S],
	dispatcher *Dispatcher,
	log logsink.Logger,
	config Config,
) *Loop[S] {
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	if config.BackoffMax < config.BackoffInitial {
		config.BackoffMax = config.BackoffInitial
	}

	return &Loop[S]{
		identity:   identity,
		source:     source,
		reducer:    reducer,
		dispatcher: dispatcher,
		log:        log,
		config:     config,
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// Run bootstraps and then processes updates until ctx is cancelled. It
// returns the bootstrap error if the identity lookup fails (the loop is then
// Errored and never fetches), otherwise ctx's error once stopped.
func (l *Loop[S]) Run(ctx context.Context) error {
	l.setState(Bootstrapping)

	me, init, err := Bootstrap(ctx, l.identity, l.reducer)
	if err != nil {
		if ctx.Err() != nil {
			return l.stop(ctx.Err())
		}
		l.setState(Errored)
		l.log.Errorf("loop: %v", err)
		return err
	}
	l.me.Store(&me)
	l.log.Infof("loop: running as %s (id=%d)", displayFor(me), me.ID)
	if l.config.OnBootstrap != nil {
		l.config.OnBootstrap(me)
	}

	state := init.State
	if err := l.submit(ctx, init); err != nil {
		return l.stop(err)
	}

	l.setState(Running)

	var cursor telegram.UpdateID
	bo := l.newBackoff()

	for {
		if err := ctx.Err(); err != nil {
			return l.stop(err)
		}

		batch, err := l.source.Fetch(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return l.stop(ctx.Err())
			}
			l.fetchErrors.Add(1)
			wait := retryWait(bo.NextBackOff(), err)
			l.log.Errorf("loop: fetch at cursor %d failed, retrying in %s: %v", cursor, wait.Round(time.Millisecond), err)
			if err := l.sleep(ctx, wait); err != nil {
				return l.stop(err)
			}
			continue
		}
		bo.Reset()
		l.lastFetch.Store(l.now().UnixNano())

		if batch.Empty() {
			if l.config.IdlePause > 0 {
				if err := l.sleep(ctx, l.config.IdlePause); err != nil {
					return l.stop(err)
				}
			}
			continue
		}

		if len(batch.Events) > 0 {
			result := Fold(l.reducer, state, batch.Events)
			state = result.State

			l.batches.Add(1)
			l.events.Add(uint64(len(batch.Events)))

			if err := l.submit(ctx, result); err != nil {
				// The fold is final; the cursor still moves past the batch.
				l.advance(&cursor, batch)
				return l.stop(err)
			}
		}

		l.advance(&cursor, batch)
	}
}

// Snapshot returns the current status of the loop. Safe for concurrent use.
func (l *Loop[S]) Snapshot() Snapshot {
	s := Snapshot{
		State:       State(l.state.Load()),
		Cursor:      telegram.UpdateID(l.cursor.Load()),
		Identity:    l.me.Load(),
		Batches:     l.batches.Load(),
		Events:      l.events.Load(),
		Actions:     l.actions.Load(),
		Tasks:       l.tasks.Load(),
		FetchErrors: l.fetchErrors.Load(),
	}
	if ns := l.lastFetch.Load(); ns != 0 {
		s.LastFetch = time.Unix(0, ns).UTC()
	}
	return s
}

// State returns the lifecycle state of the loop.
func (l *Loop[S]) State() State {
	return State(l.state.Load())
}

func (l *Loop[S]) advance(cursor *telegram.UpdateID, batch delivery.Batch) {
	next := batch.Next(*cursor)
	if next == *cursor {
		return
	}
	*cursor = next
	l.cursor.Store(int64(next))
}

func (l *Loop[S]) submit(ctx context.Context, res bot.Result[S]) error {
	if len(res.Actions) > 0 {
		l.actions.Add(uint64(len(res.Actions)))
		if err := l.dispatcher.Submit(ctx, res.Actions); err != nil {
			return err
		}
	}
	if len(res.Tasks) > 0 {
		l.tasks.Add(uint64(len(res.Tasks)))
		return l.dispatcher.SubmitTasks(ctx, res.Tasks)
	}
	return nil
}

func (l *Loop[S]) stop(err error) error {
	l.setState(Stopped)
	l.log.Infof("loop: stopped at cursor %d: %v", l.cursor.Load(), err)
	return err
}

func (l *Loop[S]) setState(s State) {
	l.state.Store(int32(s))
}

func (l *Loop[S]) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = l.config.BackoffInitial
	bo.MaxInterval = l.config.BackoffMax
	bo.Reset()
	return bo
}

// retryWait raises wait to the retry_after a rate-limited Bot API call
// asked for.
func retryWait(wait time.Duration, err error) time.Duration {
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		if floor := time.Duration(apiErr.RetryAfter) * time.Second; floor > wait {
			return floor
		}
	}
	return wait
}

func displayFor(me bot.Identity) string {
	if m := me.Mention(); m != "" {
		return m
	}
	return me.DisplayName()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
