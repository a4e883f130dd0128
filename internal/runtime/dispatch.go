package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/logsink"
)

const (
	DefaultDispatchConcurrency = 4
	DefaultDispatchQueueSize   = 256
	DefaultDispatchTimeout     = 30 * time.Second
)

// ErrDispatcherClosed is returned by Submit and SubmitTasks once Run has
// returned.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Sender performs the remote call for one action.
type Sender interface {
	Send(ctx context.Context, a bot.Action) error
}

// DispatcherConfig defines configuration for Dispatcher.
type DispatcherConfig struct {
	// Concurrency is the maximum number of deliveries in flight.
	// If 0, it defaults to DefaultDispatchConcurrency. 1 makes delivery
	// strictly sequential.
	Concurrency int
	// QueueSize bounds the actions submitted but not yet started. Submit
	// blocks while the queue is full.
	// If 0, it defaults to DefaultDispatchQueueSize.
	QueueSize int
	// Timeout bounds a single delivery.
	// If 0, it defaults to DefaultDispatchTimeout.
	Timeout time.Duration
}

// Outcome reports how one submitted action or task ended. Exactly one of
// Action and Task is set.
type Outcome struct {
	ID       uuid.UUID
	Seq      uint64
	Action   bot.Action
	Task     string
	Err      error
	Duration time.Duration
}

type dispatchJob struct {
	id     uuid.UUID
	seq    uint64
	action bot.Action
	task   *bot.Task
}

type dispatchSlot struct{}

// Dispatcher delivers actions and runs tasks independently of each other. Deliveries start
// in submission order; completion order is not guaranteed once Concurrency
// is above 1. A failed delivery is logged and reported, nothing else.
type Dispatcher struct {
	sender Sender
	log    logsink.Logger
	config DispatcherConfig

	// OnOutcome, if set before Run, is called once per submitted action from
	// the delivering goroutine.
	OnOutcome func(Outcome)

	queue chan dispatchJob
	seq   atomic.Uint64
	now   func() time.Time

	delivered atomic.Uint64
	failed    atomic.Uint64

	mu      sync.Mutex
	pending int
	idle    chan struct{}
	closed  bool
}

// NewDispatcher creates a Dispatcher. It delivers nothing until Run is called.
func NewDispatcher(sender Sender, log logsink.Logger, config DispatcherConfig) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultDispatchConcurrency
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultDispatchQueueSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDispatchTimeout
	}

	idle := make(chan struct{})
	close(idle)

	return &Dispatcher{
		sender: sender,
		log:    log,
		config: config,
		queue:  make(chan dispatchJob, config.QueueSize),
		now:    time.Now,
		idle:   idle,
	}
}

// Submit enqueues actions in order. It returns once every action is queued,
// not delivered, or with ctx's error if ctx ends while the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, actions []bot.Action) error {
	for _, a := range actions {
		if err := d.enqueue(ctx, dispatchJob{action: a}); err != nil {
			return err
		}
	}
	return nil
}

// SubmitTasks enqueues tasks behind everything submitted before. Tasks
// share the queue, slots and timeout with actions.
func (d *Dispatcher) SubmitTasks(ctx context.Context, tasks []bot.Task) error {
	for i := range tasks {
		if err := d.enqueue(ctx, dispatchJob{task: &tasks[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, job dispatchJob) error {
	if !d.begin() {
		return ErrDispatcherClosed
	}
	job.id = uuid.New()
	job.seq = d.seq.Add(1)

	select {
	case <-ctx.Done():
		d.end()
		return ctx.Err()
	case d.queue <- job:
	}

	// Run may have made its final drain between begin and the send above.
	if d.isClosed() {
		d.drain(ErrDispatcherClosed)
	}
	return nil
}

// Run starts deliveries until ctx is cancelled. Jobs still queued at that
// point are reported as failed with ctx's error, and the dispatcher accepts
// no further submissions.
func (d *Dispatcher) Run(ctx context.Context) error {
	slots := make(chan dispatchSlot, d.config.Concurrency)
	for i := 0; i < d.config.Concurrency; i++ {
		slots <- dispatchSlot{}
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			d.close(ctx.Err())
			return ctx.Err()

		case job := <-d.queue:
			if !takeSlot(ctx, slots) {
				d.report(job, ctx.Err(), 0)
				d.close(ctx.Err())
				return ctx.Err()
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { slots <- dispatchSlot{} }()
				d.deliver(ctx, job)
			}()
		}
	}
}

// Wait blocks until every action submitted so far has been delivered or has
// failed.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-idle:
		return nil
	}
}

// Stats returns the number of delivered and failed actions so far.
func (d *Dispatcher) Stats() (delivered, failed uint64) {
	return d.delivered.Load(), d.failed.Load()
}

func takeSlot(ctx context.Context, slots <-chan dispatchSlot) bool {
	select {
	case <-ctx.Done():
		return false
	case <-slots:
		return true
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job dispatchJob) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := d.now()
	var err error
	if job.task != nil {
		err = runTask(ctx, job.task)
	} else {
		err = d.sender.Send(ctx, job.action)
	}
	d.report(job, err, d.now().Sub(start))
}

func (d *Dispatcher) report(job dispatchJob, err error, took time.Duration) {
	defer d.end()

	if err != nil {
		d.failed.Add(1)
		d.log.Errorf("dispatch: %s #%d (%s) failed: %v", job.describe(), job.seq, job.id, err)
	} else {
		d.delivered.Add(1)
		d.log.Infof("dispatch: %s #%d delivered in %s", job.describe(), job.seq, took.Round(time.Millisecond))
	}

	if d.OnOutcome != nil {
		o := Outcome{ID: job.id, Seq: job.seq, Action: job.action, Err: err, Duration: took}
		if job.task != nil {
			o.Task = job.task.Name
		}
		d.OnOutcome(o)
	}
}

// close stops further submissions and fails whatever is still queued.
func (d *Dispatcher) close(err error) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.drain(err)
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) drain(err error) {
	for {
		select {
		case job := <-d.queue:
			d.report(job, err, 0)
		default:
			return
		}
	}
}

// begin counts one more pending job, unless the dispatcher is closed.
func (d *Dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending++
	return true
}

func (d *Dispatcher) end() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
}

func runTask(ctx context.Context, t *bot.Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no Run func", t.Name)
	}
	return t.Run(ctx)
}

func (j dispatchJob) describe() string {
	if j.task != nil {
		return "task " + j.task.Name
	}
	return describe(j.action)
}

// describe renders an action for log lines without its full payload.
func describe(a bot.Action) string {
	switch a := a.(type) {
	case bot.SendMessage:
		return fmt.Sprintf("sendMessage chat=%d", a.ChatID)
	case bot.AnswerInlineQuery:
		return fmt.Sprintf("answerInlineQuery query=%s results=%d", a.QueryID, len(a.Results))
	case bot.AnswerCallbackQuery:
		return fmt.Sprintf("answerCallbackQuery query=%s", a.QueryID)
	default:
		return fmt.Sprintf("%T", a)
	}
}
