package bot

import "context"

// Result is the outcome of one reducer invocation: the next state, the
// actions to dispatch and any further work to run, each in order.
type Result[S any] struct {
	State   S
	Actions []Action
	Tasks   []Task
}

// Task is asynchronous work a reducer asks the runtime to run after the
// fold, such as a call to a service outside the Bot API. Building a Task is
// pure; only the dispatcher calls Run.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Reducer is the caller-supplied state machine. Both methods must be pure:
// the same inputs always yield the same Result. That is what makes replaying
// a batch after a crash safe.
type Reducer[S any] interface {
	// Init produces the initial state once the bot identity is known.
	Init(me Identity) Result[S]
	// Update folds one event into the state.
	Update(ev Event, state S) Result[S]
}

// Funcs adapts a pair of functions to the Reducer interface.
type Funcs[S any] struct {
	InitFunc   func(me Identity) Result[S]
	UpdateFunc func(ev Event, state S) Result[S]
}

func (f Funcs[S]) Init(me Identity) Result[S] {
	if f.InitFunc == nil {
		var zero S
		return Result[S]{State: zero}
	}
	return f.InitFunc(me)
}

func (f Funcs[S]) Update(ev Event, state S) Result[S] {
	if f.UpdateFunc == nil {
		return Result[S]{State: state}
	}
	return f.UpdateFunc(ev, state)
}

// Keep returns a Result that leaves state unchanged and emits actions.
func Keep[S any](state S, actions ...Action) Result[S] {
	return Result[S]{State: state, Actions: actions}
}
