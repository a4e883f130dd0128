package runtime

import "github.com/Enriquefft/tgloop/internal/bot"

// Fold runs r over events left to right, threading state and concatenating
// the emitted actions and tasks in event order. Each step sees the state produced by the
// previous one, so the fold is strictly sequential.
func Fold[S any](r bot.Reducer[S], state S, events []bot.Event) bot.Result[S] {
	var (
		actions []bot.Action
		tasks   []bot.Task
	)
	for _, ev := range events {
		res := r.Update(ev, state)
		state = res.State
		actions = append(actions, res.Actions...)
		tasks = append(tasks, res.Tasks...)
	}
	return bot.Result[S]{State: state, Actions: actions, Tasks: tasks}
}
