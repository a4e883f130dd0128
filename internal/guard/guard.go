// Package guard restricts which Telegram users reach a reducer.
package guard

import (
	"sort"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

const (
	ModeOpen      = "open"
	ModeAllowlist = "allowlist"
)

// Config is the allowlist policy. Roles maps a role name to the user ids
// holding it; in allowlist mode only users with a role are let through.
type Config struct {
	Mode        string
	Roles       map[string][]int64
	DefaultRole string
	DenyMessage string
}

// Guard enforces the sender allowlist and resolves roles. It is immutable
// after New, so wrapping a pure reducer keeps it pure.
type Guard struct {
	mode        string
	userTo      map[telegram.UserID]string
	defaultRole string
	denyMessage string
}

// New creates a Guard from cfg. It inverts the role→[]ids map into an
// id→role lookup; an id listed under several roles gets the one whose name
// sorts first.
func New(cfg Config) *Guard {
	roles := make([]string, 0, len(cfg.Roles))
	for role := range cfg.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	userTo := make(map[telegram.UserID]string)
	for _, role := range roles {
		for _, id := range cfg.Roles[role] {
			uid := telegram.UserID(id)
			if _, exists := userTo[uid]; !exists {
				userTo[uid] = role
			}
		}
	}

	mode := cfg.Mode
	if mode != ModeAllowlist {
		mode = ModeOpen
	}

	return &Guard{
		mode:        mode,
		userTo:      userTo,
		defaultRole: cfg.DefaultRole,
		denyMessage: cfg.DenyMessage,
	}
}

// Allowed reports whether the user may reach the reducer.
func (g *Guard) Allowed(id telegram.UserID) bool {
	if g.mode != ModeAllowlist {
		return true
	}
	_, ok := g.userTo[id]
	return ok
}

// Role returns the user's role, or the default role for unlisted users.
func (g *Guard) Role(id telegram.UserID) string {
	if role, ok := g.userTo[id]; ok {
		return role
	}
	return g.defaultRole
}

// RoleOf returns the role of the user who caused ev, or "" when the event
// has no sender. Reducers use it to gate commands.
func (g *Guard) RoleOf(ev bot.Event) string {
	id, ok := Sender(ev)
	if !ok {
		return ""
	}
	return g.Role(id)
}

// Sender returns the user who caused ev, if known.
func Sender(ev bot.Event) (telegram.UserID, bool) {
	switch ev := ev.(type) {
	case bot.Message:
		if ev.Message.From == nil {
			return 0, false
		}
		return ev.Message.From.ID, true
	case bot.InlineQuery:
		return ev.Query.From.ID, true
	case bot.CallbackQuery:
		return ev.Query.From.ID, true
	default:
		return 0, false
	}
}

// Wrap returns a reducer that forwards allowed events to inner and answers
// denied ones itself, leaving the state unchanged.
func Wrap[S any](g *Guard, inner bot.Reducer[S]) bot.Reducer[S] {
	return &guarded[S]{guard: g, inner: inner}
}

type guarded[S any] struct {
	guard *Guard
	inner bot.Reducer[S]
}

func (r *guarded[S]) Init(me bot.Identity) bot.Result[S] {
	return r.inner.Init(me)
}

func (r *guarded[S]) Update(ev bot.Event, state S) bot.Result[S] {
	id, ok := Sender(ev)
	if ok && r.guard.Allowed(id) {
		return r.inner.Update(ev, state)
	}
	if !ok && r.guard.mode == ModeOpen {
		return r.inner.Update(ev, state)
	}
	return bot.Keep(state, r.deny(ev)...)
}

func (r *guarded[S]) deny(ev bot.Event) []bot.Action {
	switch ev := ev.(type) {
	case bot.Message:
		if r.guard.denyMessage == "" || ev.Message.Chat.Type != "private" {
			return nil
		}
		return []bot.Action{bot.SendMessage{ChatID: ev.ChatID(), Text: r.guard.denyMessage}}
	case bot.InlineQuery:
		return []bot.Action{bot.AnswerInlineQuery{QueryID: ev.Query.ID, IsPersonal: true}}
	case bot.CallbackQuery:
		return []bot.Action{bot.AnswerCallbackQuery{QueryID: ev.Query.ID, Text: r.guard.denyMessage}}
	default:
		return nil
	}
}
