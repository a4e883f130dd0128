// Package examplebot is the reducer shipped with the tgloop binary. It
// echoes text, keeps a per-chat counter driven by inline buttons and
// answers inline queries with an echo article.
package examplebot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

const (
	dataIncrement = "inc"
	dataReset     = "reset"
)

// AdminRole is the role allowed to run /stats.
const AdminRole = "admin"

const helpText = `Commands:
/start - show the counter
/count - show the counter
/stats - counters across all chats (admins only)
/help - this message

Anything else is echoed back. Type @%s in any chat to use inline mode.`

// State is immutable: Update returns a new State and never writes to the
// one it was given.
type State struct {
	Me       bot.Identity
	Counters map[telegram.ChatID]int
}

// Count returns the counter for chat.
func (s State) Count(chat telegram.ChatID) int {
	return s.Counters[chat]
}

func (s State) withCount(chat telegram.ChatID, n int) State {
	counters := make(map[telegram.ChatID]int, len(s.Counters)+1)
	for k, v := range s.Counters {
		counters[k] = v
	}
	counters[chat] = n
	return State{Me: s.Me, Counters: counters}
}

// RoleResolver maps an event to its sender's role. *guard.Guard implements it.
type RoleResolver interface {
	RoleOf(ev bot.Event) string
}

// Reducer implements bot.Reducer[State]. With a nil Roles nobody is an admin.
type Reducer struct {
	Roles RoleResolver
}

func (Reducer) Init(me bot.Identity) bot.Result[State] {
	return bot.Keep(State{Me: me})
}

func (r Reducer) Update(ev bot.Event, s State) bot.Result[State] {
	switch ev := ev.(type) {
	case bot.Message:
		return r.onMessage(ev, s)
	case bot.CallbackQuery:
		return r.onCallback(ev, s)
	case bot.InlineQuery:
		return bot.Keep(s, r.onInline(ev))
	default:
		return bot.Keep(s)
	}
}

func (r Reducer) onMessage(ev bot.Message, s State) bot.Result[State] {
	if ev.Message.From != nil && ev.Message.From.IsBot {
		return bot.Keep(s)
	}
	text := strings.TrimSpace(ev.Text())
	if text == "" {
		return bot.Keep(s)
	}

	cmd, ok := command(text, s.Me.Username)
	if !ok {
		if ev.Message.Chat.Type != "private" && !mentions(text, s.Me) {
			return bot.Keep(s)
		}
		return bot.Keep(s, bot.Reply(ev, text))
	}

	switch cmd {
	case "start", "count":
		return bot.Keep(s, counterMessage(ev.ChatID(), s.Count(ev.ChatID())))
	case "help":
		return bot.Keep(s, bot.Reply(ev, fmt.Sprintf(helpText, s.Me.Username)))
	case "stats":
		if r.Roles == nil || r.Roles.RoleOf(ev) != AdminRole {
			return bot.Keep(s, bot.Reply(ev, "/stats is for admins only."))
		}
		return bot.Keep(s, bot.Reply(ev, stats(s)))
	default:
		return bot.Keep(s, bot.Reply(ev, "Unknown command /"+cmd+". Try /help."))
	}
}

func (Reducer) onCallback(ev bot.CallbackQuery, s State) bot.Result[State] {
	q := ev.Query
	if q.Message == nil {
		return bot.Keep(s, bot.AnswerCallbackQuery{QueryID: q.ID})
	}
	chat := q.Message.Chat.ID

	var n int
	switch q.Data {
	case dataIncrement:
		n = s.Count(chat) + 1
	case dataReset:
		n = 0
	default:
		return bot.Keep(s, bot.AnswerCallbackQuery{QueryID: q.ID, Text: "Unknown button"})
	}

	return bot.Result[State]{
		State: s.withCount(chat, n),
		Actions: []bot.Action{
			bot.AnswerCallbackQuery{QueryID: q.ID, Text: "Counter: " + strconv.Itoa(n)},
			counterMessage(chat, n),
		},
	}
}

func (Reducer) onInline(ev bot.InlineQuery) bot.Action {
	q := strings.TrimSpace(ev.Query.Query)
	answer := bot.AnswerInlineQuery{QueryID: ev.Query.ID, IsPersonal: true}
	if q == "" {
		return answer
	}
	answer.Results = []telegram.InlineQueryResultArticle{
		{
			Type:        "article",
			ID:          "echo",
			Title:       "Echo",
			Description: q,
			InputMessageContent: telegram.InputTextMessageContent{
				MessageText: q,
			},
		},
		{
			Type:        "article",
			ID:          "shout",
			Title:       "Shout",
			Description: strings.ToUpper(q),
			InputMessageContent: telegram.InputTextMessageContent{
				MessageText: strings.ToUpper(q),
			},
		},
	}
	return answer
}

func stats(s State) string {
	total := 0
	for _, n := range s.Counters {
		total += n
	}
	return fmt.Sprintf("Chats with a counter: %d\nSum of counters: %d", len(s.Counters), total)
}

func counterMessage(chat telegram.ChatID, n int) bot.SendMessage {
	return bot.SendMessage{
		ChatID: chat,
		Text:   "Counter: " + strconv.Itoa(n),
		Keyboard: &telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{Text: "+1", CallbackData: dataIncrement},
				{Text: "Reset", CallbackData: dataReset},
			}},
		},
	}
}

// command parses "/name" or "/name@bot args". Commands addressed to another
// bot are not ours.
func command(text, me string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word, _, _ := strings.Cut(text[1:], " ")
	name, target, addressed := strings.Cut(word, "@")
	if addressed && !strings.EqualFold(target, me) {
		return "", false
	}
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

func mentions(text string, me bot.Identity) bool {
	m := me.Mention()
	return m != "" && strings.Contains(strings.ToLower(text), strings.ToLower(m))
}
