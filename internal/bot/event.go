// Package bot defines the values exchanged between the runtime loop and a
// caller-supplied reducer: inbound events, outbound actions, the bot identity
// and the fold result.
package bot

import "github.com/Enriquefft/tgloop/internal/telegram"

// Event is an inbound unit of work. The set of implementations is closed:
// Message, InlineQuery and CallbackQuery.
type Event interface {
	// UpdateID is the unique, ascending id Telegram assigned to the update.
	UpdateID() telegram.UpdateID
	isEvent()
}

// Message is a new chat message addressed to the bot.
type Message struct {
	ID      telegram.UpdateID
	Message telegram.Message
}

// InlineQuery is an inline query typed in any chat as "@bot query".
type InlineQuery struct {
	ID    telegram.UpdateID
	Query telegram.InlineQuery
}

// CallbackQuery is a press of an inline keyboard button.
type CallbackQuery struct {
	ID    telegram.UpdateID
	Query telegram.CallbackQuery
}

func (e Message) UpdateID() telegram.UpdateID       { return e.ID }
func (e InlineQuery) UpdateID() telegram.UpdateID   { return e.ID }
func (e CallbackQuery) UpdateID() telegram.UpdateID { return e.ID }

func (Message) isEvent()       {}
func (InlineQuery) isEvent()   {}
func (CallbackQuery) isEvent() {}

// Text returns the message text, falling back to the caption of media messages.
func (e Message) Text() string {
	if e.Message.Text != "" {
		return e.Message.Text
	}
	return e.Message.Caption
}

// ChatID returns the chat the message was posted in.
func (e Message) ChatID() telegram.ChatID {
	return e.Message.Chat.ID
}
