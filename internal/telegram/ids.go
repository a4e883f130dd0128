package telegram

import "strconv"

// Distinct identifier kinds. Values only come out of decoded API responses,
// so a chat id can never be passed where a message id is expected.

// UpdateID is the ascending sequence number Telegram assigns to each update.
type UpdateID int64

// ChatID identifies a private chat, group, supergroup or channel.
type ChatID int64

// MessageID identifies a message within a chat.
type MessageID int64

// UserID identifies a Telegram user or bot.
type UserID int64

// InlineQueryID identifies an inline query awaiting an answer.
type InlineQueryID string

// CallbackQueryID identifies a callback query awaiting an answer.
type CallbackQueryID string

func (id UpdateID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id ChatID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id MessageID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id UserID) String() string    { return strconv.FormatInt(int64(id), 10) }
