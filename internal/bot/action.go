package bot

import "github.com/Enriquefft/tgloop/internal/telegram"

// Action is an outbound unit of work emitted by a reducer. The set of
// implementations is closed: SendMessage, AnswerInlineQuery and
// AnswerCallbackQuery. Actions are plain values; the dispatcher never sees
// reducer state.
type Action interface {
	// Kind names the Bot API method the action maps to.
	Kind() string
	isAction()
}

// SendMessage posts a text message to a chat.
type SendMessage struct {
	ChatID    telegram.ChatID
	Text      string
	ParseMode string // "", "HTML", "MarkdownV2" or "Markdown"
	// ReplyTo is the message being answered, if any.
	ReplyTo            *telegram.MessageID
	Keyboard           *telegram.InlineKeyboardMarkup
	DisableLinkPreview bool
}

// AnswerInlineQuery answers an inline query with a list of article results.
type AnswerInlineQuery struct {
	QueryID    telegram.InlineQueryID
	Results    []telegram.InlineQueryResultArticle
	CacheTime  int
	IsPersonal bool
	NextOffset string
}

// AnswerCallbackQuery acknowledges a button press, optionally showing a
// notification or alert.
type AnswerCallbackQuery struct {
	QueryID   telegram.CallbackQueryID
	Text      string
	ShowAlert bool
	URL       string
}

func (SendMessage) Kind() string         { return "sendMessage" }
func (AnswerInlineQuery) Kind() string   { return "answerInlineQuery" }
func (AnswerCallbackQuery) Kind() string { return "answerCallbackQuery" }

func (SendMessage) isAction()         {}
func (AnswerInlineQuery) isAction()   {}
func (AnswerCallbackQuery) isAction() {}

// Reply builds a SendMessage answering msg in its own chat.
func Reply(msg Message, text string) SendMessage {
	id := msg.Message.MessageID
	return SendMessage{
		ChatID:  msg.ChatID(),
		Text:    text,
		ReplyTo: &id,
	}
}
