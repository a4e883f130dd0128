package telegram

import "encoding/json"

// Bot API wire types. Only the fields the runtime reads or writes are mapped.

// Response is the envelope every Bot API method returns.
type Response struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters carries hints attached to some failed requests.
type ResponseParameters struct {
	MigrateToChatID ChatID `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int    `json:"retry_after,omitempty"`
}

// User is a Telegram user or bot account.
type User struct {
	ID           UserID `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID        ChatID `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Message is a chat message.
type Message struct {
	MessageID      MessageID             `json:"message_id"`
	From           *User                 `json:"from,omitempty"`
	Chat           Chat                  `json:"chat"`
	Date           int64                 `json:"date"`
	Text           string                `json:"text,omitempty"`
	Caption        string                `json:"caption,omitempty"`
	ReplyToMessage *Message              `json:"reply_to_message,omitempty"`
	ReplyMarkup    *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// InlineQuery is an incoming inline query.
type InlineQuery struct {
	ID     InlineQueryID `json:"id"`
	From   User          `json:"from"`
	Query  string        `json:"query"`
	Offset string        `json:"offset"`
}

// CallbackQuery is an incoming press of an inline keyboard button.
type CallbackQuery struct {
	ID              CallbackQueryID `json:"id"`
	From            User            `json:"from"`
	Message         *Message        `json:"message,omitempty"`
	InlineMessageID string          `json:"inline_message_id,omitempty"`
	ChatInstance    string          `json:"chat_instance"`
	Data            string          `json:"data,omitempty"`
}

// Update is one entry of a getUpdates result. At most one of the optional
// fields is set.
type Update struct {
	UpdateID          UpdateID       `json:"update_id"`
	Message           *Message       `json:"message,omitempty"`
	EditedMessage     *Message       `json:"edited_message,omitempty"`
	ChannelPost       *Message       `json:"channel_post,omitempty"`
	EditedChannelPost *Message       `json:"edited_channel_post,omitempty"`
	InlineQuery       *InlineQuery   `json:"inline_query,omitempty"`
	CallbackQuery     *CallbackQuery `json:"callback_query,omitempty"`
}

// InlineKeyboardMarkup is a keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is a single button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineQueryResultArticle is the only inline result kind the runtime emits.
type InlineQueryResultArticle struct {
	Type                string                  `json:"type"`
	ID                  string                  `json:"id"`
	Title               string                  `json:"title"`
	Description         string                  `json:"description,omitempty"`
	InputMessageContent InputTextMessageContent `json:"input_message_content"`
	ReplyMarkup         *InlineKeyboardMarkup   `json:"reply_markup,omitempty"`
}

// InputTextMessageContent is the message sent when an inline result is chosen.
type InputTextMessageContent struct {
	MessageText string `json:"message_text"`
	ParseMode   string `json:"parse_mode,omitempty"`
}

// ReplyParameters points a message at the one it replies to.
type ReplyParameters struct {
	MessageID                MessageID `json:"message_id"`
	AllowSendingWithoutReply bool      `json:"allow_sending_without_reply,omitempty"`
}

// LinkPreviewOptions controls the link preview of a sent message.
type LinkPreviewOptions struct {
	IsDisabled bool `json:"is_disabled,omitempty"`
}

// GetUpdatesRequest is the payload of getUpdates.
type GetUpdatesRequest struct {
	Offset         UpdateID `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SendMessageRequest is the payload of sendMessage.
type SendMessageRequest struct {
	ChatID             ChatID                `json:"chat_id"`
	Text               string                `json:"text"`
	ParseMode          string                `json:"parse_mode,omitempty"`
	ReplyParameters    *ReplyParameters      `json:"reply_parameters,omitempty"`
	ReplyMarkup        *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	LinkPreviewOptions *LinkPreviewOptions   `json:"link_preview_options,omitempty"`
}

// AnswerInlineQueryRequest is the payload of answerInlineQuery.
type AnswerInlineQueryRequest struct {
	InlineQueryID InlineQueryID              `json:"inline_query_id"`
	Results       []InlineQueryResultArticle `json:"results"`
	CacheTime     int                        `json:"cache_time,omitempty"`
	IsPersonal    bool                       `json:"is_personal,omitempty"`
	NextOffset    string                     `json:"next_offset,omitempty"`
}

// AnswerCallbackQueryRequest is the payload of answerCallbackQuery.
type AnswerCallbackQueryRequest struct {
	CallbackQueryID CallbackQueryID `json:"callback_query_id"`
	Text            string          `json:"text,omitempty"`
	ShowAlert       bool            `json:"show_alert,omitempty"`
	URL             string          `json:"url,omitempty"`
	CacheTime       int             `json:"cache_time,omitempty"`
}
