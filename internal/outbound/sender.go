// Package outbound maps reducer actions onto Bot API calls.
package outbound

import (
	"context"
	"fmt"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// Client is the part of the Bot API client used to deliver actions.
type Client interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	AnswerInlineQuery(ctx context.Context, req telegram.AnswerInlineQueryRequest) error
	AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error
}

// Sender delivers actions through a Bot API client, one remote call per
// action (several for SendMessage texts over MaxMessageLen).
type Sender struct {
	Client Client
	MaxLen int
}

// NewSender creates a Sender using the Bot API message length limit.
func NewSender(c Client) *Sender {
	return &Sender{Client: c, MaxLen: MaxMessageLen}
}

// Send performs the remote call(s) for a.
func (s *Sender) Send(ctx context.Context, a bot.Action) error {
	switch a := a.(type) {
	case bot.SendMessage:
		return s.sendMessage(ctx, a)

	case bot.AnswerInlineQuery:
		return s.Client.AnswerInlineQuery(ctx, telegram.AnswerInlineQueryRequest{
			InlineQueryID: a.QueryID,
			Results:       a.Results,
			CacheTime:     a.CacheTime,
			IsPersonal:    a.IsPersonal,
			NextOffset:    a.NextOffset,
		})

	case bot.AnswerCallbackQuery:
		return s.Client.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryRequest{
			CallbackQueryID: a.QueryID,
			Text:            a.Text,
			ShowAlert:       a.ShowAlert,
			URL:             a.URL,
		})

	default:
		return fmt.Errorf("unsupported action %T", a)
	}
}

// sendMessage sends a.Text, split into chunks when it is too long. The reply
// target goes on the first chunk and the keyboard on the last. Text with a
// parse mode is sent whole; Telegram checks its length after parsing.
func (s *Sender) sendMessage(ctx context.Context, a bot.SendMessage) error {
	maxLen := s.MaxLen
	if a.ParseMode != "" {
		maxLen = 0
	}

	chunks := Split(a.Text, maxLen)
	if len(chunks) == 0 {
		return fmt.Errorf("sendMessage to %d: empty text", a.ChatID)
	}
	for i, chunk := range chunks {
		req := telegram.SendMessageRequest{
			ChatID:    a.ChatID,
			Text:      chunk,
			ParseMode: a.ParseMode,
		}
		if i == 0 && a.ReplyTo != nil {
			req.ReplyParameters = &telegram.ReplyParameters{
				MessageID:                *a.ReplyTo,
				AllowSendingWithoutReply: true,
			}
		}
		if i == len(chunks)-1 {
			req.ReplyMarkup = a.Keyboard
		}
		if a.DisableLinkPreview {
			req.LinkPreviewOptions = &telegram.LinkPreviewOptions{IsDisabled: true}
		}

		if _, err := s.Client.SendMessage(ctx, req); err != nil {
			if len(chunks) > 1 {
				return fmt.Errorf("send chunk %d/%d to %d: %w", i+1, len(chunks), a.ChatID, err)
			}
			return fmt.Errorf("send message to %d: %w", a.ChatID, err)
		}
	}
	return nil
}
