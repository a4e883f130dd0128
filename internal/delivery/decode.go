package delivery

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/logsink"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// ErrUnsupported is returned for well-formed updates of a kind the runtime
// does not route to the reducer (edited messages, channel posts, ...).
var ErrUnsupported = errors.New("unsupported update kind")

// ErrMissingID is returned for updates without an update_id. Such updates
// cannot be placed in the sequence at all.
var ErrMissingID = errors.New("update has no update_id")

// Decode converts one raw getUpdates element into an Event. The returned id
// is valid whenever the element carried an update_id, even if err != nil, so
// callers can move the cursor past an update they had to drop.
func Decode(raw json.RawMessage) (bot.Event, telegram.UpdateID, error) {
	var head struct {
		UpdateID *telegram.UpdateID `json:"update_id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, 0, fmt.Errorf("decode update: %w", err)
	}
	if head.UpdateID == nil {
		return nil, 0, ErrMissingID
	}
	id := *head.UpdateID

	var u telegram.Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, id, fmt.Errorf("decode update %d: %w", id, err)
	}

	switch {
	case u.Message != nil:
		if u.Message.Chat.ID == 0 {
			return nil, id, fmt.Errorf("decode update %d: message without chat", id)
		}
		return bot.Message{ID: id, Message: *u.Message}, id, nil

	case u.InlineQuery != nil:
		if u.InlineQuery.ID == "" {
			return nil, id, fmt.Errorf("decode update %d: inline query without id", id)
		}
		return bot.InlineQuery{ID: id, Query: *u.InlineQuery}, id, nil

	case u.CallbackQuery != nil:
		if u.CallbackQuery.ID == "" {
			return nil, id, fmt.Errorf("decode update %d: callback query without id", id)
		}
		return bot.CallbackQuery{ID: id, Query: *u.CallbackQuery}, id, nil

	default:
		return nil, id, fmt.Errorf("update %d (%s): %w", id, kindOf(u), ErrUnsupported)
	}
}

func kindOf(u telegram.Update) string {
	switch {
	case u.EditedMessage != nil:
		return "edited_message"
	case u.ChannelPost != nil:
		return "channel_post"
	case u.EditedChannelPost != nil:
		return "edited_channel_post"
	default:
		return "unknown"
	}
}

// DecodeBatch decodes a getUpdates result fetched with cursor. Bad elements
// are logged and dropped one by one; they never affect their neighbours.
// Elements below cursor, or not above the previous id, are dropped too so the
// returned events are strictly increasing and all >= cursor.
func DecodeBatch(raws []json.RawMessage, cursor telegram.UpdateID, log logsink.Logger) Batch {
	var b Batch
	last := cursor - 1

	for i, raw := range raws {
		ev, id, err := Decode(raw)
		if id > b.Watermark {
			b.Watermark = id
		}
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				log.Infof("source: skipping %v", err)
			} else {
				log.Errorf("source: dropping malformed update at index %d: %v", i, err)
			}
			continue
		}

		if id <= last {
			log.Errorf("source: dropping out-of-order update %d (cursor %d, previous %d)", id, cursor, last)
			continue
		}
		last = id
		b.Events = append(b.Events, ev)
	}

	if b.Watermark < cursor {
		// Nothing at or above the cursor was observed.
		b.Watermark = 0
	}
	return b
}
