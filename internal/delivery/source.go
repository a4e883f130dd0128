package delivery

import (
	"context"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// Batch is the result of one fetch.
type Batch struct {
	// Events are ordered by strictly increasing update id, all >= the cursor
	// the batch was fetched with.
	Events []bot.Event
	// Watermark is the highest update id observed in the response, including
	// updates that were dropped as unsupported or malformed. Zero when the
	// response carried no updates.
	Watermark telegram.UpdateID
}

// Empty reports whether the batch carried nothing at all, not even dropped
// updates.
func (b Batch) Empty() bool {
	return len(b.Events) == 0 && b.Watermark == 0
}

// Next returns the cursor that follows this batch, or cursor unchanged when
// the batch observed nothing at or above it.
func (b Batch) Next(cursor telegram.UpdateID) telegram.UpdateID {
	high := b.Watermark
	if n := len(b.Events); n > 0 {
		if id := b.Events[n-1].UpdateID(); id > high {
			high = id
		}
	}
	if high+1 > cursor {
		return high + 1
	}
	return cursor
}

// Source fetches the next ordered batch of events at or after cursor. Fetch
// is read-only and safe to retry with the same cursor after an error. It may
// block awaiting new updates but returns within its configured ceiling.
type Source interface {
	Fetch(ctx context.Context, cursor telegram.UpdateID) (Batch, error)
}
