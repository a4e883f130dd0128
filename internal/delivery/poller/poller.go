package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Enriquefft/tgloop/internal/delivery"
	"github.com/Enriquefft/tgloop/internal/logsink"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultGrace   = 10 * time.Second
	DefaultLimit   = 100
)

// UpdatesClient is the part of the Bot API client the poller needs.
type UpdatesClient interface {
	GetUpdates(ctx context.Context, req telegram.GetUpdatesRequest) ([]json.RawMessage, error)
}

// Poller implements delivery.Source with getUpdates long polling.
type Poller struct {
	Client UpdatesClient
	// Timeout is the long-poll duration requested from Telegram.
	Timeout time.Duration
	// Grace is added to Timeout to form the hard ceiling of one fetch.
	Grace          time.Duration
	Limit          int
	AllowedUpdates []string
	Log            logsink.Logger
}

// New creates a Poller with default timeout, grace and limit.
func New(client UpdatesClient, log logsink.Logger) *Poller {
	return &Poller{
		Client:  client,
		Timeout: DefaultTimeout,
		Grace:   DefaultGrace,
		Limit:   DefaultLimit,
		Log:     log,
	}
}

// Fetch long-polls for updates at or after cursor. It always returns within
// Timeout+Grace, with an empty batch when nothing arrived.
func (p *Poller) Fetch(ctx context.Context, cursor telegram.UpdateID) (delivery.Batch, error) {
	timeout := p.Timeout
	if timeout < 0 {
		timeout = 0
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+p.grace())
	defer cancel()

	raws, err := p.Client.GetUpdates(ctx, telegram.GetUpdatesRequest{
		Offset:         cursor,
		Limit:          p.limit(),
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: p.AllowedUpdates,
	})
	if err != nil {
		return delivery.Batch{}, fmt.Errorf("fetch updates at %d: %w", cursor, err)
	}

	if len(raws) == 0 {
		return delivery.Batch{}, nil
	}

	return delivery.DecodeBatch(raws, cursor, p.log()), nil
}

func (p *Poller) grace() time.Duration {
	if p.Grace <= 0 {
		return DefaultGrace
	}
	return p.Grace
}

func (p *Poller) limit() int {
	if p.Limit <= 0 || p.Limit > 100 {
		return DefaultLimit
	}
	return p.Limit
}

func (p *Poller) log() logsink.Logger {
	if p.Log == nil {
		return logsink.NewStd(nil)
	}
	return p.Log
}
