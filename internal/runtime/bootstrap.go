package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// ErrMalformedIdentity is returned when getMe succeeds but carries no usable
// account.
var ErrMalformedIdentity = errors.New("malformed identity response")

// IdentityLookup resolves the account behind the bot credential.
type IdentityLookup interface {
	GetMe(ctx context.Context) (*telegram.User, error)
}

// Bootstrap performs the single identity lookup and initialises the reducer.
// It does not retry: a rejected credential stays rejected, and retrying would
// only hide the misconfiguration.
func Bootstrap[S any](ctx context.Context, lookup IdentityLookup, r bot.Reducer[S]) (bot.Identity, bot.Result[S], error) {
	user, err := lookup.GetMe(ctx)
	if err != nil {
		return bot.Identity{}, bot.Result[S]{}, fmt.Errorf("bootstrap: identity lookup: %w", err)
	}
	if user == nil || user.ID == 0 {
		return bot.Identity{}, bot.Result[S]{}, fmt.Errorf("bootstrap: %w", ErrMalformedIdentity)
	}

	me := bot.Identity{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsBot:     user.IsBot,
	}
	return me, r.Init(me), nil
}
