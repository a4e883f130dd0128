package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Enriquefft/tgloop/internal/bot"
)

// NewMeCommand creates the me command.
func NewMeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the bot account behind the token (getMe)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			u, err := c.GetMe(cmd.Context())
			if err != nil {
				return err
			}

			me := bot.Identity{
				ID:        u.ID,
				Username:  u.Username,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				IsBot:     u.IsBot,
			}
			text := fmt.Sprintf("%s %s (id=%d)", me.DisplayName(), me.Mention(), me.ID)
			return rootOpts.emit(cmd.OutOrStdout(), me, text)
		},
	}
}
