// Package cli implements the tgloop-cli operator commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Enriquefft/tgloop/internal/config"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

// RootOptions holds global flags for all commands. Empty Token and BaseURL
// fall back to the loaded config.
type RootOptions struct {
	Format  string // "json" | "text"
	Token   string
	BaseURL string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for tgloop-cli.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tgloop-cli",
		Short: "Operate a tgloop Telegram bot",
		Long:  "Inspect the bot account, send messages and query a running tgloop runtime.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bot token (default from config / TGLOOP_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "Bot API base URL (default from config)")

	cmd.AddCommand(NewMeCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// client builds a Bot API client from the flags, loading the config only
// for values the flags leave unset.
func (o *RootOptions) client() (*telegram.Client, error) {
	token, baseURL := o.Token, o.BaseURL
	if token == "" || baseURL == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if token == "" {
			token = cfg.Telegram.Token
		}
		if baseURL == "" {
			baseURL = cfg.Telegram.BaseURL
		}
	}
	if token == "" {
		return nil, fmt.Errorf("no bot token: pass --token or set TGLOOP_TOKEN")
	}

	c := telegram.NewClient(token)
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return c, nil
}

// emit writes v as indented JSON in json mode, or text otherwise.
func (o *RootOptions) emit(w io.Writer, v any, text string) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
