package cli

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/outbound"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

type sendOptions struct {
	chat      int64
	text      string
	parseMode string
	replyTo   int64
	noPreview bool
}

// NewSendCommand creates the send command. Long plain texts are split the
// same way the runtime splits them.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &sendOptions{}

	cmd := &cobra.Command{
		Use:   "send --chat ID --text MESSAGE",
		Short: "Send a text message to a chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.chat == 0 || opts.text == "" {
				return fmt.Errorf("--chat and --text are required")
			}
			c, err := rootOpts.client()
			if err != nil {
				return err
			}

			action := bot.SendMessage{
				ChatID:             telegram.ChatID(opts.chat),
				Text:               opts.text,
				ParseMode:          opts.parseMode,
				DisableLinkPreview: opts.noPreview,
			}
			if opts.replyTo != 0 {
				id := telegram.MessageID(opts.replyTo)
				action.ReplyTo = &id
			}

			sender := outbound.NewSender(c)
			if err := sender.Send(cmd.Context(), action); err != nil {
				return err
			}

			chunks := 1
			if opts.parseMode == "" {
				chunks = len(outbound.Split(opts.text, sender.MaxLen))
			}
			result := map[string]any{"chat_id": opts.chat, "chunks": chunks}
			text := fmt.Sprintf("sent %d chars in %d message(s) to chat %d",
				utf8.RuneCountInString(opts.text), chunks, opts.chat)
			return rootOpts.emit(cmd.OutOrStdout(), result, text)
		},
	}

	cmd.Flags().Int64Var(&opts.chat, "chat", 0, "target chat id")
	cmd.Flags().StringVar(&opts.text, "text", "", "message text")
	cmd.Flags().StringVar(&opts.parseMode, "parse-mode", "", "HTML, MarkdownV2 or Markdown")
	cmd.Flags().Int64Var(&opts.replyTo, "reply-to", 0, "message id to reply to")
	cmd.Flags().BoolVar(&opts.noPreview, "no-preview", false, "disable link previews")

	return cmd
}
