package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Enriquefft/tgloop/internal/config"
	"github.com/Enriquefft/tgloop/internal/runtime"
	"github.com/Enriquefft/tgloop/internal/status"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running tgloop runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				addr = cfg.Status.Addr
			}

			snap, err := status.Fetch(cmd.Context(), nil, addr)
			if err != nil {
				return fmt.Errorf("runtime at %s: %w", status.BaseURL(addr), err)
			}
			return rootOpts.emit(cmd.OutOrStdout(), snap, formatSnapshot(snap))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "status server address (default from config)")
	return cmd
}

func formatSnapshot(s runtime.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state:        %s\n", s.State)
	if s.Identity != nil {
		fmt.Fprintf(&b, "bot:          %s (id=%d)\n", s.Identity.Mention(), s.Identity.ID)
	}
	fmt.Fprintf(&b, "cursor:       %d\n", s.Cursor)
	fmt.Fprintf(&b, "batches:      %d\n", s.Batches)
	fmt.Fprintf(&b, "events:       %d\n", s.Events)
	fmt.Fprintf(&b, "actions:      %d\n", s.Actions)
	fmt.Fprintf(&b, "tasks:        %d\n", s.Tasks)
	fmt.Fprintf(&b, "fetch errors: %d\n", s.FetchErrors)
	if !s.LastFetch.IsZero() {
		fmt.Fprintf(&b, "last fetch:   %s", s.LastFetch.Format(time.RFC3339))
	} else {
		b.WriteString("last fetch:   never")
	}
	return b.String()
}
