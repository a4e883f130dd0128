package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Enriquefft/tgloop/internal/bot"
	"github.com/Enriquefft/tgloop/internal/config"
	"github.com/Enriquefft/tgloop/internal/delivery/poller"
	"github.com/Enriquefft/tgloop/internal/examplebot"
	"github.com/Enriquefft/tgloop/internal/guard"
	"github.com/Enriquefft/tgloop/internal/logsink"
	"github.com/Enriquefft/tgloop/internal/outbound"
	"github.com/Enriquefft/tgloop/internal/runtime"
	"github.com/Enriquefft/tgloop/internal/status"
	"github.com/Enriquefft/tgloop/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		exitf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		exitf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		exitf("tgloop: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var sink logsink.Logger = logsink.NewStd(nil)

	// The gateway mirror is optional; the runtime keeps going without it.
	var gw *logsink.Gateway
	if cfg.Gateway.URL != "" {
		gw = logsink.NewGateway(cfg.Gateway.URL, cfg.Gateway.Token, "tgloop")
		if err := gw.Connect(); err != nil {
			sink.Errorf("log gateway unavailable: %v", err)
			gw = nil
		} else {
			defer gw.Close()
			sink = logsink.Tee{sink, gw}
		}
	}

	client := telegram.NewClient(cfg.Telegram.Token)
	client.BaseURL = cfg.Telegram.BaseURL

	src := poller.New(client, sink)
	src.Timeout = cfg.Poll.Timeout.Duration
	src.Grace = cfg.Poll.Grace.Duration
	src.Limit = cfg.Poll.Limit
	src.AllowedUpdates = cfg.Poll.AllowedUpdates

	dispatcher := runtime.NewDispatcher(outbound.NewSender(client), sink, runtime.DispatcherConfig{
		Concurrency: cfg.Dispatch.Concurrency,
		QueueSize:   cfg.Dispatch.QueueSize,
		Timeout:     cfg.Dispatch.Timeout.Duration,
	})

	g := guard.New(guard.Config{
		Mode:        cfg.Security.Mode,
		Roles:       cfg.Security.AllRoles(),
		DefaultRole: cfg.Security.DefaultRole,
		DenyMessage: cfg.Security.DenyMessage,
	})
	reducer := guard.Wrap[examplebot.State](g, examplebot.Reducer{Roles: g})

	loop := runtime.New(client, src, reducer, dispatcher, sink, runtime.Config{
		IdlePause:      cfg.Poll.IdlePause.Duration,
		BackoffInitial: cfg.Poll.BackoffInitial.Duration,
		BackoffMax:     cfg.Poll.BackoffMax.Duration,
		OnBootstrap: func(me bot.Identity) {
			if gw != nil && me.Username != "" {
				gw.SetSource(me.Username)
			}
		},
	})

	sink.Infof("tgloop starting: poll timeout=%s concurrency=%d security=%s status=%s",
		cfg.Poll.Timeout.Duration, cfg.Dispatch.Concurrency, cfg.Security.Mode, cfg.Status.Addr)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return dispatcher.Run(gctx) })
	grp.Go(func() error { return loop.Run(gctx) })
	if cfg.Status.Addr != "" {
		srv := status.NewServer(cfg.Status.Addr, loop, sink)
		// Like the gateway, the status server is optional: its failure is
		// logged and the loop keeps running.
		grp.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				sink.Errorf("status server: %v", err)
			}
			return nil
		})
	}

	err := grp.Wait()
	delivered, failed := dispatcher.Stats()
	sink.Infof("tgloop stopped: %d action(s) delivered, %d failed", delivered, failed)

	if ctx.Err() != nil {
		return nil
	}
	return err
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
