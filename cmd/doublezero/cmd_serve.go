package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/injector"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.Server.ListenAddr = addr
	}

	authority, err := injector.InitializeAuthority(cfg)
	if err != nil {
		return err
	}

	authority.Registry.Init()
	defer authority.Registry.Shutdown()

	authority.Logger.Info("Starting authority", log.String("addr", cfg.Server.ListenAddr))
	return authority.Server.Run(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
