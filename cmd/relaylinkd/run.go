package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relaylink/internal/config"
	"relaylink/internal/engine"
	"relaylink/internal/router"
)

func newRunCmd(cfg *rootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the relay connection daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

func runDaemon(ctx context.Context, cfg *rootConfig) error {
	appCfg := config.Default()
	if cfg.configPath != "" {
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		appCfg = loaded
	}

	level := appCfg.LogLevel
	if cfg.logLevel != "" {
		level = cfg.logLevel
	}
	log, err := buildLogger(level)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	// tableflip supplies the graceful-restart listener handoff
	// SPEC_FULL.md's domain stack calls for: on SIGHUP, Upgrade() re-
	// execs the binary, which re-acquires the already-bound sockets
	// through upg.Listen instead of rebinding them.
	upg, err := tableflip.New(tableflip.Options{PIDFile: cfg.pidFile})
	if err != nil {
		return fmt.Errorf("tableflip: %w", err)
	}
	defer upg.Stop()

	reg := prometheus.NewRegistry()
	dir := router.NewMemDirectory()

	eng, err := engine.New(appCfg, log, dir, reg)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	eng.Listener.ListenFunc = func(_ context.Context, network, address string) (net.Listener, error) {
		return upg.Listen(network, address)
	}

	eng.RetryAllConnections() // binds the configured OR/AP/Dir listeners

	go func() {
		sighup := make(chan os.Signal, 1)
		signal.Notify(sighup, syscall.SIGHUP)
		for range sighup {
			log.Info("SIGHUP received, requesting upgrade")
			if err := upg.Upgrade(); err != nil {
				log.Warn("upgrade request failed", zap.Error(err))
			}
		}
	}()

	if err := upg.Ready(); err != nil {
		return fmt.Errorf("tableflip ready: %w", err)
	}
	log.Info("relaylinkd ready",
		zap.Uint16("or_port", appCfg.OrPort),
		zap.Uint16("ap_port", appCfg.ApPort),
		zap.Uint16("dir_port", appCfg.DirPort))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- eng.Run(runCtx) }()

	select {
	case <-ctx.Done():
	case <-upg.Exit():
		log.Info("upgrade requested exit, draining")
	}
	cancel()
	return <-errc
}
