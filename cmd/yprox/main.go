// Command yprox runs the TCP fan-out proxy: see SPEC_FULL.md for the
// full design. Startup wiring follows the teacher's cmd/scouter-server
// main.go order (config -> logging -> core components -> listener) and
// its signal-driven graceful shutdown via context.WithCancel.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fcoury/yprox/internal/config"
	"github.com/fcoury/yprox/internal/hook"
	"github.com/fcoury/yprox/internal/logging"
	"github.com/fcoury/yprox/internal/proxy"
	"github.com/fcoury/yprox/internal/script"
)

var (
	version = "dev"
	flags   config.Flags
)

func main() {
	root := &cobra.Command{
		Use:     "yprox",
		Short:   "TCP fan-out proxy with a scripted hook chain",
		Version: version,
		RunE:    run,
	}
	config.BindFlags(root, &flags)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "\x1b[31merror:\x1b[0m", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(&flags)
	if err != nil {
		return err
	}

	logWriter, err := logging.SetupWriter(os.Getenv("YPROX_LOG_DIR"), 7)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rw, ok := logWriter.(*logging.RotatingWriter); ok {
		rw.Start(ctx)
		defer rw.Close()
	}

	// Each executor gets its own worker, so a worker is only ever called
	// from the one executor goroutine that owns it.
	inboundExecutor := hook.NewExecutor(script.BuildChain(cfg.Scripts, script.NewGojaWorker()))
	outboundExecutor := hook.NewExecutor(script.BuildChain(cfg.Scripts, script.NewGojaWorker()))
	go inboundExecutor.Run(ctx)
	go outboundExecutor.Run(ctx)

	designated := cfg.Designated()
	session := proxy.NewSession(cfg.Targets(), designated, inboundExecutor, outboundExecutor)
	server := proxy.NewServer(cfg.Bind, session)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	slog.Info("yprox starting", "bind", cfg.Bind, "backends", len(cfg.Backends), "designated", designated)
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	slog.Info("yprox stopped")
	return nil
}
