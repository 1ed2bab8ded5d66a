package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/astromechza/tasklens-sync/pkg/syncserver"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configPath := pflag.String("config", "", "optional yaml config file")
	addr := pflag.String("addr", "", "the address to listen on, overrides the config")
	dbPath := pflag.String("db", "", "the sqlite database path, overrides the config")
	queueSize := pflag.Int("queue-size", 0, "per-connection queue size, overrides the config")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	if *debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg := syncserver.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = syncserver.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if *addr != "" {
		cfg.ListenAddress = *addr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *queueSize != 0 {
		cfg.QueueSize = *queueSize
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updateLog, err := syncserver.OpenSQLiteLog(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer updateLog.Close()

	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: syncserver.New(cfg, updateLog).Handler()}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("listening", "addr", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
			cancel()
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return fmt.Errorf("failed to shutdown: %w", err)
	}
	cancel()
	wg.Wait()
	return nil
}
