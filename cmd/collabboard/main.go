package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabboard/internal/app"
	"collabboard/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run wires configuration, application lifecycle, and signal handling so
// main stays trivially testable.
func run() error {
	configPath := os.Getenv("COLLABBOARD_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := application.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}

		return nil
	}
}
