package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/25x8/carrental/internal/carrental/config"
	"github.com/25x8/carrental/internal/carrental/logger"
	"github.com/25x8/carrental/internal/carrental/server"
)

func main() {
	// Load configuration
	cfg, err := config.NewConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Create and run server
	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("server init")
	}
	go func() {
		if err := srv.Run(); err != nil {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Wait for termination signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server shutdown")
	}

	log.Info("server stopped")
}
