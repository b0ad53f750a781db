package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lukasz26671/webaudioprov/internal"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program; the configuration is sourced
// entirely from the environment and the service runs until interrupted.
func main() {
	config := internal.AppConfig{}
	if err := config.LoadFromEnv(); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Service stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Service stopped\n")
}
