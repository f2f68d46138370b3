package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"maadoctor.app/cli/internal/interfaces/cli"
	"maadoctor.app/cli/internal/interfaces/di"
)

func main() {
	container := di.NewContainer()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		container.Logger.Info("received shutdown signal, cancelling pending detectors")
		container.Cancel()
		cancel()
	}()

	code := cli.Execute(ctx, container.CLIContainer)
	if err := container.Shutdown(); err != nil {
		container.Logger.Warn("shutdown failed", "error", err)
	}
	os.Exit(code)
}
