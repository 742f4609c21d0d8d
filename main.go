package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/agent-memory-service/internal/cmd/migrate"
	"github.com/chirino/agent-memory-service/internal/cmd/serve"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "agent-memory-service",
		Usage: "Dual-tier working/long-term memory service for agents",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
