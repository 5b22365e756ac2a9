package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dcm-project/service-orchestrator/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
