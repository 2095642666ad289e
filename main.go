package main

import (
	"log/slog"
	"os"

	"barberbot/app/cmd"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := cmd.NewRootCmd(version).Execute(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
