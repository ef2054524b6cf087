package main

import (
	"log/slog"
	"os"

	"github.com/iamlens/iamlens/cmd"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})))
	cmd.Execute()
}
