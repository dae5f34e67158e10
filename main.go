package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/abvaden/nps-webcam-animation-generator/cmd"
	"github.com/abvaden/nps-webcam-animation-generator/internal/conf"
	"github.com/abvaden/nps-webcam-animation-generator/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)
	if settings.Main.Log.Path != "" {
		logging.SetRotation(settings.Main.Log.MaxSize, settings.Main.Log.MaxBackups, settings.Main.Log.MaxAge)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("Command failed", "error", err)
	}
}
