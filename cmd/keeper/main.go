package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is fine; the environment may be set directly.
	godotenv.Load()

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("KEEPER_DEBUG") != "" {
		opts.Level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))

	root := &cobra.Command{
		Use:           "keeper",
		Short:         "A tool-using Call of Cthulhu Keeper",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), chatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
