package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sonroyaalmerol/calliope/internal/config"
	"github.com/sonroyaalmerol/calliope/internal/handlers"
	"github.com/sonroyaalmerol/calliope/internal/repository"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "calliope",
	Short:         "Discord music bot backed by a Lavalink node",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and the node and serve slash commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(cmd.Context())
	},
}

func runBot(ctx context.Context) error {
	db, err := repository.OpenDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bot := handlers.NewBot(cfg, repository.NewRepo(db))
	slog.Info("starting", "node", cfg.LavalinkAddress, "dataDir", cfg.DataDir)
	return bot.Run(ctx)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.AddCommand(runCmd, infoCmd, statsCmd, decodeCmd)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
