// Package main - точка входа сервиса рейтингов челленджей.
//
// Команды:
//   - serve   - HTTP API рейтингов (глобальный, по задаче, по языку)
//   - quarter - печатает окно текущего квартала в настроенной таймзоне
//   - apikey  - генерирует bcrypt-хеш ключа для HTTP_API_KEY_HASHES
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/challenges-leaderboard/config"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

var (
	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:           "leaderboard",
		Short:         "Challenge leaderboards over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env опционален: в контейнере переменные приходят из окружения
			_ = godotenv.Load()

			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the leaderboard HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}

	quarterCmd = &cobra.Command{
		Use:   "quarter",
		Short: "Print the current quarter window",
		RunE: func(cmd *cobra.Command, args []string) error {
			clock := timeutil.SystemClock{Location: cfg.App.Location}
			q := leaderboard.CurrentQuarter(clock.Now())
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
				timeutil.QuarterLabel(q.Start),
				leaderboard.WindowLabel(&q),
				q.Start.Format("2006-01-02T15:04:05Z07:00"),
				q.End.Format("2006-01-02T15:04:05Z07:00"),
			)
			return nil
		},
	}

	apiKeyCmd = &cobra.Command{
		Use:   "apikey [key]",
		Short: "Print the bcrypt hash of an API key",
		Args:  cobra.ExactArgs(1),
		// конфиг для хеширования не нужен
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash api key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: $CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, quarterCmd, apiKeyCmd)
}

func main() {
	// SIGINT/SIGTERM отменяют контекст и запускают graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
