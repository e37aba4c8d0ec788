// cmd - команды taskctl: вход, выход и запросы к шлюзу taskboard
// с автоматическим продлением сессии.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-taskboard/internal/client"
	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
)

const appName = "taskctl"

var (
	serverURL string
	tokenFile string
	verbose   bool

	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "taskctl is a CLI for the taskboard gateway",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		cmd.SetContext(logctx.Into(cmd.Context(), log))

		if tokenFile == "" {
			p, err := client.DefaultFilePath()
			if err != nil {
				return fmt.Errorf("token file: %w", err)
			}
			tokenFile = p
		}

		return nil
	},
}

// Execute запускает корневую команду; ошибка печатается в stderr, код выхода 1.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	defServer := os.Getenv("TASKCTL_SERVER")
	if defServer == "" {
		defServer = "http://localhost:50090"
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defServer, "gateway base URL (env TASKCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "token storage (default $HOME/.taskctl/tokens.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
}

func newStore() *client.FileStore { return client.NewFileStore(tokenFile) }

// newClient - клиент шлюза; повторы и ошибки пишутся в лог команды.
func newClient(store client.TokenStore) *client.Client {
	l := log
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return client.New(serverURL, store,
		client.WithClassifier(apierrors.NewClassifier(
			apierrors.WithLogger(l),
			apierrors.WithVerbose(verbose),
		)),
		client.WithRetry(client.RetryOptions{
			OnRetry: func(attempt int, e *apierrors.AppError) {
				l.Debug("retry", slog.Int("attempt", attempt), slog.String("code", string(e.Code)))
			},
		}),
	)
}
