// Command sheetagent-server hosts the spreadsheet agent HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fortune-sheet/sheetagent"
	"github.com/fortune-sheet/sheetagent/backend"
	"github.com/fortune-sheet/sheetagent/providers/gemini"
	"github.com/fortune-sheet/sheetagent/providers/openai"
	"github.com/fortune-sheet/sheetagent/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheetagent-server",
		Short: "HTTP API for the spreadsheet agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	flags := cmd.Flags()
	flags.String("addr", ":5001", "listen address")
	flags.String("api-url", backend.DefaultBaseURL, "spreadsheet service base URL")
	flags.String("provider", "gemini", "chat provider (gemini or openai)")
	flags.String("model", "", "model name (provider default when empty)")
	flags.Int("max-iterations", sheetagent.DefaultMaxIterations, "agent loop iteration cap")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("debug-log", "", "JSONL provider debug log path")

	viper.SetEnvPrefix("SHEETAGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)
	// Legacy names used by the frontend's deployment scripts.
	_ = viper.BindEnv("api-url", "SHEETAGENT_API_URL", "API_URL", "SHEETS_API_URL")
	_ = viper.BindEnv("addr", "SHEETAGENT_ADDR")

	return cmd
}

func run(ctx context.Context) error {
	setupLogging(viper.GetString("log-level"))

	client := backend.NewClient(viper.GetString("api-url"))
	if client.Health(ctx) {
		log.Info().Str("url", client.BaseURL()).Msg("spreadsheet service reachable")
	} else {
		log.Warn().Str("url", client.BaseURL()).Msg("spreadsheet service not reachable, continuing anyway")
	}

	var (
		runner   *sheetagent.Runner
		registry *sheetagent.Registry
	)
	provider, err := buildProvider(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("chat provider not initialized, LLM endpoints will answer 503")
	} else {
		registry = sheetagent.NewRegistry(client)
		runner = sheetagent.NewRunner(provider, registry, client,
			sheetagent.WithMaxIterations(viper.GetInt("max-iterations")))
	}

	srv := &http.Server{
		Addr:              viper.GetString("addr"),
		Handler:           server.New(runner, registry, client).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildProvider(ctx context.Context) (sheetagent.ChatProvider, error) {
	model := viper.GetString("model")
	debugPath := viper.GetString("debug-log")

	switch name := viper.GetString("provider"); name {
	case "gemini":
		var opts []gemini.Option
		if debugPath != "" {
			opts = append(opts, gemini.WithDebug(debugPath))
		}
		return gemini.New(ctx, model, opts...)
	case "openai":
		var opts []openai.Option
		if debugPath != "" {
			opts = append(opts, openai.WithDebug(debugPath))
		}
		return openai.New(model, opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
