package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/markwise/internal/handler"
	appI18n "github.com/pavelanni/markwise/internal/i18n"
	"github.com/pavelanni/markwise/internal/llm"
	"github.com/pavelanni/markwise/internal/llm/prompts"
	"github.com/pavelanni/markwise/internal/store"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "markwise",
		Short: "Exam generation and AI marking service",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("store", "mongo", "Document store backend (mongo, sqlite)")
	f.String("db", "markwise.db", "SQLite database path")
	f.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	f.String("mongo-database", "test", "MongoDB database name")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	commonFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8000", "HTTP listen address")
	f.String("llm-url", "https://api.mistral.ai/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the LLM endpoint (or set MARKWISE_LLM_KEY)")
	f.String("llm-model", "mistral-tiny", "LLM model name")
	f.Float32("llm-temperature", 0.7, "Sampling temperature")
	f.Duration("llm-timeout", 60*time.Second, "Timeout per completion call")
	f.Int("llm-retries", 2, "Extra attempts when the LLM endpoint is unavailable")
	f.Duration("llm-retry-backoff", 500*time.Millisecond, "Initial backoff between LLM retries")
	f.Bool("llm-json-mode", true, "Request JSON output (response_format json_object) for every completion")
	f.Bool("llm-check", false, "Check the LLM endpoint on startup")
	f.Bool("math-markup", true, "Convert math symbols in model output to LaTeX-style markup")
	f.Int("exam-max-tokens", 2000, "Max tokens for exam generation replies")
	f.Int("mark-max-tokens", 1000, "Max tokens for marking replies")
	f.String("prompt-variant", string(prompts.PromptStandard), "Marking prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "en", "Default language for error messages (en, ru)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.Duration("shutdown-timeout", 15*time.Second, "Grace period for in-flight requests on shutdown")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all exam results as JSON",
		RunE:  runExport,
	}
	commonFlags(cmd)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MARKWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("markwise")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/markwise")
	v.AddConfigPath("/etc/markwise")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}
	return v
}

// openStore connects the configured backend. The caller closes it.
func openStore(ctx context.Context, v *viper.Viper) (store.Store, string, error) {
	backend := strings.ToLower(v.GetString("store"))
	switch backend {
	case "mongo", "mongodb":
		s, err := store.NewMongo(ctx, v.GetString("mongo-uri"), v.GetString("mongo-database"))
		if err != nil {
			return nil, "", err
		}
		slog.Info("connected to MongoDB", "database", v.GetString("mongo-database"))
		return s, "mongo", nil
	case "sqlite":
		s, err := store.NewSQLite(v.GetString("db"))
		if err != nil {
			return nil, "", err
		}
		slog.Info("opened SQLite database", "path", v.GetString("db"))
		return s, "sqlite", nil
	default:
		return nil, "", fmt.Errorf("unknown store %q (want mongo or sqlite)", backend)
	}
}

func closeStore(s store.Store) {
	if err := s.Close(); err != nil {
		slog.Error("close store", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, backend, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(db)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}
	if v.GetString("llm-key") == "" {
		slog.Warn("no LLM API key configured; set MARKWISE_LLM_KEY")
	}

	llmClient := llm.New(llm.Config{
		BaseURL:       v.GetString("llm-url"),
		APIKey:        v.GetString("llm-key"),
		Model:         v.GetString("llm-model"),
		Temperature:   float32(v.GetFloat64("llm-temperature")),
		Timeout:       v.GetDuration("llm-timeout"),
		MaxRetries:    v.GetInt("llm-retries"),
		RetryBackoff:  v.GetDuration("llm-retry-backoff"),
		JSONMode:      v.GetBool("llm-json-mode"),
		MathMarkup:    v.GetBool("math-markup"),
		ExamMaxTokens: v.GetInt("exam-max-tokens"),
		MarkMaxTokens: v.GetInt("mark-max-tokens"),
		PromptVariant: prompts.PromptVariant(variant),
	})
	if v.GetBool("llm-check") {
		if err := llmClient.Ping(ctx); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware)
	handler.New(db, llmClient).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"store", backend,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"prompt_variant", variant,
			"lang", lang,
			"languages", appI18n.Languages(),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown-timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx := cmd.Context()
	db, backend, err := openStore(ctx, v)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(db)

	export, err := store.ExportResults(ctx, db, backend)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported results", "count", export.NumResults, "store", backend)
	return nil
}
