package main

import (
	"context"
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

	"github.com/spf13/cobra"

	"finbot/internal/bus"
	"finbot/internal/canned"
	"finbot/internal/channel"
	"finbot/internal/config"
	"finbot/internal/domain"
	"finbot/internal/format"
	"finbot/internal/intent"
	"finbot/internal/metrics"
	"finbot/internal/pipeline"
	"finbot/internal/provider"
	"finbot/internal/retrieve"
	"finbot/internal/sms"
	"finbot/internal/watchlist"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "finbot",
		Short: "FinBot: assistant financier par messages courts",
		Long:  "FinBot answers French finance questions over Telegram or the terminal, with SMS-length replies and sourced data.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.finbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(askCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(watchlistCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	configureLogger(cfg)
	return cfg
}

// configureLogger rebuilds the process logger with the configured level and
// optional log file.
func configureLogger(cfg *config.Config) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	out := io.Writer(os.Stderr)
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Warn("cannot open log file, keeping stderr", "path", cfg.General.LogFile, "err", err)
		} else {
			out = f
		}
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// buildPipeline assembles the full stage chain from configuration.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func() error, error) {
	throttle := provider.NewThrottle(cfg.Providers.RequestsPerSecond)
	quoteTimeout := time.Duration(cfg.Providers.QuoteTimeoutSeconds) * time.Second

	fmp := provider.NewFMP(provider.FMPConfig{
		APIKey:   cfg.Providers.FMP.APIKey,
		APIBase:  cfg.Providers.FMP.APIBase,
		Timeout:  quoteTimeout,
		Throttle: throttle,
		Logger:   logger,
	})

	var quoteProviders []domain.QuoteProvider
	for _, name := range cfg.Providers.QuoteChain {
		switch name {
		case "fmp":
			if cfg.Providers.FMP.Enabled {
				quoteProviders = append(quoteProviders, fmp)
			}
		case "alphavantage":
			if cfg.Providers.AlphaVantage.Enabled {
				quoteProviders = append(quoteProviders, provider.NewAlphaVantage(provider.AlphaVantageConfig{
					APIKey:   cfg.Providers.AlphaVantage.APIKey,
					APIBase:  cfg.Providers.AlphaVantage.APIBase,
					Timeout:  quoteTimeout,
					Throttle: throttle,
					Logger:   logger,
				}))
			}
		case "twelvedata":
			if cfg.Providers.TwelveData.Enabled {
				quoteProviders = append(quoteProviders, provider.NewTwelveData(provider.TwelveDataConfig{
					APIKey:   cfg.Providers.TwelveData.APIKey,
					APIBase:  cfg.Providers.TwelveData.APIBase,
					Timeout:  quoteTimeout,
					Throttle: throttle,
					Logger:   logger,
				}))
			}
		}
	}
	if len(quoteProviders) == 0 {
		return nil, nil, fmt.Errorf("no enabled quote provider in providers.quoteChain")
	}
	chain := provider.NewQuoteChain(quoteProviders, quoteTimeout, logger)

	pplx := provider.NewPerplexity(provider.PerplexityConfig{
		APIKey:      cfg.Providers.Perplexity.APIKey,
		APIBase:     cfg.Providers.Perplexity.APIBase,
		Model:       cfg.Providers.Perplexity.Model,
		Temperature: cfg.Providers.Perplexity.Temperature,
		MaxTokens:   cfg.Providers.Perplexity.MaxTokens,
		Timeout:     time.Duration(cfg.Providers.Perplexity.TimeoutSeconds) * time.Second,
		Throttle:    throttle,
		Logger:      logger,
	})

	store, err := watchlist.NewSQLiteStore(cfg.Watchlist.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("watchlist store: %w", err)
	}

	replies, err := canned.LoadFromDirectory(cfg.Canned.Dir, logger)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("canned replies: %w", err)
	}

	retriever := retrieve.NewRetriever(retrieve.Config{
		Quotes:        chain,
		Fundamentals:  fmp,
		Search:        pplx,
		Watchlist:     store,
		Canned:        replies,
		SearchTimeout: time.Duration(cfg.Providers.Perplexity.TimeoutSeconds) * time.Second,
		Logger:        logger,
	})

	formatter := format.NewFormatter(format.Config{
		Generator:   pplx,
		TargetChars: cfg.SMS.TargetChars,
		MaxChars:    cfg.SMS.MaxChars,
		Timeout:     time.Duration(cfg.Providers.Perplexity.TimeoutSeconds) * time.Second,
		Logger:      logger,
	})

	p := pipeline.New(pipeline.Config{
		Classifier:    intent.NewClassifier(logger),
		Retriever:     retriever,
		Formatter:     formatter,
		Validator:     sms.NewValidator(cfg.SMS.MaxChars),
		DefaultSource: cfg.SMS.DefaultSource,
		Logger:        logger,
	})
	return p, store.Close, nil
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [message]",
		Short: "Answer one message and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			p, closeStore, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := p.Process(ctx, domain.InboundMessage{
				Channel:   "cli",
				ChatID:    "direct",
				SenderID:  "user",
				Content:   strings.Join(args, " "),
				Timestamp: time.Now(),
			}, domain.Context{})

			fmt.Println(result.Text)

			stages := make([]string, len(result.Trace))
			for i, ev := range result.Trace {
				stages[i] = string(ev.Stage)
			}
			logger.Info("answered",
				"intent", result.Metadata.Intent,
				"encoding", result.Metadata.Encoding,
				"segments", result.Metadata.Segments,
				"latency_ms", result.Metadata.LatencyMs,
				"trace", strings.Join(stages, ">"),
			)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat (CLI)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			p, closeStore, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			messageBus := bus.New(100, logger)
			defer messageBus.Close()

			go runWorker(ctx, p, messageBus)

			cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
			return cliCh.Start(ctx, messageBus)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start enabled channels and the pipeline worker",
		Long:  "Starts the Telegram channel (when enabled) and the message worker. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogger(cfg)

	p, closeStore, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	go runWorker(ctx, p, messageBus)

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
		})
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	if cfg.Metrics.Enabled {
		addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			logger.Info("metrics endpoint listening", "addr", addr, "path", cfg.Metrics.Endpoint)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
		defer srv.Close()
	}

	logger.Info("finbot started. Press Ctrl+C to stop.", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if telegramCh != nil {
			telegramCh.Stop()
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

// runWorker drains the inbound bus through the pipeline, one message at a
// time, and routes replies back to their channel. Every lifecycle event is
// mirrored on the event bus, with a wildcard subscriber feeding the debug
// log and an event counter feeding the metrics endpoint.
func runWorker(ctx context.Context, p *pipeline.Pipeline, messageBus *bus.InMemoryBus) {
	events := bus.NewEventBus(logger)
	eventCount := metrics.Collector.Counter("finbot_events_total", "Lifecycle events emitted by the worker", "")
	events.On("*", func(e bus.Event) {
		eventCount.Inc()
		logger.Debug("event", "type", e.Type, "source", e.Source, "payload", e.Payload)
	})

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageBus.Inbound():
			if !ok {
				return
			}
			events.Emit(bus.Event{Type: bus.EventMessageReceived, Source: msg.Channel})

			result := p.Process(ctx, msg, domain.Context{})

			events.Emit(bus.Event{
				Type:   bus.EventIntentClassified,
				Source: "pipeline",
				Payload: map[string]any{
					"intent":     string(result.Metadata.Intent),
					"latency_ms": result.Metadata.LatencyMs,
				},
			})
			for _, ev := range result.Trace {
				if ev.Stage == pipeline.StageClarify {
					events.Emit(bus.Event{Type: bus.EventClarificationAsked, Source: "pipeline",
						Payload: map[string]any{"intent": string(result.Metadata.Intent)}})
					break
				}
			}
			if result.Err != nil {
				var re *domain.RetrievalError
				if errors.As(result.Err, &re) {
					for _, a := range re.Attempts {
						events.Emit(bus.Event{Type: bus.EventProviderError, Source: a.Provider,
							Payload: map[string]any{"error": a.Message}})
					}
				}
				events.Emit(bus.Event{Type: bus.EventRetrievalExhausted, Source: "pipeline",
					Payload: map[string]any{"error": result.Err.Error()}})
			}
			if result.Metadata.AutoFixed {
				events.Emit(bus.Event{Type: bus.EventReplyAutoFixed, Source: "pipeline"})
			}
			if result.Metadata.Truncated {
				events.Emit(bus.Event{Type: bus.EventReplyTruncated, Source: "pipeline"})
			}

			messageBus.Deliver(domain.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: result.Text,
			})
			events.Emit(bus.Event{Type: bus.EventMessageSent, Source: msg.Channel})
		}
	}
}

func watchlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watchlist",
		Short: "Manage the tracked tickers behind the portfolio replies",
	}

	openStore := func() (*watchlist.SQLiteStore, error) {
		cfg := loadConfig()
		return watchlist.NewSQLiteStore(cfg.Watchlist.DBPath, logger)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			tickers, err := store.Tickers(context.Background())
			if err != nil {
				return err
			}
			if len(tickers) == 0 {
				fmt.Println("(empty)")
				return nil
			}
			for _, t := range tickers {
				fmt.Println(t)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add [ticker]",
		Short: "Track a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := strings.ToUpper(strings.TrimSpace(args[0]))
			if !intent.IsValidTicker(ticker) {
				return fmt.Errorf("invalid ticker %q: expected 1-5 uppercase letters", args[0])
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Add(context.Background(), ticker); err != nil {
				return err
			}
			logger.Info("ticker added", "ticker", ticker)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [ticker]",
		Short: "Stop tracking a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			ticker := strings.ToUpper(strings.TrimSpace(args[0]))
			if err := store.Remove(context.Background(), ticker); err != nil {
				return err
			}
			logger.Info("ticker removed", "ticker", ticker)
			return nil
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("finbot " + version)
		},
	}
}
