package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eddiefleurent/schrute_spreads/internal/config"
	"github.com/eddiefleurent/schrute_spreads/internal/marketdata"
	"github.com/eddiefleurent/schrute_spreads/internal/notify"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
	"github.com/eddiefleurent/schrute_spreads/internal/storage"
	"github.com/eddiefleurent/schrute_spreads/internal/technical"
)

// App holds the wired components shared by every run mode.
type App struct {
	config   *config.Config
	provider marketdata.Provider
	store    storage.Interface
	engine   *spread.Engine
	builder  *technical.Builder
	notifier *notify.Notifier
	logger   *log.Logger
	out      io.Writer
}

func main() {
	var (
		configPath string
		mode       string
		symbols    string
		budget     float64
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&mode, "mode", "scan", "Run mode: scan, monitor, positions, evaluate or chat")
	flag.StringVar(&symbols, "symbols", "", "Comma-separated symbols, overrides the configured list")
	flag.Float64Var(&budget, "budget", 0, "Budget in dollars per spread, overrides the configured budget")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := log.New(os.Stdout, "[ASSISTANT] ", log.LstdFlags)
	applyOverrides(cfg, symbols, budget)

	logger.Printf("Starting spread assistant in %s mode (%s data)", mode, cfg.Provider.Name)
	if !cfg.IsPaperTrading() {
		logger.Println("Live market data configured. The assistant recommends; it never places orders.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	if err := run(ctx, cfg, mode, logger); err != nil {
		logger.Fatalf("%s mode failed: %v", mode, err)
	}
	logger.Println("Done")
}

func run(ctx context.Context, cfg *config.Config, mode string, logger *log.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.store.Close(); err != nil {
			logger.Printf("Failed to close storage: %v", err)
		}
	}()

	switch mode {
	case "scan":
		return app.runScan(ctx)
	case "monitor":
		return app.runMonitor(ctx)
	case "positions":
		return app.runPositions(ctx)
	case "evaluate":
		return app.runEvaluate(ctx)
	case "chat":
		return app.runChat(ctx, os.Stdin)
	default:
		return fmt.Errorf("unknown mode %q (want scan, monitor, positions, evaluate or chat)", mode)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine, err := spread.New(cfg.Engine.ToEngine(), spread.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	builder, err := technical.NewBuilder(cfg.Technical.ToBuilder())
	if err != nil {
		return nil, fmt.Errorf("initializing technical builder: %w", err)
	}

	var notifier *notify.Notifier
	if cfg.Notifications.Enabled() {
		sender := notify.NewDiscordSender(cfg.Notifications.WebhookURL)
		notifier = notify.New(sender, cfg.Notifications.MinScore, logger)
		logger.Printf("Notifications enabled (min score %.0f)", cfg.Notifications.MinScore)
	}

	store, err := storage.NewStorage(ctx, storage.Config{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		DSN:     cfg.Storage.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	return &App{
		config:   cfg,
		provider: provider,
		store:    store,
		engine:   engine,
		builder:  builder,
		notifier: notifier,
		logger:   logger,
		out:      os.Stdout,
	}, nil
}

// buildProvider picks the market data source. Tradier goes behind the
// circuit breaker; the simulator is local and needs none.
func buildProvider(cfg *config.Config, logger *log.Logger) (marketdata.Provider, error) {
	switch cfg.Provider.Name {
	case "tradier":
		var client *marketdata.TradierClient
		if cfg.Provider.APIEndpoint != "" {
			client = marketdata.NewTradierClientWithBaseURL(cfg.Provider.APIKey, cfg.Provider.Sandbox, logger, cfg.Provider.APIEndpoint)
		} else {
			client = marketdata.NewTradierClient(cfg.Provider.APIKey, cfg.Provider.Sandbox, logger)
		}
		return marketdata.NewBreakerProvider(client, logger), nil
	case "simulator":
		return marketdata.NewSimulator(cfg.Provider.SimSeed), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func applyOverrides(cfg *config.Config, symbols string, budget float64) {
	if symbols != "" {
		parts := strings.Split(symbols, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.ToUpper(strings.TrimSpace(p)); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			cfg.Symbols = out
		}
	}
	if budget > 0 {
		cfg.Engine.Budget = budget
	}
}
