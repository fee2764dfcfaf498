package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealwatch/config"
	"dealwatch/internal/bot"
	"dealwatch/internal/database"
	"dealwatch/internal/logger"
	"dealwatch/internal/metrics"
	"dealwatch/internal/monitor"
	"dealwatch/internal/scraper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "run a single check cycle and exit")
	flag.Parse()

	// .env is optional
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if envErr != nil {
		log.Debug().Msg(".env not found, using system environment")
	}

	if err := run(cfg, log, *once); err != nil {
		log.Fatal().Err(err).Msg("dealwatch stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := config.SourceFile(cfg.SourcesFile)
	initial, err := sources.Sources()
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	log.Info().Int("sources", len(initial)).Str("file", cfg.SourcesFile).Msg("sources loaded")

	store, err := database.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	rec := metrics.New(cfg.Metrics.Enabled, prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.ListenAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	s := scraper.NewCraigslistScraper(cfg.Monitor.FetchTimeout, cfg.Monitor.UserAgent, log)

	var (
		notifier monitor.Notifier
		api      *tgbotapi.BotAPI
	)
	if cfg.Telegram.Enabled {
		a, err := bot.Init(cfg.Telegram.BotToken, log)
		if err != nil {
			return err
		}
		api = a
		notifier = bot.NewTelegramNotifier(a, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelay, cfg.Telegram.SendInterval, log)
	} else {
		log.Info().Msg("telegram disabled, printing notifications to stdout")
		notifier = bot.NewConsoleNotifier(os.Stdout)
	}

	mon := monitor.New(monitor.Config{
		CheckInterval: cfg.Monitor.CheckInterval,
		SourceDelay:   cfg.Monitor.SourceDelay,
		FetchTimeout:  cfg.Monitor.FetchTimeout,
		Window: monitor.Window{
			BlackoutStart: cfg.Monitor.BlackoutStartHour,
			BlackoutEnd:   cfg.Monitor.BlackoutEndHour,
		},
	}, sources, store, s, notifier, rec, log)

	if once {
		notifications, err := mon.CheckNow(ctx)
		if len(notifications) > 0 {
			if nerr := notifier.Notify(context.WithoutCancel(ctx), notifications); nerr != nil {
				log.Error().Err(nerr).Msg("failed to deliver notifications")
			}
		}
		return err
	}

	if api != nil {
		handler := bot.NewHandler(api, cfg.Telegram.ChatID, store, mon, log)
		go bot.SetupCommands(ctx, api, handler)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		mon.Start(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down, waiting for the current source to finish")
	<-done
	return nil
}

func serveMetrics(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
