// Package main runs the bin collection kiosk service: it fetches council
// collection data, caches it and serves the next collection as JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/go-redis/redis/v8"
	"google.golang.org/api/option"

	"bin-kiosk/config"
	"bin-kiosk/datewindow"
	"bin-kiosk/parser"
	"bin-kiosk/poll"
	"bin-kiosk/server"
	"bin-kiosk/service"
	"bin-kiosk/source"
	"bin-kiosk/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("Exiting", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize structured logger
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()
	store := storage.New(backend, logger)

	window, err := datewindow.NewWindow(datewindow.RealClock{}, cfg.Timezone)
	if err != nil {
		return err
	}
	estimator, err := cfg.Estimator()
	if err != nil {
		return err
	}

	svcCfg := &service.Config{
		Cache:        store,
		Parser:       parser.New(window, logger),
		Today:        window,
		Logger:       logger,
		Freshness:    cfg.CacheWindow(),
		FetchTimeout: cfg.FetchTimeout(),
		Estimator:    estimator,
	}
	if adapter := newAdapter(cfg, logger); adapter != nil {
		svcCfg.Source = adapter
	}
	svc := service.New(svcCfg)

	if len(args) > 0 {
		switch args[0] {
		case "refresh":
			if err := svc.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
		}
	}

	if every := cfg.RefreshInterval(); every > 0 {
		go poll.New(svc, every, logger).Run(ctx)
	}

	srv := server.New(&server.Config{
		Collections: svc,
		Cache:       store,
		Logger:      logger,
		CacheWindow: cfg.CacheWindow(),
	})
	return srv.ListenAndServe(ctx, cfg.Port)
}

// newAdapter builds the configured upstream adapter, or nil when none is configured.
func newAdapter(cfg *config.Config, logger *slog.Logger) service.Source {
	client := &http.Client{Timeout: 30 * time.Second}

	switch cfg.SourceKind() {
	case config.KindScrape:
		logger.Info("Using council web form source", "council", cfg.Council, "uprn", cfg.UPRN)
		return source.NewScrape(client, logger, cfg.Council, cfg.UPRN, cfg.ScrapeURL)
	case config.KindCalendar:
		logger.Info("Using calendar feed source", "calendar_id", cfg.CalendarID)
		return source.NewCalendar(client, logger, cfg.CalendarID, cfg.CalendarURL)
	default:
		logger.Warn("No bin collection source configured; set BIN_UPRN or BIN_CALENDAR_ID")
		return nil
	}
}

// openBackend picks Redis, then Cloud Storage, then the local directory.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("Using Redis cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return storage.NewRedis(client, logger), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close redis client", "error", err)
			}
		}, nil

	case cfg.StorageBucket != "":
		var opts []option.ClientOption
		if cfg.GoogleCredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.GoogleCredentialsJSON)))
		}
		client, err := gcs.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize storage client: %w", err)
		}
		logger.Info("Using Cloud Storage cache", "bucket", cfg.StorageBucket)
		return storage.NewGCS(client, cfg.StorageBucket, logger), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}, nil

	default:
		backend, err := storage.NewLocal(cfg.LocalStorage, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using local cache", "storage_path", cfg.LocalStorage)
		return backend, func() {}, nil
	}
}

// errUsage is returned for unknown subcommands.
var errUsage = errors.New("usage: bin-kiosk [refresh]")
