package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/tinoosan/millmeter/internal/config"
	httpapi "github.com/tinoosan/millmeter/internal/httpapi/v1"
	"github.com/tinoosan/millmeter/internal/ledger"
	"github.com/tinoosan/millmeter/internal/lock"
	"github.com/tinoosan/millmeter/internal/storage/memory"
	pgstore "github.com/tinoosan/millmeter/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	var backend httpapi.Backend
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	if !cfg.UseMemory() {
		pg, err := pgstore.Open(ctx, cfg.DB.URL)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closers = append(closers, pg.Close)
		if cfg.DB.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				logger.Error("migration failed", "err", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		// Optional dev seed for compose/local
		if cfg.DB.DevSeed {
			recs, err := pg.SeedDev(ctx)
			if err != nil {
				logger.Error("dev seed failed", "err", err)
			} else {
				logDevSeed(logger, "postgres", recs)
				printDevSeedBanner(recs)
			}
		}
		backend = pg
		logger.Info("storage backend: postgres")
	} else {
		// Default to in-memory store with the dev reference data
		store := memory.New()
		recs := store.SeedDev()
		logDevSeed(logger, "memory", recs)
		printDevSeedBanner(recs)
		backend = store
		logger.Info("storage backend: memory")
	}

	var locker lock.Locker = lock.NewLocal()
	if url := strings.TrimSpace(cfg.Redis.URL); url != "" {
		rdb, err := lock.Connect(ctx, url)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		locker = lock.NewRedis(rdb, cfg.Redis.LockTTL, cfg.Redis.LockWait)
		logger.Info("timeline locks: redis", "ttl", cfg.Redis.LockTTL.String())
	} else {
		logger.Info("timeline locks: in-process")
	}

	auth := httpapi.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience}
	if cfg.AuthEnabled() {
		logger.Info("bearer authentication enabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(backend, locker, auth, logger).Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("millmeter service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
}

func seededTables(recs map[ledger.LookupTable][]ledger.LookupRecord) []ledger.LookupTable {
	tables := make([]ledger.LookupTable, 0, len(recs))
	for t := range recs {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	return tables
}

// logDevSeed emits structured logs with the seeded reference ids
func logDevSeed(l *slog.Logger, backend string, recs map[ledger.LookupTable][]ledger.LookupRecord) {
	counts := map[string]int{}
	for t, rs := range recs {
		counts[string(t)] = len(rs)
	}
	l.Info("DEV seed ("+backend+")", "rows", counts)
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(recs map[ledger.LookupTable][]ledger.LookupRecord) {
	fmt.Println("==================== DEV SEED ====================")
	for _, t := range seededTables(recs) {
		parts := make([]string, 0, len(recs[t]))
		for _, r := range recs[t] {
			parts = append(parts, fmt.Sprintf("%d=%s", r.ID, r.Name))
		}
		fmt.Printf("%s: %s\n", t, strings.Join(parts, ", "))
	}
	fmt.Println("==================================================")
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(c config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.Level)}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
