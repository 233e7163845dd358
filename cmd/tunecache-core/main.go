// tunecache-core is the local daemon behind the desktop client. It owns the
// cache database, watches connectivity, brokers catalog searches and
// downloads, and exposes a loopback HTTP API the UI talks to.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tunecache/tunecache-go/internal/catalog"
	"github.com/tunecache/tunecache-go/internal/config"
	"github.com/tunecache/tunecache-go/internal/connectivity"
	"github.com/tunecache/tunecache-go/internal/download"
	apperrors "github.com/tunecache/tunecache-go/internal/errors"
	"github.com/tunecache/tunecache-go/internal/identity"
	"github.com/tunecache/tunecache-go/internal/monitoring"
	"github.com/tunecache/tunecache-go/internal/network"
	"github.com/tunecache/tunecache-go/internal/playback"
	"github.com/tunecache/tunecache-go/internal/reconcile"
	"github.com/tunecache/tunecache-go/internal/store"
)

const version = "1.0.0"

type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	db           *sql.DB
	cache        *store.CacheStore
	monitor      *connectivity.Monitor
	session      *identity.Session
	search       *catalog.SearchAdapter
	orchestrator *download.Orchestrator
	reconciler   *reconcile.Engine
	bridge       *playback.Bridge
	health       *monitoring.HealthChecker
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := monitoring.NewLogger(&monitoring.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting tunecache-core",
		zap.String("version", version),
		zap.String("db_path", cfg.Storage.DBPath),
		zap.String("listen_addr", cfg.Server.ListenAddr))

	db, err := store.InitDB(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		cache:  store.NewCacheStore(db),
		health: monitoring.NewHealthChecker(version, db),
	}

	a.session = identity.NewSession(newIdentityProvider(cfg), logger.Named("identity"))
	a.reconciler = reconcile.NewEngine(a.cache, logger.Named("reconcile"))

	a.monitor = connectivity.NewMonitor(connectivity.Options{
		ProbeURL:          cfg.Connectivity.ProbeURL,
		ProbeExpectStatus: cfg.Connectivity.ProbeExpectStatus,
		ProbeTimeout:      time.Duration(cfg.Connectivity.ProbeTimeoutSeconds) * time.Second,
		ProbeInterval:     time.Duration(cfg.Connectivity.ProbeIntervalSeconds) * time.Second,
		RevalidateDelay:   time.Duration(cfg.Connectivity.RevalidateDelayMillis) * time.Millisecond,
		ReconcileDelay:    time.Duration(cfg.Connectivity.ReconcileDelayMillis) * time.Millisecond,
		Logger:            logger.Named("connectivity"),
	})

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.RequestsPerSecond)
	a.search = catalog.NewSearchAdapter(
		catalogClient, a.monitor, a.cache, cfg.Catalog.SearchLimit, logger.Named("catalog"))

	a.orchestrator = download.NewOrchestrator(
		catalogClient, a.search, a.cache, a.monitor, download.Options{
			FetchTimeout:     time.Duration(cfg.Download.FetchTimeoutSeconds) * time.Second,
			ArtworkMaxPixels: cfg.Download.ArtworkMaxPixels,
			Logger:           logger.Named("download"),
		})

	a.bridge = playback.NewBridge(a.cache, newLoggingEngine(logger.Named("playback")),
		time.Duration(cfg.Playback.RevokeGraceSeconds)*time.Second, logger.Named("playback"))

	// Identity is revalidated and counters recomputed on every confirmed
	// reconnection; the store stays authoritative regardless.
	a.monitor.OnReconnect(
		func(ctx context.Context) {
			if err := a.session.Revalidate(ctx); err != nil {
				logger.Warn("post-reconnect revalidation failed", zap.Error(err))
			}
		},
		func(ctx context.Context) {
			if ownerID, err := a.session.UserID(); err == nil {
				a.reconciler.Recompute(ownerID)
			}
		},
	)

	a.orchestrator.OnComplete(func(record *store.CachedItemRecord) {
		a.reconciler.Recompute(record.OwnerID)
	})
	a.orchestrator.OnDelete(func(id string) {
		a.bridge.RevokeFor(id)
		if ownerID, err := a.session.UserID(); err == nil {
			a.reconciler.Recompute(ownerID)
		}
	})

	// The identity provider may not be reachable at boot (machine waking up,
	// network still settling); retry briefly, then leave it to the reconnect
	// hook.
	revalidateCfg := apperrors.DefaultRetryConfig()
	if err := apperrors.RetryWithBackoff(ctx, revalidateCfg, func() error {
		return a.session.Revalidate(ctx)
	}); err != nil {
		logger.Warn("initial identity resolution failed, will retry on reconnect", zap.Error(err))
	}
	if ownerID, err := a.session.UserID(); err == nil {
		a.reconciler.Recompute(ownerID)
	}

	a.monitor.Start(ctx)
	defer a.monitor.Stop()

	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      a.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}

	logger.Info("tunecache-core stopped")
	return nil
}

// newIdentityProvider resolves the owner identifier. An explicit override in
// the environment wins; otherwise the catalog's session endpoint is asked.
func newIdentityProvider(cfg *config.Config) identity.Provider {
	if userID := os.Getenv("TUNECACHE_USER_ID"); userID != "" {
		return identity.ProviderFunc(func(context.Context) (string, error) {
			return userID, nil
		})
	}

	client := network.GetDefaultClient()
	return identity.ProviderFunc(func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Catalog.BaseURL+"/me", nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("identity endpoint returned status %d", resp.StatusCode)
		}
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", err
		}
		if payload.ID == "" {
			return "", fmt.Errorf("identity endpoint returned empty id")
		}
		return payload.ID, nil
	})
}

// loggingEngine is the in-daemon stand-in for the desktop playback engine.
// It tracks the current item and pause state; actual audio output lives in
// the client process, which consumes the handle over the API.
type loggingEngine struct {
	logger *zap.Logger

	currentID string
	playing   bool
}

func newLoggingEngine(logger *zap.Logger) *loggingEngine {
	return &loggingEngine{logger: logger}
}

func (e *loggingEngine) Play(_ context.Context, track playback.TrackInfo, queue []playback.TrackInfo) error {
	e.currentID = track.ID
	e.playing = true
	e.logger.Info("playback hand-off",
		zap.String("item_id", track.ID),
		zap.String("title", track.Title),
		zap.Int("queue_length", len(queue)))
	return nil
}

func (e *loggingEngine) TogglePause() {
	e.playing = !e.playing
	e.logger.Info("playback toggled", zap.String("item_id", e.currentID), zap.Bool("playing", e.playing))
}

func (e *loggingEngine) CurrentItemID() string { return e.currentID }
func (e *loggingEngine) IsPlaying() bool       { return e.playing }
