package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/waveline-app/waveline/internal/api"
	"github.com/waveline-app/waveline/internal/app/facade"
	"github.com/waveline-app/waveline/internal/app/ledger"
	"github.com/waveline-app/waveline/internal/app/queue"
	"github.com/waveline-app/waveline/internal/app/syncer"
	"github.com/waveline-app/waveline/internal/daemon"
	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/cache"
	"github.com/waveline-app/waveline/internal/infra/netmon"
	"github.com/waveline-app/waveline/internal/infra/remote"
	"github.com/waveline-app/waveline/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("remote", "", "Base URL of the remote document service (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the client core daemon",
	Long: `Start the client core: open the local store, recover the action
queue, and serve the local HTTP API the UI shell drives.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return err
	}

	// Durable local store.
	var store domain.LocalStore
	var db *sqlite.DB
	if cfg.Storage.Path == "" {
		db, err = sqlite.OpenMemory()
	} else {
		db, err = sqlite.Open(cfg.Storage.Path)
	}
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer db.Close()
	store = db

	// Progression configuration.
	levels, err := daemon.LoadLevelTable(cfg.Progression.LevelTableFile)
	if err != nil {
		return err
	}
	catalog, err := daemon.LoadAchievementCatalog(cfg.Progression.AchievementFile)
	if err != nil {
		return err
	}

	// Remote document service.
	baseURL, _ := cmd.Flags().GetString("remote")
	if baseURL == "" {
		baseURL = cfg.Remote.BaseURL
	}
	svc := remote.New(remote.Config{BaseURL: baseURL, APIKey: cfg.Remote.APIKey})

	// Core wiring.
	q, err := queue.New(store)
	if err != nil {
		return fmt.Errorf("open action queue: %w", err)
	}
	ldg, err := ledger.New(store, levels, catalog)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	cch := cache.New(store)

	engine := syncer.New(syncer.Config{
		ActionTimeout: daemon.Duration(cfg.Sync.ActionTimeout, 15*time.Second),
		MaxAttempts:   cfg.Sync.MaxAttempts,
		FeedCacheTTL:  daemon.Duration(cfg.Cache.FeedTTL, 5*time.Minute),
	}, svc, q, ldg, cch, store)

	monitor := netmon.New(daemon.Duration(cfg.Sync.Debounce, netmon.DefaultDebounce))

	core := facade.New(facade.Config{
		FeedTTL:     daemon.Duration(cfg.Cache.FeedTTL, 5*time.Minute),
		ProfileTTL:  daemon.Duration(cfg.Cache.ProfileTTL, 10*time.Minute),
		MessagesTTL: daemon.Duration(cfg.Cache.MessagesTTL, 2*time.Minute),
	}, svc, q, engine, ldg, cch, monitor)

	// Until the shell reports reachability, assume connected so the boot
	// drain can run; the first callback corrects it.
	monitor.Set(domain.NetworkState{Connected: true, Transport: domain.TransportUnknown})
	if q.Len() > 0 {
		engine.TriggerAsync()
	}

	// Periodic retry while actions are pending.
	retry := time.NewTicker(daemon.Duration(cfg.Sync.RetryInterval, time.Minute))
	defer retry.Stop()
	go func() {
		for range retry.C {
			if monitor.Connected() && q.Len() > 0 {
				engine.TriggerAsync()
			}
		}
	}()

	// Local HTTP API.
	server := api.NewServer(core)
	if cfg.API.Metrics {
		server.EnableMetrics()
	}
	httpServer := &http.Server{
		Addr:    cfg.API.Addr(),
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on %s", cfg.API.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Printf("[daemon] received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
