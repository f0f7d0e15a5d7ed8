// croftd is the sensor analytics API daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtxerr/croft/internal/analytics"
	"github.com/xtxerr/croft/internal/archive"
	"github.com/xtxerr/croft/internal/ingest"
	"github.com/xtxerr/croft/internal/jobs"
	"github.com/xtxerr/croft/internal/loader"
	"github.com/xtxerr/croft/internal/logging"
	"github.com/xtxerr/croft/internal/retention"
	"github.com/xtxerr/croft/internal/server"
	"github.com/xtxerr/croft/internal/store"
	"github.com/xtxerr/croft/internal/tasks"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "database path or DSN (overrides config)")
	dbDriver := flag.String("db-driver", "", "database driver: duckdb or postgres (overrides config)")
	redisAddr := flag.String("redis", "", "redis address (overrides config)")
	workers := flag.Int("workers", 0, "task worker count (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "log as JSON")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("croftd %s\n", Version)
		return
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Printf("croftd %s starting...", Version)

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("No config file found, using defaults")
			cfg = loader.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dbDriver != "" {
		cfg.Database.Driver = *dbDriver
	}
	if *dbPath != "" {
		if cfg.Database.Driver == "postgres" {
			cfg.Database.DSN = *dbPath
		} else {
			cfg.Database.Path = *dbPath
		}
	}
	if *redisAddr != "" {
		cfg.Broker.Addr = *redisAddr
	}
	if *workers > 0 {
		cfg.Workers.Count = *workers
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	if err := loader.Validate(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)

	// =========================================================================
	// Initialize Store (DuckDB or Postgres)
	// =========================================================================

	storeCfg := store.DefaultConfig()
	storeCfg.Driver = cfg.Database.Driver
	storeCfg.Path = cfg.Database.Path
	storeCfg.DSN = cfg.Database.DSN

	if cfg.Database.Driver == "duckdb" {
		log.Printf("Initializing store: duckdb path=%s", cfg.Database.Path)
	} else {
		log.Printf("Initializing store: %s", cfg.Database.Driver)
	}

	st, err := store.New(storeCfg)
	if err != nil {
		log.Fatalf("Create store: %v", err)
	}

	// =========================================================================
	// Initialize Broker (Redis task queue)
	// =========================================================================

	broker := tasks.NewBroker(tasks.BrokerConfig{
		Addr:     cfg.Broker.Addr,
		Password: cfg.Broker.Password,
		DB:       cfg.Broker.DB,
		QueueKey: cfg.Broker.QueueKey,
		StateTTL: cfg.Broker.TaskStateTTL.Duration(),
	})

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := broker.Ping(pingCtx); err != nil {
		log.Printf("Warning: broker unreachable at %s: %v (async ingestion degraded until it returns)",
			cfg.Broker.Addr, err)
	}
	cancelPing()

	// =========================================================================
	// Assemble Components
	// =========================================================================

	engine := analytics.NewEngine(st, analytics.Config{
		Percentiles:    cfg.Analytics.Percentiles,
		SketchAccuracy: cfg.Analytics.SketchAccuracy,
	})

	sweeper := retention.New(st, retention.Config{
		MaxAge:             cfg.Retention.MaxAge.Duration(),
		ArchiveEnabled:     cfg.Retention.Archive.Enabled,
		ArchiveDir:         cfg.Retention.Archive.Dir,
		ArchiveCompression: archive.CompressionZstd,
	})

	dispatcher := ingest.New(st, broker, ingest.DefaultConfig())

	// =========================================================================
	// Start Worker Pool
	// =========================================================================

	pool := tasks.NewPool(broker, tasks.PoolConfig{
		Workers:      cfg.Workers.Count,
		DrainTimeout: time.Duration(cfg.Workers.DrainTimeoutSec) * time.Second,
	})
	jobs.Register(pool, jobs.Deps{
		Store:   st,
		Engine:  engine,
		Sweeper: sweeper,
		Broker:  broker,
	})
	pool.Start()
	log.Printf("Worker pool started (workers=%d)", cfg.Workers.Count)

	// =========================================================================
	// Start Scheduler (daily rollup and cleanup)
	// =========================================================================

	sched := tasks.NewScheduler(broker)
	if cfg.Rollup.Enabled {
		sched.AddDaily(tasks.KindCalculateDailyStats, cfg.Rollup.Hour, nil)
		log.Printf("Daily rollup scheduled (hour=%02d:00 UTC)", cfg.Rollup.Hour)
	}
	sched.AddDaily(tasks.KindCleanupOldData, cfg.Retention.CleanupHour, nil)
	log.Printf("Daily cleanup scheduled (hour=%02d:00 UTC, max_age=%s)",
		cfg.Retention.CleanupHour, cfg.Retention.MaxAge.Duration())
	sched.Start()

	// =========================================================================
	// Create Server
	// =========================================================================

	srv := server.New(&server.Config{
		Listen:         cfg.Listen,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Version:        Version,
		Store:          st,
		Engine:         engine,
		Dispatcher:     dispatcher,
		Broker:         broker,
	})

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sig
		log.Println("Shutting down...")

		// Stop accepting requests first
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: server shutdown: %v", err)
		}
		cancel()

		// No new scheduled tasks
		sched.Stop()

		// Drain in-flight tasks
		pool.Stop()

		// Close connections last
		if err := broker.Close(); err != nil {
			log.Printf("Warning: broker close: %v", err)
		}
		if err := st.Close(); err != nil {
			log.Printf("Warning: store close: %v", err)
		}
	}()

	// =========================================================================
	// Run
	// =========================================================================

	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	<-done
	log.Println("Shutdown complete")
}
