package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"morpho/internal/config"
	"morpho/internal/convert"
	server "morpho/internal/http"
	"morpho/internal/jobs"
	"morpho/internal/migrate"
	"morpho/internal/storage"
	"morpho/internal/store"
	"morpho/internal/tools"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Run migrations on a short-lived connection
	if err := migrate.Run(cfg.Database.Driver, cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	// Create a shared *sql.DB with pooling for the Store
	driverName, err := migrate.SQLDriverName(cfg.Database.Driver)
	if err != nil {
		log.Fatalf("resolve db driver failed: %v", err)
	}
	db, err := sql.Open(driverName, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	// Basic pool settings; adjust as needed
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	st := store.New(db)

	// Ensure initial admin API key if configured
	if cfg.Auth.Enabled && cfg.Auth.InitialAdminKey != "" {
		if _, err := st.EnsureAdminAPIKey(context.Background(), cfg.Auth.InitialAdminKey, "initial-admin"); err != nil {
			log.Fatalf("ensure admin api key failed: %v", err)
		}
	}

	files, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatalf("init upload storage failed: %v", err)
	}

	catalog := tools.Empty()
	if cfg.Tools.CatalogPath != "" {
		catalog, err = tools.Load(cfg.Tools.CatalogPath, cfg.Tools.PagesDir)
		if err != nil {
			log.Fatalf("load tool catalog failed: %v", err)
		}
	}

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	rootCtx := context.Background()

	sched := convert.NewScheduler(rootCtx, cfg, st, logger)

	switch *role {
	case "api":
		// API-only: no retention sweeper.
		s := server.NewServer(cfg, st, files, catalog, sched, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case "worker":
		// Worker-only: run the retention sweeper and block.
		jobs.StartRetentionSweeper(rootCtx, cfg, st, files, logger)
		select {}
	case "all":
		// Default: run both API and sweeper in one process.
		jobs.StartRetentionSweeper(rootCtx, cfg, st, files, logger)
		s := server.NewServer(cfg, st, files, catalog, sched, logger)
		if err := s.Listen(); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	default:
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}
