package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/welldanyogia/mail-attachment-sync/internal/blobstore"
	"github.com/welldanyogia/mail-attachment-sync/internal/config"
	"github.com/welldanyogia/mail-attachment-sync/internal/health"
	"github.com/welldanyogia/mail-attachment-sync/internal/logger"
	"github.com/welldanyogia/mail-attachment-sync/internal/mailbox"
	"github.com/welldanyogia/mail-attachment-sync/internal/parser"
	"github.com/welldanyogia/mail-attachment-sync/internal/persister"
	"github.com/welldanyogia/mail-attachment-sync/internal/recordstore"
	"github.com/welldanyogia/mail-attachment-sync/internal/syncer"
	"github.com/welldanyogia/mail-attachment-sync/internal/trigger"
	"github.com/welldanyogia/mail-attachment-sync/internal/uploader"
)

func main() {
	log := logger.New(logger.DefaultConfig())

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Record store (optional)
	var store *recordstore.PostgresStore
	if cfg.Sync.PersistEnabled {
		db, err := setupDatabase(cfg)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = recordstore.NewPostgresStore(db)
	}

	// Blob store (optional)
	var blobs uploader.BlobStore
	if cfg.Sync.UploadEnabled {
		blobs = blobstore.NewS3Store(&cfg.Storage)
	}

	// Connect every configured mailbox up front. Any connection failure
	// here is fatal: a pass must never run against a partial set.
	conns := syncer.NewConnections()
	for _, cred := range cfg.Sync.Mailboxes {
		session, err := mailbox.Connect(cred)
		if err != nil {
			log.Error("failed to connect mailbox", "mailbox", cred.Email, "error", err)
			os.Exit(1)
		}
		defer session.Close()
		conns.Add(cred.Email, session)
		log.Info("connected mailbox", "mailbox", cred.Email)
	}

	s := syncer.New(
		cfg.Sync,
		conns,
		parser.NewMessageParser(log),
		uploader.New(blobs, cfg.Sync.UploadFolderID, cfg.Sync.UploadEnabled, log),
		persister.New(store, cfg.Sync.PersistEnabled, log),
		log,
	)

	if !cfg.Server.Enabled {
		// One-shot mode: run a single pass and exit.
		if err := s.Run(context.Background()); err != nil {
			log.Error("sync pass failed", "error", err)
			os.Exit(1)
		}
		log.Info("sync pass completed")
		return
	}

	runServer(cfg, s, store, log)
}

// runServer serves the sync trigger, health, and metrics endpoints
// until SIGINT/SIGTERM.
func runServer(cfg *config.Config, s *syncer.Syncer, store *recordstore.PostgresStore, log *slog.Logger) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	healthHandler := health.NewHandler(pingerOrNil(store), 5*time.Second)
	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	trigger.RegisterRoutes(r, trigger.NewHandler(s, log))

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Sync passes run synchronously inside the request, so the
		// write timeout has to outlast a full pass.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

// pingerOrNil keeps the health handler's nil check working: a typed nil
// *PostgresStore must not become a non-nil interface value.
func pingerOrNil(store *recordstore.PostgresStore) health.Pinger {
	if store == nil {
		return nil
	}
	return store
}

// setupDatabase opens and verifies the database connection pool
func setupDatabase(cfg *config.Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
