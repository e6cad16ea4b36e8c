package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dnicheck/internal/api"
	"dnicheck/internal/config"
	"dnicheck/internal/queue"
	"dnicheck/internal/storage"
	"dnicheck/internal/store"
	"dnicheck/internal/verifier"
	"dnicheck/internal/websocket"

	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer jobs.Close()

	storageService, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	artifacts, err := openArtifacts(ctx, cfg.Storage, storageService)
	if err != nil {
		log.Fatalf("Failed to initialize result storage: %v", err)
	}
	defer artifacts.Close()

	if cfg.Verifier.URL == "" {
		log.Println("verifier.url is not set, every lookup will report ERROR")
	}
	client := verifier.NewClient(verifier.Config{
		URL:          cfg.Verifier.URL,
		User:         cfg.Verifier.User,
		Password:     cfg.Verifier.Password,
		DocumentType: cfg.Verifier.DocumentType,
		Timeout:      cfg.Verifier.Timeout(),
	})

	pool, err := ants.NewPool(cfg.Workers.PoolSize,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			log.Printf("Worker panic: %v", p)
		}),
	)
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	q := queue.NewQueue(ctx, jobs, client, artifacts, pool, hub)
	apiServer := api.NewServer(q, storageService, client, hub)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.GetRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.Address)
		log.Printf("WebSocket endpoint: ws://%s/ws", cfg.Server.Address)
		log.Printf("Job store: %s, result storage: %s", cfg.Store.Driver, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	// Running jobs see the cancelled context and fail before their next row
	if err := pool.ReleaseTimeout(15 * time.Second); err != nil {
		log.Printf("Worker pool release: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "redis":
		return store.NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.TTL())
	case "postgres":
		// Unknown task ids are an expected lookup miss, not worth logging
		newLogger := logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  true,
			},
		)
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			Logger: newLogger,
		})
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(db)
	default:
		return store.NewMemoryStore(), nil
	}
}

func openArtifacts(ctx context.Context, cfg config.StorageConfig, local *storage.Storage) (storage.ArtifactStore, error) {
	if cfg.Driver == "gcs" {
		return storage.NewGCSArtifacts(ctx, cfg.GCSBucket)
	}
	return local, nil
}
