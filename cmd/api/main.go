package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/app"
	"marginalia/api/internal/blob"
	"marginalia/api/internal/config"
	"marginalia/api/internal/doccache"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
	"marginalia/api/internal/suggest"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	spans := annotation.NewStore(dataStore)
	lifecycle := annotation.NewLifecycle(spans)

	var cache doccache.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := doccache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		log.Printf("Using Redis for document text cache")
		cache = redisCache
	} else {
		lruCache, err := doccache.NewLRUCache(0)
		if err != nil {
			log.Fatalf("lru cache init failed: %v", err)
		}
		log.Printf("Using in-process LRU for document text cache")
		cache = lruCache
	}
	defer cache.Close()

	var archive *blob.Archive
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err = blob.New(blob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio init failed: %v", err)
		}
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	defer searchService.Close()
	searchService.ReindexAllFromPG(ctx)

	suggestClient := suggest.New(cfg.SuggesterURL, cfg.SuggesterTimeout)

	service := app.New(cfg, dataStore, spans, lifecycle, cache, archive, searchService, suggestClient)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Marginalia API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
