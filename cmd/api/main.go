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

	"statq/api/internal/app"
	"statq/api/internal/config"
	"statq/api/internal/editor"
	"statq/api/internal/email"
	"statq/api/internal/ratelimit"
	"statq/api/internal/search"
	"statq/api/internal/session"
	"statq/api/internal/store"
	"statq/api/internal/upload"
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

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromPG(ctx)
	}

	var uploads *upload.Service
	if strings.TrimSpace(cfg.UploadEndpoint) != "" {
		uploads, err = upload.New(upload.Config{
			Endpoint:  cfg.UploadEndpoint,
			AccessKey: cfg.UploadAccessKey,
			SecretKey: cfg.UploadSecretKey,
			Bucket:    cfg.UploadBucket,
			UseSSL:    cfg.UploadUseSSL,
		}, upload.DefaultLimits)
		if err != nil {
			log.Fatalf("object store connection failed: %v", err)
		}
	}

	deps := app.Deps{
		Search:  searchService,
		Uploads: uploads,
		Editor: editor.NewManager(dataStore, editor.Options{
			HistoryLimit:  cfg.HistoryLimit,
			AutosaveDelay: cfg.AutosaveDelay,
			MaxRetries:    cfg.AutosaveMaxRetries,
			RetryDelay:    cfg.AutosaveRetryDelay,
		}),
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}

	// Redis backs refresh sessions and submission throttling when
	// configured; otherwise both fall back to process-local state.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for sessions and rate limiting")
		redisSessions, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisSessions.Close()
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis limiter failed: %v", err)
		}
		defer redisLimiter.Close()
		deps.Sessions = redisSessions
		deps.Limiter = redisLimiter
	} else {
		log.Printf("Using PostgreSQL sessions and in-memory rate limiting")
		deps.Limiter = ratelimit.NewMemoryLimiter()
	}

	service := app.New(cfg, dataStore, deps)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.GlobalRatePerSec, cfg.GlobalRateBurst)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("stat-q API listening on %s", cfg.Addr)
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
