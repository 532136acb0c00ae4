package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ip-workflow-service/internal/auth"
	"ip-workflow-service/internal/config"
	"ip-workflow-service/internal/db"
	httphandler "ip-workflow-service/internal/http"
	"ip-workflow-service/internal/http/middleware"
	"ip-workflow-service/internal/logger"
	"ip-workflow-service/internal/notify"
	"ip-workflow-service/internal/repository"
	"ip-workflow-service/internal/service"
	"ip-workflow-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	txManager := repository.NewTransactionManager(database)
	catalogRepo := repository.NewCatalogRepository(database)
	submissionRepo := repository.NewSubmissionRepository(database)
	documentRepo := repository.NewDocumentRepository(database)
	trackingRepo := repository.NewTrackingRepository(database)

	var (
		blobs service.BlobStore
		files httphandler.FileStore
	)
	minioStore, err := storage.NewMinioStore(cfg.Storage)
	switch {
	case err == nil:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := minioStore.EnsureBucket(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("blob store unavailable")
		}
		cancel()
		blobs, files = minioStore, minioStore
	case errors.Is(err, storage.ErrNotConfigured):
		log.Warn().Msg("STORAGE_ENDPOINT not set; uploads are disabled")
	default:
		log.Fatal().Err(err).Msg("failed to create blob store")
	}

	var delivery service.Notifier = notify.NewLogNotifier(log)
	if cfg.MailEnabled() {
		delivery = notify.NewMailNotifier(cfg.SMTP, cfg.Notify, log)
	}
	notifier := notify.NewAsync(delivery, notify.AsyncConfig{
		Workers:   cfg.Notify.Workers,
		QueueSize: cfg.Notify.QueueSize,
		Timeout:   cfg.Notify.Timeout,
	}, log)

	recorder := service.NewRecorder(trackingRepo, time.Now)
	catalogService := service.NewCatalogService(txManager, catalogRepo, submissionRepo)
	documentService := service.NewDocumentService(service.DocumentServiceDeps{
		Tx:       txManager,
		Subs:     submissionRepo,
		Docs:     documentRepo,
		Catalog:  catalogService,
		Recorder: recorder,
		Blobs:    blobs,
		Notifier: notifier,
		Log:      log,
		Now:      time.Now,
	})
	workflowService := service.NewWorkflowService(service.WorkflowServiceDeps{
		Tx:        txManager,
		Subs:      submissionRepo,
		Catalog:   catalogService,
		Documents: documentService,
		Recorder:  recorder,
		Blobs:     blobs,
		Notifier:  notifier,
		Log:       log,
		Now:       time.Now,
	})
	projectorService := service.NewProjectorService(submissionRepo, trackingRepo, documentRepo, catalogRepo, time.Now, cfg.Workflow.RecentActivityLimit)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(httphandler.HandlerDeps{
		Catalog:        catalogService,
		Workflow:       workflowService,
		Documents:      documentService,
		Projector:      projectorService,
		Files:          files,
		MaxUploadBytes: cfg.Storage.MaxSizeMB << 20,
		Log:            log,
	})
	health := func(ctx context.Context) error { return db.HealthCheck(ctx, database) }
	router := httphandler.NewRouter(handler, middleware.Auth(tokenParser), health, cfg.Environment, log)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("starting ip workflow service")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := notifier.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("pending notifications dropped")
	}
	db.Close(database)
}
