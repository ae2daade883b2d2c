package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/flatmapit/dicom-maker/internal/cache"
	"github.com/flatmapit/dicom-maker/internal/config"
	"github.com/flatmapit/dicom-maker/internal/database"
	"github.com/flatmapit/dicom-maker/internal/generator"
	"github.com/flatmapit/dicom-maker/internal/handlers"
	"github.com/flatmapit/dicom-maker/internal/middleware"
	"github.com/flatmapit/dicom-maker/internal/repository"
	"github.com/flatmapit/dicom-maker/internal/services"
	"github.com/flatmapit/dicom-maker/internal/storage"
	"github.com/flatmapit/dicom-maker/internal/uid"
	"github.com/flatmapit/dicom-maker/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting DICOM Maker")

	// Connect to database
	dbConfig := database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		LogLevel: cfg.Database.LogLevel,
	}

	if err := database.Connect(dbConfig); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory cache initialized")
	}

	// Initialize study store
	store, err := storage.NewStore(cfg.DICOM.StudyDir, logger.With("storage"))
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DICOM.StudyDir).Msg("Failed to open study store")
	}

	// Initialize repositories
	targetRepo := repository.NewTargetRepository()
	txRepo := repository.NewTransmissionRepository()

	// Initialize services
	uids := uid.NewGenerator(cfg.DICOM.UIDRoot)
	gen := generator.New(uids, logger.With("generator"))
	dicomService := services.NewDICOMService(
		targetRepo, txRepo, gen, store, cacheImpl,
		cfg.DICOM, cfg.Cache.VerifyTTL, logger.With("dimse"),
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	studyHandler := handlers.NewStudyHandler(dicomService)
	targetHandler := handlers.NewTargetHandler(dicomService)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API
	r.Route("/api/v1", func(r chi.Router) {
		// Synthetic studies
		r.Post("/studies", studyHandler.CreateStudy)
		r.Get("/studies", studyHandler.ListStudies)
		r.Get("/studies/{studyUID}", studyHandler.GetStudy)
		r.Delete("/studies/{studyUID}", studyHandler.DeleteStudy)
		r.Post("/studies/{studyUID}/export", studyHandler.ExportStudy)

		// Archive targets
		r.Post("/targets", targetHandler.CreateTarget)
		r.Get("/targets", targetHandler.ListTargets)
		r.Get("/targets/{id}", targetHandler.GetTarget)
		r.Put("/targets/{id}", targetHandler.UpdateTarget)
		r.Delete("/targets/{id}", targetHandler.DeleteTarget)
		r.Post("/targets/{id}/verify", targetHandler.VerifyTarget)
		r.Post("/targets/{id}/send", targetHandler.SendStudy)
		r.Get("/targets/{id}/history", targetHandler.TargetHistory)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
