package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"versionvibe/cache"
	"versionvibe/config"
	"versionvibe/core/ingest"
	"versionvibe/core/realtime"
	"versionvibe/db"
	"versionvibe/logger"
	"versionvibe/repository"
	"versionvibe/storage"

	"github.com/gorilla/mux"
)

// Start initializes every collaborator and runs the HTTP server until
// a shutdown signal arrives.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/versionvibe.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})

	if err := storage.InitMinio(cfg); err != nil {
		log.Fatalf("Failed to initialize MinIO: %v", err)
	}

	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	if err := cache.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()

	hub := realtime.NewHub()
	go hub.Run()
	defer hub.Stop()

	commentRepo := repository.NewMySQLCommentRepository(db.DB)
	userRepo := repository.NewMySQLUserRepository(db.DB)
	versionRepo := repository.NewGormVersionRepository(db.GormDB)
	projectRepo := repository.NewGormProjectRepository(db.GormDB)

	apiHandler := NewAPIHandler(commentRepo, versionRepo, projectRepo, userRepo, hub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := ingest.NewWatcher(cfg, versionRepo)
	if err != nil {
		log.Fatalf("Failed to start ingest watcher: %v", err)
	}
	watcher.OnVersionCreated = apiHandler.sessions.Reload
	go watcher.Run(ctx)
	defer watcher.Stop()

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// Comments
	router.HandleFunc("/api/versions/{version_id}/comments",
		apiHandler.AuthMiddleware(apiHandler.ListCommentsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/versions/{version_id}/comments",
		apiHandler.AuthMiddleware(apiHandler.CreateCommentHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/comments/{comment_id}",
		apiHandler.AuthMiddleware(apiHandler.UpdateCommentHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/comments/{comment_id}",
		apiHandler.AuthMiddleware(apiHandler.DeleteCommentHandler)).Methods(http.MethodDelete)

	// Versions
	router.HandleFunc("/api/tracks/{track_id}/versions",
		apiHandler.AuthMiddleware(apiHandler.ListVersionsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/versions/{version_id}",
		apiHandler.AuthMiddleware(apiHandler.RenameVersionHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/versions/{version_id}",
		apiHandler.AuthMiddleware(apiHandler.DeleteVersionHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/versions/{version_id}/url",
		apiHandler.AuthMiddleware(apiHandler.ResolveVersionURLHandler)).Methods(http.MethodGet)

	// Realtime
	router.HandleFunc("/api/ws/projects/{project_id}",
		apiHandler.AuthMiddleware(apiHandler.ProjectEventsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/ws/sessions/{track_id}",
		apiHandler.AuthMiddleware(apiHandler.SessionHandler)).Methods(http.MethodGet)

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "versionvibe"})
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", logger.ErrorField(err))
	}
}

// corsMiddleware allows the web client to talk to the API from a
// different origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
