package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/newsroomkit/editorial/pkg/editorial"
	"github.com/newsroomkit/editorial/pkg/editorial/api"
	"github.com/newsroomkit/editorial/pkg/editorial/config"
)

func main() {
	serverConfig, err := loadServerConfig()
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	catalog, err := loadSlotCatalog(os.Getenv("SLOTS_FILE"))
	if err != nil {
		slog.Error("Failed to load slot catalog", "err", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService(catalog)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	images, err := serverConfig.BuildImageStore()
	if err != nil {
		slog.Error("Failed to build image store", "err", err)
		os.Exit(1)
	}

	server := NewHTTPServer(svc, images, serverConfig)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: server.Routes(),
	}

	go func() {
		slog.Info("Editorial server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"image_store", serverConfig.ImageStore.Type)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

// HTTPServer wraps the editorial service for HTTP access
type HTTPServer struct {
	service editorial.Service
	images  editorial.ImageStore
	config  *config.ServerConfig
}

// NewHTTPServer creates a new HTTP server wrapper
func NewHTTPServer(service editorial.Service, images editorial.ImageStore, serverConfig *config.ServerConfig) *HTTPServer {
	return &HTTPServer{
		service: service,
		images:  images,
		config:  serverConfig,
	}
}

// Routes sets up the HTTP routes
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Verified tokens take precedence over the X-User-ID header inside the
	// handlers' ActingUser middleware.
	if s.config.JWTSecret != "" {
		tokenAuth := jwtauth.New("HS256", []byte(s.config.JWTSecret), nil)
		r.Use(jwtauth.Verifier(tokenAuth))
	}

	// CORS for development
	if s.config.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", s.handleHealth)

	handler := api.NewPostHandler(s.service, s.images)
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/posts", handler.Routes())
	})

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":      "ok",
		"environment": s.config.Environment,
	})
}
