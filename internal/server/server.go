package server

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/kartoza/funding-explorer/internal/api"
	"github.com/kartoza/funding-explorer/internal/config"
	"github.com/kartoza/funding-explorer/internal/explorer"
	"github.com/kartoza/funding-explorer/internal/model"
)

//go:embed static/*
var staticFS embed.FS

// warmTimeout bounds the initial dataset load
const warmTimeout = 2 * time.Minute

// Server holds all the components for the web application
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *mux.Router
	svc        *explorer.Service
}

// New creates a new Server with all components initialized
func New(cfg config.Config) (*Server, error) {
	osFs := afero.NewOsFs()

	svc, err := explorer.New(explorer.Options{
		Fs:         osFs,
		DataDir:    cfg.DataDir,
		Classifier: model.Open(osFs, cfg.ModelPath),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer: %w", err)
	}

	// Load the dataset up front; a missing dataset leaves the dataset
	// routes answering 503 until one is installed or reloaded
	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()
	if err := svc.Warm(ctx); err != nil {
		log.Printf("Warning: dataset not available: %v", err)
	}

	return NewWithService(cfg, svc), nil
}

// NewWithService creates a Server around an existing explorer service
func NewWithService(cfg config.Config, svc *explorer.Service) *Server {
	s := &Server{
		cfg:    cfg,
		router: mux.NewRouter(),
		svc:    svc,
	}
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// API routes
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiHandler := api.NewHandler(s.svc, s.cfg)
	apiHandler.RegisterRoutes(apiRouter)

	// Dataset management routes
	apiRouter.HandleFunc("/dataset/status", s.handleDatasetStatus).Methods("GET")
	apiRouter.HandleFunc("/dataset/reload", s.handleDatasetReload).Methods("POST")
	apiRouter.HandleFunc("/dataset/install", s.handleDatasetInstall).Methods("POST")

	// Static frontend files (embedded)
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Printf("Warning: Could not load embedded static files: %v", err)
		return
	}

	fileServer := http.FileServer(http.FS(staticContent))
	s.router.PathPrefix("/").Handler(spaHandler{staticContent: staticContent, fileServer: fileServer})
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server listening on http://localhost:%d", s.cfg.Port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// spaHandler serves the single page, falling back to index.html for
// unknown paths
type spaHandler struct {
	staticContent fs.FS
	fileServer    http.Handler
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "index.html"
	}

	// fs.FS paths must not have a leading slash
	cleanPath := strings.TrimPrefix(path, "/")

	if _, err := fs.Stat(h.staticContent, cleanPath); err != nil {
		r.URL.Path = "/"
	}

	h.fileServer.ServeHTTP(w, r)
}
