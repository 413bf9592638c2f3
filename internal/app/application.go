package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"collabboard/internal/api"
	"collabboard/internal/auth"
	"collabboard/internal/config"
	"collabboard/internal/hub"
	"collabboard/internal/router"
	"collabboard/internal/session"
	"collabboard/internal/store"
	"collabboard/internal/websocket"
	pkgdatabase "collabboard/pkg/database"
)

// Application coordinates all system components with dependency injection.
// Initialization order: Store → Registry → Router → Hub → API → HTTP.
type Application struct {
	config     *config.Config
	boardStore *store.Manager
	registry   *session.Registry
	router     *router.Router
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates an application with all components initialized and
// the schema migrated.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	boardStore, err := store.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize board store: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(boardStore.GetDB())
	if err := migrationManager.ApplyMigrations(); err != nil {
		boardStore.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	verifier, err := auth.NewVerifier([]byte(cfg.Auth.SigningKey))
	if err != nil {
		boardStore.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	registry := session.NewRegistry()
	eventRouter := router.NewRouter(registry)
	sessionHub := hub.NewHub(eventRouter)
	apiServer := api.NewServer(boardStore, verifier, registry)
	wsHandler := websocket.NewHandler(verifier, boardStore, sessionHub)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		boardStore: boardStore,
		registry:   registry,
		router:     eventRouter,
		hub:        sessionHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. The hub starts first so joins can be processed the
// moment the HTTP server accepts connections.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting collabboard application on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Collabboard application started successfully")
		return nil
	case <-ctx.Done():
		app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → Hub → Store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down collabboard application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := app.hub.Stop(); err != nil {
		log.Printf("Session hub shutdown error: %v", err)
	}

	if err := app.boardStore.Close(); err != nil {
		log.Printf("Board store shutdown error: %v", err)
	}

	log.Printf("Collabboard application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
