package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/api"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/database"
	"rollcall/internal/router"
	"rollcall/internal/session"
	"rollcall/internal/websocket"
)

// Application wires all components together. Initialization follows
// dependency order: database, session registry, connection registry,
// router, transport handler, REST server, HTTP server.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	db         *database.Manager
	sessions   *session.Registry
	registry   *websocket.Registry
	events     *router.Router
	httpServer *http.Server
}

// New builds an application from configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewManager(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sessions := session.NewRegistry(db, db, logger)
	registry := websocket.NewRegistry(logger)
	events := router.NewRouter(sessions, registry, db, logger)
	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.TTL)
	wsHandler := websocket.NewHandler(registry, sessions, events, db, tokens, logger)
	restServer := api.NewServer(db, db, db, sessions, events, tokens, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), cors())
	restServer.RegisterRoutes(engine)
	engine.GET("/ws", wsHandler.Handle)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		db:         db,
		sessions:   sessions,
		registry:   registry,
		events:     events,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is accepting
// connections or startup fails.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting rollcall", zap.String("addr", app.httpServer.Addr))

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("rollcall started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP first so no new events
// arrive, then the database.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down rollcall")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP shutdown error", zap.Error(err))
	}
	for _, conn := range app.registry.All() {
		_ = conn.Close()
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn("database shutdown error", zap.Error(err))
	}

	app.logger.Info("rollcall shutdown complete")
	return nil
}

// Addr returns the server listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}

// requestLogger logs completed HTTP requests.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// cors allows the browser client to call from a different origin.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
