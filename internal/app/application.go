package app

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"codesign/internal/api"
	"codesign/internal/auth"
	"codesign/internal/config"
	"codesign/internal/database"
	"codesign/internal/dispatch"
	"codesign/internal/gateway"
	"codesign/internal/presence"
	"codesign/internal/router"
	"codesign/internal/session"
	"codesign/internal/websocket"
	"codesign/pkg/interfaces"
)

// Application coordinates all system components.
// ARCHITECTURAL DISCOVERY: Component initialization follows strict
// dependency order: Database → Session → Presence → Registry → Router →
// Gateways → Dispatcher → Handlers → HTTP.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	dbManager  *database.Manager
	sessions   *session.Manager
	presence   *presence.Store
	registry   *websocket.Registry
	httpServer *http.Server
}

// NewApplication creates an application instance with all components wired.
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Auth.TokenSecret == "" {
		return nil, fmt.Errorf("auth token secret is required (set CODESIGN_AUTH_TOKEN_SECRET)")
	}

	dbManager, err := database.NewManager(cfg.Database.Path, cfg.Database.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	sessions := session.NewManager(dbManager, logger)
	if err := sessions.LoadSessions(context.Background()); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	presenceStore := presence.NewStore(cfg.Presence.TTL, cfg.Presence.TypingTTL, logger)
	registry := websocket.NewRegistry(logger)
	eventRouter := router.NewRouter(registry, logger)

	var facilitation interfaces.FacilitationGateway = gateway.Disabled{}
	var transcription interfaces.TranscriptionGateway = gateway.Disabled{}
	if cfg.Gateway.APIKey != "" {
		var speech *gateway.Speech
		if cfg.Gateway.AudioDir != "" {
			speech, err = gateway.NewSpeech(context.Background(), cfg.Gateway.APIKey,
				cfg.Gateway.TTSModel, cfg.Gateway.TTSVoice, cfg.Gateway.AudioDir, logger)
			if err != nil {
				dbManager.Close()
				return nil, fmt.Errorf("failed to initialize speech synthesizer: %w", err)
			}
		}
		f, err := gateway.NewGeminiFacilitator(context.Background(), cfg.Gateway.APIKey, cfg.Gateway.FacilitationModel, speech, logger)
		if err != nil {
			dbManager.Close()
			return nil, fmt.Errorf("failed to initialize facilitation gateway: %w", err)
		}
		t, err := gateway.NewGeminiTranscriber(context.Background(), cfg.Gateway.APIKey, cfg.Gateway.TranscriptionModel, logger)
		if err != nil {
			dbManager.Close()
			return nil, fmt.Errorf("failed to initialize transcription gateway: %w", err)
		}
		facilitation, transcription = f, t
	} else {
		logger.Warn("no gateway API key configured, facilitation and transcription are disabled")
	}

	verifier, err := auth.NewHMACVerifier(cfg.Auth.TokenSecret)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	dispatcher := dispatch.NewDispatcher(
		eventRouter, sessions, presenceStore,
		facilitation, transcription,
		dbManager, dbManager,
		cfg.Gateway.CallTimeout, logger,
	)

	wsHandler := websocket.NewHandler(
		registry, sessions, presenceStore, verifier,
		eventRouter, dispatcher,
		cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout,
		logger,
	)

	apiServer := api.NewServer(sessions, dbManager, registry, eventRouter, verifier, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	if cfg.Gateway.AudioDir != "" {
		// Synthesized facilitation audio referenced by tts_audio_url.
		mux.Handle("/audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(cfg.Gateway.AudioDir))))
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		dbManager:  dbManager,
		sessions:   sessions,
		presence:   presenceStore,
		registry:   registry,
		httpServer: httpServer,
	}, nil
}

// Run serves until the context is cancelled, then shuts down in reverse
// dependency order: HTTP → presence sweeper → database.
func (app *Application) Run(ctx context.Context) error {
	app.presence.StartSweeper(app.config.Presence.SweepEvery)
	app.logger.Info("starting application", zap.String("addr", app.httpServer.Addr))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.HTTP.WriteTimeout)
		defer cancel()
		if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
			app.logger.Warn("HTTP server shutdown error", zap.Error(err))
		}

		app.presence.Stop()

		if err := app.dbManager.Close(); err != nil {
			app.logger.Warn("database shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	app.logger.Info("shutdown complete")
	return err
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
