package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"

	"github.com/roomtalk/roomtalk/internal/composer"
	"github.com/roomtalk/roomtalk/internal/config"
	"github.com/roomtalk/roomtalk/internal/hub"
	"github.com/roomtalk/roomtalk/internal/logging"
	"github.com/roomtalk/roomtalk/internal/message"
	"github.com/roomtalk/roomtalk/internal/room"
	"github.com/roomtalk/roomtalk/internal/speech"
	"github.com/roomtalk/roomtalk/internal/transport"
	"github.com/roomtalk/roomtalk/internal/transport/local"
	"github.com/roomtalk/roomtalk/internal/transport/surreal"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	Cfg      *config.Config
	Session  *room.Session
	Composer *composer.Composer

	tr              transport.Transport
	pushHub         *hub.Hub
	shutdownTracing func()
}

// New creates a new Server instance. The transport is selected here, once,
// from configuration, and injected everywhere that needs it.
func New() *Server {
	logging.New() // Initialize the structured logger
	cfg := config.New()

	// The degraded callback is bound before the session exists; the
	// indirection keeps transport construction first.
	var sess *room.Session
	markDegraded := func() {
		if sess != nil {
			sess.MarkDegraded()
		}
	}

	tr := newTransport(cfg, markDegraded)

	tracer, shutdownTracing, err := transport.SetupOTel(context.Background(), transport.LoadTracingConfigFromEnv())
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	traced := transport.WithTracing(tr, tracer)

	speaker, recognizer := newSpeechEngine(cfg)

	sess = room.New(traced, speaker)
	comp := composer.New(sess, traced, recognizer)

	// Accepted records fan out to connected websocket clients.
	pushHub := hub.NewHub()
	go pushHub.Run()
	sess.AddListener(func(rec message.Record) {
		payload, err := json.Marshal(rec)
		if err != nil {
			slog.Error("Failed to encode record for push", "id", rec.ID, "error", err)
			return
		}
		pushHub.Broadcast <- payload
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Configure and use session middleware
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
	}
	e.Use(session.Middleware(store))

	// Serve the minimal client page.
	e.Static("/static", "web/static")

	return &Server{
		E:               e,
		Cfg:             cfg,
		Session:         sess,
		Composer:        comp,
		tr:              traced,
		pushHub:         pushHub,
		shutdownTracing: shutdownTracing,
	}
}

// newTransport resolves the transport from configuration presence: backend
// credentials select the realtime backend, their absence selects the
// same-device fallback.
func newTransport(cfg *config.Config, onDegraded func()) transport.Transport {
	switch cfg.Backend() {
	case config.BackendSurreal:
		db, err := surreal.NewDB(context.Background(), cfg)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		opts := []surreal.Option{surreal.WithDegradedFunc(onDegraded)}
		if cfg.ReconcileInterval > 0 {
			opts = append(opts, surreal.WithReconcileInterval(cfg.ReconcileInterval))
		}
		slog.Info("Using realtime backend transport", "url", cfg.DBUrl)
		return surreal.New(db, opts...)

	default:
		store := local.NewStore(afero.NewOsFs(), cfg.ChannelDir)
		slog.Info("No backend configured, using local fallback transport", "channel", store.Path())
		return local.New(store, local.WithPollInterval(cfg.PollInterval))
	}
}

// newSpeechEngine picks the speech adapters: the OpenAI engine when a key
// is configured, the no-op engine otherwise.
func newSpeechEngine(cfg *config.Config) (speech.Speaker, speech.Recognizer) {
	if cfg.OpenAIKey != "" {
		engine := speech.NewEngine(cfg.OpenAIKey)
		return engine, engine
	}
	slog.Info("No speech engine configured, playback and recognition disabled")
	return speech.Noop{}, speech.Noop{}
}
