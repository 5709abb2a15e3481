/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the station together: schedule, sources, broadcast
// engine, play history, and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/yurets_fm/internal/api"
	"github.com/friendsincode/yurets_fm/internal/broadcast"
	"github.com/friendsincode/yurets_fm/internal/cache"
	"github.com/friendsincode/yurets_fm/internal/clock"
	"github.com/friendsincode/yurets_fm/internal/config"
	"github.com/friendsincode/yurets_fm/internal/engine"
	"github.com/friendsincode/yurets_fm/internal/events"
	"github.com/friendsincode/yurets_fm/internal/history"
	"github.com/friendsincode/yurets_fm/internal/schedule"
	"github.com/friendsincode/yurets_fm/internal/source"
	"github.com/friendsincode/yurets_fm/internal/telegram"
	"github.com/friendsincode/yurets_fm/internal/telemetry"
	"github.com/friendsincode/yurets_fm/internal/version"
)

// Server bundles the HTTP listener and the broadcast machinery.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	router     chi.Router
	httpServer *http.Server

	cache    *cache.Cache
	bus      *events.Bus
	channel  *broadcast.Channel
	engine   *engine.Engine
	history  *history.Service
	telegram *telegram.Client
	tracer   *telemetry.TracerProvider

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	closers  []func() error
}

// New builds a fully wired server. A failing Telegram dial is downgraded to
// a warning; the station runs on local files until the session is fixed.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		bus:    events.NewBus(),
	}

	tracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    "yurets-fm",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.tracer = tracer

	s.cache = cache.New(cache.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}, logger)
	s.closers = append(s.closers, s.cache.Close)

	resolver, err := buildResolver(cfg)
	if err != nil {
		return nil, err
	}

	sources, labeler := s.buildSources(ctx)

	s.channel = broadcast.NewChannel(cfg.StreamMIMEType, cfg.SubscriberQueueChunks, logger, s.bus)

	clk := clock.New()
	s.engine = engine.New(
		resolver,
		sources,
		engine.NewPacer(clk, cfg.AssumedBitrateKbps),
		engine.NewState(clk),
		s.channel,
		s.bus,
		clk,
		logger,
		engine.Options{
			ChunkSize:        cfg.ChunkSize,
			Backoff:          cfg.RetryBackoff,
			LocalFallbackKey: cfg.LocalMusicDir,
		},
	)

	if !cfg.HistoryDisabled {
		hist, err := history.Open(cfg.HistoryDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		s.history = hist
		s.closers = append(s.closers, hist.Close)
	}

	s.router = s.buildRouter(resolver, labeler)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler: s.router,
		// Read/write timeouts stay zero: /stream connections are unbounded
		// and the engine paces writes itself.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// buildResolver loads the slots and builds the resolver. The fallback for
// uncovered minutes is always the local library.
func buildResolver(cfg *config.Config) (*schedule.Resolver, error) {
	var (
		slots []schedule.Slot
		err   error
	)
	if cfg.ScheduleFile != "" {
		slots, err = schedule.LoadYAMLFile(cfg.ScheduleFile)
	} else {
		slots, err = schedule.ParseJSON(cfg.ScheduleJSON)
	}
	if err != nil {
		return nil, err
	}

	// Slots without an explicit key use the per-source default.
	for i := range slots {
		if slots[i].Key != "" {
			continue
		}
		switch slots[i].Source {
		case schedule.SourceTelegram:
			slots[i].Key = cfg.TelegramChannel
		default:
			slots[i].Key = cfg.LocalMusicDir
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	fallback := schedule.Slot{Source: schedule.SourceLocal, Key: cfg.LocalMusicDir}
	return schedule.NewResolver(slots, fallback, loc), nil
}

// buildSources creates the track sources. Telegram is attempted only when
// credentials are configured, and a failed dial leaves the source map
// local-only.
func (s *Server) buildSources(ctx context.Context) (map[schedule.SourceKind]source.Source, api.ChannelLabeler) {
	sources := map[schedule.SourceKind]source.Source{
		schedule.SourceLocal: source.NewLocal(s.cfg.StreamMIMEType, s.logger),
	}

	var browser source.ChannelBrowser
	if s.cfg.TelegramConfigured() {
		client, err := telegram.Dial(ctx, telegram.Options{
			APIID:       s.cfg.TelegramAPIID,
			APIHash:     s.cfg.TelegramAPIHash,
			BotToken:    s.cfg.TelegramBotToken,
			SessionFile: s.cfg.TelegramSession,
		}, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("telegram unavailable, running on local files only")
		} else {
			s.telegram = client
			s.closers = append(s.closers, client.Close)
			browser = client
		}
	}

	tg := source.NewTelegram(
		browser,
		s.cfg.StreamMIMEType,
		s.cfg.TelegramFetchLimit,
		s.cfg.SourceRefresh(),
		s.cache,
		s.logger,
	)
	sources[schedule.SourceTelegram] = tg
	return sources, tg
}

func (s *Server) buildRouter(resolver *schedule.Resolver, labeler api.ChannelLabeler) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("yurets-fm-api"))
	router.Use(telemetry.MetricsMiddleware)

	// A flat timeout would kill every healthy listener; only the JSON
	// surface gets one.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/stream" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	var playLog api.PlayLog
	if s.history != nil {
		playLog = s.history
	}

	apiHandler := api.New(
		s.engine.State(),
		resolver,
		s.channel,
		labeler,
		playLog,
		api.Tunables{
			ChunkSize:      s.cfg.ChunkSize,
			QueueChunks:    s.cfg.SubscriberQueueChunks,
			AssumedBitrate: s.cfg.AssumedBitrateKbps,
			MIMEType:       s.cfg.StreamMIMEType,
			StationName:    "Yurets FM",
			ScheduleTZ:     s.cfg.ScheduleTZ,
		},
		s.logger,
	)
	apiHandler.Routes(router)

	router.Handle("/metrics", telemetry.Handler())
	return router
}

// Start launches the background workers and serves HTTP until ctx is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		_ = s.engine.Run(bgCtx)
	}()

	if s.history != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.history.Consume(bgCtx, s.bus)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", s.httpServer.Addr).
			Str("version", version.Version).
			Msg("http server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		_ = s.Shutdown()
		return err
	}
}

// Shutdown stops the HTTP server, the engine, and every owned resource.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.channel.Close()
	s.bgWG.Wait()

	for _, closeFn := range s.closers {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if s.tracer != nil {
		if terr := s.tracer.Shutdown(context.Background()); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
