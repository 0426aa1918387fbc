package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/osadchyi/cansat-ground/internal/export"
	"github.com/osadchyi/cansat-ground/internal/feed"
	"github.com/osadchyi/cansat-ground/internal/session"
	"github.com/osadchyi/cansat-ground/internal/transport"
	"github.com/osadchyi/cansat-ground/internal/transport/blenotify"
	"github.com/osadchyi/cansat-ground/internal/transport/httppoll"
)

const shutdownTimeout = 5 * time.Second

// Run wires the session, the transport factory and the dashboard API,
// then serves until ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	sess := session.New(sessionOptions(config, logger)...)
	srv := feed.NewServer(ctx, sess, createFactory(config, logger),
		feed.WithLogger(logger),
		feed.WithSink(export.FileSink{Dir: config.Export.Directory}),
	)

	server := &http.Server{
		Addr:    config.Server.ListenAddr,
		Handler: srv.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("dashboard listening", slog.String("addr", config.Server.ListenAddr))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil

	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down dashboard: %w", err))
	}
	srv.Close()
	if err := sess.Disconnect(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// createFactory binds the configured transport defaults to the connect
// endpoint. The request's target overrides the configured base URL for
// HTTP polling and the name prefix for BLE.
func createFactory(config *Config, logger *slog.Logger) feed.TransportFactory {
	return func(kind, target string) (transport.Transport, error) {
		switch kind {
		case httppoll.Kind:
			cfg := config.HTTP
			if target != "" {
				cfg.Target = target
			}
			return httppoll.New(cfg, httppoll.WithLogger(logger))

		case blenotify.Kind:
			cfg := config.BLE
			if target != "" {
				cfg.NamePrefix = target
			}
			return blenotify.New(cfg, blenotify.WithLogger(logger))

		default:
			return nil, fmt.Errorf("creating transport: unknown type '%s'", kind)
		}
	}
}

func sessionOptions(config *Config, logger *slog.Logger) []func(s *session.Session) {
	options := []func(s *session.Session){
		session.WithLogger(logger),
		session.WithClearLatestOnDisconnect(config.Session.ClearLatestOnDisconnect),
	}
	if config.Session.SampleBacklog > 0 {
		options = append(options, session.WithSampleBacklog(config.Session.SampleBacklog))
	}

	return options
}
