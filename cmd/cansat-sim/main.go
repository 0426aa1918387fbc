package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osadchyi/cansat-ground/internal/sim"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var (
		addr   string
		seed   int64
		reject bool
	)
	flag.StringVar(&addr, "addr", ":8645", "Address to serve the simulated device on")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "Seed for the flight model")
	flag.BoolVar(&reject, "reject", false, "Refuse connection handshakes")
	flag.Parse()

	device := sim.NewServer(sim.NewFlight(seed), sim.WithLogger(logger), sim.WithReject(reject))
	server := &http.Server{Addr: addr, Handler: device.Router()}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("simulated device listening", slog.String("addr", addr), slog.Int64("seed", seed))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err.Error())
			os.Exit(1)
		}

	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(err.Error())
			os.Exit(1)
		}
	}
}
