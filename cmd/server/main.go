package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tilerise/internal/config"
	"tilerise/internal/logkit"
	"tilerise/internal/nethttp"
	"tilerise/internal/netws"
	"tilerise/internal/room"
)

func main() {
	var (
		addr    = flag.String("addr", "", "listen address, overrides the config file")
		cfgPath = flag.String("config", "", "path to a yaml config file")
		logFile = flag.String("log", "", "log file path, overrides the config file")
	)
	flag.Parse()

	if err := run(*addr, *cfgPath, *logFile); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(addr, cfgPath, logFile string) error {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	logger, err := logkit.New(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	manager := room.NewManager(cfg, logger)
	defer manager.CloseAll()
	// Warm the default room so probes see it before the first client.
	manager.GetOrCreate("lobby")

	mux := http.NewServeMux()
	mux.Handle("/ws", netws.NewHandler(manager, logger))
	nethttp.New(manager, logger).Register(mux)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", cfg.ListenAddr, "grid", []int{cfg.GridWidth, cfg.GridHeight})
		errCh <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case s := <-sig:
		logger.Infow("shutting down", "signal", s.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
