package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quipslop/quipcast/pkg/config"
	"github.com/quipslop/quipcast/pkg/history"
	"github.com/quipslop/quipcast/pkg/hub"

	"github.com/rs/zerolog/log"
)

func serveCommand(configs []string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := history.InitDB(cfg.Hub.Database)
	if err != nil {
		return fmt.Errorf("could not open history database %s: %w", cfg.Hub.Database, err)
	}
	archive := history.NewArchive(db)

	stateHub := hub.New(cfg.Hub.ProtocolVersion, cfg.Hub.ViewerBuffer, archive)
	server := &http.Server{
		Addr:    cfg.Hub.Address,
		Handler: stateHub.Routes(archive),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Hub.Address).Msg("hub listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
