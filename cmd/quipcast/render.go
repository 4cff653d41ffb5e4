package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quipslop/quipcast/pkg/assets"
	"github.com/quipslop/quipcast/pkg/broadcast"
	"github.com/quipslop/quipcast/pkg/capture"
	"github.com/quipslop/quipcast/pkg/config"
	"github.com/quipslop/quipcast/pkg/statesync"

	"github.com/rs/zerolog/log"
)

func renderCommand(target string, relay string, configs []string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	params, err := capture.ParamsFromURL(relay)
	if err != nil {
		return fmt.Errorf("invalid relay url: %w", err)
	}

	stateURL, err := statesync.URLFromTarget(target)
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := assets.OpenStore(ctx, cfg.Assets.Redis, cfg.Assets.CacheDir, cfg.Assets.TTL)
	if err != nil {
		log.Warn().Err(err).Msg("logo cache unavailable, downloading every time")
		store = assets.NoStore{}
	}

	transport, err := capture.DialTransport(ctx, relay)
	if err != nil {
		return fmt.Errorf("could not connect to capture relay: %w", err)
	}
	defer transport.Close()

	session, err := broadcast.NewSession(ctx, broadcast.Options{
		StateURL:  stateURL,
		Width:     params.Width,
		Height:    params.Height,
		FPS:       params.FPS,
		LogoBase:  cfg.Render.LogoBase,
		Store:     store,
		Transport: transport,
		Capture:   params,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("state", stateURL).
		Str("session", session.ID()).
		Msg("render session started")

	err = session.Run()
	log.Info().
		Str("capture", session.CaptureStatus()).
		Dur("uptime", session.Uptime()).
		Msg("render session stopped")

	// The relay hanging up is how the orchestrator ends the session
	if errors.Is(err, capture.ErrTransportClosed) {
		return nil
	}
	return err
}
