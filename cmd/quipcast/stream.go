package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quipslop/quipcast/pkg/config"
	"github.com/quipslop/quipcast/pkg/orchestrator"

	"github.com/rs/zerolog/log"
)

// streamCommand returns the process exit code, which mirrors the encoder's.
func streamCommand(mode string, configs []string) int {
	cfg, err := config.Process(configs)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	executable, err := os.Executable()
	if err != nil {
		log.Error().Err(err).Msg("could not find the quipcast binary")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := orchestrator.New(orchestrator.Options{
		Mode:        orchestrator.Mode(mode),
		Target:      cfg.Target,
		Stream:      cfg.Stream,
		Executable:  executable,
		ConfigPaths: configs,
	})

	code, err := pipeline.Run(ctx)
	if err != nil {
		log.Error().Err(err).Int("code", code).Msg("stream failed")
		return code
	}

	log.Info().Int("code", code).Msg("stream finished")
	return code
}
