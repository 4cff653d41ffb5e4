package main

import (
	"fmt"
	"os"
	"time"

	"github.com/quipslop/quipcast/pkg/config"
	"github.com/quipslop/quipcast/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Version bool   `help:"Print version information and exit." short:"v"`
	Debug   bool   `help:"Whether to enable debug logging."`
	Env     string `help:"Load environment variables from this file if it exists." default:".env" type:"path"`

	Stream struct {
		Mode    string   `arg:"" enum:"live,dryrun" help:"live pushes to the RTMP endpoint, dryrun opens a local preview."`
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"existingfile"`
	} `cmd:"" help:"Render the broadcast and encode it into a video stream."`

	Render struct {
		Target  string   `required:"" help:"Address of the state hub."`
		Relay   string   `required:"" help:"Capture relay URL, including capture parameters."`
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"existingfile"`
	} `cmd:"" help:"Run a headless render session. Started by stream; rarely useful by hand."`

	Serve struct {
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"existingfile"`
	} `cmd:"" help:"Start the state hub viewers and the render session connect to."`

	Config struct {
	} `cmd:"" help:"Write quipcast's default configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	ctx := kong.Parse(&CLI,
		kong.Name("quipcast"),
		kong.Description("broadcast and stream quipslop"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if CLI.Version {
		fmt.Printf(
			"quipcast %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	err := config.LoadDotenv(CLI.Env)
	if err != nil {
		writeError(fmt.Errorf("could not read %s: %w", CLI.Env, err))
	}

	switch ctx.Command() {
	case "stream <mode>":
		fallthrough
	case "stream <mode> <configs>":
		os.Exit(streamCommand(CLI.Stream.Mode, CLI.Stream.Configs))
	case "render":
		fallthrough
	case "render <configs>":
		err := renderCommand(CLI.Render.Target, CLI.Render.Relay, CLI.Render.Configs)
		if err != nil {
			writeError(err)
		}
	case "serve":
		fallthrough
	case "serve <configs>":
		err := serveCommand(CLI.Serve.Configs)
		if err != nil {
			writeError(err)
		}
	case "config":
		os.Stdout.Write(config.DEFAULT)
	}
}
