package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DEFAULT []byte

func readFile(path string, config *Config) error {
	extension := filepath.Ext(path)
	switch extension {
	case ".yaml", ".yml", ".json":
	default:
		return fmt.Errorf("not in a valid format")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// JSON is a subset of YAML
	return yaml.Unmarshal(data, config)
}

type override struct {
	key   string
	apply func(value string) error
}

func str(target *string) func(string) error {
	return func(value string) error {
		*target = value
		return nil
	}
}

func integer(target *int) func(string) error {
	return func(value string) error {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*target = parsed
		return nil
	}
}

func duration(target *time.Duration) func(string) error {
	return func(value string) error {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*target = parsed
		return nil
	}
}

func overrides(config *Config) []override {
	stream := &config.Stream
	return []override{
		{"BROADCAST_URL", str(&config.Target)},
		{"STREAM_RTMP_URL", str(&stream.RTMPURL)},
		{"STREAM_KEY", str(&stream.Key)},
		{"STREAM_WIDTH", integer(&stream.Width)},
		{"STREAM_HEIGHT", integer(&stream.Height)},
		{"STREAM_FPS", integer(&stream.FPS)},
		{"STREAM_VIDEO_BITRATE", str(&stream.VideoBitrate)},
		{"STREAM_MAXRATE", str(&stream.Maxrate)},
		{"STREAM_BUFSIZE", str(&stream.Bufsize)},
		{"STREAM_GOP", integer(&stream.GOP)},
		{"STREAM_AUDIO_BITRATE", str(&stream.AudioBitrate)},
		{"STREAM_AUDIO_RATE", integer(&stream.AudioRate)},
		{"STREAM_PRESET", str(&stream.Preset)},
		{"STREAM_READY_TIMEOUT", duration(&stream.ReadyTimeout)},
		{"FFMPEG_PATH", str(&stream.Encoder)},
		{"FFPLAY_PATH", str(&stream.Preview)},
		{"QUIPCAST_LOGO_BASE", str(&config.Render.LogoBase)},
		{"QUIPCAST_HUB_ADDRESS", str(&config.Hub.Address)},
		{"QUIPCAST_PROTOCOL_VERSION", str(&config.Hub.ProtocolVersion)},
		{"QUIPCAST_DATABASE", str(&config.Hub.Database)},
		{"REDIS_URL", str(&config.Assets.Redis)},
	}
}

// applyEnv lets the environment override individual settings, which is how
// secrets such as the stream key are usually supplied.
func applyEnv(config *Config, lookup func(string) (string, bool)) error {
	for _, entry := range overrides(config) {
		value, ok := lookup(entry.key)
		if !ok || value == "" {
			continue
		}

		err := entry.apply(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", entry.key, err)
		}
	}
	return nil
}

// LoadDotenv reads variables from a .env file into the environment. A
// missing file is not an error. Variables that are already set win.
func LoadDotenv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"render.width", c.Render.Width},
		{"render.height", c.Render.Height},
		{"render.fps", c.Render.FPS},
		{"stream.width", c.Stream.Width},
		{"stream.height", c.Stream.Height},
		{"stream.fps", c.Stream.FPS},
		{"stream.gop", c.Stream.GOP},
	}
	for _, field := range positive {
		if field.value <= 0 {
			return fmt.Errorf("%s must be positive", field.name)
		}
	}

	if c.Stream.ReadyTimeout <= 0 {
		return fmt.Errorf("stream.readyTimeout must be positive")
	}

	_, err := ParseBitrate(c.Stream.VideoBitrate)
	if err != nil {
		return fmt.Errorf("stream.videoBitrate: %w", err)
	}

	if c.Target == "" {
		return fmt.Errorf("target must be set")
	}

	return nil
}

// Process reads the default configuration, overlays the provided files in
// order and finally the environment.
func Process(configPaths []string) (*Config, error) {
	config := Config{}
	err := yaml.Unmarshal(DEFAULT, &config)
	if err != nil {
		return nil, fmt.Errorf("invalid default config file: %v", err)
	}

	for _, path := range configPaths {
		err := readFile(path, &config)
		if err != nil {
			return nil, fmt.Errorf(
				"could not process config file %s: %v",
				path,
				err,
			)
		}
	}

	err = applyEnv(&config, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// ParseBitrate understands encoder style rates such as 4500k or 6M and
// returns bits per second.
func ParseBitrate(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty bit rate")
	}

	multiplier := 1
	switch value[len(value)-1] {
	case 'k', 'K':
		multiplier = 1000
	case 'm', 'M':
		multiplier = 1000 * 1000
	}
	if multiplier != 1 {
		value = value[:len(value)-1]
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid bit rate %q", value)
	}
	return int(parsed * float64(multiplier)), nil
}
