package config

import (
	"time"
)

type Render struct {
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	FPS      int    `yaml:"fps"`
	LogoBase string `yaml:"logoBase"`
}

type Relay struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Stream struct {
	RTMPURL string `yaml:"rtmpUrl"`
	Key     string `yaml:"key"`

	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPS          int    `yaml:"fps"`
	VideoBitrate string `yaml:"videoBitrate"`
	Maxrate      string `yaml:"maxrate"`
	Bufsize      string `yaml:"bufsize"`
	GOP          int    `yaml:"gop"`
	AudioBitrate string `yaml:"audioBitrate"`
	AudioRate    int    `yaml:"audioRate"`
	Preset       string `yaml:"preset"`

	// Binaries
	Encoder string `yaml:"encoder"`
	Preview string `yaml:"preview"`

	Relay            Relay         `yaml:"relay"`
	ReadyTimeout     time.Duration `yaml:"readyTimeout"`
	KillGrace        time.Duration `yaml:"killGrace"`
	PreflightTimeout time.Duration `yaml:"preflightTimeout"`
}

type Hub struct {
	Address         string `yaml:"address"`
	ProtocolVersion string `yaml:"protocolVersion"`
	ViewerBuffer    int    `yaml:"viewerBuffer"`
	Database        string `yaml:"database"`
}

type Assets struct {
	Redis    string        `yaml:"redis"`
	CacheDir string        `yaml:"cacheDir"`
	TTL      time.Duration `yaml:"ttl"`
}

type Config struct {
	Target string `yaml:"target"`
	Render Render `yaml:"render"`
	Stream Stream `yaml:"stream"`
	Hub    Hub    `yaml:"hub"`
	Assets Assets `yaml:"assets"`
}
