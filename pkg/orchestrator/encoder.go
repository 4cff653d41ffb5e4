package orchestrator

import (
	"fmt"
	"strings"

	"github.com/quipslop/quipcast/pkg/config"
)

type Mode string

const (
	ModeLive   Mode = "live"
	ModeDryrun Mode = "dryrun"
)

// IngestURL is where live mode pushes the stream. It contains the secret
// key and must never be logged.
func IngestURL(stream config.Stream) string {
	return strings.TrimRight(stream.RTMPURL, "/") + "/" + stream.Key
}

// EncoderArgs builds the encoder command line. Input is the MJPEG capture
// stream on standard input; silent audio is mixed in because most ingest
// servers reject video without an audio track.
func EncoderArgs(mode Mode, stream config.Stream) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-f", "image2pipe",
		"-framerate", fmt.Sprint(stream.FPS),
		"-c:v", "mjpeg",
		"-i", "pipe:0",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", stream.AudioRate),
		"-map", "0:v",
		"-map", "1:a",
		"-vf", fmt.Sprintf("scale=%d:%d", stream.Width, stream.Height),
		"-c:v", "libx264",
		"-preset", stream.Preset,
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprint(stream.FPS),
		"-b:v", stream.VideoBitrate,
		"-maxrate", stream.Maxrate,
		"-bufsize", stream.Bufsize,
		"-g", fmt.Sprint(stream.GOP),
		"-keyint_min", fmt.Sprint(stream.GOP),
		"-c:a", "aac",
		"-b:a", stream.AudioBitrate,
		"-ar", fmt.Sprint(stream.AudioRate),
		"-shortest",
	}

	if mode == ModeLive {
		return append(args, "-f", "flv", IngestURL(stream))
	}
	return append(args, "-f", "mpegts", "pipe:1")
}

func PreviewArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-window_title", "quipcast preview",
		"-i", "pipe:0",
	}
}

// redact hides the stream key in a command line.
func redact(args []string, key string) string {
	line := strings.Join(args, " ")
	if key == "" {
		return line
	}
	return strings.ReplaceAll(line, key, "<key>")
}
