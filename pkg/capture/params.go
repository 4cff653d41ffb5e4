package capture

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	DEFAULT_FPS     = 30
	DEFAULT_BITRATE = 4_500_000
	DEFAULT_WIDTH   = 1280
	DEFAULT_HEIGHT  = 720
)

// Params are the capture settings the orchestrator hands to the headless
// render session. They travel as query parameters on the relay URL.
type Params struct {
	Session string
	FPS     int
	// Bits per second
	Bitrate int
	Width   int
	Height  int
}

func DefaultParams() Params {
	return Params{
		FPS:     DEFAULT_FPS,
		Bitrate: DEFAULT_BITRATE,
		Width:   DEFAULT_WIDTH,
		Height:  DEFAULT_HEIGHT,
	}
}

func positive(query url.Values, key string, fallback int) (int, error) {
	raw := query.Get(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return value, nil
}

// ParamsFromURL reads capture parameters from a relay URL. Missing values
// take their defaults.
func ParamsFromURL(raw string) (Params, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Params{}, err
	}

	query := parsed.Query()
	params := DefaultParams()
	params.Session = query.Get("session")

	fields := []struct {
		key    string
		target *int
	}{
		{"fps", &params.FPS},
		{"bitrate", &params.Bitrate},
		{"width", &params.Width},
		{"height", &params.Height},
	}
	for _, field := range fields {
		*field.target, err = positive(query, field.key, *field.target)
		if err != nil {
			return Params{}, err
		}
	}

	return params, nil
}

// URL embeds the parameters into base, keeping any query it already has.
func (p Params) URL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	if p.Session != "" {
		query.Set("session", p.Session)
	}
	query.Set("fps", strconv.Itoa(p.FPS))
	query.Set("bitrate", strconv.Itoa(p.Bitrate))
	query.Set("width", strconv.Itoa(p.Width))
	query.Set("height", strconv.Itoa(p.Height))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// FrameBudget is the number of bytes one frame may use at the target bit
// rate.
func (p Params) FrameBudget() int {
	return p.Bitrate / 8 / p.FPS
}
