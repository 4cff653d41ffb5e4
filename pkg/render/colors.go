package render

import (
	"image/color"
	"strings"
)

var (
	Background = color.RGBA{R: 0x0e, G: 0x0e, B: 0x12, A: 0xff}
	Panel      = color.RGBA{R: 0x1a, G: 0x1a, B: 0x21, A: 0xff}
	Track      = color.RGBA{R: 0x2a, G: 0x2a, B: 0x33, A: 0xff}
	Foreground = color.RGBA{R: 0xf2, G: 0xf0, B: 0xeb, A: 0xff}
	Muted      = color.RGBA{R: 0x8a, G: 0x88, B: 0x93, A: 0xff}
	Highlight  = color.RGBA{R: 0xff, G: 0xd1, B: 0x4a, A: 0xff}
	Danger     = color.RGBA{R: 0xff, G: 0x5c, B: 0x5c, A: 0xff}
	Live       = color.RGBA{R: 0x4c, G: 0xd9, B: 0x7b, A: 0xff}

	// Used for models that are not in the table
	DefaultAccent = color.RGBA{R: 0xa0, G: 0xa0, B: 0xb0, A: 0xff}
)

type modelStyle struct {
	Accent color.RGBA
	Logo   string
}

var modelStyles = map[string]modelStyle{
	"Gemini 2.5 Pro":   {color.RGBA{R: 0x4f, G: 0x8c, B: 0xff, A: 0xff}, "gemini.png"},
	"Gemini 2.5 Flash": {color.RGBA{R: 0x6c, G: 0xa8, B: 0xff, A: 0xff}, "gemini.png"},
	"Kimi K2":          {color.RGBA{R: 0x2b, G: 0xd4, B: 0xc9, A: 0xff}, "kimi.png"},
	"DeepSeek V3":      {color.RGBA{R: 0x4d, G: 0x6b, B: 0xfe, A: 0xff}, "deepseek.png"},
	"DeepSeek R1":      {color.RGBA{R: 0x3b, G: 0x5b, B: 0xdb, A: 0xff}, "deepseek.png"},
	"GLM-4.5":          {color.RGBA{R: 0x8e, G: 0x6c, B: 0xff, A: 0xff}, "glm.png"},
	"GPT-5":            {color.RGBA{R: 0x10, G: 0xa3, B: 0x7f, A: 0xff}, "openai.png"},
	"GPT-4.1":          {color.RGBA{R: 0x19, G: 0xc3, B: 0x7d, A: 0xff}, "openai.png"},
	"Claude Sonnet 4":  {color.RGBA{R: 0xd9, G: 0x77, B: 0x57, A: 0xff}, "anthropic.png"},
	"Grok 4":           {color.RGBA{R: 0xe6, G: 0xe6, B: 0xe6, A: 0xff}, "xai.png"},
	"MiniMax M1":       {color.RGBA{R: 0xff, G: 0x4f, B: 0x8b, A: 0xff}, "minimax.png"},
	"Qwen3":            {color.RGBA{R: 0x7b, G: 0x61, B: 0xff, A: 0xff}, "qwen.png"},
	"Llama 4":          {color.RGBA{R: 0x06, G: 0x68, B: 0xe1, A: 0xff}, "meta.png"},
	"Mistral Large":    {color.RGBA{R: 0xff, G: 0x8a, B: 0x00, A: 0xff}, "mistral.png"},
}

func Accent(name string) color.RGBA {
	if style, ok := modelStyles[name]; ok {
		return style.Accent
	}
	return DefaultAccent
}

// LogoURL resolves the model's logo against base. Models without a logo get
// an empty string.
func LogoURL(base string, name string) string {
	style, ok := modelStyles[name]
	if !ok || style.Logo == "" || base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + style.Logo
}

// dim darkens c by the given fraction.
func dim(c color.RGBA, amount float64) color.RGBA {
	scale := 1 - amount
	return color.RGBA{
		R: uint8(float64(c.R) * scale),
		G: uint8(float64(c.G) * scale),
		B: uint8(float64(c.B) * scale),
		A: c.A,
	}
}
