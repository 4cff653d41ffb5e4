package render

import (
	"fmt"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Sizes at 1080 lines of output; they scale with the frame.
const (
	TITLE_SIZE   = 44
	PROMPT_SIZE  = 52
	NAME_SIZE    = 34
	ANSWER_SIZE  = 36
	LABEL_SIZE   = 24
	SMALL_SIZE   = 20
	HEADING_SIZE = 96
)

type Fonts struct {
	Title   font.Face
	Prompt  font.Face
	Name    font.Face
	Answer  font.Face
	Label   font.Face
	Small   font.Face
	Heading font.Face
}

func newFace(data []byte, size float64) (font.Face, error) {
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}

	return opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// LoadFonts builds every face the renderer uses at the given scale.
func LoadFonts(scale float64) (*Fonts, error) {
	fonts := &Fonts{}
	faces := []struct {
		target *font.Face
		data   []byte
		size   float64
	}{
		{&fonts.Title, gobold.TTF, TITLE_SIZE},
		{&fonts.Prompt, gobold.TTF, PROMPT_SIZE},
		{&fonts.Name, gobold.TTF, NAME_SIZE},
		{&fonts.Answer, goregular.TTF, ANSWER_SIZE},
		{&fonts.Label, gobold.TTF, LABEL_SIZE},
		{&fonts.Small, goregular.TTF, SMALL_SIZE},
		{&fonts.Heading, gobold.TTF, HEADING_SIZE},
	}

	for _, spec := range faces {
		face, err := newFace(spec.data, spec.size*scale)
		if err != nil {
			return nil, fmt.Errorf("could not load font face (size %v): %w", spec.size, err)
		}
		*spec.target = face
	}

	return fonts, nil
}

func (f *Fonts) Close() {
	for _, face := range []font.Face{f.Title, f.Prompt, f.Name, f.Answer, f.Label, f.Small, f.Heading} {
		if face != nil {
			face.Close()
		}
	}
}
