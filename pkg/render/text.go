package render

import (
	"strings"
	"unicode"

	"golang.org/x/image/font"
)

const ELLIPSIS = "…"

// Measure returns the rendered width of s in pixels.
type Measure func(s string) int

func FaceMeasure(face font.Face) Measure {
	return func(s string) int {
		return font.MeasureString(face, s).Ceil()
	}
}

// fitPrefix finds the longest prefix of runes that measures no wider than
// maxWidth. Glyph widths vary, so this searches on measured width rather than
// counting characters. At least one rune is always returned so callers make
// progress even when a single glyph does not fit.
func fitPrefix(runes []rune, maxWidth int, measure Measure) int {
	low, high := 1, len(runes)
	best := 1
	for low <= high {
		middle := (low + high) / 2
		if measure(string(runes[:middle])) <= maxWidth {
			best = middle
			low = middle + 1
		} else {
			high = middle - 1
		}
	}
	return best
}

// ellipsize trims line one rune at a time until it fits with a trailing
// ellipsis.
func ellipsize(line string, maxWidth int, measure Measure) string {
	runes := []rune(strings.TrimRightFunc(line, unicode.IsSpace))
	for len(runes) > 0 && measure(string(runes)+ELLIPSIS) > maxWidth {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRightFunc(string(runes), unicode.IsSpace) + ELLIPSIS
}

// Wrap breaks text into lines no wider than maxWidth. Words are packed
// greedily; a word that is wider than a whole line is split wherever it
// stops fitting. If maxLines is positive and the text does not fit in that
// many lines, the last line ends in an ellipsis.
func Wrap(text string, maxWidth int, maxLines int, measure Measure) []string {
	if maxWidth < 1 {
		maxWidth = 1
	}

	lines := make([]string, 0)
	words := strings.Fields(text)
	if len(words) == 0 {
		return lines
	}

	overflow := false
	push := func(line string) bool {
		if maxLines > 0 && len(lines) >= maxLines {
			overflow = true
			return false
		}
		lines = append(lines, line)
		return true
	}

	current := ""
packing:
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}

		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}

		if current != "" {
			if !push(current) {
				break
			}
			current = ""
		}

		runes := []rune(word)
		for measure(string(runes)) > maxWidth {
			split := fitPrefix(runes, maxWidth, measure)
			if !push(string(runes[:split])) {
				break packing
			}
			runes = runes[split:]
		}
		current = string(runes)
	}

	if !overflow && current != "" {
		push(current)
	}

	if overflow && len(lines) > 0 {
		last := len(lines) - 1
		lines[last] = ellipsize(lines[last], maxWidth, measure)
	}

	return lines
}
