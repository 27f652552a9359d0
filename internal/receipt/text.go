package receipt

import (
	"strings"
	"unicode/utf8"
)

const (
	// LineWidth is the number of character columns on 58mm thermal paper
	LineWidth = 32

	// ItemNameWidth is the wrap width of item and extra names
	ItemNameWidth = 18
)

// LeftRight pads label so that value ends on the right edge of a LineWidth line.
// A pair wider than the line is returned unpadded.
func LeftRight(label, value string) string {
	return leftRight(label, value, LineWidth)
}

func leftRight(label, value string, width int) string {
	pad := width - utf8.RuneCountInString(value) - utf8.RuneCountInString(label)
	if pad < 0 {
		pad = 0
	}
	return label + strings.Repeat(" ", pad) + value
}

// Separator returns a full-width rule of c
func Separator(c rune) string {
	return strings.Repeat(string(c), LineWidth)
}

// Wrap greedily wraps text into lines of at most width columns. Words are never
// split, so a single word longer than width gets a line of its own. Empty text
// yields one empty line.
func Wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(word) <= width {
			line += " " + word
			continue
		}
		lines = append(lines, line)
		line = word
	}

	return append(lines, line)
}
