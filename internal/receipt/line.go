// Package receipt lays out an order as fixed-width styled text lines
package receipt

import "strings"

// Align is the horizontal alignment of a line
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
)

// Emphasis is the weight a line is printed with
type Emphasis int

const (
	EmphasisNormal Emphasis = iota
	EmphasisBold
)

// Scale is the character magnification of a span
type Scale int

const (
	Scale1x Scale = iota
	Scale2x
)

// Terminal marks a line that carries a physical directive after it is printed
type Terminal int

const (
	TerminalNone Terminal = iota
	TerminalCut
)

// Span is a run of text printed at one scale
type Span struct {
	Text  string
	Scale Scale
}

// StyledLine is one printed line. Most lines have a single span; the net
// total mixes a 1x label with a 2x amount on the same output line.
type StyledLine struct {
	Spans    []Span
	Align    Align
	Emphasis Emphasis
	Terminal Terminal
}

// Text returns the concatenated text of all spans
func (l StyledLine) Text() string {
	if len(l.Spans) == 1 {
		return l.Spans[0].Text
	}

	var b strings.Builder
	for _, s := range l.Spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Bold reports whether the line is emphasized
func (l StyledLine) Bold() bool {
	return l.Emphasis == EmphasisBold
}

func plain(text string) StyledLine {
	return StyledLine{Spans: []Span{{Text: text}}}
}

func bold(text string) StyledLine {
	return StyledLine{Spans: []Span{{Text: text}}, Emphasis: EmphasisBold}
}
