package printer

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/thereceipt/bleprint/internal/receipt"
)

// ESC/POS commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// codePage437 is the ESC t table number of PC437 on ESC/POS printers
const codePage437 byte = 0

// ESCPOSEncoder builds an ESC/POS command stream
type ESCPOSEncoder struct {
	buffer *bytes.Buffer
	text   *encoding.Encoder
}

// NewESCPOSEncoder creates a new ESC/POS encoder. Text is transcoded to code
// page 437; runes outside it print as '?'.
func NewESCPOSEncoder() *ESCPOSEncoder {
	return &ESCPOSEncoder{
		buffer: new(bytes.Buffer),
		text:   encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder()),
	}
}

// Initialize resets the printer to its power-on settings
func (e *ESCPOSEncoder) Initialize() {
	e.buffer.Write([]byte{ESC, '@'})
}

// SelectCodePage selects the character table used for text bytes
func (e *ESCPOSEncoder) SelectCodePage(page byte) {
	e.buffer.Write([]byte{ESC, 't', page})
}

// SetAlignment sets text alignment
func (e *ESCPOSEncoder) SetAlignment(align receipt.Align) {
	n := byte(0)
	if align == receipt.AlignCenter {
		n = 1
	}
	e.buffer.Write([]byte{ESC, 'a', n})
}

// SetBold enables or disables emphasized text
func (e *ESCPOSEncoder) SetBold(enabled bool) {
	n := byte(0)
	if enabled {
		n = 1
	}
	e.buffer.Write([]byte{ESC, 'E', n})
}

// SetTextSize sets character width and height multipliers (1-8)
func (e *ESCPOSEncoder) SetTextSize(width, height int) {
	width = clamp(width, 1, 8)
	height = clamp(height, 1, 8)
	e.buffer.Write([]byte{GS, '!', byte((width-1)<<4 | (height - 1))})
}

// WriteText writes text in the selected code page
func (e *ESCPOSEncoder) WriteText(text string) {
	if text == "" {
		return
	}

	encoded, err := e.text.Bytes([]byte(text))
	if err != nil {
		// only reachable on invalid UTF-8; keep the raw bytes rather than drop the text
		encoded = []byte(text)
	}
	e.buffer.Write(encoded)
}

// LineFeed prints the line buffer and advances one line
func (e *ESCPOSEncoder) LineFeed() {
	e.buffer.WriteByte(LF)
}

// Cut sends a full paper cut
func (e *ESCPOSEncoder) Cut() {
	e.buffer.Write([]byte{GS, 'V', 0})
}

// GetBytes returns the generated command stream
func (e *ESCPOSEncoder) GetBytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer
func (e *ESCPOSEncoder) Reset() {
	e.buffer.Reset()
}

// WriteLine encodes one styled line. Style changes are switched back off after
// the line so they never leak into the next one.
func (e *ESCPOSEncoder) WriteLine(line receipt.StyledLine) {
	e.SetAlignment(line.Align)
	if line.Bold() {
		e.SetBold(true)
	}

	current := receipt.Scale1x
	for _, span := range line.Spans {
		if span.Scale != current {
			e.setScale(span.Scale)
			current = span.Scale
		}
		e.WriteText(span.Text)
	}
	e.LineFeed()

	if current != receipt.Scale1x {
		e.setScale(receipt.Scale1x)
	}
	if line.Bold() {
		e.SetBold(false)
	}
}

func (e *ESCPOSEncoder) setScale(s receipt.Scale) {
	if s == receipt.Scale2x {
		e.SetTextSize(2, 2)
		return
	}
	e.SetTextSize(1, 1)
}

// Encode serializes styled lines into an ESC/POS job. Lines keep their order;
// a single cut is emitted after the last line if any line requested one.
func Encode(lines []receipt.StyledLine) []byte {
	e := NewESCPOSEncoder()
	e.Initialize()
	e.SelectCodePage(codePage437)

	cut := false
	for _, line := range lines {
		e.WriteLine(line)
		if line.Terminal == receipt.TerminalCut {
			cut = true
		}
	}

	if cut {
		e.Cut()
	}

	return e.GetBytes()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
