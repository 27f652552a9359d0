package printer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/bleprint/internal/receipt"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

var (
	cmdInit     = []byte{ESC, '@'}
	cmdCodePage = []byte{ESC, 't', 0}
	cmdLeft     = []byte{ESC, 'a', 0}
	cmdCenter   = []byte{ESC, 'a', 1}
	cmdBoldOn   = []byte{ESC, 'E', 1}
	cmdBoldOff  = []byte{ESC, 'E', 0}
	cmdSize1x   = []byte{GS, '!', 0x00}
	cmdSize2x   = []byte{GS, '!', 0x11}
	cmdCut      = []byte{GS, 'V', 0}
)

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestEncode_Empty(t *testing.T) {
	assert.Equal(t, join(cmdInit, cmdCodePage), Encode(nil))
}

func TestEncode_PlainLine(t *testing.T) {
	lines := []receipt.StyledLine{{Spans: []receipt.Span{{Text: "Bill No:"}}}}

	want := join(cmdInit, cmdCodePage, cmdLeft, []byte("Bill No:\n"))
	assert.Equal(t, want, Encode(lines))
}

func TestEncode_BoldOnlyForItsLine(t *testing.T) {
	lines := []receipt.StyledLine{
		{Spans: []receipt.Span{{Text: "VIVANTA"}}, Emphasis: receipt.EmphasisBold},
		{Spans: []receipt.Span{{Text: "Pune"}}, Align: receipt.AlignCenter},
	}

	want := join(cmdInit, cmdCodePage,
		cmdLeft, cmdBoldOn, []byte("VIVANTA\n"), cmdBoldOff,
		cmdCenter, []byte("Pune\n"))
	assert.Equal(t, want, Encode(lines))
}

func TestEncode_MixedScaleLine(t *testing.T) {
	lines := []receipt.StyledLine{{
		Spans: []receipt.Span{
			{Text: "NET TOTAL    ", Scale: receipt.Scale1x},
			{Text: "  Rs.300", Scale: receipt.Scale2x},
		},
		Emphasis: receipt.EmphasisBold,
	}}

	want := join(cmdInit, cmdCodePage,
		cmdLeft, cmdBoldOn, []byte("NET TOTAL    "), cmdSize2x, []byte("  Rs.300"), []byte{LF},
		cmdSize1x, cmdBoldOff)
	assert.Equal(t, want, Encode(lines))
}

func TestEncode_CutOnceAtEnd(t *testing.T) {
	lines := []receipt.StyledLine{
		{Spans: []receipt.Span{{Text: "a"}}, Terminal: receipt.TerminalCut},
		{Spans: []receipt.Span{{Text: "b"}}},
		{Spans: []receipt.Span{{Text: ""}}, Terminal: receipt.TerminalCut},
	}

	out := Encode(lines)
	assert.Equal(t, 1, bytes.Count(out, cmdCut))
	assert.True(t, bytes.HasSuffix(out, cmdCut))
}

func TestEncode_NoSpansDoesNotPanic(t *testing.T) {
	lines := []receipt.StyledLine{{}, {Spans: []receipt.Span{{Text: ""}}}}

	var out []byte
	require.NotPanics(t, func() { out = Encode(lines) })
	assert.Equal(t, 2, bytes.Count(out, []byte{LF}))
}

func TestEncode_CodePage437(t *testing.T) {
	lines := []receipt.StyledLine{{Spans: []receipt.Span{{Text: "Café ₹"}}}}

	out := Encode(lines)
	// é is 0x82 in PC437, ₹ has no mapping
	assert.True(t, bytes.Contains(out, []byte{'C', 'a', 'f', 0x82, ' ', '?', LF}))
}

func TestEncode_ReceiptKeepsLineOrder(t *testing.T) {
	order := &receiptorder.Order{
		Restaurant: receiptorder.Restaurant{Name: "Vivanta"},
		Token:      "42",
		Items: []receiptorder.LineItem{
			{Name: "Paneer Tikka Extra Spicy Deluxe", Quantity: 2, Price: receiptorder.Rupees(150)},
		},
		GrandTotal: "300",
	}
	lines := receipt.Render(order)
	out := Encode(lines)

	pos := 0
	for _, line := range lines {
		for _, span := range line.Spans {
			text := []byte(span.Text)
			if len(text) == 0 {
				continue
			}
			idx := bytes.Index(out[pos:], text)
			require.GreaterOrEqual(t, idx, 0, "span %q missing or out of order", span.Text)
			pos += idx + len(text)
		}
	}
	assert.True(t, bytes.HasSuffix(out, cmdCut))
}

func TestSetTextSize_Clamps(t *testing.T) {
	e := NewESCPOSEncoder()
	e.SetTextSize(0, 12)
	assert.Equal(t, []byte{GS, '!', 0x07}, e.GetBytes())

	e.Reset()
	assert.Empty(t, e.GetBytes())
}
