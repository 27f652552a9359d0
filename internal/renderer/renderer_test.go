package renderer

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/bleprint/internal/receipt"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

func line(text string, align receipt.Align) receipt.StyledLine {
	return receipt.StyledLine{Spans: []receipt.Span{{Text: text}}, Align: align}
}

// inked reports whether any pixel in rect is darker than mid grey
func inked(img image.Image, rect image.Rectangle) bool {
	rect = rect.Intersect(img.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r < 0x8000 {
				return true
			}
		}
	}
	return false
}

func TestRender_PaperWidth(t *testing.T) {
	assert.Equal(t, 384, Render(nil, "58mm").Bounds().Dx())
	assert.Equal(t, 576, Render(nil, "80mm").Bounds().Dx())
	assert.Equal(t, 384, Render(nil, "").Bounds().Dx())
}

func TestRender_GrowsWithLines(t *testing.T) {
	one := Render([]receipt.StyledLine{line("A", receipt.AlignLeft)}, "58mm")
	lines := make([]receipt.StyledLine, 200)
	for i := range lines {
		lines[i] = line("Paneer Butter Masala", receipt.AlignLeft)
	}
	many := Render(lines, "58mm")

	assert.Greater(t, many.Bounds().Dy(), one.Bounds().Dy())
	assert.Greater(t, many.Bounds().Dy(), 1000, "canvas expands past its initial height")
}

func TestRender_Alignment(t *testing.T) {
	left := Render([]receipt.StyledLine{line("XX", receipt.AlignLeft)}, "58mm")
	center := Render([]receipt.StyledLine{line("XX", receipt.AlignCenter)}, "58mm")

	h := left.Bounds().Dy()
	leftBand := image.Rect(0, 0, 60, h)
	midBand := image.Rect(160, 0, 224, h)

	assert.True(t, inked(left, leftBand))
	assert.False(t, inked(left, midBand))
	assert.True(t, inked(center, midBand))
	assert.False(t, inked(center, leftBand))
}

func TestRender_DoubleSizeIsTaller(t *testing.T) {
	small := Render([]receipt.StyledLine{line("TOKEN", receipt.AlignCenter)}, "58mm")
	big := Render([]receipt.StyledLine{{
		Spans: []receipt.Span{{Text: "TOKEN", Scale: receipt.Scale2x}},
		Align: receipt.AlignCenter,
	}}, "58mm")

	assert.Greater(t, big.Bounds().Dy(), small.Bounds().Dy())
}

func TestRender_CutMarker(t *testing.T) {
	plain := Render([]receipt.StyledLine{line("", receipt.AlignLeft)}, "58mm")
	cut := Render([]receipt.StyledLine{{Terminal: receipt.TerminalCut}}, "58mm")

	assert.Greater(t, cut.Bounds().Dy(), plain.Bounds().Dy())
	assert.True(t, inked(cut, cut.Bounds()))
	assert.False(t, inked(plain, plain.Bounds()))
}

func TestRender_Receipt(t *testing.T) {
	order := &receiptorder.Order{
		Restaurant: receiptorder.Restaurant{Name: "Vivanta", City: "Pune"},
		ID:         "1042",
		Token:      "42",
		CreatedAt:  "2024-05-01",
		Items:      []receiptorder.LineItem{{Name: "Paneer Butter Masala", Quantity: 2, Price: receiptorder.Rupees(150)}},
		GrandTotal: "300",
	}

	img := Render(receipt.Render(order), "58mm")

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, img))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds().Size(), decoded.Bounds().Size())
}

func TestFit(t *testing.T) {
	img := Render([]receipt.StyledLine{line("A", receipt.AlignLeft)}, "80mm")

	small := Fit(img, 288)
	assert.Equal(t, 288, small.Bounds().Dx())
	assert.Less(t, small.Bounds().Dy(), img.Bounds().Dy())

	assert.Equal(t, img, Fit(img, 1000))
	assert.Equal(t, img, Fit(img, 0))
}
