// Package renderer draws receipts as images for previews
package renderer

import (
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/thereceipt/bleprint/internal/receipt"
)

const (
	margin      = 8
	lineSpacing = 6
)

// Renderer draws styled lines onto a canvas the width of the paper, one
// column per printer character
type Renderer struct {
	width  int // Paper width in pixels
	height int // Current canvas height
	ctx    *gg.Context
	y      float64 // Current Y position

	cell   float64 // Width of one column
	zoom   float64 // Glyph scale for 1x text
	ascent float64
	glyphH float64
}

// New creates a new renderer
func New(paperWidth string) *Renderer {
	width := paperWidthToPixels(paperWidth)

	// Start with reasonable initial height, will grow as needed
	initialHeight := 1000

	ctx := gg.NewContext(width, initialHeight)
	ctx.SetColor(color.White)
	ctx.Clear()
	ctx.SetColor(color.Black)
	ctx.SetFontFace(basicfont.Face7x13)

	cell := float64(width-2*margin) / receipt.LineWidth
	face := basicfont.Face7x13

	return &Renderer{
		width:  width,
		height: initialHeight,
		ctx:    ctx,
		y:      margin,
		cell:   cell,
		zoom:   cell / float64(face.Advance),
		ascent: float64(face.Ascent),
		glyphH: float64(face.Height),
	}
}

// Render draws all lines and returns the image cropped to its content
func (r *Renderer) Render(lines []receipt.StyledLine) image.Image {
	for _, line := range lines {
		r.renderLine(line)
	}

	return r.cropToContent()
}

// Render draws lines on a fresh canvas for paperWidth
func Render(lines []receipt.StyledLine, paperWidth string) image.Image {
	return New(paperWidth).Render(lines)
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

// Fit scales img down to width, keeping its aspect ratio. Images already
// narrower are returned unchanged.
func Fit(img image.Image, width int) image.Image {
	if width <= 0 || img.Bounds().Dx() <= width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

func (r *Renderer) cropToContent() image.Image {
	// Crop to the actual Y position used
	finalHeight := int(r.y) + margin
	if finalHeight > r.height {
		finalHeight = r.height
	}

	return imaging.Crop(r.ctx.Image(), image.Rect(0, 0, r.width, finalHeight))
}

func (r *Renderer) ensureHeight(neededHeight int) {
	if int(r.y)+neededHeight > r.height {
		// Need to expand canvas
		newHeight := r.height * 2
		if newHeight < int(r.y)+neededHeight {
			newHeight = int(r.y) + neededHeight + 1000
		}

		// Create new context with larger size
		newCtx := gg.NewContext(r.width, newHeight)
		newCtx.SetColor(color.White)
		newCtx.Clear()

		// Copy existing content
		newCtx.DrawImage(r.ctx.Image(), 0, 0)
		newCtx.SetColor(color.Black)
		newCtx.SetFontFace(basicfont.Face7x13)

		r.ctx = newCtx
		r.height = newHeight
	}
}

func paperWidthToPixels(width string) int {
	switch width {
	case "58mm":
		return 384
	case "80mm":
		return 576
	default:
		return 384 // Default to 58mm
	}
}
