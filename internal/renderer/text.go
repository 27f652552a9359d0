package renderer

import (
	"math"
	"unicode/utf8"

	"github.com/thereceipt/bleprint/internal/receipt"
)

func scaleFactor(s receipt.Scale) float64 {
	if s == receipt.Scale2x {
		return 2
	}
	return 1
}

// columns is how many printer columns line occupies
func columns(line receipt.StyledLine) float64 {
	var n float64
	for _, span := range line.Spans {
		n += float64(utf8.RuneCountInString(span.Text)) * scaleFactor(span.Scale)
	}
	return n
}

func (r *Renderer) renderLine(line receipt.StyledLine) {
	tallest := 1.0
	for _, span := range line.Spans {
		tallest = max(tallest, scaleFactor(span.Scale))
	}
	lineHeight := r.glyphH*r.zoom*tallest + lineSpacing

	// Ensure we have enough height
	r.ensureHeight(int(lineHeight) + 20)

	x := float64(margin)
	if line.Align == receipt.AlignCenter {
		if free := receipt.LineWidth - columns(line); free > 0 {
			x += free / 2 * r.cell
		}
	}

	baseline := r.y + r.ascent*r.zoom*tallest
	for _, span := range line.Spans {
		s := scaleFactor(span.Scale)
		for _, c := range span.Text {
			r.drawGlyph(c, x, baseline, r.zoom*s, line.Bold())
			x += r.cell * s
		}
	}

	r.y += lineHeight

	if line.Terminal == receipt.TerminalCut {
		r.renderCut()
	}
}

func (r *Renderer) drawGlyph(c rune, x, baseline, scale float64, bold bool) {
	if c == ' ' {
		return
	}

	r.ctx.Push()
	r.ctx.Translate(x, baseline)
	r.ctx.Scale(scale, scale)
	r.ctx.DrawString(string(c), 0, 0)
	if bold {
		r.ctx.DrawString(string(c), 0.6, 0)
	}
	r.ctx.Pop()
}

// renderCut marks where the printer cuts the paper
func (r *Renderer) renderCut() {
	r.ensureHeight(20)

	// centered on a pixel row so the 1px line stays solid
	y := math.Floor(r.y) + 6.5
	r.ctx.Push()
	r.ctx.SetLineWidth(1)
	r.ctx.SetDash(6, 4)
	r.ctx.DrawLine(0, y, float64(r.width), y)
	r.ctx.Stroke()
	r.ctx.Pop()

	r.y += 12
}
