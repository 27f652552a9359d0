package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/thereceipt/bleprint/internal/receipt"
)

// RenderReceipt draws lines as a paper roll for the terminal. Double-size
// spans keep their printed width by spacing out their letters.
func RenderReceipt(lines []receipt.StyledLine) string {
	rows := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		rows = append(rows, renderRow(line))
		if line.Terminal == receipt.TerminalCut {
			rows = append(rows, HelpStyle.Render(strings.Repeat("✂ ", receipt.LineWidth/2)))
		}
	}

	return PaperStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderRow(line receipt.StyledLine) string {
	var b strings.Builder
	width := 0
	for _, span := range line.Spans {
		text := span.Text
		style := PaperStyle.UnsetPadding()
		if line.Bold() {
			style = PaperBoldStyle
		}
		if span.Scale == receipt.Scale2x {
			text = widen(text)
			style = PaperLargeStyle
		}
		width += utf8.RuneCountInString(text)
		b.WriteString(style.Render(text))
	}

	row := b.String()
	if line.Align == receipt.AlignCenter && width < receipt.LineWidth {
		return lipgloss.PlaceHorizontal(receipt.LineWidth, lipgloss.Center, row,
			lipgloss.WithWhitespaceBackground(colorPaper))
	}
	if width < receipt.LineWidth {
		row += PaperStyle.UnsetPadding().Render(strings.Repeat(" ", receipt.LineWidth-width))
	}
	return row
}

// widen spaces out letters so double-width text spans two columns each
func widen(text string) string {
	var b strings.Builder
	for _, c := range text {
		b.WriteRune(c)
		b.WriteRune(' ')
	}
	return b.String()
}
