package receipt

import (
	"strconv"
	"strings"
	"time"

	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

const (
	defaultRestaurantName = "HOTEL"
	itemHeader            = "DESC  X QTY"
	extraPrefix           = "+ "
	footerText            = "Thanks for Visit Again!"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Layout renders orders into styled lines. Now is only consulted when an
// order's created_at cannot be parsed.
type Layout struct {
	Now func() time.Time
}

// Render lays out order with the wall clock as the date fallback
func Render(order *receiptorder.Order) []StyledLine {
	return Layout{}.Render(order)
}

// Render lays out order top to bottom in print order. It never fails: missing
// fields degrade to defaults or empty text.
func (l Layout) Render(order *receiptorder.Order) []StyledLine {
	if order == nil {
		order = &receiptorder.Order{}
	}

	total := strings.TrimSpace(order.GrandTotal.String())
	if total == "" {
		total = "0"
	}

	var lines []StyledLine
	lines = append(lines, l.header(order)...)

	for _, item := range order.Items {
		lines = append(lines, RenderItem(item)...)
	}

	lines = append(lines,
		plain(Separator('-')),
		StyledLine{
			Spans: []Span{
				{Text: "NET TOTAL    ", Scale: Scale1x},
				{Text: "  Rs." + total, Scale: Scale2x},
			},
			Emphasis: EmphasisBold,
		},
		plain(Separator('=')),
		bold(footerText),
		StyledLine{Spans: []Span{{Text: ""}}, Terminal: TerminalCut},
	)

	return lines
}

func (l Layout) header(order *receiptorder.Order) []StyledLine {
	r := order.Restaurant

	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = defaultRestaurantName
	}

	lines := []StyledLine{bold(strings.ToUpper(name))}

	var place []string
	for _, part := range []string{r.Address, r.City} {
		if part = strings.TrimSpace(part); part != "" {
			place = append(place, part)
		}
	}
	if len(place) > 0 {
		lines = append(lines, plain(strings.Join(place, ", ")))
	}

	return append(lines,
		StyledLine{
			Spans:    []Span{{Text: "TOKEN NO: " + order.Token, Scale: Scale2x}},
			Emphasis: EmphasisBold,
		},
		plain(Separator('-')),
		plain(LeftRight("Bill No:", order.ID)),
		plain(LeftRight("Date:", l.date(order.CreatedAt))),
		plain(Separator('-')),
		plain(LeftRight(itemHeader, "AMT")),
		plain(Separator('-')),
	)
}

// RenderItem lays out one line item followed by its extras
func RenderItem(item receiptorder.LineItem) []StyledLine {
	lines := nameRows("", item.Name, item.Quantity, item.Price)
	for _, extra := range item.Extras {
		lines = append(lines, nameRows(extraPrefix, extra.Name, extra.Quantity, extra.Price)...)
	}
	return lines
}

// nameRows wraps name and puts quantity and amount on its last row
func nameRows(prefix, name string, qty int, price receiptorder.Amount) []StyledLine {
	if qty <= 0 {
		qty = 1
	}

	wrapped := Wrap(name, ItemNameWidth)
	rows := make([]StyledLine, 0, len(wrapped))
	for _, line := range wrapped[:len(wrapped)-1] {
		rows = append(rows, plain(LeftRight(prefix+line, "")))
	}

	last := prefix + wrapped[len(wrapped)-1] + " x " + strconv.Itoa(qty)
	return append(rows, plain(LeftRight(last, price.Times(qty).String())))
}

func (l Layout) date(createdAt string) string {
	createdAt = strings.TrimSpace(createdAt)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, createdAt); err == nil {
			return t.UTC().Format(time.DateOnly)
		}
	}

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return now().UTC().Format(time.DateOnly)
}
