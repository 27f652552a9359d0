// Package receiptorder defines the order record handed to the receipt printer
package receiptorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Order is the order record produced by the ordering UI
type Order struct {
	Restaurant Restaurant `json:"restaurant"`
	ID         string     `json:"id"`
	Token      string     `json:"token"`
	CreatedAt  string     `json:"created_at"`
	Items      []LineItem `json:"items"`
	GrandTotal Total      `json:"grand_total"`
}

// Restaurant holds the header metadata printed at the top of a receipt
type Restaurant struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
}

// LineItem is one ordered dish
type LineItem struct {
	Name     string      `json:"name"`
	Quantity int         `json:"quantity"`
	Price    Amount      `json:"price"`
	Notes    string      `json:"notes,omitempty"`
	Extras   []ExtraItem `json:"extra,omitempty"`
}

// ExtraItem is an add-on attached to a line item
type ExtraItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    Amount `json:"price"`
}

// Amount is a price in hundredths of a currency unit (paise). Prices arrive
// as decimal text or numbers and are kept exact.
type Amount int64

// Rupees returns the Amount for a whole number of currency units
func Rupees(n int64) Amount {
	return Amount(n * 100)
}

// String renders the amount the way it is printed: whole amounts without a
// fraction, others with two decimals
func (a Amount) String() string {
	sign := ""
	if a < 0 {
		sign = "-"
		a = -a
	}
	whole, frac := int64(a)/100, int64(a)%100
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// Times returns a*qty
func (a Amount) Times(qty int) Amount {
	return a * Amount(qty)
}

// MarshalJSON writes the amount as a decimal number
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw, err := scalarText(data)
	if err != nil {
		return err
	}
	if raw == "" {
		*a = 0
		return nil
	}

	v, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseAmount parses decimal text such as "150", "12.5" or "99.999". Digits
// past the second decimal are rounded half up.
func ParseAmount(raw string) (Amount, error) {
	raw = strings.TrimSpace(raw)
	neg := strings.HasPrefix(raw, "-")
	digits := strings.TrimLeft(raw, "+-")

	whole, frac, _ := strings.Cut(digits, ".")
	if whole == "" && frac == "" || !allDigits(whole) || !allDigits(frac) {
		// exponent forms like 1.5e2
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		return Amount(math.Round(f * 100)), nil
	}

	var units int64
	if whole != "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q", raw)
		}
		units = n * 100
	}

	padded := frac + "000"
	cents, _ := strconv.ParseInt(padded[:2], 10, 64)
	if padded[2] >= '5' {
		cents++
	}
	units += cents

	if neg {
		units = -units
	}
	return Amount(units), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Total is the grand total exactly as the ordering UI sent it. It is printed
// verbatim and never recomputed or reformatted.
type Total string

// String returns the total text
func (t Total) String() string {
	return string(t)
}

// MarshalJSON writes numeric totals as JSON numbers and anything else as a string
func (t Total) MarshalJSON() ([]byte, error) {
	s := string(t)
	if s != "" && json.Valid([]byte(s)) && isNumber(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

// UnmarshalJSON keeps the text of a number or string total unchanged
func (t *Total) UnmarshalJSON(data []byte) error {
	raw, err := scalarText(data)
	if err != nil {
		return err
	}
	*t = Total(raw)
	return nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// scalarText returns the text of a JSON number or string, "" for null
func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}

	if data[0] != '"' {
		return string(data), nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}
