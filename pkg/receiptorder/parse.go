package receiptorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
)

// QueryParam is the query parameter the receipt view reads the order from
const QueryParam = "data"

// Parse parses an order from JSON
func Parse(data []byte) (*Order, error) {
	var wire struct {
		Order
		ID    json.RawMessage `json:"id"`
		Token json.RawMessage `json:"token"`
	}

	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse order: %w", err)
	}

	order := wire.Order
	order.ID = scalarString(wire.ID)
	order.Token = scalarString(wire.Token)

	return &order, nil
}

// ParseFile parses an order from a JSON file on disk
func ParseFile(path string) (*Order, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order file: %w", err)
	}

	return Parse(data)
}

// ParseQuery decodes the order carried in the data= parameter of a receipt URL query
func ParseQuery(values url.Values) (*Order, error) {
	raw := values.Get(QueryParam)
	if raw == "" {
		return nil, fmt.Errorf("missing %q query parameter", QueryParam)
	}

	// The UI encodes the JSON once more on top of the query encoding
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}

	return Parse([]byte(raw))
}

// EncodeQuery returns the data= query that ParseQuery accepts
func EncodeQuery(order *Order) (string, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set(QueryParam, url.PathEscape(string(data)))
	return values.Encode(), nil
}

// ids and tokens come as numbers or strings depending on the backend
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}

	return string(raw)
}
