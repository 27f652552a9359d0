package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/bleprint/internal/printer"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

const orderJSON = `{
  "restaurant": {"name": "Vivanta", "city": "Pune"},
  "id": 1042,
  "token": 42,
  "created_at": "2024-05-01T10:00:00Z",
  "items": [{"name": "Paneer Butter Masala", "quantity": 2, "price": 150}],
  "grand_total": 300
}`

type fakePrinter struct {
	mu         sync.Mutex
	printErr   error
	connectErr error
	printed    [][]byte
	status     printer.SessionStatus
}

func (f *fakePrinter) EncodeOrder(order *receiptorder.Order) []byte {
	return []byte("receipt:" + order.ID)
}

func (f *fakePrinter) PrintBytes(_ context.Context, data []byte) (printer.PrintResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.printErr != nil {
		return printer.PrintResult{JobID: "job-1", Bytes: len(data)}, f.printErr
	}
	f.printed = append(f.printed, data)
	return printer.PrintResult{JobID: "job-1", Bytes: len(data)}, nil
}

func (f *fakePrinter) Connect(context.Context) error   { return f.connectErr }
func (f *fakePrinter) Reconnect(context.Context) error { return f.connectErr }
func (f *fakePrinter) Disconnect()                     {}
func (f *fakePrinter) Forget() error                   { return nil }

func (f *fakePrinter) Status() printer.SessionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePrinter) setPrintErr(err error) {
	f.mu.Lock()
	f.printErr = err
	f.mu.Unlock()
}

func (f *fakePrinter) printedCopy() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.printed...)
}

func newTestServer(t *testing.T, p *fakePrinter) *Server {
	t.Helper()
	return NewServer(p, Config{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		Logger:          log.New(io.Discard, "", 0),
	})
}

func do(s *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func receiptQuery(t *testing.T) string {
	t.Helper()
	order, err := receiptorder.Parse([]byte(orderJSON))
	require.NoError(t, err)
	query, err := receiptorder.EncodeQuery(order)
	require.NoError(t, err)
	return query
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	w := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestReceipt_Lines(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	w := do(s, http.MethodGet, "/receipt?"+receiptQuery(t), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Lines []lineView `json:"lines"`
		Text  string     `json:"text"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Lines)

	assert.Equal(t, "VIVANTA", body.Lines[0].Text)
	assert.True(t, body.Lines[0].Bold)
	assert.True(t, body.Lines[2].Large)
	assert.True(t, body.Lines[len(body.Lines)-1].Cut)
	assert.Contains(t, body.Text, "Paneer Butter")
}

func TestReceipt_MissingData(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	w := do(s, http.MethodGet, "/receipt", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiptPNG(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})

	w := do(s, http.MethodGet, "/receipt.png?"+receiptQuery(t)+"&width=200", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(s, http.MethodGet, "/receipt.png?"+receiptQuery(t)+"&width=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPrint_Body(t *testing.T) {
	p := &fakePrinter{}
	s := newTestServer(t, p)

	w := do(s, http.MethodPost, "/print", strings.NewReader(orderJSON))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, [][]byte{[]byte("receipt:1042")}, p.printedCopy())
}

func TestPrint_InvalidBody(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	w := do(s, http.MethodPost, "/print", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReceiptPrint_Query(t *testing.T) {
	p := &fakePrinter{}
	s := newTestServer(t, p)

	w := do(s, http.MethodPost, "/receipt/print?"+receiptQuery(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, p.printedCopy(), 1)
}

func TestPrint_FailureStatus(t *testing.T) {
	p := &fakePrinter{printErr: fmt.Errorf("%w: job in flight", printer.ErrBusy)}
	s := newTestServer(t, p)

	w := do(s, http.MethodPost, "/print", strings.NewReader(orderJSON))
	assert.Equal(t, http.StatusConflict, w.Code)

	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, string(printer.KindBusy), body["kind"])
	assert.Equal(t, printer.UserMessage(printer.ErrBusy), body["message"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{printer.ErrBusy, http.StatusConflict},
		{printer.ErrNotPaired, http.StatusConflict},
		{printer.ErrPairingCancelled, http.StatusConflict},
		{printer.ErrEmptyPayload, http.StatusBadRequest},
		{printer.ErrNoTransport, http.StatusServiceUnavailable},
		{printer.ErrLinkFailure, http.StatusBadGateway},
		{printer.ErrProtocolFailure, http.StatusBadGateway},
		{printer.ErrTransmission, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestReprint(t *testing.T) {
	p := &fakePrinter{}
	s := newTestServer(t, p)

	w := do(s, http.MethodPost, "/orders/1042/reprint", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(s, http.MethodPost, "/print", strings.NewReader(orderJSON))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodPost, "/orders/1042/reprint", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [][]byte{[]byte("receipt:1042"), []byte("receipt:1042")}, p.printedCopy())
}

func TestReprint_AfterFailedPrint(t *testing.T) {
	p := &fakePrinter{printErr: fmt.Errorf("%w: write failed", printer.ErrTransmission)}
	s := newTestServer(t, p)

	w := do(s, http.MethodPost, "/print", strings.NewReader(orderJSON))
	require.Equal(t, http.StatusBadGateway, w.Code)

	p.setPrintErr(nil)
	w = do(s, http.MethodPost, "/orders/1042/reprint", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, p.printedCopy(), 1)
}

func TestRateLimit(t *testing.T) {
	p := &fakePrinter{}
	s := NewServer(p, Config{
		RateLimitPerSec: 0.001,
		RateLimitBurst:  1,
		Logger:          log.New(io.Discard, "", 0),
	})

	w := do(s, http.MethodPost, "/print", strings.NewReader(orderJSON))
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(s, http.MethodPost, "/print", strings.NewReader(orderJSON))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Status reads are not limited
	w = do(s, http.MethodGet, "/printer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPRateLimiter_PerClient(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 1)

	assert.True(t, limiter.GetLimiter("10.0.0.1").Allow())
	assert.False(t, limiter.GetLimiter("10.0.0.1").Allow())
	assert.True(t, limiter.GetLimiter("10.0.0.2").Allow())
}

func TestPrinterConnect(t *testing.T) {
	p := &fakePrinter{connectErr: fmt.Errorf("%w: adapter off", printer.ErrNoTransport)}
	s := newTestServer(t, p)

	w := do(s, http.MethodPost, "/printer/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(printer.KindNoTransport), decode(t, w)["kind"])

	p.connectErr = nil
	p.status = printer.SessionStatus{Status: printer.Status{StateName: "connected", Connected: true, DeviceName: "MTP-II"}}
	w = do(s, http.MethodPost, "/printer/connect", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	status := body["printer"].(map[string]interface{})
	assert.Equal(t, "connected", status["state"])
	assert.Equal(t, "MTP-II", status["device_name"])
}

func TestPrinterRoutes(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/printer", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/printer/reconnect", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/printer/disconnect", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodDelete, "/printer/identity", nil).Code)
}

func TestCommandEndpoint(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})

	w := do(s, http.MethodPost, "/command", strings.NewReader(`{"command": "help"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])

	w = do(s, http.MethodPost, "/command", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	w := do(s, http.MethodOptions, "/print", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_PrinterState(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	conn := dialWS(t, s)

	initial := readMessage(t, conn)
	assert.Equal(t, EventPrinterState, initial.Event)
	assert.Equal(t, 1, s.hub.Count())

	s.BroadcastPrinterState(printer.Status{State: printer.StateConnected, StateName: "connected", Connected: true, DeviceID: "AA:BB"})

	msg := readMessage(t, conn)
	assert.Equal(t, EventPrinterState, msg.Event)
	assert.Equal(t, "connected", msg.Data["state"])
	assert.Equal(t, true, msg.Data["connected"])
	assert.Equal(t, "AA:BB", msg.Data["device_id"])
}

func TestWebSocket_Print(t *testing.T) {
	p := &fakePrinter{}
	s := newTestServer(t, p)
	conn := dialWS(t, s)
	readMessage(t, conn)

	var order map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(orderJSON), &order))
	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventPrint, Data: map[string]interface{}{"order": order}}))

	broadcast := readMessage(t, conn)
	assert.Equal(t, EventPrintResult, broadcast.Event)
	assert.Equal(t, "1042", broadcast.Data["order_id"])
	assert.Equal(t, true, broadcast.Data["success"])

	response := readMessage(t, conn)
	assert.Equal(t, EventResponse, response.Event)
	assert.Equal(t, "job-1", response.Data["job_id"])
	assert.Len(t, p.printedCopy(), 1)
}

func TestWebSocket_Errors(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	conn := dialWS(t, s)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "dance"}))
	msg := readMessage(t, conn)
	assert.Equal(t, EventError, msg.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventPrint, Data: map[string]interface{}{}}))
	msg = readMessage(t, conn)
	assert.Equal(t, EventError, msg.Event)

	require.NoError(t, conn.WriteJSON(WSMessage{Event: EventStatus}))
	msg = readMessage(t, conn)
	assert.Equal(t, EventResponse, msg.Event)
}

func TestWebSocket_Disconnect(t *testing.T) {
	s := newTestServer(t, &fakePrinter{})
	conn := dialWS(t, s)
	readMessage(t, conn)

	conn.Close()
	assert.Eventually(t, func() bool { return s.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
