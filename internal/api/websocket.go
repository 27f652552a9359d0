package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereceipt/bleprint/internal/command"
	"github.com/thereceipt/bleprint/internal/printer"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

// WebSocket message types
const (
	EventPrint        = "print"
	EventStatus       = "status"
	EventPrinterState = "printer_state"
	EventPrintResult  = "print_result"
	EventResponse     = "response"
	EventError        = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
}

// Hub tracks connected clients for broadcasts
type Hub struct {
	mu      sync.RWMutex
	clients map[*WSClient]bool
	logger  *log.Logger
}

func newHub(logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[*WSClient]bool),
		logger:  logger,
	}
}

func (h *Hub) add(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

// remove unregisters client and closes its send channel. Broadcast holds the
// read lock while sending, so no send can race the close.
func (h *Hub) remove(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Broadcast sends an event to every connected client
func (h *Hub) Broadcast(event string, data map[string]interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	message := WSMessage{Event: event, Data: data}
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client send buffer full, skip
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}

	s.logger.Println("📡 WebSocket client connected")

	// New clients learn the current state without waiting for a change
	client.send <- WSMessage{Event: EventPrinterState, Data: statusData(s.printer.Status())}
	s.hub.add(client)

	// Start goroutines
	go client.readPump()
	go client.writePump()
}

func statusData(status printer.SessionStatus) map[string]interface{} {
	data := map[string]interface{}{
		"state":       status.StateName,
		"connected":   status.Connected,
		"device_id":   status.DeviceID,
		"device_name": status.DeviceName,
	}
	if status.Paired != nil {
		data["paired"] = status.Paired
	}
	if status.InFlight != nil {
		data["in_flight"] = status.InFlight.ID
	}
	return data
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.logger.Printf("WebSocket write error: %v", err)
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.conn.Close()
		c.server.logger.Println("📡 WebSocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventPrint:
		c.handlePrintEvent(msg.Data)
	case EventStatus:
		c.sendResponse(statusData(c.server.printer.Status()))
	default:
		c.sendError(fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

func (c *WSClient) handlePrintEvent(data map[string]interface{}) {
	var order *receiptorder.Order
	var err error

	if orderData, ok := data["order"]; ok {
		// Direct order JSON
		raw, _ := json.Marshal(orderData)
		order, err = receiptorder.Parse(raw)
		if err != nil {
			c.sendError(fmt.Sprintf("invalid order: %v", err))
			return
		}
	} else if source, ok := data["order_url"].(string); ok && source != "" {
		order, err = command.LoadOrder(context.Background(), source)
		if err != nil {
			c.sendError(fmt.Sprintf("failed to load order: %v", err))
			return
		}
	} else {
		c.sendError("order or order_url is required")
		return
	}

	// The reply goes to this client, the broadcast to everyone
	result, err := c.server.executor.PrintOrder(context.Background(), order)
	if err != nil {
		c.sendResponse(map[string]interface{}{
			"success": false,
			"job_id":  result.JobID,
			"kind":    printer.Kind(err),
			"message": printer.UserMessage(err),
		})
		return
	}

	c.sendResponse(map[string]interface{}{
		"success": true,
		"job_id":  result.JobID,
		"bytes":   result.Bytes,
	})
}

func (c *WSClient) sendResponse(data map[string]interface{}) {
	c.send <- WSMessage{
		Event: EventResponse,
		Data:  data,
	}
}

func (c *WSClient) sendError(message string) {
	c.send <- WSMessage{
		Event: EventError,
		Data: map[string]interface{}{
			"error": message,
		},
	}
}
