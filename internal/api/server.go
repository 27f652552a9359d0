// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/thereceipt/bleprint/internal/command"
	"github.com/thereceipt/bleprint/internal/printer"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

// Config configures the API server
type Config struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	ReprintTTL      time.Duration
	Logger          *log.Logger
}

// Server is the API server
type Server struct {
	router   *gin.Engine
	printer  command.Printer
	executor *command.Executor
	hub      *Hub
	reprints *cache.Cache
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer creates a new API server
func NewServer(p command.Printer, cfg Config) *Server {
	// Set Gin to release mode
	gin.SetMode(gin.ReleaseMode)

	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 2
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 4
	}
	if cfg.ReprintTTL <= 0 {
		cfg.ReprintTTL = 15 * time.Minute
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(corsMiddleware())

	server := &Server{
		router:   router,
		printer:  p,
		executor: command.NewExecutor(p),
		hub:      newHub(cfg.Logger),
		reprints: cache.New(cfg.ReprintTTL, 2*cfg.ReprintTTL),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: cfg.Logger,
	}
	server.executor.OnPrint(server.recordPrint)

	server.setupRoutes(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	return server
}

func (s *Server) setupRoutes(limit rate.Limit, burst int) {
	// Receipt view
	s.router.GET("/receipt", s.handleReceipt)
	s.router.GET("/receipt.png", s.handleReceiptPNG)

	// Printing is rate limited per client
	printing := s.router.Group("/", RateLimiter(limit, burst))
	printing.POST("/print", s.handlePrint)
	printing.POST("/receipt/print", s.handleReceiptPrint)
	printing.POST("/orders/:id/reprint", s.handleReprint)

	// Printer connection
	s.router.GET("/printer", s.handleGetPrinter)
	s.router.POST("/printer/connect", s.handleConnect)
	s.router.POST("/printer/reconnect", s.handleReconnect)
	s.router.POST("/printer/disconnect", s.handleDisconnect)
	s.router.DELETE("/printer/identity", s.handleForget)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// recordPrint keeps the encoded receipt for reprints and tells clients
func (s *Server) recordPrint(order *receiptorder.Order, data []byte, result printer.PrintResult, err error) {
	if order != nil && order.ID != "" && len(data) > 0 {
		s.reprints.Set(order.ID, data, cache.DefaultExpiration)
	}

	orderID := ""
	if order != nil {
		orderID = order.ID
	}
	s.broadcastPrintResult(orderID, result, err)
}

// BroadcastPrinterState tells all clients about a connection state change
func (s *Server) BroadcastPrinterState(status printer.Status) {
	s.hub.Broadcast(EventPrinterState, statusData(printer.SessionStatus{Status: status}))
}

func (s *Server) broadcastPrintResult(orderID string, result printer.PrintResult, err error) {
	data := map[string]interface{}{
		"success":  err == nil,
		"order_id": orderID,
		"job_id":   result.JobID,
		"bytes":    result.Bytes,
	}
	if err != nil {
		data["kind"] = printer.Kind(err)
		data["message"] = printer.UserMessage(err)
	}
	s.hub.Broadcast(EventPrintResult, data)
}

// Close disconnects all WebSocket clients
func (s *Server) Close() {
	s.hub.Close()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
