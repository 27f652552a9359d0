package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thereceipt/bleprint/internal/printer"
	"github.com/thereceipt/bleprint/internal/receipt"
	"github.com/thereceipt/bleprint/internal/renderer"
	"github.com/thereceipt/bleprint/pkg/receiptorder"
)

// lineView is the JSON shape of one laid out receipt line
type lineView struct {
	Text  string `json:"text"`
	Align string `json:"align"`
	Bold  bool   `json:"bold,omitempty"`
	Large bool   `json:"large,omitempty"`
	Cut   bool   `json:"cut,omitempty"`
}

func viewLines(lines []receipt.StyledLine) []lineView {
	views := make([]lineView, len(lines))
	for i, line := range lines {
		view := lineView{
			Text:  line.Text(),
			Align: "left",
			Bold:  line.Bold(),
			Cut:   line.Terminal == receipt.TerminalCut,
		}
		if line.Align == receipt.AlignCenter {
			view.Align = "center"
		}
		for _, span := range line.Spans {
			if span.Scale == receipt.Scale2x {
				view.Large = true
			}
		}
		views[i] = view
	}
	return views
}

// statusFor maps a print or connection failure to an HTTP status
func statusFor(err error) int {
	switch printer.Kind(err) {
	case printer.KindBusy, printer.KindNotPaired, printer.KindCancelled:
		return http.StatusConflict
	case printer.KindEmpty:
		return http.StatusBadRequest
	case printer.KindNoTransport:
		return http.StatusServiceUnavailable
	case printer.KindLinkFailure, printer.KindProtocol, printer.KindTransmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func failureBody(err error) gin.H {
	return gin.H{
		"success": false,
		"message": printer.UserMessage(err),
		"kind":    printer.Kind(err),
		"error":   err.Error(),
	}
}

func (s *Server) respondPrint(c *gin.Context, result printer.PrintResult, err error) {
	if err != nil {
		body := failureBody(err)
		if result.JobID != "" {
			body["job_id"] = result.JobID
		}
		c.JSON(statusFor(err), body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Receipt printed",
		"job_id":  result.JobID,
		"bytes":   result.Bytes,
	})
}

// handleReceipt returns the receipt layout for the order in data=
func (s *Server) handleReceipt(c *gin.Context) {
	order, err := receiptorder.ParseQuery(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines := receipt.Render(order)
	text := make([]string, len(lines))
	for i, line := range lines {
		text[i] = line.Text()
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
		"lines": viewLines(lines),
		"text":  strings.Join(text, "\n"),
	})
}

// handleReceiptPNG renders the receipt for the order in data= as an image
func (s *Server) handleReceiptPNG(c *gin.Context) {
	order, err := receiptorder.ParseQuery(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img := renderer.Render(receipt.Render(order), c.DefaultQuery("paper", "58mm"))

	if w := c.Query("width"); w != "" {
		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "width must be a positive integer"})
			return
		}
		img = renderer.Fit(img, width)
	}

	var buf bytes.Buffer
	if err := renderer.EncodePNG(&buf, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// handleReceiptPrint prints the order carried in data=, the receipt view's print button
func (s *Server) handleReceiptPrint(c *gin.Context) {
	order, err := receiptorder.ParseQuery(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := s.executor.PrintOrder(c.Request.Context(), order)
	s.respondPrint(c, result, err)
}

// handlePrint prints the order JSON in the request body
func (s *Server) handlePrint(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	order, err := receiptorder.Parse(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	result, err := s.executor.PrintOrder(c.Request.Context(), order)
	s.respondPrint(c, result, err)
}

// handleReprint sends the bytes of a recently printed order again
func (s *Server) handleReprint(c *gin.Context) {
	orderID := c.Param("id")

	cached, ok := s.reprints.Get(orderID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no recent receipt for order " + orderID,
		})
		return
	}

	result, err := s.printer.PrintBytes(c.Request.Context(), cached.([]byte))
	s.broadcastPrintResult(orderID, result, err)
	s.respondPrint(c, result, err)
}

func (s *Server) handleGetPrinter(c *gin.Context) {
	c.JSON(http.StatusOK, s.printer.Status())
}

func (s *Server) handleConnect(c *gin.Context) {
	if err := s.printer.Connect(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), failureBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "printer": s.printer.Status()})
}

func (s *Server) handleReconnect(c *gin.Context) {
	if err := s.printer.Reconnect(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), failureBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "printer": s.printer.Status()})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	s.printer.Disconnect()
	c.JSON(http.StatusOK, gin.H{"success": true, "printer": s.printer.Status()})
}

func (s *Server) handleForget(c *gin.Context) {
	if err := s.printer.Forget(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleCommand executes a command string
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)
	c.JSON(http.StatusOK, result)
}
