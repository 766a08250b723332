// Package handlers contains the gin HTTP handlers. Handlers stay thin: they
// decode the request, call the pipeline or a service, and shape the uniform
// JSON envelope.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/internal/audit"
	"github.com/tradewire/tradewire/internal/pipeline"
)

// WebhookHandler receives inbound trade alerts.
type WebhookHandler struct {
	pipeline *pipeline.Service
	log      *logrus.Logger
}

// NewWebhookHandler creates a webhook handler with explicit dependencies.
func NewWebhookHandler(pipe *pipeline.Service, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{pipeline: pipe, log: log}
}

// Receive handles POST /w/:token and its aliases. The token is the last
// path segment; a source label may precede it.
func (h *WebhookHandler) Receive(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		token = c.Param("source")
	}
	h.execute(c, token)
}

// Execute handles POST /execute, where the token travels inside the payload.
func (h *WebhookHandler) Execute(c *gin.Context) {
	h.execute(c, "")
}

func (h *WebhookHandler) execute(c *gin.Context, token string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, resultEnvelope(connector.Failed("failed to read request body", err.Error())))
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, resultEnvelope(connector.Failed("invalid JSON payload", err.Error())))
		return
	}

	resp := h.pipeline.Execute(c.Request.Context(), &pipeline.Request{
		Token:   token,
		Payload: payload,
		RawBody: body,
		Meta: audit.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Endpoint:  c.FullPath(),
		},
	})
	c.JSON(statusFor(resp.Category), resultEnvelope(resp.Result))
}

// statusFor maps a pipeline category to an HTTP status. Broker rejections are
// 200 with success=false: the relay did its job, the brokerage said no.
func statusFor(category pipeline.Category) int {
	switch category {
	case pipeline.CategoryInvalidToken:
		return http.StatusNotFound
	case pipeline.CategoryValidation, pipeline.CategoryConfiguration:
		return http.StatusBadRequest
	case pipeline.CategoryInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// resultEnvelope shapes the uniform response body. Every endpoint answers
// with at least success and message; errors appears only when populated.
func resultEnvelope(result *connector.ExecutionResult) gin.H {
	envelope := gin.H{
		"success": result.Success,
		"message": result.Message,
	}
	if len(result.Errors) > 0 {
		envelope["errors"] = result.Errors
	}
	if result.OrderID != "" {
		envelope["order_id"] = result.OrderID
	}
	if len(result.Details) > 0 {
		envelope["details"] = result.Details
	}
	if result.ResponseTimeMs > 0 {
		envelope["response_time_ms"] = result.ResponseTimeMs
	}
	return envelope
}
