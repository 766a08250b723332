package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/internal/audit"
	"github.com/tradewire/tradewire/internal/models"
	"github.com/tradewire/tradewire/internal/pipeline"
	"github.com/tradewire/tradewire/internal/registry"
)

// ownerHeader identifies the caller. Authentication is handled upstream; the
// relay trusts the header the same way it trusts the deployment's proxy.
const ownerHeader = "X-Owner-ID"

// ManagementHandler serves the webhook CRUD and observability surface.
type ManagementHandler struct {
	registry    *registry.Service
	audit       *audit.Store
	pipeline    *pipeline.Service
	connectors  pipeline.Connectors
	credentials connector.CredentialSource
	log         *logrus.Logger
}

// NewManagementHandler creates a management handler with explicit dependencies.
func NewManagementHandler(reg *registry.Service, auditStore *audit.Store, pipe *pipeline.Service, connectors pipeline.Connectors, credentials connector.CredentialSource, log *logrus.Logger) *ManagementHandler {
	return &ManagementHandler{
		registry:    reg,
		audit:       auditStore,
		pipeline:    pipe,
		connectors:  connectors,
		credentials: credentials,
		log:         log,
	}
}

type createWebhookRequest struct {
	Name     string                  `json:"name"`
	Broker   string                  `json:"broker" binding:"required"`
	Settings *models.WebhookSettings `json:"settings"`
}

// CreateWebhook handles POST /webhooks.
func (h *ManagementHandler) CreateWebhook(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}

	var req createWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	cfg, err := h.registry.Create(ownerID, req.Name, req.Broker, req.Settings)
	if err != nil {
		h.log.WithError(err).WithField("owner_id", ownerID).Error("webhook creation failed")
		fail(c, http.StatusInternalServerError, "failed to create webhook", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "webhook created",
		"webhook": cfg,
	})
}

// ListWebhooks handles GET /webhooks.
func (h *ManagementHandler) ListWebhooks(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	webhooks, err := h.registry.ListByOwner(ownerID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to list webhooks", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "ok",
		"webhooks": webhooks,
	})
}

// GetWebhook handles GET /webhooks/:id.
func (h *ManagementHandler) GetWebhook(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "ok",
		"webhook": cfg,
	})
}

// UpdateWebhook handles PUT /webhooks/:id.
func (h *ManagementHandler) UpdateWebhook(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}

	var params registry.UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	updated, err := h.registry.Update(cfg.ID, params)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to update webhook", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "webhook updated",
		"webhook": updated,
	})
}

// DeleteWebhook handles DELETE /webhooks/:id.
func (h *ManagementHandler) DeleteWebhook(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	deleted, err := h.registry.Delete(cfg.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to delete webhook", err.Error())
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, "webhook not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "webhook deleted",
	})
}

// TestWebhook handles POST /webhooks/:id/test, running a synthetic execution
// with a broker-appropriate sample payload.
func (h *ManagementHandler) TestWebhook(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	resp, err := h.pipeline.TestExecution(c.Request.Context(), cfg.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "test execution failed", err.Error())
		return
	}
	c.JSON(statusFor(resp.Category), resultEnvelope(resp.Result))
}

// ListExecutions handles GET /executions with optional webhook_id and limit
// query parameters, scoped to the calling owner.
func (h *ManagementHandler) ListExecutions(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}

	var webhookID uint
	if raw := c.Query("webhook_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid webhook_id", err.Error())
			return
		}
		webhookID = uint(id)
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	executions, err := h.audit.Executions(webhookID, ownerID, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to list executions", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "ok",
		"executions": executions,
		"count":      len(executions),
	})
}

// WebhookMetrics handles GET /webhooks/:id/metrics.
func (h *ManagementHandler) WebhookMetrics(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	metrics := h.audit.Metrics(cfg.ID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "ok",
		"metrics": metrics,
		"count":   len(metrics),
	})
}

// WebhookHeatmap handles GET /webhooks/:id/heatmap.
func (h *ManagementHandler) WebhookHeatmap(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	heatmap := h.audit.LatencyHeatmap(cfg.ID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "ok",
		"heatmap": heatmap,
	})
}

// WebhookInsights handles GET /webhooks/:id/insights.
func (h *ManagementHandler) WebhookInsights(c *gin.Context) {
	cfg, ok := h.ownedWebhook(c)
	if !ok {
		return
	}
	insights := h.audit.Insights(cfg.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "ok",
		"insights": insights,
		"count":    len(insights),
	})
}

// TestBroker handles POST /brokers/:broker/test, verifying the caller's
// stored credentials against the brokerage with a read-only call.
func (h *ManagementHandler) TestBroker(c *gin.Context) {
	ownerID, ok := h.owner(c)
	if !ok {
		return
	}
	broker := c.Param("broker")

	conn, err := h.connectors.Get(broker)
	if err != nil {
		fail(c, http.StatusBadRequest, "unsupported broker", err.Error())
		return
	}
	creds, found, err := h.credentials.Get(c.Request.Context(), ownerID, broker)
	if err != nil {
		fail(c, http.StatusInternalServerError, "credential lookup failed", err.Error())
		return
	}
	if !found {
		fail(c, http.StatusBadRequest, "no credentials configured",
			"no "+broker+" credentials stored for this account")
		return
	}

	test, err := conn.TestConnection(c.Request.Context(), creds)
	if err != nil {
		fail(c, http.StatusInternalServerError, "connection test failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      test.Success,
		"message":      test.Message,
		"account_info": test.AccountInfo,
	})
}

// owner extracts the calling owner id, failing the request when absent.
func (h *ManagementHandler) owner(c *gin.Context) (string, bool) {
	ownerID := c.GetHeader(ownerHeader)
	if ownerID == "" {
		fail(c, http.StatusBadRequest, "missing owner", ownerHeader+" header is required")
		return "", false
	}
	return ownerID, true
}

// ownedWebhook resolves the :id path parameter to a webhook owned by the
// caller. Webhooks of other owners answer 404, not 403, so ids do not leak.
func (h *ManagementHandler) ownedWebhook(c *gin.Context) (*models.WebhookConfig, bool) {
	ownerID, ok := h.owner(c)
	if !ok {
		return nil, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid webhook id", err.Error())
		return nil, false
	}
	cfg, err := h.registry.Get(uint(id))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			fail(c, http.StatusNotFound, "webhook not found")
		} else {
			fail(c, http.StatusInternalServerError, "failed to load webhook", err.Error())
		}
		return nil, false
	}
	if cfg.OwnerID != ownerID {
		fail(c, http.StatusNotFound, "webhook not found")
		return nil, false
	}
	return cfg, true
}

func fail(c *gin.Context, status int, message string, errs ...string) {
	body := gin.H{
		"success": false,
		"message": message,
	}
	if len(errs) > 0 {
		body["errors"] = errs
	}
	c.JSON(status, body)
}
