// Package pipeline orchestrates one inbound webhook request: resolve the
// token, validate the payload, convert broker-agnostic alerts, dispatch to
// the target connector, and shape the response. Steps are strictly
// sequential and terminal on first failure; nothing is retried or queued.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tradewire/tradewire/connector"
	"github.com/tradewire/tradewire/internal/audit"
	"github.com/tradewire/tradewire/internal/config"
	"github.com/tradewire/tradewire/internal/models"
	"github.com/tradewire/tradewire/internal/registry"
	"github.com/tradewire/tradewire/internal/schema"
)

// sourceTradingView is the broker-agnostic source type whose alerts are
// converted to the webhook's configured target broker.
const sourceTradingView = "tradingview"

// Category classifies the pipeline outcome so the transport layer can map it
// to a status code. Broker failures are category Broker with a 2xx-wrapped
// failure body: the request was processed, the brokerage declined it.
type Category int

const (
	CategoryOK Category = iota
	CategoryInvalidToken
	CategoryValidation
	CategoryConfiguration
	CategoryBroker
	CategoryInternal
)

// Response is a shaped pipeline outcome.
type Response struct {
	Result   *connector.ExecutionResult
	Category Category
}

// Connectors selects a connector for a broker identifier. Injected so tests
// can substitute scripted connectors for the real registry.
type Connectors interface {
	Get(broker string) (connector.Connector, error)
}

// RegistryConnectors is the production Connectors implementation backed by
// the connector factory registry, wiring each connector's base URL and
// credential source from configuration.
type RegistryConnectors struct {
	Cfg         *config.Config
	Credentials connector.CredentialSource
	Log         *logrus.Logger
}

func (r *RegistryConnectors) Get(broker string) (connector.Connector, error) {
	return connector.Create(broker, connector.Deps{
		Credentials: r.Credentials,
		Log:         r.Log,
		BaseURL:     r.Cfg.Broker(strings.ToLower(broker)).BaseURL,
	})
}

// Service is the execution pipeline
type Service struct {
	registry   *registry.Service
	audit      *audit.Store
	connectors Connectors
	cfg        *config.Config
	log        *logrus.Logger
}

// NewService creates an execution pipeline with explicit dependencies.
func NewService(reg *registry.Service, auditStore *audit.Store, connectors Connectors, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		registry:   reg,
		audit:      auditStore,
		connectors: connectors,
		cfg:        cfg,
		log:        log,
	}
}

// Request is one inbound webhook call.
type Request struct {
	// Token from the URL path; when empty the payload-embedded token is used.
	Token   string
	Payload map[string]any
	RawBody []byte
	Meta    audit.RequestMeta
}

// Execute runs the full pipeline for one request.
func (s *Service) Execute(ctx context.Context, req *Request) *Response {
	started := time.Now()

	token := req.Token
	if token == "" {
		token = schema.TokenFromPayload(req.Payload)
	}
	cfg, err := s.registry.Resolve(token)
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) {
			s.log.WithError(err).Error("webhook resolution failed")
		}
		// Unknown and inactive tokens are indistinguishable to callers.
		return respond(connector.Failed("invalid webhook token",
			"no active webhook is registered for this token"), CategoryInvalidToken, started)
	}

	resp := s.executeForConfig(ctx, cfg, req, started)
	s.logExecution(cfg, req, resp.Result)
	return resp
}

// TestExecution runs a synthetic execution for a webhook using a
// broker-appropriate sample payload. It exercises the same validate, convert
// and dispatch steps as a live alert and is audited like one.
func (s *Service) TestExecution(ctx context.Context, webhookID uint) (*Response, error) {
	cfg, err := s.registry.Get(webhookID)
	if err != nil {
		return nil, err
	}
	payload := SamplePayload(cfg.Broker)
	raw, _ := json.Marshal(payload)
	req := &Request{
		Token:   cfg.Token,
		Payload: payload,
		RawBody: raw,
		Meta:    audit.RequestMeta{Endpoint: "/test"},
	}
	resp := s.executeForConfig(ctx, cfg, req, time.Now())
	s.logExecution(cfg, req, resp.Result)
	return resp, nil
}

func (s *Service) executeForConfig(ctx context.Context, cfg *models.WebhookConfig, req *Request, started time.Time) *Response {
	// Validate against the source schema of the webhook's broker.
	alert, verr := schema.Validate(cfg.Broker, req.Payload)
	if verr != nil {
		return respond(connector.Failed("payload validation failed", verr.Messages()...),
			CategoryValidation, started)
	}

	// Broker-agnostic sources route via the settings override.
	target := strings.ToLower(cfg.Broker)
	if target == sourceTradingView {
		target = strings.ToLower(cfg.Settings.TargetBroker)
		if target == "" {
			return respond(connector.Failed("webhook misconfigured",
				"tradingview webhooks require a target broker in settings"), CategoryConfiguration, started)
		}
	}

	connector.ApplyDefaults(alert, defaultsFromSettings(&cfg.Settings))

	conn, err := s.connectors.Get(target)
	if err != nil {
		return respond(connector.Failed("unsupported broker",
			fmt.Sprintf("no connector is registered for broker %q", target)), CategoryConfiguration, started)
	}

	result := s.dispatch(ctx, conn, cfg, alert, target)
	category := CategoryOK
	switch {
	case result.Code == connector.CodeMissingCredentials:
		// Absent credentials are a configuration problem, not a brokerage
		// rejection.
		category = CategoryConfiguration
	case !result.Success:
		category = CategoryBroker
	}
	return respond(result, category, started)
}

// dispatch invokes the connector under the broker's configured timeout. Any
// connector fault, panic included, degrades to a failed result so a
// brokerage-API problem can never crash the request handler.
func (s *Service) dispatch(ctx context.Context, conn connector.Connector, cfg *models.WebhookConfig, alert *connector.NormalizedAlert, target string) (result *connector.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"webhook_id": cfg.ID,
				"broker":     target,
				"panic":      r,
			}).Error("connector panicked during dispatch")
			result = connector.Failed("trade execution failed", "internal error during dispatch")
		}
	}()

	dispatchCtx, cancel := context.WithTimeout(ctx, s.cfg.Broker(target).Timeout())
	defer cancel()

	res, err := conn.ExecuteTrade(dispatchCtx, cfg.OwnerID, alert)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"webhook_id": cfg.ID,
			"broker":     target,
		}).Error("trade dispatch failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return connector.Failed("trade execution failed",
				fmt.Sprintf("timeout: %s did not respond within %s", target, s.cfg.Broker(target).Timeout()))
		}
		return connector.Failed("trade execution failed", "internal error during dispatch")
	}
	if res == nil {
		return connector.Failed("trade execution failed", "connector returned no result")
	}
	return res
}

func (s *Service) logExecution(cfg *models.WebhookConfig, req *Request, result *connector.ExecutionResult) {
	if err := s.audit.LogExecution(cfg.ID, cfg.OwnerID, cfg.Broker, req.RawBody, result, req.Meta, result.ResponseTimeMs); err != nil {
		s.log.WithError(err).WithField("webhook_id", cfg.ID).Error("failed to record execution")
	}
}

func respond(result *connector.ExecutionResult, category Category, started time.Time) *Response {
	result.ResponseTimeMs = time.Since(started).Milliseconds()
	return &Response{Result: result, Category: category}
}

func defaultsFromSettings(settings *models.WebhookSettings) *connector.Defaults {
	defaults := &connector.Defaults{
		Quantity:      settings.DefaultQuantity,
		TrailingStop:  settings.TrailingStop,
		TrailingValue: settings.TrailingValue,
	}
	if settings.StopLossType != "" && settings.StopLossValue > 0 {
		defaults.StopLoss = &connector.BracketSpec{Type: settings.StopLossType, Value: settings.StopLossValue}
	}
	if settings.TakeProfitType != "" && settings.TakeProfitValue > 0 {
		defaults.TakeProfit = &connector.BracketSpec{Type: settings.TakeProfitType, Value: settings.TakeProfitValue}
	}
	return defaults
}
