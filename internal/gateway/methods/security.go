// Package methods registers the gateway's RPC surface.
package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/clawgate/internal/anomaly"
	"github.com/nextlevelbuilder/clawgate/internal/classifier"
	"github.com/nextlevelbuilder/clawgate/internal/gateway"
	"github.com/nextlevelbuilder/clawgate/internal/injection"
	"github.com/nextlevelbuilder/clawgate/internal/ratelimit"
	"github.com/nextlevelbuilder/clawgate/internal/secrets"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

// SecurityMethods exposes the classifier, rate limiter, anomaly detector,
// secrets scanner, and injection detector over RPC.
type SecurityMethods struct {
	classifier *classifier.Classifier
	rules      *classifier.RuleStore
	limiter    *ratelimit.Limiter
	anomalies  *anomaly.Detector
	scanner    *secrets.Scanner
	injector   *injection.Detector
}

// NewSecurityMethods bundles the pipeline components for RPC exposure.
func NewSecurityMethods(
	cls *classifier.Classifier,
	rules *classifier.RuleStore,
	limiter *ratelimit.Limiter,
	anomalies *anomaly.Detector,
	scanner *secrets.Scanner,
	injector *injection.Detector,
) *SecurityMethods {
	return &SecurityMethods{
		classifier: cls,
		rules:      rules,
		limiter:    limiter,
		anomalies:  anomalies,
		scanner:    scanner,
		injector:   injector,
	}
}

// Register registers all security RPC methods.
func (m *SecurityMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSecurityClassify, m.handleClassify)
	// The LLM-backed variant degrades to rule classification until an LLM
	// audit backend is wired in.
	router.Register(protocol.MethodSecurityClassifyWithLLM, m.handleClassify)
	router.Register(protocol.MethodRateLimitStatus, m.handleRateLimitStatus)
	router.Register(protocol.MethodRateLimitReset, m.handleRateLimitReset)
	router.Register(protocol.MethodAnomalyAnalyze, m.handleAnomalyAnalyze)
	router.Register(protocol.MethodAnomalyUpdateBaseline, m.handleAnomalyUpdateBaseline)
	router.Register(protocol.MethodAnomalyGetBaseline, m.handleAnomalyGetBaseline)
	router.Register(protocol.MethodSecretsScan, m.handleSecretsScan)
	router.Register(protocol.MethodSecretsRedact, m.handleSecretsRedact)
	router.Register(protocol.MethodSecretsConfigure, m.handleSecretsConfigure)
	router.Register(protocol.MethodSecretsGetConfig, m.handleSecretsGetConfig)
	router.Register(protocol.MethodInjectionDetect, m.handleInjectionDetect)
	router.Register(protocol.MethodInjectionSanitize, m.handleInjectionSanitize)
}

func (m *SecurityMethods) handleClassify(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Command string `json:"command"`
		UserID  string `json:"user_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	var rules *classifier.CustomRules
	if m.rules != nil && params.UserID != "" {
		rules = m.rules.For(params.UserID)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.classifier.ClassifyWithRules(params.Command, rules)))
}

func (m *SecurityMethods) handleRateLimitStatus(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID    string `json:"user_id"`
		ChannelID string `json:"channel_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.UserID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.limiter.Status(params.UserID, params.ChannelID)))
}

func (m *SecurityMethods) handleRateLimitReset(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID string `json:"user_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.UserID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	m.limiter.Reset(params.UserID)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"success": true}))
}

func (m *SecurityMethods) handleAnomalyAnalyze(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID  string `json:"user_id"`
		Command string `json:"command"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.UserID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.anomalies.Analyze(params.UserID, params.Command)))
}

func (m *SecurityMethods) handleAnomalyUpdateBaseline(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID string `json:"user_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.UserID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	baseline := m.anomalies.UpdateBaseline(params.UserID)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"success":  baseline != nil,
		"baseline": baseline,
	}))
}

func (m *SecurityMethods) handleAnomalyGetBaseline(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID string `json:"user_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"baseline": m.anomalies.GetBaseline(params.UserID),
	}))
}

func (m *SecurityMethods) handleSecretsScan(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Text string `json:"text"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.scanner.ScanOutput(params.Text)))
}

func (m *SecurityMethods) handleSecretsRedact(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Text string `json:"text"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	matches := m.scanner.Scan(params.Text)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"redacted": m.scanner.Redact(params.Text),
		"found":    len(matches),
		"matches":  matches,
	}))
}

func (m *SecurityMethods) handleSecretsConfigure(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Mode              *string `json:"mode"`
		EnableLineNumbers *bool   `json:"enable_line_numbers"`
		MaxPerType        *int    `json:"max_per_type"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	cfg := m.scanner.Configure(func(c secrets.Config) secrets.Config {
		if params.Mode != nil {
			c.Mode = *params.Mode
		}
		if params.EnableLineNumbers != nil {
			c.EnableLineNumbers = *params.EnableLineNumbers
		}
		if params.MaxPerType != nil {
			c.MaxSecretsPerType = *params.MaxPerType
		}
		return c
	})
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"success": true,
		"config":  cfg,
	}))
}

func (m *SecurityMethods) handleSecretsGetConfig(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"config": m.scanner.Current(),
	}))
}

func (m *SecurityMethods) handleInjectionDetect(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Text        string `json:"text"`
		Sensitivity string `json:"sensitivity"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	var det injection.Detection
	if params.Sensitivity != "" {
		det = m.injector.DetectAt(params.Text, injection.Threshold(params.Sensitivity))
	} else {
		det = m.injector.Detect(params.Text)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, det))
}

func (m *SecurityMethods) handleInjectionSanitize(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		Text string `json:"text"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	sanitized, modified := m.injector.Sanitize(params.Text)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"original":  params.Text,
		"sanitized": sanitized,
		"modified":  modified,
	}))
}
