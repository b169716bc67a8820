package methods

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/clawgate/internal/audit"
	"github.com/nextlevelbuilder/clawgate/internal/gateway"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

// AuditMethods exposes audit log queries and stats over RPC.
type AuditMethods struct {
	log *audit.Log
}

// NewAuditMethods creates the handler.
func NewAuditMethods(log *audit.Log) *AuditMethods {
	return &AuditMethods{log: log}
}

// Register registers all audit RPC methods.
func (m *AuditMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodAuditLogs, m.handleLogs)
	router.Register(protocol.MethodAuditStats, m.handleStats)
}

func (m *AuditMethods) handleLogs(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID string `json:"user_id"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
		Tier   string `json:"tier"`
		Action string `json:"action"`
		From   string `json:"from"`
		To     string `json:"to"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	opts := audit.QueryOpts{
		Tier:   params.Tier,
		Action: params.Action,
		Limit:  params.Limit,
		Offset: params.Offset,
	}
	if t, err := time.Parse(time.RFC3339, params.From); err == nil {
		opts.From = t
	}
	if t, err := time.Parse(time.RFC3339, params.To); err == nil {
		opts.To = t
	}

	entries := m.log.Query(params.UserID, opts)
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"entries": entries,
		"total":   m.log.Count(params.UserID),
	}))
}

func (m *AuditMethods) handleStats(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		UserID string `json:"user_id"`
		Days   int    `json:"days"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.log.Stats(params.UserID, params.Days)))
}
