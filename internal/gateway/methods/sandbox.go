package methods

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/clawgate/internal/gateway"
	"github.com/nextlevelbuilder/clawgate/internal/sandbox"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

// SandboxMethods exposes sandbox lifecycle operations over RPC.
type SandboxMethods struct {
	manager *sandbox.Manager
}

// NewSandboxMethods creates the handler.
func NewSandboxMethods(manager *sandbox.Manager) *SandboxMethods {
	return &SandboxMethods{manager: manager}
}

// Register registers all sandbox RPC methods.
func (m *SandboxMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodSandboxStatus, m.handleStatus)
	router.Register(protocol.MethodSandboxCreate, m.handleCreate)
	router.Register(protocol.MethodSandboxKill, m.handleKill)
	router.Register(protocol.MethodSandboxHibernate, m.handleHibernate)
}

func (m *SandboxMethods) userID(req *protocol.RequestFrame) string {
	var params struct {
		UserID string `json:"user_id"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	return params.UserID
}

func (m *SandboxMethods) handleStatus(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	userID := m.userID(req)
	if userID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.manager.Status(userID)))
}

func (m *SandboxMethods) handleCreate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	userID := m.userID(req)
	if userID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	if _, err := m.manager.GetOrCreate(ctx, userID); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrSandbox, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, m.manager.Status(userID)))
}

func (m *SandboxMethods) handleKill(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	userID := m.userID(req)
	if userID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	m.manager.Terminate(ctx, userID)
	client.SendResponse(protocol.NewOKResponse(req.ID, m.manager.Status(userID)))
}

func (m *SandboxMethods) handleHibernate(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	userID := m.userID(req)
	if userID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "user_id is required"))
		return
	}
	m.manager.Hibernate(ctx, userID)
	client.SendResponse(protocol.NewOKResponse(req.ID, m.manager.Status(userID)))
}
