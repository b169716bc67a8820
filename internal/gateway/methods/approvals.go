package methods

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/clawgate/internal/approval"
	"github.com/nextlevelbuilder/clawgate/internal/gateway"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

// ApprovalMethods exposes the approval waiter over RPC.
type ApprovalMethods struct {
	waiter *approval.Waiter
}

// NewApprovalMethods creates the handler.
func NewApprovalMethods(waiter *approval.Waiter) *ApprovalMethods {
	return &ApprovalMethods{waiter: waiter}
}

// Register registers all approval RPC methods.
func (m *ApprovalMethods) Register(router *gateway.MethodRouter) {
	router.Register(protocol.MethodApprovalsPending, m.handlePending)
	router.Register(protocol.MethodApprovalsApprove, m.handleApprove)
	router.Register(protocol.MethodApprovalsReject, m.handleReject)
}

func (m *ApprovalMethods) handlePending(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	pending := m.waiter.ListPending()
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"requests": pending,
		"count":    len(pending),
	}))
}

func (m *ApprovalMethods) handleApprove(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID         string `json:"id"`
		ApprovedBy string `json:"approved_by"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.ID == "" || params.ApprovedBy == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id and approved_by are required"))
		return
	}

	if err := m.waiter.Approve(params.ID, params.ApprovedBy); err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "approval request not found"))
			return
		}
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"success": true}))
}

func (m *ApprovalMethods) handleReject(ctx context.Context, client *gateway.Client, req *protocol.RequestFrame) {
	var params struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.ID == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "id is required"))
		return
	}

	if err := m.waiter.Reject(params.ID, params.Reason); err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "approval request not found"))
			return
		}
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{"success": true}))
}
