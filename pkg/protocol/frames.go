package protocol

import "encoding/json"

// ProtocolVersion is bumped on breaking changes to the WS frame contract.
const ProtocolVersion = 2

// Frame type discriminators.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Error codes returned in ResponseFrame.Error. These mirror the gateway
// error taxonomy so dashboards can match on code rather than message.
const (
	ErrInvalidRequest   = "invalid_params"
	ErrUnauthorized     = "unauthorized"
	ErrRateLimited      = "rate_limited"
	ErrBlockedByPolicy  = "blocked_by_policy"
	ErrApprovalTimeout  = "approval_timeout"
	ErrApprovalRejected = "approval_rejected"
	ErrSandbox          = "sandbox_unavailable"
	ErrNotFound         = "not_found"
	ErrInternal         = "internal_error"
)

// RequestFrame is a client → server RPC call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorInfo carries a machine-matchable code plus a human message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseFrame is a server → client reply to a RequestFrame.
type ResponseFrame struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
}

// EventFrame is a server-push notification, not tied to a request.
type EventFrame struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewOKResponse builds a success response for the given request ID.
func NewOKResponse(id string, result interface{}) ResponseFrame {
	return ResponseFrame{Type: FrameTypeResponse, ID: id, OK: true, Result: result}
}

// NewErrorResponse builds an error response for the given request ID.
func NewErrorResponse(id, code, message string) ResponseFrame {
	return ResponseFrame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    false,
		Error: &ErrorInfo{Code: code, Message: message},
	}
}

// NewEvent builds an event frame.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Type: FrameTypeEvent, Event: name, Payload: payload}
}
