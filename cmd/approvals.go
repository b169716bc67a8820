package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawgate/internal/approval"
	"github.com/nextlevelbuilder/clawgate/internal/config"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

func approvalsCmd() *cobra.Command {
	var gatewayURL string

	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Review and resolve pending command approvals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovals(gatewayURL)
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "gateway", "", "gateway websocket URL (default: from config)")
	return cmd
}

// rpcClient is a minimal synchronous WS RPC client for CLI use.
type rpcClient struct {
	conn *websocket.Conn
}

func dialGateway(rawURL string) (*rpcClient, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if rawURL == "" {
		host := cfg.Gateway.Host
		if host == "0.0.0.0" || host == "" {
			host = "127.0.0.1"
		}
		rawURL = fmt.Sprintf("ws://%s:%d/ws", host, cfg.Gateway.Port)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}
	if cfg.Gateway.Token != "" {
		q := u.Query()
		q.Set("token", cfg.Gateway.Token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return &rpcClient{conn: conn}, nil
}

// call sends one request and waits for its response, skipping any event
// frames that arrive in between.
func (c *rpcClient) call(method string, params interface{}) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	req := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     uuid.NewString(),
		Method: method,
		Params: raw,
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return nil, err
	}

	for {
		var frame struct {
			Type   string              `json:"type"`
			ID     string              `json:"id"`
			OK     bool                `json:"ok"`
			Result json.RawMessage     `json:"result"`
			Error  *protocol.ErrorInfo `json:"error"`
		}
		if err := c.conn.ReadJSON(&frame); err != nil {
			return nil, err
		}
		if frame.Type != protocol.FrameTypeResponse || frame.ID != req.ID {
			continue
		}
		if !frame.OK {
			return nil, fmt.Errorf("%s: %s", frame.Error.Code, frame.Error.Message)
		}
		return frame.Result, nil
	}
}

func (c *rpcClient) close() { c.conn.Close() }

func runApprovals(gatewayURL string) error {
	client, err := dialGateway(gatewayURL)
	if err != nil {
		return err
	}
	defer client.close()

	result, err := client.call(protocol.MethodApprovalsPending, nil)
	if err != nil {
		return err
	}

	var pending struct {
		Requests []approval.Request `json:"requests"`
		Count    int                `json:"count"`
	}
	if err := json.Unmarshal(result, &pending); err != nil {
		return fmt.Errorf("parse pending approvals: %w", err)
	}

	if pending.Count == 0 {
		fmt.Println("No pending approvals.")
		return nil
	}

	approver := os.Getenv("USER")
	if approver == "" {
		approver = "operator"
	}

	for _, req := range pending.Requests {
		var decision string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(fmt.Sprintf("[%s] %s", req.Tier, req.Command)).
					Description(req.Reason).
					Options(
						huh.NewOption("Approve", "approve"),
						huh.NewOption("Reject", "reject"),
						huh.NewOption("Skip", "skip"),
					).
					Value(&decision),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		switch decision {
		case "approve":
			if _, err := client.call(protocol.MethodApprovalsApprove, map[string]string{
				"id":          req.ID,
				"approved_by": approver,
			}); err != nil {
				fmt.Printf("approve failed: %v\n", err)
				continue
			}
			fmt.Printf("approved %s\n", req.ID)
		case "reject":
			if _, err := client.call(protocol.MethodApprovalsReject, map[string]string{
				"id":     req.ID,
				"reason": "rejected by " + approver,
			}); err != nil {
				fmt.Printf("reject failed: %v\n", err)
				continue
			}
			fmt.Printf("rejected %s\n", req.ID)
		}
	}
	return nil
}
