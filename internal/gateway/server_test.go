package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/clawgate/internal/config"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

func startServer(t *testing.T, cfg *config.Config) (string, *Server) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	s := NewServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, start := StartTestServer(s, ctx)
	start()
	return addr, s
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func call(t *testing.T, conn *websocket.Conn, method string, params interface{}) protocol.ResponseFrame {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
		raw = data
	}
	req := protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: "req-1", Method: method, Params: raw}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var res protocol.ResponseFrame
		if err := conn.ReadJSON(&res); err != nil {
			t.Fatalf("read: %v", err)
		}
		if res.Type == protocol.FrameTypeResponse && res.ID == req.ID {
			return res
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	addr, _ := startServer(t, nil)

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestConnectAndHealthRPC(t *testing.T) {
	addr, _ := startServer(t, nil)
	conn := dial(t, addr)

	res := call(t, conn, protocol.MethodConnect, nil)
	if !res.OK {
		t.Fatalf("connect failed: %+v", res.Error)
	}

	res = call(t, conn, protocol.MethodHealth, nil)
	if !res.OK {
		t.Fatalf("health failed: %+v", res.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	addr, _ := startServer(t, nil)
	conn := dial(t, addr)

	res := call(t, conn, "no.such.method", nil)
	if res.OK || res.Error == nil || res.Error.Code != protocol.ErrNotFound {
		t.Errorf("res = %+v", res)
	}
}

func TestTokenAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Token = "sekrit"
	addr, _ := startServer(t, cfg)

	// Without the token the upgrade is refused.
	if _, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil); err == nil {
		t.Fatal("expected unauthorized dial to fail")
	}

	// With the token it succeeds.
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws?token=sekrit", nil)
	if err != nil {
		t.Fatalf("authorized dial: %v", err)
	}
	conn.Close()
}

func TestRegisteredMethodDispatch(t *testing.T) {
	addr, s := startServer(t, nil)

	s.Router().Register("echo", func(ctx context.Context, c *Client, req *protocol.RequestFrame) {
		var params map[string]interface{}
		if req.Params != nil {
			json.Unmarshal(req.Params, &params)
		}
		c.SendResponse(protocol.NewOKResponse(req.ID, params))
	})

	conn := dial(t, addr)
	res := call(t, conn, "echo", map[string]string{"hello": "world"})
	if !res.OK {
		t.Fatalf("echo failed: %+v", res.Error)
	}
	result, _ := res.Result.(map[string]interface{})
	if result["hello"] != "world" {
		t.Errorf("result = %v", res.Result)
	}
}
