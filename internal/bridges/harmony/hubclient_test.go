package harmony

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeHub emulates the hub's device API: HTTP provisioning on POST / and
// the JSON envelope protocol over a WebSocket on the same port.
type fakeHub struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	current  string
	conns    []*websocket.Conn
	requests []string
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	h := &fakeHub{t: t, current: "12345"}
	// The client sends the hub's required Origin header, which never matches
	// the test server's host; skip the upgrader's same-origin check.
	h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	h.server = httptest.NewServer(http.HandlerFunc(h.handle))
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHub) hostPort() (string, int) {
	h.t.Helper()
	host, portStr, err := net.SplitHostPort(h.server.Listener.Addr().String())
	if err != nil {
		h.t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (h *fakeHub) handle(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conns = append(h.conns, conn)
		h.mu.Unlock()
		go h.serveConn(conn)
		return
	}

	// Provisioning request.
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data":{"activeRemoteId":11223344}}`))
}

func (h *fakeHub) serveConn(conn *websocket.Conn) {
	for {
		var envelope hubEnvelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return
		}
		h.mu.Lock()
		h.requests = append(h.requests, envelope.HBus.Cmd)
		current := h.current
		h.mu.Unlock()

		reply := map[string]any{
			"id":   envelope.HBus.ID,
			"cmd":  envelope.HBus.Cmd,
			"code": 200,
			"msg":  "OK",
		}
		switch envelope.HBus.Cmd {
		case currentActivityCommand:
			reply["data"] = map[string]string{"result": current}
		case configCommand:
			reply["data"] = testCatalog()
		case startActivityCommand, holdActionCommand:
			reply["data"] = map[string]any{}
		default:
			reply["code"] = 404
			reply["msg"] = "unknown command"
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (h *fakeHub) commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.requests))
	copy(out, h.requests)
	return out
}

func (h *fakeHub) dropConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.conns {
		_ = conn.Close()
	}
	h.conns = nil
}

func dialFakeHub(t *testing.T, h *fakeHub) *WebSocketHubClient {
	t.Helper()
	host, port := h.hostPort()
	client, err := DialHub(context.Background(), HubClientConfig{
		Host:           host,
		Port:           port,
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("DialHub: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestHubClientCurrentActivity(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	got, err := client.CurrentActivity(context.Background())
	if err != nil {
		t.Fatalf("CurrentActivity: %v", err)
	}
	if got != "12345" {
		t.Errorf("current activity = %q, want 12345", got)
	}
}

func TestHubClientConfig(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	raw, err := client.Config(context.Background())
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if len(raw.Devices) != 1 || len(raw.Activities) != 2 {
		t.Errorf("catalog = %d devices / %d activities, want 1/2", len(raw.Devices), len(raw.Activities))
	}
}

func TestHubClientStartActivityAndSendAction(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	if err := client.StartActivity(context.Background(), "12345"); err != nil {
		t.Fatalf("StartActivity: %v", err)
	}
	if err := client.SendAction(context.Background(), `{"command"::"Mute"}`, true); err != nil {
		t.Fatalf("SendAction press: %v", err)
	}
	if err := client.SendAction(context.Background(), `{"command"::"Mute"}`, false); err != nil {
		t.Fatalf("SendAction release: %v", err)
	}

	cmds := hub.commands()
	want := []string{startActivityCommand, holdActionCommand, holdActionCommand}
	if len(cmds) != len(want) {
		t.Fatalf("hub saw %v, want %v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, cmds[i], want[i])
		}
	}
}

func TestHubClientErrorReply(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	_, err := client.request(context.Background(), "no.such?command", nil)
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("error = %v, want ErrRequestFailed", err)
	}
}

func TestHubClientConcurrentRequests(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.CurrentActivity(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent request: %v", err)
	}
}

func TestHubClientDisconnectCallback(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	lost := make(chan error, 1)
	client.SetOnDisconnect(func(err error) { lost <- err })

	hub.dropConnections()

	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect callback never fired")
	}
	if client.IsConnected() {
		t.Error("client must report disconnected after teardown")
	}
	if _, err := client.request(context.Background(), configCommand, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("request after connection loss = %v, want ErrNotConnected", err)
	}
}

func TestHubClientCloseSuppressesCallback(t *testing.T) {
	hub := newFakeHub(t)
	client := dialFakeHub(t, hub)

	fired := make(chan error, 1)
	client.SetOnDisconnect(func(err error) { fired <- err })

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-fired:
		t.Fatalf("callback fired on deliberate close: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	if _, err := client.request(context.Background(), configCommand, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("request after close = %v, want ErrClosed", err)
	}
}

func TestReplyCodeUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want replyCode
	}{
		{"number", `{"code":200}`, 200},
		{"string", `{"code":"200"}`, 200},
		{"in progress", `{"code":100}`, 100},
		{"null", `{"code":null}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reply hubReply
			if err := json.Unmarshal([]byte(tt.raw), &reply); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if reply.Code != tt.want {
				t.Errorf("code = %d, want %d", reply.Code, tt.want)
			}
		})
	}
}
