package harmony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub device-API constants. The hub speaks a JSON envelope protocol over a
// single WebSocket on port 8088; requests and replies are correlated by a
// caller-chosen message id.
const (
	defaultHubPort          = 8088
	defaultHubConnectWait   = 10 * time.Second
	defaultHubRequestWait   = 10 * time.Second
	hubWriteWait            = 10 * time.Second
	hubPongWait             = 60 * time.Second
	hubPingPeriod           = 30 * time.Second
	hubOriginHeader         = "http://sl.dhg.myharmony.com"
	hubDomainQuery          = "svcs.myharmony.com"
	engineCommandPrefix     = "vnd.logitech.harmony/vnd.logitech.harmony.engine?"
	configCommand           = engineCommandPrefix + "config"
	currentActivityCommand  = engineCommandPrefix + "getCurrentActivity"
	holdActionCommand       = engineCommandPrefix + "holdAction"
	startActivityCommand    = "harmony.activityengine?runactivity"
	provisionCommand        = "setup.account?getProvisionInfo"
	replyCodeOK             = 200
	replyCodeInProgress     = 100
)

// HubClientConfig configures a WebSocket hub connection.
type HubClientConfig struct {
	Host string

	// Port defaults to 8088, the hub's fixed device-API port.
	Port int

	// ConnectTimeout bounds provisioning plus the WebSocket handshake.
	ConnectTimeout time.Duration

	// RequestTimeout bounds each request/reply exchange.
	RequestTimeout time.Duration

	Logger Logger
}

// hubEnvelope is the outbound request frame.
type hubEnvelope struct {
	HubID   string     `json:"hubId,omitempty"`
	Timeout int        `json:"timeout,omitempty"`
	HBus    hubRequest `json:"hbus"`
}

type hubRequest struct {
	Cmd    string `json:"cmd"`
	ID     string `json:"id"`
	Params any    `json:"params,omitempty"`
}

// hubReply is an inbound frame: either a correlated reply (ID set) or an
// unsolicited notification (Type set, ID empty).
type hubReply struct {
	ID   string          `json:"id"`
	Cmd  string          `json:"cmd"`
	Type string          `json:"type"`
	Code replyCode       `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// replyCode tolerates the hub's habit of sending codes as either numbers
// or quoted strings.
type replyCode int

func (c *replyCode) UnmarshalJSON(raw []byte) error {
	raw = bytes.Trim(raw, `"`)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return fmt.Errorf("reply code %q: %w", raw, err)
	}
	*c = replyCode(n)
	return nil
}

// WebSocketHubClient is the concrete HubClient. One goroutine owns all
// reads; writes are serialized by a mutex; callers block on a per-request
// reply channel keyed by message id.
type WebSocketHubClient struct {
	host           string
	remoteID       string
	requestTimeout time.Duration
	logger         Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan hubReply

	cbMu         sync.Mutex
	onDisconnect func(error)

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// DialHub provisions the hub's remote id over HTTP, opens the device-API
// WebSocket, and starts the read and keepalive pumps.
func DialHub(ctx context.Context, cfg HubClientConfig) (*WebSocketHubClient, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	port := cfg.Port
	if port == 0 {
		port = defaultHubPort
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultHubConnectWait
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = defaultHubRequestWait
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	remoteID, err := provisionRemoteID(dialCtx, cfg.Host, port)
	if err != nil {
		return nil, err
	}

	wsURL := fmt.Sprintf("ws://%s:%d/?domain=%s&hubId=%s", cfg.Host, port, hubDomainQuery, remoteID)
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, wsURL, http.Header{"Origin": []string{hubOriginHeader}})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, wsURL, err)
	}

	c := &WebSocketHubClient{
		host:           cfg.Host,
		remoteID:       remoteID,
		requestTimeout: requestTimeout,
		logger:         cfg.Logger,
		conn:           conn,
		pending:        make(map[string]chan hubReply),
		done:           make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	c.wg.Add(2)
	go c.readPump()
	go c.pingLoop()

	if c.logger != nil {
		c.logger.Info("hub connected", "host", cfg.Host, "remote_id", remoteID)
	}
	return c, nil
}

// provisionRemoteID asks the hub for its active remote id, required as a
// query parameter on the WebSocket URL.
func provisionRemoteID(ctx context.Context, host string, port int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"id":     1,
		"cmd":    provisionCommand,
		"params": map[string]string{"data": "only"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode provision request: %v", ErrProvisionFailed, err)
	}

	url := fmt.Sprintf("http://%s:%d/", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", hubOriginHeader)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: hub returned %s", ErrProvisionFailed, resp.Status)
	}

	var provision struct {
		Data struct {
			ActiveRemoteID json.Number `json:"activeRemoteId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&provision); err != nil {
		return "", fmt.Errorf("%w: decode provision response: %v", ErrProvisionFailed, err)
	}
	remoteID := provision.Data.ActiveRemoteID.String()
	if remoteID == "" {
		return "", fmt.Errorf("%w: no active remote id in response", ErrProvisionFailed)
	}
	return remoteID, nil
}

// readPump owns the connection's read side. Correlated replies go to their
// waiting caller; in-progress frames and notifications are logged and
// dropped. Any read error tears the connection down.
func (c *WebSocketHubClient) readPump() {
	defer c.wg.Done()

	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	for {
		var reply hubReply
		if err := c.conn.ReadJSON(&reply); err != nil {
			c.teardown(err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))

		if reply.ID == "" {
			if c.logger != nil {
				c.logger.Debug("hub notification", "host", c.host, "type", reply.Type)
			}
			continue
		}
		if reply.Code == replyCodeInProgress {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[reply.ID]
		if ok {
			delete(c.pending, reply.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- reply
		}
	}
}

// pingLoop keeps the connection alive; the hub drops idle sockets.
func (c *WebSocketHubClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(hubPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteWait))
			c.writeMu.Unlock()
			if err != nil {
				c.teardown(err)
				return
			}
		}
	}
}

// request performs one correlated request/reply exchange.
func (c *WebSocketHubClient) request(ctx context.Context, cmd string, params any) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, c.stateErr()
	default:
	}

	id := uuid.NewString()
	ch := make(chan hubReply, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	envelope := hubEnvelope{
		HubID:   c.remoteID,
		Timeout: int(c.requestTimeout.Seconds()),
		HBus:    hubRequest{Cmd: cmd, ID: id, Params: params},
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	err := c.conn.WriteJSON(envelope)
	c.writeMu.Unlock()
	if err != nil {
		c.teardown(err)
		return nil, fmt.Errorf("%w: write %s: %v", ErrRequestFailed, cmd, err)
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.stateErr()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, cmd)
	case reply := <-ch:
		if reply.Code != replyCodeOK {
			return nil, fmt.Errorf("%w: %s returned code %d: %s", ErrRequestFailed, cmd, reply.Code, reply.Msg)
		}
		return reply.Data, nil
	}
}

// Config fetches and decodes the hub's full command catalog.
func (c *WebSocketHubClient) Config(ctx context.Context) (*RawConfig, error) {
	data, err := c.request(ctx, configCommand, nil)
	if err != nil {
		return nil, err
	}
	var raw RawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %v", ErrRequestFailed, err)
	}
	return &raw, nil
}

// CurrentActivity returns the hub's current activity id.
func (c *WebSocketHubClient) CurrentActivity(ctx context.Context) (string, error) {
	data, err := c.request(ctx, currentActivityCommand, nil)
	if err != nil {
		return "", err
	}
	var result struct {
		Result json.Number `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: decode current activity: %v", ErrRequestFailed, err)
	}
	return result.Result.String(), nil
}

// StartActivity asks the activity engine to run the given activity.
func (c *WebSocketHubClient) StartActivity(ctx context.Context, activityID string) error {
	_, err := c.request(ctx, startActivityCommand, map[string]string{
		"activityId": activityID,
		"timestamp":  "0",
		"async":      "true",
	})
	return err
}

// SendAction transmits one edge of a command. Actions arrive pre-escaped
// from the catalog index.
func (c *WebSocketHubClient) SendAction(ctx context.Context, action string, press bool) error {
	status := "release"
	if press {
		status = "press"
	}
	_, err := c.request(ctx, holdActionCommand, map[string]string{
		"status":    status,
		"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
		"verb":      "render",
		"action":    action,
	})
	return err
}

// stateErr distinguishes a caller-initiated Close from a lost connection
// for requests arriving after teardown.
func (c *WebSocketHubClient) stateErr() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ErrNotConnected
}

// SetOnDisconnect registers the connection-loss callback.
func (c *WebSocketHubClient) SetOnDisconnect(fn func(error)) {
	c.cbMu.Lock()
	c.onDisconnect = fn
	c.cbMu.Unlock()
}

// IsConnected reports whether the connection is still open.
func (c *WebSocketHubClient) IsConnected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Close shuts the connection down without firing the disconnect callback.
func (c *WebSocketHubClient) Close() error {
	c.closed.Store(true)
	c.teardown(nil)
	c.wg.Wait()
	return nil
}

// teardown closes the socket exactly once and fires the disconnect
// callback for unexpected losses.
func (c *WebSocketHubClient) teardown(err error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(hubWriteWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()

		if err != nil && !c.closed.Load() {
			if c.logger != nil {
				c.logger.Warn("hub connection lost", "host", c.host, "error", err)
			}
			c.cbMu.Lock()
			fn := c.onDisconnect
			c.cbMu.Unlock()
			if fn != nil {
				go fn(err)
			}
		}
	})
}
