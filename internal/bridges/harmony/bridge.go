package harmony

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Reconnect backoff for the hub connection.
const (
	initialReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 2 * time.Minute
	reconnectBackoff      = 1.5
)

// HubClient is the device-API surface the bridge needs from a hub
// connection. Implementations must be safe for concurrent use; the poll
// loop and the dispatcher call into the same client.
type HubClient interface {
	// Config fetches the hub's full command catalog.
	Config(ctx context.Context) (*RawConfig, error)

	// CurrentActivity returns the id of the activity the hub reports as
	// current ("-1" when everything is off).
	CurrentActivity(ctx context.Context) (string, error)

	// StartActivity asks the hub to start the given activity id.
	// Starting "-1" powers everything off.
	StartActivity(ctx context.Context, activityID string) error

	// SendAction transmits one command action; press=true for the press
	// edge, false for the release edge.
	SendAction(ctx context.Context, action string, press bool) error

	// SetOnDisconnect registers a callback invoked once when the
	// connection is lost for any reason other than Close.
	SetOnDisconnect(fn func(error))

	// IsConnected reports whether the connection is currently usable.
	IsConnected() bool

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// MQTTClient is the broker surface the bridge needs. Satisfied by an
// adapter over the infrastructure MQTT client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// StatePublisher receives the full live state whenever it changes.
type StatePublisher interface {
	PublishState(state *LiveState) error
}

// HistoryWriter records state transitions and command dispatches for
// later analysis. Implementations must not block.
type HistoryWriter interface {
	WriteActivityTransition(hubID, activityID, activityLabel string)
	WritePowerState(hubID string, off bool)
	WriteCommandDispatch(hubID, target, command string)
}

// Logger is the optional structured logger used throughout the package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DialFunc establishes a fresh hub connection. The bridge calls it to
// rebuild the client after a connection loss.
type DialFunc func(ctx context.Context) (HubClient, error)

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	HubID   string
	HubName string

	// TopicRoot is the first segment of every topic this bridge touches.
	// Defaults to "harmony".
	TopicRoot string

	// MQTT is the broker connection, shared across bridges.
	MQTT MQTTClient

	// Client is the initial, already-connected hub client.
	Client HubClient

	// Dial rebuilds the hub client after a connection loss. Optional;
	// without it a lost connection is terminal for this bridge.
	Dial DialFunc

	// PollInterval is the state poll cadence, clamped to 100ms.
	PollInterval time.Duration

	// TickTimeout bounds one poll round trip. Defaults to 5s.
	TickTimeout time.Duration

	// QoS applies to every publish and subscribe this bridge performs.
	QoS byte

	// History is the optional transition/dispatch recorder.
	History HistoryWriter

	Logger Logger
}

// Bridge wires one hub to the bus: it publishes the hub's live state on
// change and dispatches inbound set messages to the hub. Bridges for
// different hubs are fully independent.
type Bridge struct {
	hubID   string
	hubName string
	root    string
	qos     byte

	mqtt       MQTTClient
	sync       *StateSynchronizer
	dispatcher *Dispatcher
	dial       DialFunc
	logger     Logger

	reconnectDelay time.Duration

	mu      sync.Mutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnecting atomic.Bool
}

// NewBridge validates the options and assembles the synchronizer and
// dispatcher for one hub. The bridge is inert until Start.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.HubID == "" {
		return nil, fmt.Errorf("%w: hub id is required", ErrInvalidConfig)
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("%w: mqtt client is required", ErrInvalidConfig)
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: hub client is required", ErrInvalidConfig)
	}
	root := opts.TopicRoot
	if root == "" {
		root = "harmony"
	}

	b := &Bridge{
		hubID:          opts.HubID,
		hubName:        opts.HubName,
		root:           root,
		qos:            opts.QoS,
		mqtt:           opts.MQTT,
		dial:           opts.Dial,
		logger:         opts.Logger,
		reconnectDelay: initialReconnectDelay,
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())

	synchronizer, err := NewStateSynchronizer(SynchronizerOptions{
		HubID:       opts.HubID,
		Client:      opts.Client,
		Interval:    opts.PollInterval,
		TickTimeout: opts.TickTimeout,
		Publisher:   b,
		History:     opts.History,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	b.sync = synchronizer

	dispatcher, err := NewDispatcher(DispatcherOptions{
		TopicRoot:    root,
		HubID:        opts.HubID,
		Synchronizer: synchronizer,
		History:      opts.History,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	b.dispatcher = dispatcher

	opts.Client.SetOnDisconnect(b.onHubDisconnect)
	return b, nil
}

// Start loads the catalog, subscribes the set hierarchy, and launches the
// poll loop. It is an error to start a bridge twice.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	if err := b.sync.Refresh(b.ctx); err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}

	setTopic := SetTopic(b.root, b.hubID)
	if err := b.mqtt.Subscribe(setTopic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", setTopic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sync.Run(b.ctx)
	}()

	if b.logger != nil {
		b.logger.Info("bridge started",
			"hub_id", b.hubID,
			"hub_name", b.hubName,
			"set_topic", setTopic)
	}
	return nil
}

// Stop cancels the poll loop, waits for it to drain, and closes the hub
// connection. Safe to call more than once.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	if err := b.mqtt.Unsubscribe(SetTopic(b.root, b.hubID)); err != nil && b.logger != nil {
		b.logger.Warn("unsubscribe failed", "hub_id", b.hubID, "error", err)
	}

	b.cancel()
	b.wg.Wait()

	if err := b.sync.Client().Close(); err != nil {
		return fmt.Errorf("close hub connection: %w", err)
	}
	if b.logger != nil {
		b.logger.Info("bridge stopped", "hub_id", b.hubID)
	}
	return nil
}

// Synchronizer exposes the live state holder, mainly for the status API.
func (b *Bridge) Synchronizer() *StateSynchronizer {
	return b.sync
}

// State returns the hub's current live state.
func (b *Bridge) State() *LiveState {
	return b.sync.State()
}

// HubID returns the hub identifier this bridge serves.
func (b *Bridge) HubID() string { return b.hubID }

// HubName returns the configured human-facing hub name.
func (b *Bridge) HubName() string { return b.hubName }

// handleMessage is the subscription callback. Dispatch errors are logged
// here so a failing send never tears down the subscription.
func (b *Bridge) handleMessage(topic string, payload []byte) {
	if err := b.dispatcher.Handle(b.ctx, topic, payload); err != nil {
		if b.logger != nil {
			b.logger.Error("dispatch failed", "hub_id", b.hubID, "topic", topic, "error", err)
		}
	}
}

// PublishState publishes the full live state, retained, to the hub's
// state topic. Implements StatePublisher for the synchronizer.
func (b *Bridge) PublishState(state *LiveState) error {
	msg := StateMessage{
		HubID:     b.hubID,
		HubName:   b.hubName,
		Timestamp: time.Now().UTC(),
		LiveState: state,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return b.mqtt.Publish(StateTopic(b.root, b.hubID), payload, b.qos, true)
}

// onHubDisconnect reacts to an unexpected hub connection loss by starting
// a single background reconnect loop.
func (b *Bridge) onHubDisconnect(err error) {
	if b.ctx.Err() != nil {
		return
	}
	if b.logger != nil {
		b.logger.Warn("hub connection lost", "hub_id", b.hubID, "error", err)
	}
	if b.dial == nil {
		return
	}
	if !b.reconnecting.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.reconnecting.Store(false)
		b.reconnectLoop()
	}()
}

// reconnectLoop rebuilds the hub client with exponential backoff, swaps it
// in atomically, and refreshes the catalog. The old client is closed after
// the swap so in-flight readers fail fast rather than hang.
func (b *Bridge) reconnectLoop() {
	delay := b.reconnectDelay
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-time.After(delay):
		}

		client, err := b.dial(b.ctx)
		if err != nil {
			if b.logger != nil {
				b.logger.Warn("hub reconnect failed",
					"hub_id", b.hubID,
					"retry_in", delay.String(),
					"error", err)
			}
			delay = time.Duration(float64(delay) * reconnectBackoff)
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		client.SetOnDisconnect(b.onHubDisconnect)
		old := b.sync.SwapClient(client)
		if old != nil {
			_ = old.Close()
		}

		if err := b.sync.Refresh(b.ctx); err != nil && b.logger != nil {
			b.logger.Warn("catalog refresh after reconnect failed", "hub_id", b.hubID, "error", err)
		}
		if b.logger != nil {
			b.logger.Info("hub reconnected", "hub_id", b.hubID)
		}
		return
	}
}

// Metrics returns a point-in-time view of the bridge for the status API.
func (b *Bridge) Metrics() BridgeMetrics {
	state := b.sync.State()
	m := BridgeMetrics{
		HubID:            b.hubID,
		HubName:          b.hubName,
		Connected:        b.sync.Client().IsConnected(),
		Off:              state.Off,
		CurrentActivity:  state.CurrentActivity,
		StartingActivity: state.StartingActivity,
	}
	if snap := b.sync.Snapshot(); snap != nil {
		m.Devices = len(snap.Devices)
		m.Activities = len(snap.Activities)
	}
	return m
}

// BridgeMetrics is the status API's per-hub summary.
type BridgeMetrics struct {
	HubID            string `json:"hub_id"`
	HubName          string `json:"hub_name,omitempty"`
	Connected        bool   `json:"connected"`
	Off              bool   `json:"off"`
	CurrentActivity  string `json:"current_activity,omitempty"`
	StartingActivity string `json:"starting_activity,omitempty"`
	Devices          int    `json:"devices"`
	Activities       int    `json:"activities"`
}
