package harmony

import (
	"context"
	"fmt"
	"strings"
)

// Dispatcher translates inbound control messages on a hub's set topics into
// device-API sends. Unresolvable addresses surface as wrapped ErrUnknown*
// errors; the message boundary logs and drops them so a bad payload can
// never take the subscription down.
type Dispatcher struct {
	hubID   string
	prefix  string
	sync    *StateSynchronizer
	history HistoryWriter
	logger  Logger
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	TopicRoot    string
	HubID        string
	Synchronizer *StateSynchronizer
	History      HistoryWriter
	Logger       Logger
}

// NewDispatcher builds a dispatcher for one hub's control topics.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.HubID == "" {
		return nil, fmt.Errorf("%w: hub id is required", ErrInvalidConfig)
	}
	if opts.Synchronizer == nil {
		return nil, fmt.Errorf("%w: synchronizer is required", ErrInvalidConfig)
	}
	root := opts.TopicRoot
	if root == "" {
		root = "harmony"
	}
	return &Dispatcher{
		hubID:   opts.HubID,
		prefix:  root + "/" + opts.HubID + "/set/",
		sync:    opts.Synchronizer,
		history: opts.History,
		logger:  opts.Logger,
	}, nil
}

// Handle routes one control message. Topics outside the recognized shapes
// are logged and ignored; resolution misses and hub transmission failures
// surface as errors for the caller to log.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, d.prefix)
	if !ok {
		d.logIgnored(topic, "outside set hierarchy")
		return nil
	}

	value := strings.TrimSpace(string(payload))
	segments := strings.Split(rest, "/")
	last := segments[len(segments)-1]

	// First match wins: trailing command/activity segments take priority
	// over the device form.
	switch {
	case last == "command":
		return d.handleActivityCommand(ctx, value)
	case last == "activity":
		return d.handleActivityChange(ctx, value)
	case len(segments) >= 2 && segments[0] == "device":
		// Segments after the device identifier are tolerated and ignored.
		return d.handleDeviceCommand(ctx, segments[1], value)
	default:
		d.logIgnored(topic, "unrecognized set path")
		return nil
	}
}

// handleActivityCommand sends a command from the current activity's
// name-keyed map. Commands from activities that are not current do not
// resolve here.
func (d *Dispatcher) handleActivityCommand(ctx context.Context, name string) error {
	state := d.sync.State()
	cmd, ok := state.Commands[name]
	if !ok {
		return fmt.Errorf("%w: %q not in current activity %q", ErrUnknownCommand, name, state.CurrentActivity)
	}
	if err := d.sendCommand(ctx, cmd.Action); err != nil {
		return fmt.Errorf("send activity command %s: %w", name, err)
	}
	if d.history != nil {
		d.history.WriteCommandDispatch(d.hubID, "activity:"+state.CurrentActivity, cmd.Name)
	}
	return nil
}

// handleActivityChange resolves the payload as an activity id or exact
// label and requests the transition. An unknown reference sends nothing to
// the hub.
func (d *Dispatcher) handleActivityChange(ctx context.Context, ref string) error {
	snap := d.sync.Snapshot()
	if snap == nil {
		if d.logger != nil {
			d.logger.Warn("activity change before catalog load", "hub_id", d.hubID, "activity", ref)
		}
		return nil
	}
	act := FindActivity(snap.Activities, ref)
	if act == nil {
		return fmt.Errorf("%w: %q", ErrUnknownActivity, ref)
	}
	if err := d.sync.RequestActivityChange(ctx, act.ID); err != nil {
		return err
	}
	if d.logger != nil {
		d.logger.Info("activity change requested",
			"hub_id", d.hubID,
			"activity_id", act.ID,
			"activity_label", act.Label)
	}
	return nil
}

// handleDeviceCommand resolves the device (slug, then id, then canonical
// numeric id) and the command (slug, then name) and sends it.
func (d *Dispatcher) handleDeviceCommand(ctx context.Context, deviceRef, commandRef string) error {
	snap := d.sync.Snapshot()
	if snap == nil {
		if d.logger != nil {
			d.logger.Warn("device command before catalog load", "hub_id", d.hubID, "device", deviceRef)
		}
		return nil
	}
	dev := FindDevice(snap.Devices, deviceRef)
	if dev == nil {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, deviceRef)
	}
	cmd := dev.Resolve(commandRef)
	if cmd == nil {
		return fmt.Errorf("%w: %q on device %q", ErrUnknownCommand, commandRef, dev.Slug)
	}
	if err := d.sendCommand(ctx, cmd.Action); err != nil {
		return fmt.Errorf("send device command %s/%s: %w", dev.Slug, cmd.Name, err)
	}
	if d.history != nil {
		d.history.WriteCommandDispatch(d.hubID, dev.ID, cmd.Name)
	}
	return nil
}

// sendCommand performs the press-then-release pair, each send awaited in
// order. A failed press suppresses the release.
func (d *Dispatcher) sendCommand(ctx context.Context, action string) error {
	client := d.sync.Client()
	if err := client.SendAction(ctx, action, true); err != nil {
		return fmt.Errorf("press: %w", err)
	}
	if err := client.SendAction(ctx, action, false); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

func (d *Dispatcher) logIgnored(topic, reason string) {
	if d.logger != nil {
		d.logger.Debug("ignoring message", "hub_id", d.hubID, "topic", topic, "reason", reason)
	}
}
