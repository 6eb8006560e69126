package harmony

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// minPollInterval is the hard floor on the poll cadence. Config values
// below it are clamped, never rejected.
const minPollInterval = 100 * time.Millisecond

// defaultTickTimeout bounds a single poll round trip so a stalled hub
// connection cannot wedge the loop.
const defaultTickTimeout = 5 * time.Second

// StateSynchronizer owns a hub's live state. It polls the hub on a fixed
// cadence, derives power and activity-transition facts from each sample,
// and swaps in a fresh immutable LiveState every tick. Readers load the
// current pointer and never see a partially updated state.
type StateSynchronizer struct {
	hubID       string
	interval    time.Duration
	tickTimeout time.Duration

	clientMu sync.RWMutex
	client   HubClient

	snapshot atomic.Pointer[HubSnapshot]
	live     atomic.Pointer[LiveState]

	// writeMu serializes live-state writers. Readers stay lock-free on the
	// atomic pointer; without the lock a marker write landing between a
	// tick's load and store would be silently discarded.
	writeMu sync.Mutex

	publisher StatePublisher
	history   HistoryWriter
	logger    Logger
}

// SynchronizerOptions configures a StateSynchronizer.
type SynchronizerOptions struct {
	HubID       string
	Client      HubClient
	Interval    time.Duration
	TickTimeout time.Duration

	// Publisher receives the full LiveState whenever a tick changes it.
	// Optional; nil disables publishing.
	Publisher StatePublisher

	// History receives activity and power transitions. Optional.
	History HistoryWriter

	Logger Logger
}

// NewStateSynchronizer builds a synchronizer with an empty live state.
// The poll interval is clamped to the 100ms floor.
func NewStateSynchronizer(opts SynchronizerOptions) (*StateSynchronizer, error) {
	if opts.HubID == "" {
		return nil, fmt.Errorf("%w: hub id is required", ErrInvalidConfig)
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: hub client is required", ErrInvalidConfig)
	}

	interval := opts.Interval
	if interval < minPollInterval {
		interval = minPollInterval
	}
	tickTimeout := opts.TickTimeout
	if tickTimeout <= 0 {
		tickTimeout = defaultTickTimeout
	}

	s := &StateSynchronizer{
		hubID:       opts.HubID,
		interval:    interval,
		tickTimeout: tickTimeout,
		client:      opts.Client,
		publisher:   opts.Publisher,
		history:     opts.History,
		logger:      opts.Logger,
	}
	s.live.Store(&LiveState{})
	return s, nil
}

// Client returns the current hub client. Callers must not cache it across
// blocking operations; a reconnect may swap it at any time.
func (s *StateSynchronizer) Client() HubClient {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

// SwapClient installs a replacement hub client and returns the previous one
// so the caller can close it.
func (s *StateSynchronizer) SwapClient(client HubClient) HubClient {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	old := s.client
	s.client = client
	return old
}

// Snapshot returns the current indexed catalog, or nil before the first
// successful Refresh.
func (s *StateSynchronizer) Snapshot() *HubSnapshot {
	return s.snapshot.Load()
}

// State returns the current live state. The returned value is immutable.
func (s *StateSynchronizer) State() *LiveState {
	return s.live.Load()
}

// Refresh fetches the hub catalog and replaces the indexed snapshot
// wholesale. The live command map is not touched; it follows the next
// observed activity change.
func (s *StateSynchronizer) Refresh(ctx context.Context) error {
	raw, err := s.Client().Config(ctx)
	if err != nil {
		return fmt.Errorf("fetch hub catalog: %w", err)
	}
	snap := BuildSnapshot(raw)
	s.snapshot.Store(snap)

	if s.logger != nil {
		s.logger.Debug("hub catalog refreshed",
			"hub_id", s.hubID,
			"devices", len(snap.Devices),
			"activities", len(snap.Activities))
	}
	return nil
}

// RequestActivityChange marks the transition in flight, publishes, then asks
// the hub to start the given activity id. On success the marker is cleared
// and republished. On failure the error is returned and the marker is left
// set; the poll loop clears it if the hub reaches the target anyway.
func (s *StateSynchronizer) RequestActivityChange(ctx context.Context, activityID string) error {
	s.setStartingActivity(activityID)

	if err := s.Client().StartActivity(ctx, activityID); err != nil {
		return fmt.Errorf("start activity %s: %w", activityID, err)
	}

	s.setStartingActivity("")
	return nil
}

// setStartingActivity installs a live state with the in-flight marker set
// (or cleared, for "") and publishes it. The load-clone-store runs under
// the write lock so a concurrent tick cannot discard the update.
func (s *StateSynchronizer) setStartingActivity(activityID string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.live.Load().clone()
	next.StartingActivity = activityID
	s.live.Store(next)
	s.publish(next)
}

// Run polls the hub until ctx is cancelled. Individual tick failures are
// logged and skipped; the loop itself never terminates early.
func (s *StateSynchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				if s.logger != nil {
					s.logger.Warn("hub poll failed", "hub_id", s.hubID, "error", err)
				}
			}
		}
	}
}

// tick performs one poll round trip and derives the next live state.
func (s *StateSynchronizer) tick(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()

	client := s.Client()
	current, err := client.CurrentActivity(tctx)
	if err != nil {
		return fmt.Errorf("poll current activity: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.live.Load()
	next := prev.clone()
	next.CurrentActivity = current
	next.Off = current == PowerOffActivityID

	changed := false

	if prev.StartingActivity != "" && prev.StartingActivity == current {
		next.StartingActivity = ""
		changed = true
	}

	if current != prev.CurrentActivity {
		changed = true
		next.Commands = nil
		var label string
		if snap := s.snapshot.Load(); snap != nil {
			if act := snap.Activities[current]; act != nil {
				next.Commands = BuildActivityCommands(act)
				label = act.Label
			}
		}
		if s.history != nil {
			s.history.WriteActivityTransition(s.hubID, current, label)
		}
		if s.logger != nil {
			s.logger.Info("activity changed",
				"hub_id", s.hubID,
				"activity_id", current,
				"activity_label", label,
				"commands", len(next.Commands))
		}
	}

	if next.Off != prev.Off {
		changed = true
		if s.history != nil {
			s.history.WritePowerState(s.hubID, next.Off)
		}
	}

	s.live.Store(next)
	if changed {
		s.publish(next)
	}
	return nil
}

func (s *StateSynchronizer) publish(state *LiveState) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishState(state); err != nil && s.logger != nil {
		s.logger.Error("state publish failed", "hub_id", s.hubID, "error", err)
	}
}
