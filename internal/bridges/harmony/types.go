package harmony

// PowerOffActivityID is the hub's pseudo-activity meaning "everything off".
// The hub reports it from getCurrentActivity and accepts it in startActivity.
const PowerOffActivityID = "-1"

// RawConfig is the hub's command catalog as returned by the device API's
// config call. It is the input to the index builders in catalog.go and is
// never used directly by the dispatch paths.
type RawConfig struct {
	Activities []RawActivity `json:"activity"`
	Devices    []RawDevice   `json:"device"`
}

// RawActivity is one activity entry in the raw catalog.
type RawActivity struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	ControlGroups []ControlGroup `json:"controlGroup"`
}

// RawDevice is one device entry in the raw catalog.
type RawDevice struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	ControlGroups []ControlGroup `json:"controlGroup"`
}

// ControlGroup groups related function entries under a device or activity
// (e.g., "Volume", "NumericBasic").
type ControlGroup struct {
	Name      string     `json:"name"`
	Functions []Function `json:"function"`
}

// Function is one command entry in a control group.
// Action is the opaque hub-protocol token identifying the command; it must
// be delimiter-escaped before transmission (see EscapeAction).
type Function struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Action string `json:"action"`
}

// CommandDescriptor is an indexed, transmission-ready command.
// Action is stored pre-escaped so nothing unescaped ever reaches the hub.
type CommandDescriptor struct {
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Label  string `json:"label"`
	Action string `json:"-"`
}

// DeviceDescriptor is an indexed device with its full slug-keyed command map.
type DeviceDescriptor struct {
	ID       string                       `json:"id"`
	Label    string                       `json:"label"`
	Slug     string                       `json:"slug"`
	Commands map[string]CommandDescriptor `json:"commands"`
}

// ActivityDescriptor is an indexed activity. Its control groups flatten into
// a name-keyed "current commands" map (see BuildActivityCommands), distinct
// from a device's slug-keyed map.
type ActivityDescriptor struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	ControlGroups []ControlGroup `json:"-"`
}

// HubSnapshot is the indexed view of the hub's catalog. It is rebuilt
// wholesale on connect/refresh and never patched incrementally.
type HubSnapshot struct {
	Devices    map[string]*DeviceDescriptor
	Activities map[string]*ActivityDescriptor
}

// LiveState is the transient per-hub state published to the bus.
//
// Instances are immutable: the synchronizer constructs a new value each tick
// and swaps it in atomically, so concurrent readers (the dispatcher, the
// status API) always observe a consistent snapshot. Never mutate a LiveState
// after it has been stored.
type LiveState struct {
	// Off is true when the hub's power-off pseudo-activity is current.
	Off bool `json:"off"`

	// CurrentActivity is the last successfully polled activity id.
	// Empty until the first successful poll.
	CurrentActivity string `json:"current_activity"`

	// StartingActivity is non-empty only while a requested activity change
	// is in flight; it clears once polling observes the target as current.
	StartingActivity string `json:"starting_activity,omitempty"`

	// Commands is the current activity's name-keyed command map.
	// Recomputed only when CurrentActivity changes.
	Commands map[string]CommandDescriptor `json:"commands,omitempty"`
}

// clone returns a copy of the state suitable for building the next snapshot.
// The Commands map is shared, not copied: it is itself immutable once built.
func (s *LiveState) clone() *LiveState {
	if s == nil {
		return &LiveState{}
	}
	cp := *s
	return &cp
}
