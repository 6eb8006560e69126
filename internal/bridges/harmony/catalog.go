package harmony

import (
	"strings"
	"unicode"
)

// Slugify normalizes a human-facing label into a topic-safe identifier:
// lowercase, non-alphanumeric runs collapsed to single hyphens, no leading
// or trailing hyphen. "Living Room TV" becomes "living-room-tv".
func Slugify(label string) string {
	var b strings.Builder
	b.Grow(len(label))

	pendingHyphen := false
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingHyphen = true
	}

	return b.String()
}

// EscapeAction doubles the protocol delimiter in an action token so the hub
// parses it as a literal. Applied once at index-build time; descriptors hold
// the escaped form.
func EscapeAction(action string) string {
	return strings.ReplaceAll(action, ":", "::")
}

// buildCommands flattens control groups into a slug-keyed command map.
// Groups are walked in catalog order, so on slug collisions the later
// control group wins.
func buildCommands(groups []ControlGroup) map[string]CommandDescriptor {
	commands := make(map[string]CommandDescriptor)
	for _, group := range groups {
		for _, fn := range group.Functions {
			cmd := CommandDescriptor{
				Name:   fn.Name,
				Slug:   Slugify(fn.Label),
				Label:  fn.Label,
				Action: EscapeAction(fn.Action),
			}
			commands[cmd.Slug] = cmd
		}
	}
	return commands
}

// BuildDeviceIndex indexes the raw catalog's devices by id, each carrying
// its full slug-keyed command map.
func BuildDeviceIndex(raw *RawConfig) map[string]*DeviceDescriptor {
	devices := make(map[string]*DeviceDescriptor, len(raw.Devices))
	for _, d := range raw.Devices {
		devices[d.ID] = &DeviceDescriptor{
			ID:       d.ID,
			Label:    d.Label,
			Slug:     Slugify(d.Label),
			Commands: buildCommands(d.ControlGroups),
		}
	}
	return devices
}

// BuildActivityIndex indexes the raw catalog's activities by id. Control
// groups are retained verbatim; the per-activity command map is built lazily
// by BuildActivityCommands when the activity becomes current.
func BuildActivityIndex(raw *RawConfig) map[string]*ActivityDescriptor {
	activities := make(map[string]*ActivityDescriptor, len(raw.Activities))
	for _, a := range raw.Activities {
		activities[a.ID] = &ActivityDescriptor{
			ID:            a.ID,
			Label:         a.Label,
			ControlGroups: a.ControlGroups,
		}
	}
	return activities
}

// BuildSnapshot builds the full indexed view of a raw catalog.
func BuildSnapshot(raw *RawConfig) *HubSnapshot {
	return &HubSnapshot{
		Devices:    BuildDeviceIndex(raw),
		Activities: BuildActivityIndex(raw),
	}
}

// BuildActivityCommands flattens an activity's control groups into a
// name-keyed command map. Unlike device maps this keys on the function
// name, matching the payload contract of the per-activity command topic.
// Later control groups win name collisions.
func BuildActivityCommands(act *ActivityDescriptor) map[string]CommandDescriptor {
	if act == nil {
		return nil
	}
	commands := make(map[string]CommandDescriptor)
	for _, group := range act.ControlGroups {
		for _, fn := range group.Functions {
			commands[fn.Name] = CommandDescriptor{
				Name:   fn.Name,
				Slug:   Slugify(fn.Label),
				Label:  fn.Label,
				Action: EscapeAction(fn.Action),
			}
		}
	}
	return commands
}

// Resolve looks up a command on the device, first by exact slug, then by a
// case-sensitive scan over command names. Returns nil when nothing matches.
func (d *DeviceDescriptor) Resolve(identifier string) *CommandDescriptor {
	if d == nil {
		return nil
	}
	if cmd, ok := d.Commands[identifier]; ok {
		return &cmd
	}
	for _, cmd := range d.Commands {
		if cmd.Name == identifier {
			cmd := cmd
			return &cmd
		}
	}
	return nil
}

// FindActivity resolves an activity reference that may be either an id or an
// exact label. Ids take priority; labels are matched case-sensitively.
func FindActivity(activities map[string]*ActivityDescriptor, ref string) *ActivityDescriptor {
	if act, ok := activities[ref]; ok {
		return act
	}
	for _, act := range activities {
		if act.Label == ref {
			return act
		}
	}
	return nil
}

// FindDevice resolves a device reference: first by slug scan, then by the
// identifier as a literal catalog key, then by its canonical numeric form
// (so "007" finds device "7").
func FindDevice(devices map[string]*DeviceDescriptor, ref string) *DeviceDescriptor {
	for _, dev := range devices {
		if dev.Slug == ref {
			return dev
		}
	}
	if dev, ok := devices[ref]; ok {
		return dev
	}
	if normalized := normalizeNumeric(ref); normalized != "" && normalized != ref {
		if dev, ok := devices[normalized]; ok {
			return dev
		}
	}
	return nil
}

// normalizeNumeric strips leading zeros from an all-digit string, returning
// "" when the input is not purely numeric.
func normalizeNumeric(s string) string {
	if s == "" {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
