package harmony

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"simple", "Power", "power"},
		{"spaces", "Living Room TV", "living-room-tv"},
		{"punctuation", "Vol+ / Vol-", "vol-vol"},
		{"mixed runs", "Play/Pause  (Toggle)", "play-pause-toggle"},
		{"leading trailing", "  **Mute**  ", "mute"},
		{"digits", "Channel 5", "channel-5"},
		{"already clean", "input-hdmi1", "input-hdmi1"},
		{"empty", "", ""},
		{"only symbols", "***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.label); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestEscapeAction(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   string
	}{
		{"single delimiter", `{"command":"Mute"}`, `{"command"::"Mute"}`},
		{"no delimiter", "plain", "plain"},
		{"multiple", "a:b:c", "a::b::c"},
		{"already doubled stays doubled", "a::b", "a::::b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EscapeAction(tt.action); got != tt.want {
				t.Errorf("EscapeAction(%q) = %q, want %q", tt.action, got, tt.want)
			}
		})
	}
}

func testCatalog() *RawConfig {
	return &RawConfig{
		Activities: []RawActivity{
			{
				ID:    "12345",
				Label: "Watch TV",
				ControlGroups: []ControlGroup{
					{
						Name: "Volume",
						Functions: []Function{
							{Name: "VolumeUp", Label: "Volume Up", Action: `{"command":"VolumeUp","type":"IRCommand","deviceId":"7"}`},
							{Name: "VolumeDown", Label: "Volume Down", Action: `{"command":"VolumeDown","type":"IRCommand","deviceId":"7"}`},
						},
					},
				},
			},
			{ID: PowerOffActivityID, Label: "PowerOff"},
		},
		Devices: []RawDevice{
			{
				ID:    "7",
				Label: "Living Room TV",
				ControlGroups: []ControlGroup{
					{
						Name: "Power",
						Functions: []Function{
							{Name: "PowerToggle", Label: "Power Toggle", Action: `{"command":"PowerToggle","deviceId":"7"}`},
						},
					},
					{
						Name: "NumericBasic",
						Functions: []Function{
							{Name: "Number1", Label: "1", Action: `{"command":"1","deviceId":"7"}`},
						},
					},
				},
			},
		},
	}
}

func TestBuildDeviceIndex(t *testing.T) {
	devices := BuildDeviceIndex(testCatalog())

	dev, ok := devices["7"]
	if !ok {
		t.Fatal("expected device 7 in index")
	}
	if dev.Slug != "living-room-tv" {
		t.Errorf("device slug = %q, want %q", dev.Slug, "living-room-tv")
	}

	cmd, ok := dev.Commands["power-toggle"]
	if !ok {
		t.Fatal("expected power-toggle in device commands")
	}
	if cmd.Name != "PowerToggle" {
		t.Errorf("command name = %q, want PowerToggle", cmd.Name)
	}
	if cmd.Action != `{"command"::"PowerToggle","deviceId"::"7"}` {
		t.Errorf("action not escaped at index time: %q", cmd.Action)
	}
}

func TestBuildDeviceIndexCollisionLaterGroupWins(t *testing.T) {
	raw := &RawConfig{Devices: []RawDevice{{
		ID:    "9",
		Label: "Receiver",
		ControlGroups: []ControlGroup{
			{Name: "A", Functions: []Function{{Name: "First", Label: "Mute", Action: "one"}}},
			{Name: "B", Functions: []Function{{Name: "Second", Label: "Mute", Action: "two"}}},
		},
	}}}

	devices := BuildDeviceIndex(raw)
	cmd, ok := devices["9"].Commands["mute"]
	if !ok {
		t.Fatal("expected mute slug in commands")
	}
	if cmd.Name != "Second" {
		t.Errorf("collision winner = %q, want Second (later control group)", cmd.Name)
	}
}

func TestBuildActivityCommands(t *testing.T) {
	activities := BuildActivityIndex(testCatalog())

	commands := BuildActivityCommands(activities["12345"])
	if len(commands) != 2 {
		t.Fatalf("expected 2 activity commands, got %d", len(commands))
	}
	cmd, ok := commands["VolumeUp"]
	if !ok {
		t.Fatal("activity commands must key on function name")
	}
	if cmd.Slug != "volume-up" {
		t.Errorf("command slug = %q, want volume-up", cmd.Slug)
	}

	if got := BuildActivityCommands(nil); got != nil {
		t.Errorf("BuildActivityCommands(nil) = %v, want nil", got)
	}
}

func TestDeviceResolve(t *testing.T) {
	devices := BuildDeviceIndex(testCatalog())
	dev := devices["7"]

	tests := []struct {
		name       string
		identifier string
		wantName   string
		wantNil    bool
	}{
		{"by slug", "power-toggle", "PowerToggle", false},
		{"by name fallback", "PowerToggle", "PowerToggle", false},
		{"numeric label slug", "1", "Number1", false},
		{"name scan is case sensitive", "powertoggle", "", true},
		{"unknown", "no-such", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := dev.Resolve(tt.identifier)
			if tt.wantNil {
				if cmd != nil {
					t.Fatalf("Resolve(%q) = %+v, want nil", tt.identifier, cmd)
				}
				return
			}
			if cmd == nil {
				t.Fatalf("Resolve(%q) = nil, want %s", tt.identifier, tt.wantName)
			}
			if cmd.Name != tt.wantName {
				t.Errorf("Resolve(%q).Name = %q, want %q", tt.identifier, cmd.Name, tt.wantName)
			}
		})
	}

	var none *DeviceDescriptor
	if none.Resolve("anything") != nil {
		t.Error("nil device should resolve to nil")
	}
}

func TestFindActivity(t *testing.T) {
	activities := BuildActivityIndex(testCatalog())

	tests := []struct {
		name    string
		ref     string
		wantID  string
		wantNil bool
	}{
		{"by id", "12345", "12345", false},
		{"by label", "Watch TV", "12345", false},
		{"power off id", "-1", PowerOffActivityID, false},
		{"label is case sensitive", "watch tv", "", true},
		{"unknown", "Listen to Music", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := FindActivity(activities, tt.ref)
			if tt.wantNil {
				if act != nil {
					t.Fatalf("FindActivity(%q) = %+v, want nil", tt.ref, act)
				}
				return
			}
			if act == nil {
				t.Fatalf("FindActivity(%q) = nil, want id %s", tt.ref, tt.wantID)
			}
			if act.ID != tt.wantID {
				t.Errorf("FindActivity(%q).ID = %q, want %q", tt.ref, act.ID, tt.wantID)
			}
		})
	}
}

func TestFindDevice(t *testing.T) {
	devices := BuildDeviceIndex(testCatalog())

	tests := []struct {
		name    string
		ref     string
		wantID  string
		wantNil bool
	}{
		{"by slug", "living-room-tv", "7", false},
		{"by id", "7", "7", false},
		{"numeric with leading zeros", "007", "7", false},
		{"unknown", "kitchen-tv", "", true},
		{"non numeric id", "7a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := FindDevice(devices, tt.ref)
			if tt.wantNil {
				if dev != nil {
					t.Fatalf("FindDevice(%q) = %+v, want nil", tt.ref, dev)
				}
				return
			}
			if dev == nil {
				t.Fatalf("FindDevice(%q) = nil, want id %s", tt.ref, tt.wantID)
			}
			if dev.ID != tt.wantID {
				t.Errorf("FindDevice(%q).ID = %q, want %q", tt.ref, dev.ID, tt.wantID)
			}
		})
	}
}
