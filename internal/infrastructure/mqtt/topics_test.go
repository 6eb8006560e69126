package mqtt

import "testing"

func TestSystemStatusTopic(t *testing.T) {
	topics := NewTopics("harmony")
	if got, want := topics.SystemStatus(), "harmony/system/status"; got != want {
		t.Errorf("SystemStatus() = %q, want %q", got, want)
	}
}

func TestNewTopics_EmptyRootDefaults(t *testing.T) {
	topics := NewTopics("")
	if topics.Root != "harmony" {
		t.Errorf("Root = %q, want %q", topics.Root, "harmony")
	}
}

func TestNewTopics_CustomRoot(t *testing.T) {
	topics := NewTopics("robodomo")
	if got, want := topics.SystemStatus(), "robodomo/system/status"; got != want {
		t.Errorf("SystemStatus() = %q, want %q", got, want)
	}
}
