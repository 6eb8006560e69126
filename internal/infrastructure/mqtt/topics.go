package mqtt

import "fmt"

// Topics builds the service-level MQTT topic strings under a configurable
// root. Per-hub state and set topics are owned by the bridge serving the
// hub; only topics shared by the whole service live here.
type Topics struct {
	// Root is the configurable topic prefix (e.g., "harmony").
	Root string
}

// NewTopics returns a Topics builder for the given root.
// An empty root falls back to "harmony".
func NewTopics(root string) Topics {
	if root == "" {
		root = "harmony"
	}
	return Topics{Root: root}
}

// SystemStatus returns the service status topic used for LWT and
// online/offline announcements.
//
// Example: harmony/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.Root)
}
