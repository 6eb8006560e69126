package harmony

import "time"

// StateMessage is the retained payload published to a hub's state topic.
// It carries the full live state every time any field changes; consumers
// never need to reassemble diffs.
type StateMessage struct {
	HubID     string    `json:"hub_id"`
	HubName   string    `json:"hub_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	*LiveState
}

// StateTopic returns the retained state topic for a hub.
func StateTopic(root, hubID string) string {
	return root + "/" + hubID + "/state"
}

// SetTopic returns the wildcard subscription covering a hub's control
// hierarchy.
func SetTopic(root, hubID string) string {
	return root + "/" + hubID + "/set/#"
}
