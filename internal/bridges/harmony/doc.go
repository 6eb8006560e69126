// Package harmony bridges Logitech Harmony hubs to the MQTT bus.
//
// Each hub gets one Bridge. The bridge indexes the hub's command catalog
// into slug-addressable descriptors, polls the hub for activity and power
// state, publishes the full live state (retained) whenever it changes, and
// dispatches inbound set messages back to the hub as press/release command
// pairs.
//
// Topics follow the pattern <root>/<hubId>/state for outbound state and
// <root>/<hubId>/set/{command,activity,device/<id>} for inbound control.
//
// The hub connection itself is a WebSocket device-API client
// (WebSocketHubClient); on connection loss the bridge rebuilds it with
// exponential backoff and swaps it in without restarting the poll loop.
package harmony
