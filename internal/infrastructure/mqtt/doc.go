// Package mqtt provides MQTT client connectivity for the Harmony microservice.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The microservice uses MQTT as the message bus connecting Harmony hubs to
// external clients. Each hub occupies a namespace under the configured
// topic root:
//
//	<root>/<hubId>/state     retained LiveState snapshots (outbound)
//	<root>/<hubId>/set/#     inbound command topics
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.TopicRoot)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.HubSet("harmony-livingroom"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
