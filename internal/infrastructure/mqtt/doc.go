// Package mqtt provides MQTT client connectivity for switchsentry.
//
// This package manages:
//   - Connection to a broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support and pattern matching
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// switchsentry treats MQTT as one of two ingest sources (alongside BLE
// advertisements) and as an outbound transport for publish actions. The
// client subscribes to the union of topic patterns referenced by the
// loaded automation rules and dispatches each delivered message to the
// rule engine for matching via MatchTopic.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("home/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("home/kitchen/light/set", []byte(`{"on":true}`), 1, false)
package mqtt
