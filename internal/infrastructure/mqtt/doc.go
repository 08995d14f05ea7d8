// Package mqtt provides MQTT client connectivity for pjlinkd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - A caller-supplied Last Will and Testament for offline detection
//
// The projector bridge publishes state, events, acks and health through
// this client and receives commands and requests on wildcard subscriptions.
// Topic names are owned by the pjlink package.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: topic, Payload: payload})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("graylogic/command/pjlink/+", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
