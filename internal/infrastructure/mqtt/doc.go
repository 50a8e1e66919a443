// Package mqtt provides MQTT connectivity for Trackside Core.
//
// The layout's state feed arrives through an MQTT bridge, and scripts send
// commands back the same way:
//
//	Layout controller ↔ Feed bridge ↔ MQTT broker ↔ Trackside Core
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Publishing with QoS and payload size checks
//   - A Last Will on the core status topic for offline detection
//   - The Topics builder for the trackside/... hierarchy
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllEntityStates(), 1, handler)
//	err = client.PublishJSON(topics.Command("sw", "sw12"), cmd, false)
//
// Use TLS (cfg.Broker.TLS) whenever the broker is not on localhost.
package mqtt
