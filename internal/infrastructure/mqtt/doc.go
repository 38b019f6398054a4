// Package mqtt provides MQTT client connectivity for the PHD2 MQTT bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) registration for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is publish-only: guiding telemetry flows from PHD2 through the
// bridge onto retained MQTT topics, where Home Assistant (or any subscriber)
// picks it up. There is no inbound command path, so this package exposes no
// subscription API.
//
//	PHD2 → bridge → MQTT Broker → Home Assistant / dashboards
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
//	    Topic:    "phd2/guiding/availability",
//	    Payload:  "offline",
//	    QoS:      1,
//	    Retained: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishString("phd2/guiding/snr", "42.1", 0, true)
package mqtt
