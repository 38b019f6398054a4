// Package phd2 implements the PHD2 guiding telemetry bridge.
//
// This package connects to the PHD2 autoguiding application's event server
// (newline-delimited JSON over TCP) and republishes guiding quality metrics
// onto MQTT topics, including Home Assistant MQTT discovery metadata.
//
// # Architecture
//
// The bridge translates between the guiding server and the message bus:
//
//	┌─────────────────┐   TCP    ┌─────────────────┐   MQTT
//	│      PHD2       │◄────────►│   PHD2 Bridge   │─────────► Broker / HA
//	│  (event server) │          │   (this pkg)    │
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Maintain one TCP connection to PHD2, reconnecting indefinitely with a
//     fixed delay when the server goes away
//   - Issue the get_app_state and get_pixel_scale RPC queries on every
//     connect and correlate their responses by id
//   - Decode GuideStep and StarLost events, ignoring everything else
//   - Convert pixel-domain tracking error into arcseconds using the
//     per-connection pixel scale
//   - Publish retained metric topics and a transition-gated guide-star
//     binary topic
//   - Publish Home Assistant discovery configs once per process lifetime
//
// # Protocol
//
// PHD2 speaks a small JSON-RPC-ish protocol: each line is either a server
// event (carries an "Event" field) or a response to a client request
// (carries "result" and "id"). A single malformed line is logged and
// skipped; it never drops the connection.
//
// There is no application-level heartbeat: a half-open TCP connection
// (PHD2 frozen but the socket alive) is only detected when a read finally
// fails. This mirrors the upstream protocol, which offers no ping method.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
//
// # References
//
//   - PHD2 event monitoring: https://github.com/OpenPHDGuiding/phd2/wiki/EventMonitoring
package phd2
