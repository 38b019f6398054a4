// Package influxdb provides an optional time-series sink for guiding telemetry.
//
// When enabled, every processed guiding sample and guide-star transition is
// written to InfluxDB alongside the MQTT publishes. This gives long-term
// queryable history (seeing trends, guiding quality per session) without
// burdening the MQTT path, which only carries current state.
//
// Writes are batched and non-blocking: a slow or unreachable InfluxDB server
// never stalls the bridge. Async write failures surface through the error
// callback set with SetOnError.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without the sink
//	}
package influxdb
