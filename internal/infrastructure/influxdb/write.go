package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteGuidingSample writes one guiding sample to InfluxDB.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Fields typically include ra_error_arcsec, dec_error_arcsec,
// total_error_arcsec, dx_px, dy_px, snr and avg_dist; callers omit any
// value that is not known for this sample.
//
// Parameters:
//   - deviceID: Identity of the guiding server (tag, low cardinality)
//   - fields: Numeric sample values
//   - timestamp: Sample time; use the PHD2 event timestamp when present
func (c *Client) WriteGuidingSample(deviceID string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"guiding",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteGuideStarEvent records a guide-star availability transition.
//
// Parameters:
//   - deviceID: Identity of the guiding server
//   - available: Whether the guide star is locked
func (c *Client) WriteGuideStarEvent(deviceID string, available bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"guide_star",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"available": available,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
