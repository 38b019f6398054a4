package phd2

import "fmt"

// Metric topic suffixes under the base namespace. These double as the
// Home Assistant discovery object ids.
const (
	MetricRAErrorArcsec    = "ra_error_arcsec"
	MetricDecErrorArcsec   = "dec_error_arcsec"
	MetricTotalErrorArcsec = "total_error_arcsec"
	MetricDXPixels         = "dx_px"
	MetricDYPixels         = "dy_px"
	MetricSNR              = "snr"
	MetricAvgDist          = "avg_dist"

	// guideStarObjectID is the binary sensor's topic suffix and object id.
	guideStarObjectID = "guide_star_available"
)

// Availability payloads. The offline payload is also the Last Will message
// registered with the broker.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Guide-star binary payloads, matching Home Assistant's default
// payload_on/payload_off for binary sensors.
const (
	payloadStarOn  = "ON"
	payloadStarOff = "OFF"
)

// Topics builds the bridge's MQTT topic names from the configured namespace.
//
// Example:
//
//	topics := phd2.Topics{
//	    Base:            "phd2/guiding",
//	    DiscoveryPrefix: "homeassistant",
//	    DeviceID:        "phd2_guiding_server",
//	}
//	topics.Metric(phd2.MetricSNR) // "phd2/guiding/snr"
type Topics struct {
	// Base is the namespace for state topics (e.g. "phd2/guiding").
	Base string

	// DiscoveryPrefix is the Home Assistant discovery prefix.
	DiscoveryPrefix string

	// DeviceID scopes discovery config topics and unique ids.
	DeviceID string
}

// Availability returns the availability (online/offline) topic.
//
// Example: phd2/guiding/availability
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/availability", t.Base)
}

// Metric returns the state topic for a numeric metric.
//
// Example: phd2/guiding/ra_error_arcsec
func (t Topics) Metric(name string) string {
	return fmt.Sprintf("%s/%s", t.Base, name)
}

// GuideStar returns the binary guide-star-available state topic.
//
// Example: phd2/guiding/guide_star_available
func (t Topics) GuideStar() string {
	return fmt.Sprintf("%s/%s", t.Base, guideStarObjectID)
}

// SensorConfig returns the discovery config topic for a numeric sensor.
//
// Example: homeassistant/sensor/phd2_guiding_server/snr/config
func (t Topics) SensorConfig(objectID string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", t.DiscoveryPrefix, t.DeviceID, objectID)
}

// BinarySensorConfig returns the discovery config topic for a binary sensor.
//
// Example: homeassistant/binary_sensor/phd2_guiding_server/guide_star_available/config
func (t Topics) BinarySensorConfig(objectID string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/%s/config", t.DiscoveryPrefix, t.DeviceID, objectID)
}
