package phd2

import "encoding/json"

// DeviceIdentity describes the logical device that groups all published
// entities in Home Assistant.
type DeviceIdentity struct {
	ID           string
	Name         string
	Manufacturer string
	Model        string
}

// deviceBlock is the device object embedded in every discovery payload.
// Sharing identifiers across entities makes Home Assistant group them
// under a single device.
type deviceBlock struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// sensorConfig is a Home Assistant MQTT discovery payload. It covers both
// sensor and binary_sensor entities; unused fields are omitted.
type sensorConfig struct {
	Name                string      `json:"name"`
	StateTopic          string      `json:"state_topic"`
	UniqueID            string      `json:"unique_id"`
	AvailabilityTopic   string      `json:"availability_topic"`
	PayloadAvailable    string      `json:"payload_available"`
	PayloadNotAvailable string      `json:"payload_not_available"`
	Device              deviceBlock `json:"device"`
	StateClass          string      `json:"state_class,omitempty"`
	UnitOfMeasurement   string      `json:"unit_of_measurement,omitempty"`
	Icon                string      `json:"icon,omitempty"`
	DeviceClass         string      `json:"device_class,omitempty"`
	PayloadOn           string      `json:"payload_on,omitempty"`
	PayloadOff          string      `json:"payload_off,omitempty"`
}

// metricDefinition is the static metadata for one numeric sensor entity.
type metricDefinition struct {
	ObjectID string
	Name     string
	Unit     string
	Icon     string
}

// metricDefinitions lists every numeric sensor the bridge announces, in
// publish order.
var metricDefinitions = []metricDefinition{
	{ObjectID: MetricRAErrorArcsec, Name: "PHD2 RA Error", Unit: "arcsec", Icon: "mdi:axis-arrow"},
	{ObjectID: MetricDecErrorArcsec, Name: "PHD2 Dec Error", Unit: "arcsec", Icon: "mdi:axis-arrow"},
	{ObjectID: MetricTotalErrorArcsec, Name: "PHD2 Total Error", Unit: "arcsec", Icon: "mdi:crosshairs-gps"},
	{ObjectID: MetricDXPixels, Name: "PHD2 dx", Unit: "px", Icon: "mdi:axis-arrow"},
	{ObjectID: MetricDYPixels, Name: "PHD2 dy", Unit: "px", Icon: "mdi:axis-arrow"},
	{ObjectID: MetricSNR, Name: "PHD2 SNR", Unit: "", Icon: "mdi:signal"},
	{ObjectID: MetricAvgDist, Name: "PHD2 Avg Distance", Unit: "arcsec", Icon: "mdi:chart-bell-curve"},
}

// discoveryMessage pairs a discovery config topic with its JSON payload.
type discoveryMessage struct {
	Topic   string
	Payload []byte
}

// buildDiscovery renders the full set of discovery payloads: one sensor
// per numeric metric plus the guide-star binary sensor.
func buildDiscovery(topics Topics, dev DeviceIdentity) ([]discoveryMessage, error) {
	device := deviceBlock{
		Identifiers:  []string{dev.ID},
		Name:         dev.Name,
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
	}

	messages := make([]discoveryMessage, 0, len(metricDefinitions)+1)

	for _, def := range metricDefinitions {
		cfg := sensorConfig{
			Name:                def.Name,
			StateTopic:          topics.Metric(def.ObjectID),
			UniqueID:            topics.DeviceID + "_" + def.ObjectID,
			AvailabilityTopic:   topics.Availability(),
			PayloadAvailable:    PayloadOnline,
			PayloadNotAvailable: PayloadOffline,
			Device:              device,
			StateClass:          "measurement",
			UnitOfMeasurement:   def.Unit,
			Icon:                def.Icon,
		}

		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}

		messages = append(messages, discoveryMessage{
			Topic:   topics.SensorConfig(def.ObjectID),
			Payload: payload,
		})
	}

	star := sensorConfig{
		Name:                "PHD2 Guide Star",
		StateTopic:          topics.GuideStar(),
		UniqueID:            topics.DeviceID + "_" + guideStarObjectID,
		AvailabilityTopic:   topics.Availability(),
		PayloadAvailable:    PayloadOnline,
		PayloadNotAvailable: PayloadOffline,
		Device:              device,
		Icon:                "mdi:star",
		DeviceClass:         "connectivity",
		PayloadOn:           payloadStarOn,
		PayloadOff:          payloadStarOff,
	}

	payload, err := json.Marshal(star)
	if err != nil {
		return nil, err
	}

	messages = append(messages, discoveryMessage{
		Topic:   topics.BinarySensorConfig(guideStarObjectID),
		Payload: payload,
	})

	return messages, nil
}
