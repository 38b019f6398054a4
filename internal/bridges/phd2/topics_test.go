package phd2

import "testing"

func TestTopics(t *testing.T) {
	topics := Topics{
		Base:            "phd2/guiding",
		DiscoveryPrefix: "homeassistant",
		DeviceID:        "phd2_guiding_server",
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"availability", topics.Availability(), "phd2/guiding/availability"},
		{"metric", topics.Metric(MetricSNR), "phd2/guiding/snr"},
		{"guide star", topics.GuideStar(), "phd2/guiding/guide_star_available"},
		{"sensor config", topics.SensorConfig(MetricRAErrorArcsec),
			"homeassistant/sensor/phd2_guiding_server/ra_error_arcsec/config"},
		{"binary sensor config", topics.BinarySensorConfig(guideStarObjectID),
			"homeassistant/binary_sensor/phd2_guiding_server/guide_star_available/config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}
