// PHD2 MQTT Bridge
//
// Connects to a PHD2 autoguiding server's event socket, converts guiding
// telemetry into MQTT sensor topics, and announces the sensors to Home
// Assistant via MQTT discovery. Designed to run unattended next to the
// mount computer for a whole observing night.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/phd2-mqtt-bridge/internal/api"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/bridges/phd2"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/history"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/config"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/database"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/phd2-mqtt-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PHD2 MQTT bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	topics := phd2.Topics{
		Base:            cfg.Bridge.BaseTopic,
		DiscoveryPrefix: cfg.Bridge.DiscoveryPrefix,
		DeviceID:        cfg.Bridge.Device.ID,
	}

	// Connect to MQTT broker. The Last Will marks the bridge offline if
	// the process dies without an orderly shutdown.
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
		Topic:    topics.Availability(),
		Payload:  phd2.PayloadOffline,
		QoS:      byte(cfg.MQTT.QoS),
		Retained: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var sampleSink phd2.SampleSink
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sampleSink = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the session history store (optional)
	var recorder *history.Recorder
	var sessionRecorder phd2.SessionRecorder
	sessionID := ""
	if cfg.History.Enabled {
		db, dbErr := database.Open(ctx, cfg.History.Path)
		if dbErr != nil {
			return fmt.Errorf("opening history database: %w", dbErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()

		recorder, err = history.New(ctx, db)
		if err != nil {
			return fmt.Errorf("initialising session history: %w", err)
		}
		sessionRecorder = recorder
		sessionID = recorder.SessionID()
		log.Info("session history enabled",
			"path", cfg.History.Path,
			"session_id", sessionID,
		)
	} else {
		log.Info("session history disabled")
	}

	// Assemble the bridge
	bridge, err := phd2.NewBridge(phd2.BridgeOptions{
		MQTT:   mqttClient,
		Topics: topics,
		Device: phd2.DeviceIdentity{
			ID:           cfg.Bridge.Device.ID,
			Name:         cfg.Bridge.Device.Name,
			Manufacturer: cfg.Bridge.Device.Manufacturer,
			Model:        cfg.Bridge.Device.Model,
		},
		Client: phd2.ClientConfig{
			Host:           cfg.PHD2.Host,
			Port:           cfg.PHD2.Port,
			ConnectTimeout: cfg.GetConnectTimeout(),
			ReconnectDelay: cfg.GetReconnectDelay(),
		},
		QoS: byte(cfg.MQTT.QoS),
		Influx:  sampleSink,
		History: sessionRecorder,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Availability and discovery ride the MQTT connection lifecycle.
	mqttClient.SetOnConnect(bridge.OnTransportConnected)
	mqttClient.SetOnDisconnect(bridge.OnTransportDisconnected)

	// The broker connection already exists at this point, so the connect
	// callback has to be driven once by hand.
	bridge.OnTransportConnected()

	// Start status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Bridge:    bridge,
			MQTT:      mqttClient,
			SessionID: sessionID,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating status API: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting status API: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing status API", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	log.Info("initialisation complete, connecting to PHD2",
		"host", cfg.PHD2.Host,
		"port", cfg.PHD2.Port,
	)

	// Run the protocol client until the shutdown signal arrives.
	if err := bridge.Run(ctx); err != nil {
		return fmt.Errorf("running bridge: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Publish the retained offline flag while the broker connection is
	// still up; a failure here must not block the rest of the shutdown.
	if err := bridge.MarkOffline(); err != nil {
		log.Warn("failed to publish offline availability", "error", err)
	}

	log.Info("PHD2 MQTT bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PHD2BRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PHD2BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
