// Harmony Microservice - Logitech Harmony to MQTT bridge
//
// This is the main entry point for the Harmony microservice. It connects
// one or more Harmony hubs to an MQTT broker: hub activity and power state
// is published retained on <root>/<hubId>/state, and control messages on
// <root>/<hubId>/set/# are dispatched back to the hubs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoboDomo/harmony-microservice/internal/api"
	"github.com/RoboDomo/harmony-microservice/internal/bridges/harmony"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/config"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/influxdb"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/logging"
	"github.com/RoboDomo/harmony-microservice/internal/infrastructure/mqtt"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Harmony microservice",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "hubs", len(cfg.Hubs))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Connect to MQTT broker
	topics := mqtt.NewTopics(cfg.TopicRoot)
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var history harmony.HistoryWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		history = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	mqttAdapter := &mqttBridgeAdapter{client: mqttClient}

	// Start one bridge per configured hub
	bridges := make([]*harmony.Bridge, 0, len(cfg.Hubs))
	defer func() {
		for _, b := range bridges {
			log.Info("stopping bridge", "hub_id", b.HubID())
			if stopErr := b.Stop(); stopErr != nil {
				log.Error("error stopping bridge", "hub_id", b.HubID(), "error", stopErr)
			}
		}
	}()
	for _, hub := range cfg.Hubs {
		bridge, startErr := startBridge(ctx, cfg, hub, mqttAdapter, history, log)
		if startErr != nil {
			return fmt.Errorf("starting bridge for hub %s: %w", hub.ID, startErr)
		}
		bridges = append(bridges, bridge)
	}

	// Start the status API (optional)
	if cfg.API.Enabled {
		apiBridges := make([]api.HubBridge, len(bridges))
		for i, b := range bridges {
			apiBridges[i] = b
		}
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Bridges: apiBridges,
			Broker:  mqttClient,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := apiServer.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridges (closes hub connections)
	// 3. InfluxDB (if enabled)
	// 4. MQTT

	log.Info("Harmony microservice stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HARMONY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HARMONY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startBridge dials the hub and brings up its bridge.
func startBridge(ctx context.Context, cfg *config.Config, hub config.HubConfig, mqttClient harmony.MQTTClient, history harmony.HistoryWriter, log *logging.Logger) (*harmony.Bridge, error) {
	hubCfg := harmony.HubClientConfig{
		Host:   hub.Host,
		Logger: log,
	}

	client, err := harmony.DialHub(ctx, hubCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to hub at %s: %w", hub.Host, err)
	}
	log.Info("hub connected", "hub_id", hub.ID, "host", hub.Host)

	bridge, err := harmony.NewBridge(harmony.BridgeOptions{
		HubID:        hub.ID,
		HubName:      hub.Name,
		TopicRoot:    cfg.TopicRoot,
		MQTT:         mqttClient,
		Client:       client,
		PollInterval: cfg.PollInterval(),
		TickTimeout:  cfg.TickTimeout(),
		QoS:          byte(cfg.MQTT.QoS),
		History:      history,
		Logger:       log,
		Dial: func(dialCtx context.Context) (harmony.HubClient, error) {
			return harmony.DialHub(dialCtx, hubCfg)
		},
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("bridge started", "hub_id", hub.ID)

	return bridge, nil
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// the infrastructure client's handlers return an error, bridge handlers
// do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements harmony.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements harmony.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// Unsubscribe implements harmony.MQTTClient.
func (a *mqttBridgeAdapter) Unsubscribe(topic string) error {
	return a.client.Unsubscribe(topic)
}

// IsConnected implements harmony.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
