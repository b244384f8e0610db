// emqx-bridge connects a web backend to an EMQX broker: it mints the
// JWT credentials devices use to connect, mirrors broker connect and
// disconnect events into device sessions, and fans notifications out
// to users over MQTT and push.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/quartzlab/emqx-bridge/migrations"

	"github.com/quartzlab/emqx-bridge/internal/api"
	"github.com/quartzlab/emqx-bridge/internal/credential"
	"github.com/quartzlab/emqx-bridge/internal/device"
	"github.com/quartzlab/emqx-bridge/internal/emqxconf"
	"github.com/quartzlab/emqx-bridge/internal/identity"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/database"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/influxdb"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/logging"
	"github.com/quartzlab/emqx-bridge/internal/infrastructure/mqtt"
	"github.com/quartzlab/emqx-bridge/internal/notify"
	"github.com/quartzlab/emqx-bridge/internal/notify/push"
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
	configPath := flag.String("config", "", "path to config file (default: EMQX_BRIDGE_CONFIG or "+defaultConfigPath+")")
	generateConfig := flag.Bool("generate-config", false, "render the broker-side emqx.conf and exit")
	output := flag.String("output", "config/generated/emqx.conf", "output path for -generate-config")
	flag.Parse()

	if *generateConfig {
		if err := runGenerateConfig(*configPath, *output); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting emqx-bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath = resolveConfigPath(configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and apply migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and the credential issuer
	users := identity.NewRepository(db.DB)
	sessions := device.NewRepository(db.DB)
	issuer := credential.NewIssuer(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.AccessTokenTTL,
		cfg.Security.JWT.RefreshTokenTTL,
		users,
	)

	// Device event sinks: always the log, InfluxDB when enabled
	sinks := []device.Sink{device.NewLogSink(log)}
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, log)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
		sinks = append(sinks, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	reconciler := device.NewReconciler(sessions, users, log, sinks...)

	// Connect to the broker, authenticating with a freshly minted
	// backend credential
	mqttClient, err := mqtt.Connect(ctx, cfg.MQTT, issuer, mqttStateLogger{log})
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

	// Push sink
	pushSink, err := buildPushSink(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialising push sink: %w", err)
	}

	// Notification relay
	messages := notify.NewMessageRepository(db.DB)
	notifications := notify.NewNotificationRepository(db.DB)
	relay := notify.NewRelay(messages, notifications, mqttClient, pushSink, byte(cfg.MQTT.QoS), log)

	// HTTP API
	server, err := api.New(api.Deps{
		Config:        cfg.API,
		Webhook:       cfg.Webhook,
		Logger:        log,
		Issuer:        issuer,
		Users:         users,
		Sessions:      sessions,
		Reconciler:    reconciler,
		Relay:         relay,
		Notifications: notifications,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// runGenerateConfig renders the broker-side emqx.conf and exits.
func runGenerateConfig(configPath, output string) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := emqxconf.WriteFile(output, emqxconf.FromConfig(cfg)); err != nil {
		return err
	}

	fmt.Printf("Generated EMQX config at %s\n", output)
	return nil
}

// buildPushSink selects the configured push provider.
func buildPushSink(ctx context.Context, cfg *config.Config, log *logging.Logger) (push.Sink, error) {
	switch cfg.Push.Provider {
	case "fcm":
		sink, err := push.NewFCM(ctx, cfg.Push.CredentialsFile)
		if err != nil {
			return nil, err
		}
		log.Info("push notifications enabled", "provider", "fcm")
		return sink, nil
	default:
		log.Info("push notifications disabled")
		return push.Noop{}, nil
	}
}

// resolveConfigPath picks the config file path: flag, then the
// EMQX_BRIDGE_CONFIG environment variable, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("EMQX_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttStateLogger logs broker connection transitions.
type mqttStateLogger struct {
	log *logging.Logger
}

func (s mqttStateLogger) OnBrokerConnect() {
	s.log.Info("MQTT connection established")
}

func (s mqttStateLogger) OnBrokerConnectionLost(err error) {
	s.log.Warn("MQTT connection lost", "error", err)
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
