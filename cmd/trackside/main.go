// Trackside Core - model railway automation engine
//
// This is the main entry point for the Trackside Core application.
// Trackside listens to the layout controller's state feed over MQTT and runs
// registered automations when the fast clock or the layout changes:
//   - Time triggers fire once per fast-clock minute
//   - Event triggers fire on matching entity updates
//   - Guards are evaluated against live layout state
//   - Scripts run on a bounded worker pool with a watchdog
//
// An unexpected loss of the feed exports the last known state and publishes
// an emergency notice.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/trackside-core/internal/automation"
	"github.com/nerrad567/trackside-core/internal/feed"
	"github.com/nerrad567/trackside-core/internal/infrastructure/config"
	"github.com/nerrad567/trackside-core/internal/infrastructure/database"
	"github.com/nerrad567/trackside-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/trackside-core/internal/infrastructure/logging"
	"github.com/nerrad567/trackside-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/trackside-core/internal/layout"
	"github.com/nerrad567/trackside-core/internal/recovery"
	"github.com/nerrad567/trackside-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	metricsShutdownTimeout = 5 * time.Second
	metricsReadTimeout     = 5 * time.Second
)

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Trackside Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
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
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	engine := newEngine(cfg, db, influxClient, log)

	if cfg.Metrics.Enabled {
		metrics := automation.NewMetrics(prometheus.DefaultRegisterer)
		engine.SetMetrics(metrics)

		srv := startMetricsServer(cfg.Metrics.Listen, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				log.Error("error stopping metrics server", "error", shutdownErr)
			}
		}()
	}

	// Disconnect recovery
	recoveryHandler := recovery.NewHandler(recovery.Config{
		StateFile:         cfg.Recovery.StateFile,
		EmergencyStop:     cfg.Recovery.EmergencyStop,
		SnapshotRetention: cfg.Recovery.SnapshotRetention,
	}, layout.NewSQLiteSnapshotRepository(db.DB), mqttClient, mqttClient.Topics().Emergency())
	recoveryHandler.SetLogger(log.Component("recovery"))
	engine.SetDisconnectHandler(recoveryHandler.Handle)

	// The engine outlives the signal context so in-flight scripts get the
	// configured shutdown grace.
	if startErr := engine.Start(context.WithoutCancel(ctx)); startErr != nil {
		return fmt.Errorf("starting automation engine: %w", startErr)
	}
	defer func() {
		log.Info("stopping automation engine")
		if closeErr := engine.Close(cfg.Automation.ShutdownGrace); closeErr != nil {
			log.Error("error stopping automation engine", "error", closeErr)
		}
		stats := engine.Stats()
		log.Info("automation engine stopped",
			"submitted", stats.Submitted,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
			"timed_out", stats.TimedOut,
		)
	}()

	handles, rulesErr := automation.RegisterRules(engine, cfg.Automation.Rules, mqttClient, mqttClient.Topics().Command)
	if rulesErr != nil {
		log.Warn("some configured rules were rejected", "error", rulesErr)
	}
	log.Info("automation rules registered",
		"registered", len(handles),
		"configured", len(cfg.Automation.Rules),
	)

	// Subscribe to the layout feed last so every rule sees the first update
	layoutFeed := feed.New(mqttClient, engine, mqttClient.Topics(), byte(cfg.MQTT.QoS)) //nolint:gosec // qos validated to 0..2
	layoutFeed.SetLogger(log.Component("feed"))
	if feedErr := layoutFeed.Start(); feedErr != nil {
		return fmt.Errorf("subscribing to layout feed: %w", feedErr)
	}
	defer func() {
		log.Info("unsubscribing from layout feed")
		if stopErr := layoutFeed.Stop(); stopErr != nil {
			log.Error("error unsubscribing from layout feed", "error", stopErr)
		}
	}()
	log.Info("layout feed subscribed", "prefix", mqttClient.Topics().Prefix())

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Layout feed
	// 2. Automation engine
	// 3. Metrics server (if enabled)
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Trackside Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TRACKSIDE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TRACKSIDE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newEngine builds the automation engine and attaches its run recorders.
// influxClient may be nil when telemetry is disabled.
func newEngine(cfg *config.Config, db *database.DB, influxClient *influxdb.Client, log *logging.Logger) *automation.Engine {
	engine := automation.NewEngine(automation.EngineConfig{
		Workers:        cfg.Automation.Workers,
		QueueSize:      cfg.Automation.QueueSize,
		DefaultTimeout: cfg.Automation.DefaultTimeout,
		ShutdownGrace:  cfg.Automation.ShutdownGrace,
		Verbose:        cfg.Automation.Verbose,
	}, log.Component("automation"))

	engine.AddRecorder(automation.NewSQLiteRunRepository(db.DB))

	if influxClient != nil {
		engine.AddRecorder(telemetryRecorder(influxClient))
		engine.SetEntityHook(telemetryHook(influxClient))
	}

	return engine
}

// telemetryWriter is the subset of the InfluxDB client used for telemetry.
type telemetryWriter interface {
	WriteAutomationRun(run influxdb.RunPoint)
	WriteLayoutEvent(kind, id string, version uint64, attributes int, at time.Time)
}

// telemetryRecorder writes every run outcome as an InfluxDB point.
func telemetryRecorder(w telemetryWriter) automation.RunRecorder {
	return automation.RunRecorderFunc(func(_ context.Context, run automation.RunRecord) error {
		w.WriteAutomationRun(influxdb.RunPoint{
			Name:        run.Name,
			TriggerType: string(run.TriggerType),
			Status:      string(run.Status),
			Elapsed:     run.Elapsed,
			Late:        run.Late,
			StartedAt:   run.StartedAt,
		})
		return nil
	})
}

// telemetryHook writes every applied entity update as an InfluxDB point.
func telemetryHook(w telemetryWriter) automation.EntityHook {
	return func(entity layout.Entity) {
		w.WriteLayoutEvent(string(entity.Kind), entity.ID, entity.Version, len(entity.Attributes), entity.UpdatedAt)
	}
}

// startMetricsServer serves Prometheus metrics on /metrics in the background.
func startMetricsServer(listen string, log *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	go func() {
		log.Info("metrics server listening", "listen", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()

	return srv
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
