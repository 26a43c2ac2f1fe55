// Tapowatt - Tapo smart plug power aggregation service
//
// Tapowatt supervises a tapo-rest backend process, aggregates power
// readings across every configured smart plug, and serves them over a
// single HTTP endpoint. Readings can optionally be stored in SQLite,
// forwarded to InfluxDB, published to MQTT, and streamed to WebSocket
// clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/tapowatt/migrations"

	"github.com/nerrad567/tapowatt/internal/aggregate"
	"github.com/nerrad567/tapowatt/internal/api"
	"github.com/nerrad567/tapowatt/internal/backend"
	"github.com/nerrad567/tapowatt/internal/device"
	"github.com/nerrad567/tapowatt/internal/history"
	"github.com/nerrad567/tapowatt/internal/infrastructure/config"
	"github.com/nerrad567/tapowatt/internal/infrastructure/database"
	"github.com/nerrad567/tapowatt/internal/infrastructure/influxdb"
	"github.com/nerrad567/tapowatt/internal/infrastructure/logging"
	"github.com/nerrad567/tapowatt/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// pruneInterval is how often expired history rows are removed.
const pruneInterval = 24 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main so errors map to
// exit codes in one place.
func run(ctx context.Context) error {
	// A .env file is a convenience for development; absence is fine.
	_ = godotenv.Load()

	log := logging.Default()
	log.Info("starting Tapowatt", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	creds, err := config.LoadBackendCredentials(cfg.Backend.CredentialsFile)
	if err != nil {
		return fmt.Errorf("loading backend credentials: %w", err)
	}

	// The YAML api_url (or TAPOWATT_BACKEND_API_URL) wins over the
	// credentials file when both are set.
	apiURL := cfg.Backend.APIURL
	if apiURL == "" {
		apiURL = creds.TapoAPIURL
	}

	registry, err := device.LoadRegistry(cfg.Devices.File)
	if err != nil {
		return fmt.Errorf("loading device inventory: %w", err)
	}
	log.Info("device inventory loaded", "path", cfg.Devices.File, "devices", registry.Count())

	// Start (or probe) the tapo-rest backend and wait for readiness.
	backendMgr := backend.NewManager(cfg.Backend, apiURL)
	backendMgr.SetLogger(log.With("component", "backend"))
	if err := backendMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting backend: %w", err)
	}
	defer func() {
		log.Info("stopping backend")
		if stopErr := backendMgr.Stop(); stopErr != nil {
			log.Error("error stopping backend", "error", stopErr)
		}
	}()
	log.Info("backend ready", "url", apiURL, "managed", backendMgr.IsManaged())

	client := backend.NewClient(apiURL, creds.LoginPassword, cfg.Backend.GetRequestTimeout())
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("backend login: %w", err)
	}
	log.Info("backend session established")

	aggregator := aggregate.NewAggregator(registry, client)

	// Reading history (optional)
	var store *history.Store
	if cfg.History.Enabled {
		db, dbErr := database.Open(ctx, database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening history database: %w", dbErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}

		store = history.NewStore(db)
		log.Info("history enabled", "path", cfg.History.Path, "retention_days", cfg.History.RetentionDays)

		go prunePeriodically(ctx, store, cfg.History.GetRetention(), log)
	} else {
		log.Info("history disabled")
	}

	// InfluxDB metrics (optional)
	var influxClient *influxdb.Client
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT publishing (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.Server,
		Auth:       cfg.Auth,
		WS:         cfg.WebSocket,
		Logger:     log.With("component", "api"),
		Registry:   registry,
		Aggregator: aggregator,
		History:    store,
		Backend:    backendMgr,
		Version:    version,
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

	// Background poller feeding the storage and streaming sinks.
	if cfg.Poller.Enabled {
		sinks := aggregate.Sinks{Broadcaster: server.Hub()}
		if store != nil {
			sinks.Recorder = store
		}
		if influxClient != nil {
			sinks.Metrics = influxClient
		}
		if mqttClient != nil {
			sinks.Publisher = mqttClient
		}

		interval := time.Duration(cfg.Poller.Interval) * time.Second
		poller := aggregate.NewPoller(aggregator, interval, sinks, log.With("component", "poller"))
		go poller.Run(ctx)
	} else {
		log.Info("poller disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// prunePeriodically removes history rows older than the retention
// window, once on startup and then daily.
func prunePeriodically(ctx context.Context, store *history.Store, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		removed, err := store.Prune(ctx, retention)
		if err != nil {
			log.Warn("history prune failed", "error", err)
		} else if removed > 0 {
			log.Info("history pruned", "removed", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// getConfigPath returns the configuration file path.
// Uses TAPOWATT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TAPOWATT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
