// VigiLant Core - real-time industrial telemetry bridge.
//
// This is the main entry point. It subscribes to device measurements on an
// MQTT broker, stores the latest reading of every registered device, pushes
// each update to connected browsers over WebSocket, and serves the operator
// REST API.
//
// Usage:
//
//	vigilant [serve]                                   run the service
//	vigilant token -subject maria -role administrador  issue an operator token
//	vigilant version                                   print build information
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nerrad567/vigilant-core/migrations"

	"github.com/nerrad567/vigilant-core/internal/api"
	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/auth"
	"github.com/nerrad567/vigilant-core/internal/broker"
	"github.com/nerrad567/vigilant-core/internal/brokerconfig"
	"github.com/nerrad567/vigilant-core/internal/device"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/config"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/database"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/logging"
	"github.com/nerrad567/vigilant-core/internal/ingest"
	"github.com/nerrad567/vigilant-core/internal/realtime"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// brokerStopTimeout bounds how long shutdown waits for the connection loop.
const brokerStopTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// dispatch selects the subcommand. No arguments means serve.
func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return run(ctx)
	}

	switch args[0] {
	case "serve":
		return run(ctx)
	case "token":
		return runToken(args[1:], out)
	case "version":
		fmt.Fprintf(out, "vigilant %s (commit %s, built %s)\n", version, commit, date)
		return nil
	default:
		return fmt.Errorf("unknown command %q (want serve, token or version)", args[0])
	}
}

// runToken prints a signed operator token. The signing secret comes from
// the same configuration the server uses.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	subject := fs.String("subject", "", "operator name written into the token")
	roleName := fs.String("role", string(auth.RoleCollaborator), "administrador or colaborador")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: security.jwt.access_token_ttl)")
	configPath := fs.String("config", getConfigPath(), "configuration file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing token flags: %w", err)
	}

	if *subject == "" {
		return errors.New("-subject is required")
	}
	role, err := auth.ParseRole(*roleName)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *ttl <= 0 {
		*ttl = cfg.Security.JWT.GetAccessTokenTTL()
	}

	token, err := auth.GenerateAccessToken(*subject, role, cfg.Security.JWT.Secret, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting VigiLant Core",
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

	loc := siteLocation(cfg.Site.Timezone, log)

	db, err := database.Open(ctx, database.Config{
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

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.With("component", "device"))
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	brokerStore := brokerconfig.NewStore(db.DB, brokerconfig.Config{
		Host:          cfg.MQTT.Defaults.Host,
		Port:          cfg.MQTT.Defaults.Port,
		TopicWildcard: cfg.MQTT.Defaults.TopicWildcard,
	})

	// InfluxDB is optional; the pipeline records nothing without it.
	var recorder ingest.Recorder
	var history api.HistoryStore
	var influxClient *influxdb.Client
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
		recorder = influxClient
		history = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	hub := realtime.NewHub(cfg.WebSocket, log.With("component", "realtime"))

	pipeline, err := ingest.New(ingest.Options{
		Registry:    registry,
		Broadcaster: hub,
		Recorder:    recorder,
		Logger:      log.With("component", "ingest"),
		Location:    loc,
	})
	if err != nil {
		return fmt.Errorf("creating ingestion pipeline: %w", err)
	}

	manager, err := broker.New(broker.Options{
		MQTT:    cfg.MQTT,
		Config:  brokerStore,
		Handler: pipeline.Handle,
		Logger:  log.With("component", "broker"),
	})
	if err != nil {
		return fmt.Errorf("creating broker manager: %w", err)
	}

	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.With("component", "api"),
		Registry:     registry,
		BrokerConfig: brokerStore,
		Broker:       manager,
		Hub:          hub,
		Audit:        audit.NewSQLiteRepository(db.DB),
		DB:           db,
		History:      history,
		Location:     loc,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if runErr := manager.Run(ctx); runErr != nil {
			log.Error("broker manager stopped", "error", runErr)
		}
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", server.Addr(),
		"realtime_path", cfg.WebSocket.Path,
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	waitGroupTimeout(&wg, brokerStopTimeout, log)

	log.Info("VigiLant Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses VIGILANT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VIGILANT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// siteLocation resolves the timezone used for ultimaAtualizacao. An unknown
// zone falls back to the host's local time.
func siteLocation(name string, log *logging.Logger) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("unknown site timezone, using local time", "timezone", name, "error", err)
		return time.Local
	}
	return loc
}

// healthCheck verifies the infrastructure that must be up before serving.
// The broker is not checked: the connection loop keeps retrying.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// waitGroupTimeout waits for wg, giving up after d.
func waitGroupTimeout(wg *sync.WaitGroup, d time.Duration, log *logging.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(d):
		log.Warn("background workers did not stop in time", "timeout", d)
	}
}
