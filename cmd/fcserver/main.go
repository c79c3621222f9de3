// fcserver accepts Open Pixel Control streams over TCP and WebSocket and
// drives attached Fadecandy and Enttec DMX USB Pro controllers.
//
// Usage:
//
//	fcserver [-config path] [-token subject] [-migrate-down]
//
// Without a config file the built-in default is used: listen on
// 127.0.0.1:7890 and map OPC channel 0 onto a single Fadecandy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-fcserver/internal/auth"
	"github.com/nerrad567/gray-logic-fcserver/internal/capture"
	"github.com/nerrad567/gray-logic-fcserver/internal/coordinator"
	"github.com/nerrad567/gray-logic-fcserver/internal/discovery"
	"github.com/nerrad567/gray-logic-fcserver/internal/history"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fcserver/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fcserver/internal/netserver"
	"github.com/nerrad567/gray-logic-fcserver/internal/transport"
	"github.com/nerrad567/gray-logic-fcserver/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// flushInterval is how often finished transport writes are collected.
const flushInterval = 5 * time.Millisecond

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, starts every enabled component and blocks until ctx
// is cancelled.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fcserver", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("FCSERVER_CONFIG"), "path to a YAML or JSON configuration file")
	tokenSubject := fs.String("token", "", "print a WebSocket token for `subject` and exit")
	migrateDown := fs.Bool("migrate-down", false, "roll back the latest database migration and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *tokenSubject != "" {
		return printToken(stdout, cfg, *tokenSubject)
	}
	if *migrateDown {
		return rollbackMigration(ctx, cfg, stdout)
	}

	log = logging.New(cfg.Logging, version, logging.Options{Verbose: cfg.Verbose})
	log.Info("starting fcserver",
		"version", version,
		"commit", commit,
		"build_date", date,
	)
	if *configPath != "" {
		log.Info("configuration loaded", "path", *configPath)
	} else {
		log.Info("no configuration file given, using defaults")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Optional components register their own cleanup. They run after the
	// coordinator has detached its devices.
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	coord := coordinator.New(cfg, coordinator.Options{
		Version: version,
		Verbose: cfg.Verbose,
		Logger:  log.With("component", "coordinator"),
	})
	defer func() {
		if closeErr := coord.Close(); closeErr != nil {
			log.Error("error detaching devices", "error", closeErr)
		}
	}()

	if cfg.Database.Enabled {
		closeDB, dbErr := startHistory(ctx, cfg, coord, log)
		if dbErr != nil {
			return dbErr
		}
		cleanups = append(cleanups, closeDB)
	}

	if cfg.Capture.Enabled {
		w, capErr := capture.Create(cfg.Capture.Path)
		if capErr != nil {
			return fmt.Errorf("opening capture file: %w", capErr)
		}
		coord.SetRecorder(w)
		cleanups = append(cleanups, func() {
			log.Info("closing capture file", "frames", w.Frames())
			if closeErr := w.Close(); closeErr != nil {
				log.Error("error closing capture file", "error", closeErr)
			}
		})
		log.Info("capturing pixel messages", "path", cfg.Capture.Path)
	}

	srv, err := netserver.New(cfg, coord, netserver.Options{
		Version:   version,
		Logger:    log.With("component", "netserver"),
		Validator: auth.NewValidator(cfg.Security.WebSocketSecret),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	coord.SetHub(srv)

	if cfg.MQTT.Enabled {
		stopMQTT, mqttErr := startMQTT(ctx, cfg, coord, log)
		if mqttErr != nil {
			return mqttErr
		}
		cleanups = append(cleanups, stopMQTT)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		stopInflux, influxErr := startInfluxDB(ctx, cfg, coord, log)
		if influxErr != nil {
			return influxErr
		}
		cleanups = append(cleanups, stopInflux)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		log.Info("stopping server")
		if closeErr := srv.Close(); closeErr != nil && !errors.Is(closeErr, netserver.ErrNotStarted) {
			log.Error("error stopping server", "error", closeErr)
		}
	}()
	log.Info("listening", "addr", srv.Addr().String())

	go coord.RunFlusher(ctx, flushInterval)

	watcher := transport.NewWatcher(cfg.Transports, coord)
	watcher.SetLogger(log.With("component", "transport"))
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("starting transport watcher: %w", err)
	}
	defer watcher.Wait()

	if cfg.Discovery.Enabled {
		startDiscovery(ctx, cfg, srv, coord, log)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// loadConfig reads path, or returns the built-in default when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating default config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func printToken(w io.Writer, cfg *config.Config, subject string) error {
	if cfg.Security.WebSocketSecret == "" {
		return errors.New("security.websocket_secret is not set")
	}
	token, err := auth.GenerateToken(subject, cfg.Security.WebSocketSecret, auth.DefaultTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// rollbackMigration reverts the most recently applied schema migration.
func rollbackMigration(ctx context.Context, cfg *config.Config, w io.Writer) error {
	if !cfg.Database.Enabled {
		return errors.New("database is not enabled")
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly, nothing left to flush

	applied, _, err := db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	if len(applied) == 0 {
		_, err = fmt.Fprintln(w, "no migrations applied")
		return err
	}
	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	_, err = fmt.Fprintf(w, "rolled back %s\n", applied[len(applied)-1].Version)
	return err
}

// startHistory opens the database, migrates it and enables session history.
func startHistory(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, log *logging.Logger) (func(), error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	store := history.NewStore(db.DB)
	closed, err := store.CloseOpen(ctx, time.Now())
	if err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("closing stale sessions: %w", err)
	}
	if closed > 0 {
		log.Info("closed sessions left open by a previous run", "sessions", closed)
	}
	coord.SetHistory(store)
	coord.AddHealthCheck("database", db.HealthCheck)
	log.Info("device history enabled", "path", db.Path())

	return func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}, nil
}

// startMQTT connects to the broker, publishes device events and serves
// control messages.
func startMQTT(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, log *logging.Logger) (func(), error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, fmt.Sprint(cfg.MQTT.Broker.Port)),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	topics := mqtt.Topics{}
	coord.SetPublisher(client, topics.DeviceEvents())
	coord.AddHealthCheck("mqtt", client.HealthCheck)

	bridge := mqtt.NewControlBridge(client, coord, byte(cfg.MQTT.QoS)) // #nosec G115 -- validated 0..2
	if err := bridge.Start(ctx); err != nil {
		client.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("starting control bridge: %w", err)
	}

	return func() {
		coord.SetPublisher(nil, "")
		if stopErr := bridge.Stop(); stopErr != nil {
			log.Warn("error stopping control bridge", "error", stopErr)
		}
		log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}

// startInfluxDB connects to InfluxDB and writes coordinator counters
// every stats interval.
func startInfluxDB(ctx context.Context, cfg *config.Config, coord *coordinator.Coordinator, log *logging.Logger) (func(), error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	coord.AddHealthCheck("influxdb", client.HealthCheck)
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)

	reporter := influxdb.NewReporter(client, func() influxdb.Snapshot {
		return statsSnapshot(coord.Stats())
	})
	reportCtx, stopReports := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reporter.Run(reportCtx, time.Duration(cfg.InfluxDB.StatsInterval)*time.Second)
	}()

	return func() {
		stopReports()
		<-done
		log.Info("closing InfluxDB connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing InfluxDB", "error", closeErr)
		}
	}, nil
}

func statsSnapshot(s coordinator.Stats) influxdb.Snapshot {
	snap := influxdb.Snapshot{
		Server: influxdb.ServerSample{
			PixelMessages:   s.PixelMessages,
			ControlMessages: s.ControlMessages,
			Devices:         len(s.Devices),
		},
		Devices: make([]influxdb.DeviceSample, 0, len(s.Devices)),
	}
	for _, d := range s.Devices {
		snap.Devices = append(snap.Devices, influxdb.DeviceSample{
			Name:           d.Name,
			Type:           d.Type,
			Serial:         d.Serial,
			Submitted:      d.Submitted,
			BytesSubmitted: d.BytesSubmitted,
			Completed:      d.Completed,
			BytesWritten:   d.BytesWritten,
			SubmitErrors:   d.SubmitErrors,
			WriteErrors:    d.WriteErrors,
			Pending:        d.Pending,
		})
	}
	return snap
}

// startDiscovery advertises the listen port over mDNS and keeps the
// device count in the TXT record current. Failure is not fatal.
func startDiscovery(ctx context.Context, cfg *config.Config, srv *netserver.Server, coord *coordinator.Coordinator, log *logging.Logger) {
	addr, ok := srv.Addr().(*net.TCPAddr)
	if !ok {
		log.Warn("mDNS disabled: listener is not TCP")
		return
	}

	adv := discovery.NewAdvertiser(discovery.Config{
		Instance: cfg.Discovery.Instance,
		Version:  version,
	})
	adv.SetDeviceCount(coord.DeviceCount())
	if err := adv.Start(addr.Port); err != nil {
		log.Warn("mDNS advertisement failed", "error", err)
		return
	}
	log.Info("advertising over mDNS", "service", discovery.ServiceType, "port", addr.Port)

	go func() {
		defer adv.Stop()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				adv.SetDeviceCount(coord.DeviceCount())
			}
		}
	}()
}
