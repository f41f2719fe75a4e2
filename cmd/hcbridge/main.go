// hcbridge exposes the devices of a Fibaro Home Center controller as HomeKit
// accessories.
//
// It resolves controller devices into accessory services, keeps them in sync
// through the incremental refresh loop and forwards HomeKit writes back to
// the controller as commands. Optional sinks mirror activity to MQTT,
// InfluxDB, a local SQLite history and a diagnostics API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/hcbridge/internal/accessory"
	"github.com/nerrad567/hcbridge/internal/api"
	"github.com/nerrad567/hcbridge/internal/bridge"
	"github.com/nerrad567/hcbridge/internal/executor"
	"github.com/nerrad567/hcbridge/internal/fibaro"
	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/infrastructure/database"
	"github.com/nerrad567/hcbridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/hcbridge/internal/infrastructure/logging"
	"github.com/nerrad567/hcbridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/hcbridge/internal/mirror"
	"github.com/nerrad567/hcbridge/internal/poller"
	"github.com/nerrad567/hcbridge/internal/statestore"
	"github.com/nerrad567/hcbridge/migrations"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// sinks holds the optional infrastructure clients.
type sinks struct {
	db     *database.DB
	store  *statestore.Store
	mqtt   *mqtt.Client
	influx *influxdb.Client
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting hcbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"controller", cfg.Controller.String(),
		"bridge_id", cfg.Bridge.ID,
	)

	controller, err := fibaro.NewClient(fibaro.Config{
		URL:      cfg.Controller.URL,
		Username: cfg.Controller.Username,
		Password: cfg.Controller.Password,
		Timeout:  cfg.GetControllerTimeout(),
		Logger:   log.With("component", "fibaro"),
	})
	if err != nil {
		return fmt.Errorf("creating controller client: %w", err)
	}

	s, err := openSinks(ctx, cfg, log)
	defer s.close(log)
	if err != nil {
		return err
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log.With("component", "websocket"))
		go hub.Run(ctx)
	}

	// The mirror is created after the bridge it observes; the callbacks only
	// fire once the bridge has started.
	var mir *mirror.Mirror
	bopts := bridge.Options{
		Config:     cfg,
		Controller: controller,
		Version:    version,
		Logger:     log.With("component", "bridge"),
		OnCommand: func(r executor.Record) {
			if mir != nil {
				mir.OnCommand(r)
			}
		},
		OnCycle: func(c poller.Cycle) {
			if mir != nil {
				mir.OnCycle(c)
			}
		},
	}
	if s.store != nil {
		bopts.Cursors = s.store
	}
	if s.mqtt != nil {
		bopts.Publisher = s.mqtt
	}
	b, err := bridge.New(bopts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	accs, err := b.ResolveCapabilities(ctx)
	if err != nil {
		return fmt.Errorf("resolving capabilities: %w", err)
	}
	subs, err := b.Bind()
	if err != nil {
		return fmt.Errorf("binding capabilities: %w", err)
	}
	log.Info("capabilities resolved", "accessories", len(accs), "subscriptions", subs)

	mir, err = newMirror(cfg, s, hub, b, log)
	if err != nil {
		return err
	}
	if mir != nil {
		mir.Watch(b.Services())
		if err := mir.Start(ctx); err != nil {
			return fmt.Errorf("starting mirror: %w", err)
		}
		defer func() {
			log.Info("stopping mirror", "dropped", mir.Dropped())
			mir.Stop()
		}()
	}

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}

	adapter, err := accessory.Build(accessory.Options{
		Name:     cfg.HomeKit.Name,
		Firmware: version,
		Handler:  b,
		Logger:   log.With("component", "hap"),
	}, accs)
	if err != nil {
		return fmt.Errorf("building accessories: %w", err)
	}
	hapServer, err := adapter.Server(cfg.HomeKit)
	if err != nil {
		return err
	}

	if cfg.API.Enabled {
		srv, err := newAPIServer(cfg, s, hub, b, log)
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"accessories", len(adapter.Accessories()),
		"homekit_port", cfg.HomeKit.Port,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := hapServer.ListenAndServe(gctx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && gctx.Err() == nil {
			return fmt.Errorf("homekit server: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openSinks connects the optional infrastructure. On error the sinks opened
// so far are returned so the caller can close them.
func openSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) (*sinks, error) {
	s := &sinks{}

	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return s, fmt.Errorf("opening database: %w", err)
		}
		s.db = db
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return s, fmt.Errorf("running migrations: %w", err)
		}
		store, err := statestore.New(db)
		if err != nil {
			return s, fmt.Errorf("creating state store: %w", err)
		}
		s.store = store
		log.Info("database ready", "path", db.Path())
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT, cfg.Bridge.ID)
		if err != nil {
			return s, fmt.Errorf("connecting to MQTT: %w", err)
		}
		s.mqtt = client
		client.SetLogger(log.With("component", "mqtt"))
		client.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB, cfg.Bridge.ID)
		if err != nil {
			return s, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		s.influx = client
		client.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	return s, nil
}

// close releases the sinks in reverse order of opening.
func (s *sinks) close(log *logging.Logger) {
	if s == nil {
		return
	}
	if s.influx != nil {
		log.Info("closing InfluxDB connection")
		if err := s.influx.Close(); err != nil {
			log.Error("error closing InfluxDB", "error", err)
		}
	}
	if s.mqtt != nil {
		log.Info("disconnecting from MQTT")
		if err := s.mqtt.Close(); err != nil {
			log.Error("error closing MQTT", "error", err)
		}
	}
	if s.db != nil {
		log.Info("closing database")
		if err := s.db.Close(); err != nil {
			log.Error("error closing database", "error", err)
		}
	}
}

// checks returns the dependencies probed by the API health endpoint.
func (s *sinks) checks() map[string]api.Checker {
	out := make(map[string]api.Checker)
	if s.db != nil {
		out["database"] = s.db
	}
	if s.mqtt != nil {
		out["mqtt"] = s.mqtt
	}
	if s.influx != nil {
		out["influxdb"] = s.influx
	}
	return out
}

// newMirror builds the mirror from whichever sinks are configured. It
// returns nil when there is nothing to mirror to.
func newMirror(cfg *config.Config, s *sinks, hub *api.Hub, b *bridge.Bridge, log *logging.Logger) (*mirror.Mirror, error) {
	opts := mirror.Options{
		Writer:    b,
		Retention: cfg.GetHistoryRetention(),
		Logger:    log.With("component", "mirror"),
	}
	if s.mqtt != nil {
		opts.Publisher = s.mqtt
	}
	if s.influx != nil {
		opts.Telemetry = s.influx
	}
	if s.store != nil {
		opts.History = s.store
	}
	if hub != nil {
		opts.Broadcaster = hub
	}

	m, err := mirror.New(opts)
	if errors.Is(err, mirror.ErrNoSinks) {
		log.Info("no mirror sinks configured")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating mirror: %w", err)
	}
	return m, nil
}

func newAPIServer(cfg *config.Config, s *sinks, hub *api.Hub, b *bridge.Bridge, log *logging.Logger) (*api.Server, error) {
	deps := api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Bridge:  b,
		Checks:  s.checks(),
		Hub:     hub,
		Version: version,
	}
	if s.store != nil {
		deps.History = s.store
	}
	srv, err := api.New(deps)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	return srv, nil
}

// getConfigPath returns the configuration file path.
// Uses HCBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HCBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
