// Gray Logic Agent - host telemetry and control over MQTT
//
// The agent loads entity plugins (data sources) and warehouse plugins (data
// sinks) named in its configuration, polls every entity on its own interval
// and lets every warehouse export the collected values: to the console, an
// MQTT broker, Home Assistant discovery, InfluxDB, a SQLite history or a
// REST/WebSocket API.
//
// Usage:
//
//	glagent [--config configs/agent.yaml] [--plugins] [--version]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-agent/internal/plugins"
	"github.com/nerrad567/gray-logic-agent/internal/registry"
	"github.com/nerrad567/gray-logic-agent/internal/scheduler"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
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
	defaultConfigPath = "configs/agent.yaml"

	// configEnvVar overrides defaultConfigPath when --config is not given.
	configEnvVar = "GLAGENT_CONFIG"

	// shutdownTimeout bounds the warehouse Stop calls.
	shutdownTimeout = 15 * time.Second

	// discoveryKey is the record option holding an entity-wide discovery payload.
	discoveryKey = "discovery"
)

// ErrNothingToRun is returned when no entity or no warehouse survives startup.
var ErrNothingToRun = errors.New("glagent: nothing to run")

// options are the parsed command-line flags.
type options struct {
	configPath  string
	listPlugins bool
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("glagent %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if opts.listPlugins {
		if err := listPlugins(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// A missing .env file is normal; anything else is reported.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: loading .env: %v\n", err)
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(opts.configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("glagent", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $"+configEnvVar+" or "+defaultConfigPath+")")
	flags.BoolVar(&opts.listPlugins, "plugins", false, "list the available plugins and exit")
	flags.BoolVarP(&opts.showVersion, "version", "v", false, "print the version and exit")
	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// getConfigPath returns the configuration file path: the --config flag,
// then GLAGENT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown after ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Settings.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"app", cfg.Settings.AppName,
		"client", cfg.Settings.ClientName,
		"entities", len(cfg.Entities),
		"warehouses", len(cfg.Warehouses),
	)

	entityPlugins, err := plugins.Entities(log.Source("registry"))
	if err != nil {
		return fmt.Errorf("registering entity plugins: %w", err)
	}
	warehousePlugins, err := plugins.Warehouses(log.Source("registry"))
	if err != nil {
		return fmt.Errorf("registering warehouse plugins: %w", err)
	}

	// Entities
	sched := scheduler.New(log.Source("scheduler"))
	if n := buildEntities(cfg, entityPlugins, sched, log); n == 0 {
		return fmt.Errorf("%w: no usable entities configured", ErrNothingToRun)
	}
	if active := sched.Start(ctx); len(active) == 0 {
		return fmt.Errorf("%w: every entity failed to initialize", ErrNothingToRun)
	}

	// Warehouses
	group := warehouse.NewGroup(log.Source("warehouses"))
	if n := buildWarehouses(cfg, warehousePlugins, sched, group, log); n == 0 {
		sched.Stop()
		return fmt.Errorf("%w: no usable warehouses configured", ErrNothingToRun)
	}
	if running := group.Start(ctx); len(running) == 0 {
		sched.Stop()
		return fmt.Errorf("%w: every warehouse failed to start", ErrNothingToRun)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	sched.Wait()

	// ctx is already cancelled; Stop gets a fresh deadline so MQTT
	// warehouses can still publish their offline state.
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	group.Stop(stopCtx)

	log.Info("Gray Logic Agent stopped")
	return nil
}

// buildEntities instantiates every entity record and adds it to sched.
// Records naming an unknown type, or whose factory fails, are logged and
// skipped.
//
// Returns:
//   - int: Number of entities added
func buildEntities(cfg *config.Config, reg *registry.Registry[entity.Factory], sched *scheduler.Scheduler, log *logging.Logger) int {
	env := entity.Env{
		AppName:    cfg.Settings.AppName,
		ClientName: cfg.Settings.ClientName,
		Version:    version,
		Lookup:     sched.Lookup,
	}

	added := 0
	for _, rec := range cfg.Entities {
		factory, err := reg.Resolve(rec.Type)
		if err != nil {
			log.Error("skipping entity", "entity", rec.Identity(), "error", err)
			continue
		}
		h, err := factory(rec, env)
		if err != nil {
			log.Error("skipping entity", "entity", rec.Identity(), "error", err)
			continue
		}

		interval, _ := rec.Interval(cfg.Settings.UpdateInterval) //nolint:errcheck // validated by config.Load

		e := entity.New(rec.Type, rec, h,
			entity.WithInterval(interval),
			entity.WithLogger(log.Source(rec.Identity())),
		)
		payload, err := discoveryPayload(rec)
		if err != nil {
			log.Warn("ignoring entity discovery payload", "entity", rec.Identity(), "error", err)
		} else if payload != nil {
			e.SetPayload(payload)
		}

		if err := sched.Add(e); err != nil {
			log.Error("skipping entity", "entity", rec.Identity(), "error", err)
			continue
		}
		added++
	}
	return added
}

// buildWarehouses instantiates every warehouse record and adds it to group.
//
// Returns:
//   - int: Number of warehouses added
func buildWarehouses(cfg *config.Config, reg *registry.Registry[warehouse.Factory], src warehouse.Source, group *warehouse.Group, log *logging.Logger) int {
	added := 0
	for _, rec := range cfg.Warehouses {
		factory, err := reg.Resolve(rec.Type)
		if err != nil {
			log.Error("skipping warehouse", "warehouse", rec.Identity(), "error", err)
			continue
		}

		logger := log.Source(rec.Identity())
		h, err := factory(rec, warehouse.Env{
			AppName:    cfg.Settings.AppName,
			ClientName: cfg.Settings.ClientName,
			Version:    version,
			Entities:   src,
			Logger:     logger,
		})
		if err != nil {
			log.Error("skipping warehouse", "warehouse", rec.Identity(), "error", err)
			continue
		}

		interval, _ := rec.Interval(cfg.Settings.WarehouseInterval) //nolint:errcheck // validated by config.Load
		group.Add(warehouse.New(rec.Type, rec, h, interval, logger))
		added++
	}
	return added
}

// discoveryPayload returns the record's "discovery" mapping, nil when unset.
func discoveryPayload(rec config.Record) (map[string]any, error) {
	if _, ok := rec.Options[discoveryKey]; !ok {
		return nil, nil
	}
	var opts struct {
		Discovery map[string]any `yaml:"discovery"`
	}
	if err := rec.Decode(&opts); err != nil {
		return nil, err
	}
	return opts.Discovery, nil
}

// listPlugins writes every registered plugin with its load state.
func listPlugins(w io.Writer) error {
	ents, err := plugins.Entities(nil)
	if err != nil {
		return err
	}
	whs, err := plugins.Warehouses(nil)
	if err != nil {
		return err
	}

	// Descriptors reflect load state only after the first load.
	ents.ListAvailable()
	whs.ListAvailable()

	for _, d := range append(ents.Descriptors(), whs.Descriptors()...) {
		line := fmt.Sprintf("%-10s %-15s %-8s %s", d.Kind, d.Name, d.State, d.Source)
		if d.Err != nil {
			line += "  (" + d.Err.Error() + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
