package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"github.com/cadre-oss/mosaic/internal/config"
	mosaicerrors "github.com/cadre-oss/mosaic/internal/errors"
	"github.com/cadre-oss/mosaic/internal/event"
	"github.com/cadre-oss/mosaic/internal/memory"
	"github.com/cadre-oss/mosaic/internal/persist"
	"github.com/cadre-oss/mosaic/internal/telemetry"
)

// loadConfig reads the discovered config file (or defaults) and applies
// flag and environment overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case cfgFile != "":
		cfg, err = config.LoadFile(cfgFile)
	case viper.ConfigFileUsed() != "":
		cfg, err = config.LoadFile(viper.ConfigFileUsed())
	default:
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	applyOverrides(cfg, settings)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	if v.IsSet("store.capacity") {
		cfg.Store.Capacity = v.GetInt("store.capacity")
	}
	if v.IsSet("snapshot.driver") {
		cfg.Snapshot.Driver = v.GetString("snapshot.driver")
	}
	if v.IsSet("snapshot.path") {
		cfg.Snapshot.Path = v.GetString("snapshot.path")
	}
	if v.IsSet("snapshot.name") {
		cfg.Snapshot.Name = v.GetString("snapshot.name")
	}
	if v.IsSet("snapshot.format") {
		cfg.Snapshot.Format = v.GetString("snapshot.format")
	}
	if v.IsSet("logging.level") {
		cfg.Logging.Level = v.GetString("logging.level")
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// session is one command's view of the persisted store: the store restored
// from its snapshot plus the bus, metrics and backend around it.
type session struct {
	cfg       *config.Config
	store     *memory.Store[string]
	persister *persist.Persister
	bus       *event.Bus
	metrics   *telemetry.Metrics
	logger    *telemetry.Logger
}

// openSession builds the logger, bus and backend from cfg and restores the
// configured snapshot. A missing snapshot starts an empty store.
func openSession(cfg *config.Config, logOut io.Writer) (*session, error) {
	logger := telemetry.NewLoggerWithOptions(logOut,
		telemetry.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	if cfg.Logging.File != "" {
		if err := logger.WithFile(cfg.Logging.File); err != nil {
			return nil, err
		}
	}
	logger = logger.WithFields(map[string]interface{}{"snapshot": cfg.Snapshot.Name})

	bus := event.NewBus(logger)

	metrics := telemetry.NewMetrics()
	bus.Register(metrics.Hook())
	if cfg.Metrics.Path != "" {
		exporter, err := telemetry.NewJSONFileExporter(cfg.Metrics.Path)
		if err != nil {
			logger.Close()
			return nil, err
		}
		metrics.SetExporter(exporter)
	}

	if cfg.Hooks.Enabled {
		hooks, err := buildHooks(cfg.Hooks.Hooks, logger)
		if err != nil {
			logger.Close()
			return nil, err
		}
		for _, h := range hooks {
			bus.Register(h)
		}
	}

	backend, err := persist.NewBackend(cfg.Snapshot.Driver, cfg.Snapshot.Path, cfg.Snapshot.Retain)
	if err != nil {
		logger.Close()
		return nil, err
	}

	format, err := memory.ParseFormat(cfg.Snapshot.Format)
	if err != nil {
		backend.Close()
		logger.Close()
		return nil, err
	}

	store, err := memory.New[string](cfg.Store.Capacity,
		memory.WithNotifier(bus),
		memory.WithLogger(logger),
	)
	if err != nil {
		backend.Close()
		logger.Close()
		return nil, err
	}

	s := &session{
		cfg:   cfg,
		store: store,
		persister: persist.NewPersister(backend,
			persist.WithFormat(format),
			persist.WithEvents(bus),
			persist.WithPersisterLogger(logger),
		),
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}

	err = s.persister.Load(store, cfg.Snapshot.Name, false)
	switch {
	case err == nil:
		logger.Debug("Snapshot restored", "entries", store.Len())
	case errors.Is(err, mosaicerrors.ErrSnapshotNotFound):
		logger.Debug("No snapshot yet, starting empty")
	default:
		s.close("open")
		return nil, err
	}
	return s, nil
}

// openCommandSession loads config and opens a session logging to stderr.
func openCommandSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openSession(cfg, os.Stderr)
}

// save persists the store under the configured snapshot name.
func (s *session) save() error {
	if err := s.persister.Save(s.store, s.cfg.Snapshot.Name); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// close drains hooks, flushes metrics labelled with the command name and
// releases the backend and log files.
func (s *session) close(command string) {
	s.bus.Wait()
	if err := s.metrics.Flush(command, map[string]string{"snapshot": s.cfg.Snapshot.Name}); err != nil {
		s.logger.Warn("Failed to export metrics", "error", err)
	}
	if err := s.persister.Backend().Close(); err != nil {
		s.logger.Warn("Failed to close backend", "error", err)
	}
	s.logger.Close()
}
