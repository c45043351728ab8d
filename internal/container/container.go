// Package container provides dependency injection for the xpense sync core.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"context"
	"fmt"
	"time"

	"edwinliby/xpense-sync/internal/config"
	"edwinliby/xpense-sync/internal/connectivity"
	"edwinliby/xpense-sync/internal/currency"
	"edwinliby/xpense-sync/internal/expense"
	"edwinliby/xpense-sync/internal/identity"
	"edwinliby/xpense-sync/internal/logging"
	"edwinliby/xpense-sync/internal/remote"
	"edwinliby/xpense-sync/internal/scheduler"
	"edwinliby/xpense-sync/internal/store"
)

// Container holds all application dependencies and provides methods to access them.
//
// Container is immutable after creation. All fields are private and can only
// be accessed through getter methods.
type Container struct {
	logger    logging.Logger
	config    *config.Config
	storage   *store.SQLiteStorage
	backend   remote.Backend
	closer    func() error
	session   *identity.Session
	monitor   *connectivity.Monitor
	scheduler *scheduler.Scheduler
	rates     currency.RateProvider
	store     *expense.Store
}

// NewContainer creates and wires all application dependencies and loads the
// state of the configured identity.
//
// Parameters:
//   - ctx: bounds the initial connectivity probe and state load
//   - cfg: Application configuration
//
// Returns:
//   - *Container: Fully wired container with all dependencies
//   - error: Any error encountered during dependency creation
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	// Create logger first as it's needed by other components
	logger := logging.NewLogrusAdapterFromLogger(config.ConfigureLoggingFromConfig(cfg))

	storage, err := store.OpenSQLite(cfg.ResolvePath(cfg.Data.LocalDB))
	if err != nil {
		return nil, err
	}

	backend, closer, err := openBackend(cfg)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	session := identity.NewSession(logger)
	if err := login(session, cfg); err != nil {
		_ = storage.Close()
		_ = closer()
		return nil, err
	}

	var probe connectivity.Probe
	offline := false
	if cfg.Sync.ProbeAddress != "" {
		probe = connectivity.TCPProbe(cfg.Sync.ProbeAddress, cfg.Sync.ProbeTimeout)
		offline = !probe(ctx)
	}
	monitor := connectivity.NewMonitor(probe, offline, logger)

	predefined, err := store.LoadPredefinedCategories(cfg.Categories.SeedFile)
	if err != nil {
		_ = storage.Close()
		_ = closer()
		return nil, err
	}

	sched := scheduler.New(logger)
	rates := currency.NewHTTPRateProvider(cfg.Currency.RateURL, cfg.Currency.Timeout)

	expenseStore := expense.New(expense.Options{
		Storage:              storage,
		Backend:              backend,
		Session:              session,
		Monitor:              monitor,
		Rates:                rates,
		Scheduler:            sched,
		Logger:               logger,
		Retention:            cfg.Trash.Retention,
		SweepInterval:        cfg.Trash.SweepInterval,
		RetryInterval:        cfg.Sync.RetryInterval,
		RemoteTimeout:        cfg.Sync.RemoteTimeout,
		HorizonMonths:        cfg.Recurring.HorizonMonths,
		PredefinedCategories: predefined,
		DefaultCurrency:      cfg.Currency.Default,
	})
	if err := expenseStore.Load(ctx); err != nil {
		_ = storage.Close()
		_ = closer()
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	owner, _ := session.Current()
	logger.Info("Container initialized successfully",
		logging.F(logging.FieldDriver, cfg.Remote.Driver),
		logging.F(logging.FieldOwner, owner),
		logging.F(logging.FieldOffline, monitor.IsOffline()))

	return &Container{
		logger:    logger,
		config:    cfg,
		storage:   storage,
		backend:   backend,
		closer:    closer,
		session:   session,
		monitor:   monitor,
		scheduler: sched,
		rates:     rates,
		store:     expenseStore,
	}, nil
}

func openBackend(cfg *config.Config) (remote.Backend, func() error, error) {
	switch cfg.Remote.Driver {
	case config.RemoteMemory:
		return remote.NewMemoryBackend(), func() error { return nil }, nil
	case config.RemoteSQLite:
		g, err := remote.OpenGorm(remote.DriverSQLite, cfg.ResolvePath(cfg.Remote.DSN))
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	case config.RemoteMySQL:
		g, err := remote.OpenGorm(remote.DriverMySQL, cfg.Remote.DSN)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown remote driver: %s", cfg.Remote.Driver)
}

func login(session *identity.Session, cfg *config.Config) error {
	switch {
	case cfg.Auth.Token != "":
		if err := session.LoginWithToken(cfg.Auth.Token, []byte(cfg.Auth.TokenSecret)); err != nil {
			return fmt.Errorf("failed to log in with token: %w", err)
		}
	case cfg.Auth.User != "":
		if err := session.Login(cfg.Auth.User); err != nil {
			return err
		}
	}
	return nil
}

// Start schedules connectivity polling, the trash sweeper and the sync retry
// job.
func (c *Container) Start() error {
	if c.config.Sync.ProbeAddress != "" {
		if err := c.monitor.Schedule(c.scheduler, c.config.Sync.ProbeInterval); err != nil {
			return err
		}
	}
	return c.store.Start()
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetStore returns the expense store.
func (c *Container) GetStore() *expense.Store {
	return c.store
}

// GetSession returns the identity session.
func (c *Container) GetSession() *identity.Session {
	return c.session
}

// GetMonitor returns the connectivity monitor.
func (c *Container) GetMonitor() *connectivity.Monitor {
	return c.monitor
}

// GetBackend returns the remote backend.
func (c *Container) GetBackend() remote.Backend {
	return c.backend
}

// Close stops background work, waits up to timeout for in-flight drains and
// releases the local and remote databases.
func (c *Container) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c.store.Close(ctx)

	var firstErr error
	if err := c.closer(); err != nil {
		firstErr = fmt.Errorf("failed to close remote: %w", err)
	}
	if err := c.storage.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close local store: %w", err)
	}
	c.logger.Info("Container closed")
	return firstErr
}
