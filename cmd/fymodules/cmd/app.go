package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/vapvarun/fymodules"
	"github.com/vapvarun/fymodules/catalog"
	"github.com/vapvarun/fymodules/config"
	"github.com/vapvarun/fymodules/store"
)

// operator is the actor of command-line changes. The command line is
// trusted local tooling.
var operator = fymodules.Actor{ID: "cli", Name: "Command line operator"}

// app holds the wired components shared by the commands.
type app struct {
	cfg         *config.AppConfig
	logger      *slog.Logger
	backend     store.Backend
	registry    *fymodules.Registry
	manager     *fymodules.Manager
	events      *fymodules.EventBus
	descriptors []fymodules.Descriptor

	// local applies operator changes made on this host, such as the
	// bootstrap set. It shares the registry and events with manager.
	local *fymodules.Manager
}

func newLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// newApp loads the configuration and wires the store, registry and
// manager. authz nil means the role-based authorizer from the config.
func newApp(ctx context.Context, configPath string, logOut io.Writer, authz fymodules.Authorizer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, logOut)

	backend, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}

	registry := fymodules.NewRegistry(backend, logger)
	probe := catalog.StaticProbe{}
	for _, p := range cfg.Plugins {
		probe[p] = true
	}
	descriptors := catalog.Register(registry, probe, logger)
	if authz == nil {
		authz = fymodules.NewCapabilityAuthorizer(descriptors, cfg.Roles)
	}

	bus := fymodules.NewEventBus(logger)
	if err := bus.RegisterObserver(fymodules.ObserverFunc{
		ID: "audit-log",
		Handler: func(_ context.Context, event cloudevents.Event) error {
			logger.Info("Module event", "type", event.Type(), "module", event.Subject(), "id", event.ID())
			return nil
		},
	}); err != nil {
		_ = backend.Close()
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		backend:     backend,
		registry:    registry,
		manager:     fymodules.NewManager(registry, authz, logger, fymodules.WithEvents(bus)),
		events:      bus,
		descriptors: descriptors,
		local:       fymodules.NewManager(registry, fymodules.AllowAll, logger, fymodules.WithEvents(bus)),
	}, nil
}

func (a *app) Close() error {
	return a.backend.Close()
}

// bootstrap enables the configured modules when no module has any stored
// state yet. It runs as the local operator whatever authorizer serves
// requests.
func (a *app) bootstrap(ctx context.Context) error {
	if len(a.cfg.Bootstrap) == 0 {
		return nil
	}
	for _, d := range a.descriptors {
		_, ok, err := a.backend.Get(ctx, d.ID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	a.logger.Info("Bootstrapping modules", "modules", a.cfg.Bootstrap)
	var errs []error
	for _, id := range a.cfg.Bootstrap {
		res, err := a.local.EnableModule(ctx, id, operator)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Warning != nil {
			a.logger.Warn("Bootstrapped module is quarantined", "module", id, "error", res.Warning.Message)
		}
	}
	return errors.Join(errs...)
}
