package workspacesync

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/adapters/gologger"
	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/credentials"
	"github.com/goliatone/go-workspace-sync/ingest"
	googleworkspace "github.com/goliatone/go-workspace-sync/providers/google/workspace"
	syncengine "github.com/goliatone/go-workspace-sync/sync"
	"github.com/goliatone/go-workspace-sync/transport"
)

// EngineConfig carries the host-supplied pieces NewEngine composes. Stores
// and Secrets are required; everything else has a working default.
type EngineConfig struct {
	Stores  core.StoreProvider
	Secrets core.SecretProvider

	// ConfigLoader supplies the raw configuration tree, typically backed by
	// files or environment. Nil means compiled defaults.
	ConfigLoader core.RawConfigLoader
	// Overrides sits above loaded configuration in the resolution stack;
	// zero-valued fields are ignored.
	Overrides core.Config

	Logger         glog.Logger
	LoggerProvider glog.LoggerProvider
	Metrics        core.MetricsRecorder

	// HTTPClient overrides the default provider's transport.
	HTTPClient transport.HTTPDoer
	// Providers replaces the default Google Workspace provider set.
	Providers []core.Provider
}

// Engine is the composed module: configuration resolved through the options
// stack, credential manager, provider registry, sync manager, and facade,
// all sharing one logging surface.
type Engine struct {
	config      core.Config
	registry    *core.ProviderRegistry
	credentials *credentials.Manager
	manager     *syncengine.Manager
	facade      *Facade
}

// NewEngine resolves the effective configuration (defaults, then loaded
// config, then overrides) and wires every component from it: the credential
// expiry buffer, the activity stream lookback, and the provider's HTTP
// timeout and retry budget all come from the resolved Config.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Stores == nil {
		return nil, fmt.Errorf("workspacesync: store provider is required")
	}
	if cfg.Secrets == nil {
		return nil, fmt.Errorf("workspacesync: secret provider is required")
	}

	defaults := core.DefaultConfig()
	loaded := defaults
	if cfg.ConfigLoader != nil {
		var err error
		loaded, err = core.NewCfgxConfigProvider(cfg.ConfigLoader).Load(ctx, defaults)
		if err != nil {
			return nil, fmt.Errorf("workspacesync: load config: %w", err)
		}
	}
	resolved, err := core.GoOptionsResolver{}.Resolve(defaults, loaded, cfg.Overrides)
	if err != nil {
		return nil, fmt.Errorf("workspacesync: resolve config: %w", err)
	}

	loggerProvider, logger := gologger.Component("workspace_sync", cfg.LoggerProvider, cfg.Logger)
	_, credsLogger := gologger.Component("workspace_sync.credentials", loggerProvider, logger)
	_, syncLogger := gologger.Component("workspace_sync.sync", loggerProvider, logger)
	_, ingestLogger := gologger.Component("workspace_sync.ingest", loggerProvider, logger)
	_, providerLogger := gologger.Component("workspace_sync.provider", loggerProvider, logger)

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	creds, err := credentials.NewManager(cfg.Stores.ConnectionStore(), cfg.Secrets,
		credentials.WithExpiryBuffer(resolved.Credentials.ExpiryBuffer()),
		credentials.WithLogger(credsLogger),
	)
	if err != nil {
		return nil, err
	}

	registry := core.NewProviderRegistry()
	providers := cfg.Providers
	if len(providers) == 0 {
		google, err := googleworkspace.New(googleworkspace.Config{
			HTTPClient: cfg.HTTPClient,
			Timeout:    resolved.HTTP.Timeout(),
			MaxRetries: resolved.HTTP.MaxRetries,
			Logger:     providerLogger,
		})
		if err != nil {
			return nil, err
		}
		providers = []core.Provider{google}
	}
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	directory, err := ingest.NewDirectoryIngester(ingest.DirectoryConfig{
		Users:       cfg.Stores.UserStore(),
		Groups:      cfg.Stores.GroupStore(),
		Memberships: cfg.Stores.MembershipStore(),
		Logger:      ingestLogger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}
	snapshot, err := ingest.NewSnapshotIngester(ingest.SnapshotConfig{
		Users:   cfg.Stores.UserStore(),
		Apps:    cfg.Stores.AppStore(),
		Grants:  cfg.Stores.GrantStore(),
		Logger:  ingestLogger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}
	stream, err := ingest.NewStreamIngester(ingest.StreamConfig{
		Users:   cfg.Stores.UserStore(),
		Apps:    cfg.Stores.AppStore(),
		Grants:  cfg.Stores.GrantStore(),
		Events:  cfg.Stores.EventStore(),
		Logger:  ingestLogger,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}

	manager, err := syncengine.NewManager(syncengine.Config{
		Connections: cfg.Stores.ConnectionStore(),
		Crawls:      cfg.Stores.CrawlStore(),
		AuthConfigs: cfg.Stores.AuthConfigStore(),
		Registry:    registry,
		Credentials: creds,
		Directory:   directory,
		Snapshot:    snapshot,
		Stream:      stream,
		Users:       cfg.Stores.UserStore(),
		Apps:        cfg.Stores.AppStore(),
		Grants:      cfg.Stores.GrantStore(),
		Events:      cfg.Stores.EventStore(),
		Lookback:    resolved.Stream.Lookback(),
		Logger:      syncLogger,
		Metrics:     metrics,
	})
	if err != nil {
		return nil, err
	}

	facade, err := NewFacade(manager, creds, cfg.Stores)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:      resolved,
		registry:    registry,
		credentials: creds,
		manager:     manager,
		facade:      facade,
	}, nil
}

// Config returns the resolved effective configuration.
func (e *Engine) Config() core.Config {
	if e == nil {
		return core.Config{}
	}
	return e.config
}

func (e *Engine) Facade() *Facade {
	if e == nil {
		return nil
	}
	return e.facade
}

func (e *Engine) SyncManager() *syncengine.Manager {
	if e == nil {
		return nil
	}
	return e.manager
}

func (e *Engine) Credentials() *credentials.Manager {
	if e == nil {
		return nil
	}
	return e.credentials
}

func (e *Engine) Providers() *core.ProviderRegistry {
	if e == nil {
		return nil
	}
	return e.registry
}
