package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	storageconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// ConnectFunc opens a connection from its decoded configuration.
type ConnectFunc func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

// DecodeStorageConfig decodes the named block of surfin.storage.
func DecodeStorageConfig(cfg *coreConfig.Config, name string) (storageconfig.StorageConfig, error) {
	var sc storageconfig.StorageConfig
	raw, ok := cfg.Surfin.StorageConfigs[name]
	if !ok {
		return sc, fmt.Errorf("storage configuration '%s' not found in surfin.storage", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return sc, fmt.Errorf("storage configuration '%s' must be a mapping, got %T", name, raw)
	}
	if err := configbinder.BindProperties(props, &sc); err != nil {
		return sc, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return sc, nil
}

// BaseProvider caches the connections of one storage type. Backends supply the ConnectFunc.
type BaseProvider struct {
	cfg         *coreConfig.Config
	storageType string
	connect     ConnectFunc
	connections map[string]StorageConnection
	mu          sync.Mutex
}

// NewBaseProvider creates a BaseProvider for storageType.
func NewBaseProvider(cfg *coreConfig.Config, storageType string, connect ConnectFunc) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		connect:     connect,
		connections: make(map[string]StorageConnection),
	}
}

// Type implements StorageProvider.
func (p *BaseProvider) Type() string {
	return p.storageType
}

// GetConnection implements StorageProvider.
func (p *BaseProvider) GetConnection(name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	sc, err := DecodeStorageConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if sc.Type != p.storageType {
		return nil, fmt.Errorf("provider type mismatch: expected '%s', got '%s' for storage '%s'", p.storageType, sc.Type, name)
	}
	conn, err := p.connect(context.Background(), sc, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Established new storage connection: %s (%s)", name, p.storageType)
	return conn, nil
}

// CloseAll implements StorageProvider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close storage '%s': %w", name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// Resolver implements StorageConnectionResolver over the registered providers.
type Resolver struct {
	cfg       *coreConfig.Config
	providers map[string]StorageProvider
}

// ResolverParams are the fx dependencies of NewResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *coreConfig.Config
}

// NewResolver creates a Resolver.
func NewResolver(p ResolverParams) *Resolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, sp := range p.Providers {
		providers[sp.Type()] = sp
	}
	return &Resolver{cfg: p.Cfg, providers: providers}
}

// ResolveStorageConnection implements StorageConnectionResolver.
func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	sc, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[sc.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for type '%s' (storage '%s')", sc.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes every provider's connections.
func (r *Resolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Module provides the storage resolver. Backends are added by their own modules.
var Module = fx.Options(
	fx.Provide(
		NewResolver,
		func(r *Resolver) StorageConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Resolver) {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return r.CloseAll() }})
	}),
)
