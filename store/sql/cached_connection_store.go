package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-workspace-sync/core"
)

const connectionCacheKeyPrefix = "workspace-sync::connection::v1"

// CachedConnectionStore keeps hot connection reads out of the database.
// The sync loop re-reads the connection row on every phase, so GetByID is
// by far the most frequent query against this table.
type CachedConnectionStore struct {
	base  core.ConnectionStore
	cache repositorycache.CacheService
}

func NewCachedConnectionStore(
	base core.ConnectionStore,
	cacheService repositorycache.CacheService,
) (*CachedConnectionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base connection store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: connection cache service is required")
	}
	return &CachedConnectionStore{base: base, cache: cacheService}, nil
}

// ConnectionCacheKey returns the deterministic cache key contract for
// connection reads: workspace-sync::connection::v1::<id> with the id
// URL-path escaped.
func ConnectionCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: connection cache key requires an id")
	}
	return connectionCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedConnectionStore) GetByID(ctx context.Context, id string) (core.Connection, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	cacheKey, err := ConnectionCacheKey(id)
	if err != nil {
		return core.Connection{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Connection, error) {
		return s.base.GetByID(ctx, id)
	})
}

func (s *CachedConnectionStore) Create(ctx context.Context, conn core.Connection) (core.Connection, error) {
	if s == nil || s.base == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	created, err := s.base.Create(ctx, conn)
	if err != nil {
		return core.Connection{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.Connection{}, err
	}
	return created, nil
}

func (s *CachedConnectionStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Connection, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	return s.base.ListByOrganization(ctx, organizationID)
}

func (s *CachedConnectionStore) UpdateTokens(ctx context.Context, id string, input core.UpdateTokensInput) (core.Connection, error) {
	if s == nil || s.base == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	updated, err := s.base.UpdateTokens(ctx, id, input)
	if err != nil {
		return core.Connection{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.Connection{}, err
	}
	return updated, nil
}

func (s *CachedConnectionStore) UpdateStatus(ctx context.Context, id string, status core.ConnectionStatus, errorCode, errorMessage string) (core.Connection, error) {
	if s == nil || s.base == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	updated, err := s.base.UpdateStatus(ctx, id, status, errorCode, errorMessage)
	if err != nil {
		return core.Connection{}, err
	}
	if err := s.invalidate(ctx, id); err != nil {
		return core.Connection{}, err
	}
	return updated, nil
}

func (s *CachedConnectionStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	if err := s.base.MarkSynced(ctx, id, at); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConnectionStore) Disconnect(ctx context.Context, id string) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached connection store is not configured")
	}
	if err := s.base.Disconnect(ctx, id); err != nil {
		return err
	}
	return s.invalidate(ctx, id)
}

func (s *CachedConnectionStore) invalidate(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	cacheKey, err := ConnectionCacheKey(id)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.ConnectionStore = (*CachedConnectionStore)(nil)
