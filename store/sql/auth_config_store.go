package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-workspace-sync/core"
)

type AuthConfigStore struct {
	db *bun.DB
}

func NewAuthConfigStore(db *bun.DB) (*AuthConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &AuthConfigStore{db: db}, nil
}

func (s *AuthConfigStore) FindBySlug(ctx context.Context, providerSlug string) (core.AuthConfig, error) {
	if s == nil || s.db == nil {
		return core.AuthConfig{}, fmt.Errorf("sqlstore: auth config store is not configured")
	}
	record := &authConfigRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_slug = ?", strings.TrimSpace(providerSlug)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AuthConfig{}, fmt.Errorf("%w: %s", core.ErrAuthConfigNotFound, providerSlug)
		}
		return core.AuthConfig{}, err
	}
	return record.toDomain(), nil
}

var _ core.AuthConfigStore = (*AuthConfigStore)(nil)
