package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-workspace-sync/core"
)

type AppStore struct {
	db *bun.DB
}

func NewAppStore(db *bun.DB) (*AppStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &AppStore{db: db}, nil
}

// Upsert keys apps by (organization_id, client_id) and merges inventory
// fields instead of overwriting: a snapshot row and an activity event can
// both describe the same client with different levels of detail.
func (s *AppStore) Upsert(ctx context.Context, app core.OAuthApp) (core.OAuthApp, error) {
	if s == nil || s.db == nil {
		return core.OAuthApp{}, fmt.Errorf("sqlstore: app store is not configured")
	}
	if strings.TrimSpace(app.ClientID) == "" {
		return core.OAuthApp{}, fmt.Errorf("sqlstore: app client id is required")
	}

	var out core.OAuthApp
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		existing, err := s.findByClientID(ctx, tx, app.OrganizationID, app.ClientID)
		if err == nil {
			merged := existing.toDomain()
			if strings.TrimSpace(app.Name) != "" {
				merged.Name = app.Name
			}
			if strings.TrimSpace(app.ClientType) != "" {
				merged.ClientType = app.ClientType
			}
			merged.IsSystemApp = merged.IsSystemApp || app.IsSystemApp
			merged.Scopes = mergeScopes(merged.Scopes, app.Scopes)
			if app.Raw != nil {
				merged.Raw = copyAnyMap(app.Raw)
			}
			merged.UpdatedAt = now

			record := newOAuthAppRecord(merged, existing.CreatedAt)
			record.UpdatedAt = now
			if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
				return err
			}
			out = record.toDomain()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		app.ID = uuid.NewString()
		app.Scopes = mergeScopes(nil, app.Scopes)
		record := newOAuthAppRecord(app, now)
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				refetched, findErr := s.findByClientID(ctx, tx, app.OrganizationID, app.ClientID)
				if findErr != nil {
					return err
				}
				out = refetched.toDomain()
				return nil
			}
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.OAuthApp{}, err
	}
	return out, nil
}

func (s *AppStore) findByClientID(ctx context.Context, db bun.IDB, organizationID, clientID string) (*oauthAppRecord, error) {
	record := &oauthAppRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("?TableAlias.client_id = ?", strings.TrimSpace(clientID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *AppStore) FindByClientID(ctx context.Context, organizationID, clientID string) (core.OAuthApp, error) {
	if s == nil || s.db == nil {
		return core.OAuthApp{}, fmt.Errorf("sqlstore: app store is not configured")
	}
	record, err := s.findByClientID(ctx, s.db, organizationID, clientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.OAuthApp{}, fmt.Errorf("sqlstore: app not found: %s", clientID)
		}
		return core.OAuthApp{}, err
	}
	return record.toDomain(), nil
}

func (s *AppStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.OAuthApp, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: app store is not configured")
	}
	var records []*oauthAppRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		OrderExpr("?TableAlias.client_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.OAuthApp, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.AppStore = (*AppStore)(nil)

type GrantStore struct {
	db *bun.DB
}

func NewGrantStore(db *bun.DB) (*GrantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &GrantStore{db: db}, nil
}

func (s *GrantStore) Upsert(ctx context.Context, input core.UpsertGrantInput) (core.AppGrant, error) {
	if s == nil || s.db == nil {
		return core.AppGrant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	if strings.TrimSpace(input.UserID) == "" || strings.TrimSpace(input.AppID) == "" {
		return core.AppGrant{}, fmt.Errorf("sqlstore: grant upsert requires user id and app id")
	}

	var out core.AppGrant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := input.SeenAt
		if now.IsZero() {
			now = time.Now()
		}
		now = now.UTC()

		existing, err := s.find(ctx, tx, input.OrganizationID, input.UserID, input.AppID)
		if err == nil {
			grant := existing.toDomain()
			grant.Scopes = mergeScopes(grant.Scopes, input.Scopes)
			seen := now
			grant.LastSeenAt = &seen
			if input.Raw != nil {
				grant.Raw = copyAnyMap(input.Raw)
			}
			if input.MarkActive {
				if grant.Status == core.GrantStatusRevoked {
					if err := grant.TransitionTo(core.GrantStatusActive, now); err != nil {
						return err
					}
				} else {
					granted := now
					grant.GrantedAt = &granted
				}
			}
			if input.MarkRevoked && grant.Status == core.GrantStatusActive {
				if err := grant.TransitionTo(core.GrantStatusRevoked, now); err != nil {
					return err
				}
			}
			grant.UpdatedAt = now

			existing.applyDomain(grant)
			if _, err := tx.NewUpdate().Model(existing).WherePK().Exec(ctx); err != nil {
				return err
			}
			out = existing.toDomain()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		granted := now
		seen := now
		grant := core.AppGrant{
			ID:             uuid.NewString(),
			OrganizationID: input.OrganizationID,
			ConnectionID:   input.ConnectionID,
			UserID:         input.UserID,
			AppID:          input.AppID,
			Status:         core.GrantStatusActive,
			Scopes:         mergeScopes(nil, input.Scopes),
			GrantedAt:      &granted,
			LastSeenAt:     &seen,
			Raw:            copyAnyMap(input.Raw),
		}
		if input.MarkRevoked {
			revoked := now
			grant.Status = core.GrantStatusRevoked
			grant.GrantedAt = nil
			grant.RevokedAt = &revoked
		}
		record := newAppGrantRecord(grant, now)
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				refetched, findErr := s.find(ctx, tx, input.OrganizationID, input.UserID, input.AppID)
				if findErr != nil {
					return err
				}
				out = refetched.toDomain()
				return nil
			}
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.AppGrant{}, err
	}
	return out, nil
}

// Revoke flips an active grant to revoked. Revoking an already revoked grant
// is a no-op so replayed revoke events keep the original RevokedAt.
func (s *GrantStore) Revoke(ctx context.Context, organizationID, userID, appID string, at time.Time) (core.AppGrant, error) {
	if s == nil || s.db == nil {
		return core.AppGrant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	var out core.AppGrant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.find(ctx, tx, organizationID, userID, appID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sqlstore: grant not found for user %s app %s", userID, appID)
			}
			return err
		}
		grant := existing.toDomain()
		if grant.Status == core.GrantStatusActive {
			if err := grant.TransitionTo(core.GrantStatusRevoked, at.UTC()); err != nil {
				return err
			}
			existing.applyDomain(grant)
			if _, err := tx.NewUpdate().Model(existing).WherePK().Exec(ctx); err != nil {
				return err
			}
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.AppGrant{}, err
	}
	return out, nil
}

func (s *GrantStore) find(ctx context.Context, db bun.IDB, organizationID, userID, appID string) (*appGrantRecord, error) {
	record := &appGrantRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Where("?TableAlias.app_id = ?", strings.TrimSpace(appID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *GrantStore) Find(ctx context.Context, organizationID, userID, appID string) (core.AppGrant, error) {
	if s == nil || s.db == nil {
		return core.AppGrant{}, fmt.Errorf("sqlstore: grant store is not configured")
	}
	record, err := s.find(ctx, s.db, organizationID, userID, appID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.AppGrant{}, fmt.Errorf("sqlstore: grant not found for user %s app %s", userID, appID)
		}
		return core.AppGrant{}, err
	}
	return record.toDomain(), nil
}

func (s *GrantStore) ListByUser(ctx context.Context, organizationID, userID string) ([]core.AppGrant, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	var records []*appGrantRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		OrderExpr("?TableAlias.app_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.AppGrant, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.GrantStore = (*GrantStore)(nil)

type EventStore struct {
	db *bun.DB
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &EventStore{db: db}, nil
}

func (s *EventStore) Exists(ctx context.Context, organizationID, userID, appID, eventType string, eventTime time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: event store is not configured")
	}
	count, err := s.db.NewSelect().
		Model((*oauthEventRecord)(nil)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Where("?TableAlias.app_id = ?", strings.TrimSpace(appID)).
		Where("?TableAlias.event_type = ?", strings.TrimSpace(eventType)).
		Where("?TableAlias.event_time = ?", eventTime.UTC()).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *EventStore) Create(ctx context.Context, event core.OAuthEvent) (core.OAuthEvent, error) {
	if s == nil || s.db == nil {
		return core.OAuthEvent{}, fmt.Errorf("sqlstore: event store is not configured")
	}
	if strings.TrimSpace(event.UserID) == "" || strings.TrimSpace(event.AppID) == "" {
		return core.OAuthEvent{}, fmt.Errorf("sqlstore: event requires user id and app id")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	record := newOAuthEventRecord(event)
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.OAuthEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) ListByUser(ctx context.Context, organizationID, userID string, limit int) ([]core.OAuthEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: event store is not configured")
	}
	if limit <= 0 {
		limit = 100
	}
	var records []*oauthEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		OrderExpr("?TableAlias.event_time DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.OAuthEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.EventStore = (*EventStore)(nil)

func mergeScopes(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, scope := range append(append([]string(nil), existing...), incoming...) {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// isUniqueViolation matches sqlite and postgres unique constraint errors
// without importing driver specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
