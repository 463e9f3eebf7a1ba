package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-workspace-sync/core"
)

type UserStore struct {
	db *bun.DB
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &UserStore{db: db}, nil
}

func (s *UserStore) BulkUpsert(ctx context.Context, users []core.WorkspaceUser) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: user store is not configured")
	}
	if len(users) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	records := make([]*workspaceUserRecord, 0, len(users))
	for _, user := range users {
		if strings.TrimSpace(user.ConnectionID) == "" || strings.TrimSpace(user.ProviderUserID) == "" {
			return 0, fmt.Errorf("sqlstore: user upsert requires connection id and provider user id")
		}
		if strings.TrimSpace(user.ID) == "" {
			user.ID = uuid.NewString()
		}
		records = append(records, newWorkspaceUserRecord(user, now))
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&records).
			On("CONFLICT (connection_id, provider_user_id) DO UPDATE").
			Set("email = EXCLUDED.email").
			Set("full_name = EXCLUDED.full_name").
			Set("given_name = EXCLUDED.given_name").
			Set("family_name = EXCLUDED.family_name").
			Set("is_admin = EXCLUDED.is_admin").
			Set("is_delegated_admin = EXCLUDED.is_delegated_admin").
			Set("suspended = EXCLUDED.suspended").
			Set("org_unit_path = EXCLUDED.org_unit_path").
			Set("avatar_url = EXCLUDED.avatar_url").
			Set("raw = EXCLUDED.raw").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *UserStore) FindByEmail(ctx context.Context, organizationID, email string) (core.WorkspaceUser, error) {
	if s == nil || s.db == nil {
		return core.WorkspaceUser{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	record := &workspaceUserRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("lower(?TableAlias.email) = lower(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WorkspaceUser{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, email)
		}
		return core.WorkspaceUser{}, err
	}
	return record.toDomain(), nil
}

func (s *UserStore) FindByProviderID(ctx context.Context, connectionID, providerUserID string) (core.WorkspaceUser, error) {
	if s == nil || s.db == nil {
		return core.WorkspaceUser{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	record := &workspaceUserRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		Where("?TableAlias.provider_user_id = ?", strings.TrimSpace(providerUserID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WorkspaceUser{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, providerUserID)
		}
		return core.WorkspaceUser{}, err
	}
	return record.toDomain(), nil
}

func (s *UserStore) ListByConnection(ctx context.Context, connectionID string) ([]core.WorkspaceUser, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: user store is not configured")
	}
	var records []*workspaceUserRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		OrderExpr("?TableAlias.email ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.WorkspaceUser, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.UserStore = (*UserStore)(nil)

type GroupStore struct {
	db *bun.DB
}

func NewGroupStore(db *bun.DB) (*GroupStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &GroupStore{db: db}, nil
}

func (s *GroupStore) BulkUpsert(ctx context.Context, groups []core.WorkspaceGroup) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: group store is not configured")
	}
	if len(groups) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	records := make([]*workspaceGroupRecord, 0, len(groups))
	for _, group := range groups {
		if strings.TrimSpace(group.ConnectionID) == "" || strings.TrimSpace(group.ProviderGroupID) == "" {
			return 0, fmt.Errorf("sqlstore: group upsert requires connection id and provider group id")
		}
		if strings.TrimSpace(group.ID) == "" {
			group.ID = uuid.NewString()
		}
		records = append(records, newWorkspaceGroupRecord(group, now))
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&records).
			On("CONFLICT (connection_id, provider_group_id) DO UPDATE").
			Set("email = EXCLUDED.email").
			Set("name = EXCLUDED.name").
			Set("description = EXCLUDED.description").
			Set("member_count = EXCLUDED.member_count").
			Set("raw = EXCLUDED.raw").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *GroupStore) ListByConnection(ctx context.Context, connectionID string) ([]core.WorkspaceGroup, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: group store is not configured")
	}
	var records []*workspaceGroupRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		OrderExpr("?TableAlias.email ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.WorkspaceGroup, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.GroupStore = (*GroupStore)(nil)

type MembershipStore struct {
	db *bun.DB
}

func NewMembershipStore(db *bun.DB) (*MembershipStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &MembershipStore{db: db}, nil
}

// ReplaceForGroup swaps the full member set in one transaction so readers
// never observe a half-applied roster.
func (s *MembershipStore) ReplaceForGroup(ctx context.Context, connectionID, providerGroupID string, members []core.GroupMembership) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: membership store is not configured")
	}
	connectionID = strings.TrimSpace(connectionID)
	providerGroupID = strings.TrimSpace(providerGroupID)
	if connectionID == "" || providerGroupID == "" {
		return 0, fmt.Errorf("sqlstore: membership replace requires connection id and provider group id")
	}

	now := time.Now().UTC()
	records := make([]*groupMembershipRecord, 0, len(members))
	for _, member := range members {
		if strings.TrimSpace(member.ID) == "" {
			member.ID = uuid.NewString()
		}
		member.ConnectionID = connectionID
		member.ProviderGroupID = providerGroupID
		records = append(records, newGroupMembershipRecord(member, now))
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*groupMembershipRecord)(nil)).
			Where("?TableAlias.connection_id = ?", connectionID).
			Where("?TableAlias.provider_group_id = ?", providerGroupID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		_, err = tx.NewInsert().Model(&records).Exec(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *MembershipStore) ListForGroup(ctx context.Context, connectionID, providerGroupID string) ([]core.GroupMembership, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: membership store is not configured")
	}
	var records []*groupMembershipRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		Where("?TableAlias.provider_group_id = ?", strings.TrimSpace(providerGroupID)).
		OrderExpr("?TableAlias.email ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.GroupMembership, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.MembershipStore = (*MembershipStore)(nil)
