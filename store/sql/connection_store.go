package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-workspace-sync/core"
)

type ConnectionStore struct {
	db   *bun.DB
	repo repository.Repository[*connectionRecord]
}

func NewConnectionStore(db *bun.DB) (*ConnectionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*connectionRecord](db, handlersFor[connectionRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid connection repository wiring: %w", err)
		}
	}
	return &ConnectionStore{db: db, repo: repo}, nil
}

func (s *ConnectionStore) Create(ctx context.Context, conn core.Connection) (core.Connection, error) {
	if s == nil || s.repo == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	if strings.TrimSpace(conn.OrganizationID) == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: organization id is required")
	}
	if strings.TrimSpace(conn.ProviderSlug) == "" {
		return core.Connection{}, fmt.Errorf("sqlstore: provider slug is required")
	}
	if conn.Status == "" {
		conn.Status = core.ConnectionStatusActive
	}
	if strings.TrimSpace(conn.ID) == "" {
		conn.ID = uuid.NewString()
	}

	record := newConnectionRecord(conn, time.Now().UTC())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Connection{}, err
	}
	return created.toDomain(), nil
}

func (s *ConnectionStore) GetByID(ctx context.Context, id string) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record, err := s.getRecord(ctx, s.db, id)
	if err != nil {
		return core.Connection{}, err
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) getRecord(ctx context.Context, db bun.IDB, id string) (*connectionRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", core.ErrConnectionNotFound)
	}
	record := &connectionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrConnectionNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

func (s *ConnectionStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Connection, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	var records []*connectionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Connection, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ConnectionStore) UpdateTokens(ctx context.Context, id string, input core.UpdateTokensInput) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	var out core.Connection
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		record.EncryptedAccessToken = append([]byte(nil), input.EncryptedAccessToken...)
		if len(input.EncryptedRefreshToken) > 0 {
			record.EncryptedRefreshToken = append([]byte(nil), input.EncryptedRefreshToken...)
		}
		record.TokenExpiresAt = cloneTimePointer(input.TokenExpiresAt)
		if len(input.GrantedScopes) > 0 {
			record.GrantedScopes = cloneStrings(input.GrantedScopes)
		}
		if input.BumpRefreshCount {
			record.RefreshCount++
		}
		record.UpdatedAt = time.Now().UTC()
		if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Connection{}, err
	}
	return out, nil
}

func (s *ConnectionStore) UpdateStatus(ctx context.Context, id string, status core.ConnectionStatus, errorCode, errorMessage string) (core.Connection, error) {
	if s == nil || s.db == nil {
		return core.Connection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	var out core.Connection
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		conn := record.toDomain()
		if err := conn.TransitionTo(status, errorMessage, time.Now().UTC()); err != nil {
			return err
		}
		if status != core.ConnectionStatusActive && strings.TrimSpace(errorCode) != "" {
			conn.LastErrorCode = strings.TrimSpace(errorCode)
		}
		record.applyDomain(conn)
		if _, err := tx.NewUpdate().Model(record).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Connection{}, err
	}
	return out, nil
}

func (s *ConnectionStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	stamp := at.UTC()
	result, err := s.db.NewUpdate().
		Model((*connectionRecord)(nil)).
		Set("last_synced_at = ?", stamp).
		Set("updated_at = ?", time.Now().UTC()).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("%w: %s", core.ErrConnectionNotFound, id)
	}
	return nil
}

func (s *ConnectionStore) Disconnect(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		conn := record.toDomain()
		if err := conn.TransitionTo(core.ConnectionStatusDisconnected, "", now); err != nil {
			return err
		}
		conn.EncryptedAccessToken = nil
		conn.EncryptedRefreshToken = nil
		conn.TokenExpiresAt = nil
		conn.DeletedAt = &now
		record.applyDomain(conn)
		_, err = tx.NewUpdate().Model(record).WherePK().Exec(ctx)
		return err
	})
}

var _ core.ConnectionStore = (*ConnectionStore)(nil)
