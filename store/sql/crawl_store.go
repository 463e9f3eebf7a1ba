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

type CrawlStore struct {
	db   *bun.DB
	repo repository.Repository[*crawlHistoryRecord]
}

func NewCrawlStore(db *bun.DB) (*CrawlStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*crawlHistoryRecord](db, handlersFor[crawlHistoryRecord]())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid crawl repository wiring: %w", err)
		}
	}
	return &CrawlStore{db: db, repo: repo}, nil
}

func (s *CrawlStore) Create(ctx context.Context, crawl core.CrawlHistory) (core.CrawlHistory, error) {
	if s == nil || s.repo == nil {
		return core.CrawlHistory{}, fmt.Errorf("sqlstore: crawl store is not configured")
	}
	if strings.TrimSpace(crawl.ConnectionID) == "" {
		return core.CrawlHistory{}, fmt.Errorf("sqlstore: connection id is required")
	}
	if crawl.Status == "" {
		crawl.Status = core.CrawlStatusRunning
	}
	if strings.TrimSpace(crawl.ID) == "" {
		crawl.ID = uuid.NewString()
	}
	if crawl.StartedAt.IsZero() {
		crawl.StartedAt = time.Now().UTC()
	}

	record := newCrawlHistoryRecord(crawl)
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.CrawlHistory{}, err
	}
	return created.toDomain(), nil
}

func (s *CrawlStore) Update(ctx context.Context, id string, input core.UpdateCrawlInput) (core.CrawlHistory, error) {
	if s == nil || s.db == nil {
		return core.CrawlHistory{}, fmt.Errorf("sqlstore: crawl store is not configured")
	}
	var out core.CrawlHistory
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &crawlHistoryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", strings.TrimSpace(id)).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", core.ErrCrawlNotFound, id)
			}
			return err
		}

		crawl := record.toDomain()
		if input.Status != "" && input.Status != crawl.Status {
			if err := crawl.TransitionTo(input.Status, time.Now().UTC()); err != nil {
				return err
			}
		}
		if input.FinishedAt != nil {
			crawl.FinishedAt = cloneTimePointer(input.FinishedAt)
		}
		if input.Stats != nil {
			crawl.Stats = copyAnyMap(input.Stats)
		}
		if input.Debug != nil {
			crawl.Debug = copyAnyMap(input.Debug)
		}
		if input.ErrorMessage != "" {
			crawl.ErrorMessage = input.ErrorMessage
		}

		updated := newCrawlHistoryRecord(crawl)
		if _, err := tx.NewUpdate().Model(updated).WherePK().Exec(ctx); err != nil {
			return err
		}
		out = updated.toDomain()
		return nil
	})
	if err != nil {
		return core.CrawlHistory{}, err
	}
	return out, nil
}

func (s *CrawlStore) FindLastSuccessful(ctx context.Context, connectionID string, crawlType core.CrawlType) (core.CrawlHistory, error) {
	if s == nil || s.db == nil {
		return core.CrawlHistory{}, fmt.Errorf("sqlstore: crawl store is not configured")
	}
	record := &crawlHistoryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		Where("?TableAlias.crawl_type = ?", string(crawlType)).
		Where("?TableAlias.status = ?", string(core.CrawlStatusSuccess)).
		Where("?TableAlias.finished_at IS NOT NULL").
		OrderExpr("?TableAlias.finished_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CrawlHistory{}, fmt.Errorf("%w: no successful %s crawl for %s", core.ErrCrawlNotFound, crawlType, connectionID)
		}
		return core.CrawlHistory{}, err
	}
	return record.toDomain(), nil
}

func (s *CrawlStore) ListByConnection(ctx context.Context, connectionID string, limit int) ([]core.CrawlHistory, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: crawl store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []*crawlHistoryRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.connection_id = ?", strings.TrimSpace(connectionID)).
		OrderExpr("?TableAlias.started_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.CrawlHistory, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.CrawlStore = (*CrawlStore)(nil)
