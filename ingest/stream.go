package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
)

// StreamConfig wires the stores a StreamIngester writes to.
type StreamConfig struct {
	Users   core.UserStore
	Apps    core.AppStore
	Grants  core.GrantStore
	Events  core.EventStore
	Logger  core.Logger
	Metrics core.MetricsRecorder
}

// StreamIngester lands OAuth activity events into the append-only ledger and
// flips grant state as authorize/revoke events arrive. Replayed windows are
// deduplicated on the ledger's natural key.
type StreamIngester struct {
	users   core.UserStore
	apps    core.AppStore
	grants  core.GrantStore
	events  core.EventStore
	logger  core.Logger
	metrics core.MetricsRecorder

	Now func() time.Time
}

func NewStreamIngester(config StreamConfig) (*StreamIngester, error) {
	if config.Users == nil {
		return nil, fmt.Errorf("ingest: user store is required")
	}
	if config.Apps == nil {
		return nil, fmt.Errorf("ingest: app store is required")
	}
	if config.Grants == nil {
		return nil, fmt.Errorf("ingest: grant store is required")
	}
	if config.Events == nil {
		return nil, fmt.Errorf("ingest: event store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &StreamIngester{
		users:   config.Users,
		apps:    config.Apps,
		grants:  config.Grants,
		events:  config.Events,
		logger:  logger,
		metrics: metrics,
		Now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SyncTokenEvents drains the provider's activity stream from the given
// instant and returns the number of new ledger rows. Events for unknown
// users are skipped; the next directory sync will pick the user up and a
// replayed window lands their events then.
func (i *StreamIngester) SyncTokenEvents(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthContext, since time.Time) (int, error) {
	seq, err := provider.FetchTokenEvents(ctx, auth, since)
	if err != nil {
		return 0, &core.SyncError{Step: core.SyncStepTokenEvents, Err: err}
	}

	total := 0
	for {
		batch, ok, err := seq.Next(ctx)
		if err != nil {
			return total, &core.SyncError{Step: core.SyncStepTokenEvents, Err: err}
		}
		if !ok {
			break
		}
		for _, record := range batch {
			landed, err := i.ingestEvent(ctx, conn, record)
			if err != nil {
				return total, &core.SyncError{Step: core.SyncStepTokenEvents, Err: err}
			}
			if landed {
				total++
			}
		}
	}

	i.logger.Info("token event sync complete",
		"connection_id", conn.ID, "events", total, "since", since)
	return total, nil
}

func (i *StreamIngester) ingestEvent(ctx context.Context, conn core.Connection, record core.TokenEventRecord) (bool, error) {
	user, err := i.users.FindByEmail(ctx, conn.OrganizationID, record.UserEmail)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			i.logger.Debug("skipping event for unknown user",
				"connection_id", conn.ID, "email", record.UserEmail)
			i.metrics.IncCounter(ctx, "ingest.events.unknown_user", 1, map[string]string{
				"provider": conn.ProviderSlug,
			})
			return false, nil
		}
		return false, err
	}

	app, err := i.apps.Upsert(ctx, core.OAuthApp{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		ClientID:       record.ClientID,
		Name:           record.AppName,
		ClientType:     record.ClientType,
		Scopes:         record.Scopes,
	})
	if err != nil {
		return false, err
	}

	eventTime := record.EventTime
	if eventTime.IsZero() {
		eventTime = i.Now()
	}

	exists, err := i.events.Exists(ctx, conn.OrganizationID, user.ID, app.ID, record.EventType, eventTime)
	if err != nil {
		return false, err
	}
	if exists {
		i.metrics.IncCounter(ctx, "ingest.events.duplicate", 1, map[string]string{
			"provider": conn.ProviderSlug,
		})
	} else {
		if _, err := i.events.Create(ctx, core.OAuthEvent{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			UserID:         user.ID,
			AppID:          app.ID,
			EventType:      record.EventType,
			EventTime:      eventTime,
			Raw:            record.Raw,
		}); err != nil {
			return false, err
		}
	}

	// The grant merge runs even when the ledger already holds the event, so
	// a crash between the ledger insert and the grant write heals on replay.
	if err := i.applyGrantTransition(ctx, conn, user.ID, app.ID, record, eventTime); err != nil {
		return false, err
	}
	return !exists, nil
}

func (i *StreamIngester) applyGrantTransition(ctx context.Context, conn core.Connection, userID, appID string, record core.TokenEventRecord, eventTime time.Time) error {
	switch record.EventType {
	case core.EventTypeAuthorize:
		_, err := i.grants.Upsert(ctx, core.UpsertGrantInput{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			UserID:         userID,
			AppID:          appID,
			Scopes:         record.Scopes,
			MarkActive:     true,
			SeenAt:         eventTime,
			Raw:            record.Raw,
		})
		return err
	case core.EventTypeRevoke:
		// Revocation of a grant the snapshot never saw still lands a revoked
		// row, so the grant table records that access existed and was pulled.
		_, err := i.grants.Upsert(ctx, core.UpsertGrantInput{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			UserID:         userID,
			AppID:          appID,
			Scopes:         record.Scopes,
			MarkRevoked:    true,
			SeenAt:         eventTime,
			Raw:            record.Raw,
		})
		return err
	case core.EventTypeActivity:
		_, err := i.grants.Upsert(ctx, core.UpsertGrantInput{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			UserID:         userID,
			AppID:          appID,
			Scopes:         record.Scopes,
			SeenAt:         eventTime,
			Raw:            record.Raw,
		})
		return err
	default:
		// Providers emit event names we do not model; the ledger row already
		// captured them.
		return nil
	}
}
