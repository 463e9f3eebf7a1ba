package ingest

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
)

// SnapshotConfig wires the stores a SnapshotIngester writes to.
type SnapshotConfig struct {
	Users   core.UserStore
	Apps    core.AppStore
	Grants  core.GrantStore
	Logger  core.Logger
	Metrics core.MetricsRecorder
}

// SnapshotIngester walks each directory user's current OAuth token inventory
// and asserts the corresponding grants as active. Snapshots are additive: a
// grant missing from the inventory is left alone, revocation only arrives
// through the activity stream.
type SnapshotIngester struct {
	users   core.UserStore
	apps    core.AppStore
	grants  core.GrantStore
	logger  core.Logger
	metrics core.MetricsRecorder

	Now func() time.Time
}

func NewSnapshotIngester(config SnapshotConfig) (*SnapshotIngester, error) {
	if config.Users == nil {
		return nil, fmt.Errorf("ingest: user store is required")
	}
	if config.Apps == nil {
		return nil, fmt.Errorf("ingest: app store is required")
	}
	if config.Grants == nil {
		return nil, fmt.Errorf("ingest: grant store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &SnapshotIngester{
		users:   config.Users,
		apps:    config.Apps,
		grants:  config.Grants,
		logger:  logger,
		metrics: metrics,
		Now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SyncUserTokens fetches the token inventory of every non-suspended user on
// the connection and upserts the app and grant rows it describes. It returns
// the number of grants asserted.
func (i *SnapshotIngester) SyncUserTokens(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthContext) (int, error) {
	users, err := i.users.ListByConnection(ctx, conn.ID)
	if err != nil {
		return 0, &core.SyncError{Step: core.SyncStepUserTokens, Err: err}
	}

	total := 0
	for _, user := range users {
		if user.Suspended {
			continue
		}
		count, err := i.syncUserTokens(ctx, conn, provider, auth, user)
		if err != nil {
			return total, err
		}
		total += count
	}

	i.logger.Info("token snapshot complete",
		"connection_id", conn.ID, "grants", total)
	return total, nil
}

func (i *SnapshotIngester) syncUserTokens(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthContext, user core.WorkspaceUser) (int, error) {
	seq, err := provider.FetchUserTokens(ctx, auth, user.ProviderUserID)
	if err != nil {
		return 0, &core.SyncError{Step: core.SyncStepUserTokens, Err: err}
	}

	count := 0
	seen := i.Now()
	for {
		batch, ok, err := seq.Next(ctx)
		if err != nil {
			return count, &core.SyncError{Step: core.SyncStepUserTokens, Err: err}
		}
		if !ok {
			break
		}
		for _, record := range batch {
			app, err := i.apps.Upsert(ctx, core.OAuthApp{
				OrganizationID: conn.OrganizationID,
				ConnectionID:   conn.ID,
				ClientID:       record.ClientID,
				Name:           record.DisplayText,
				ClientType:     record.ClientType,
				IsSystemApp:    record.IsSystemApp,
				Scopes:         record.Scopes,
				Raw:            record.Raw,
			})
			if err != nil {
				return count, &core.SyncError{Step: core.SyncStepUserTokens, Err: err}
			}
			if _, err := i.grants.Upsert(ctx, core.UpsertGrantInput{
				OrganizationID: conn.OrganizationID,
				ConnectionID:   conn.ID,
				UserID:         user.ID,
				AppID:          app.ID,
				Scopes:         record.Scopes,
				MarkActive:     true,
				SeenAt:         seen,
				Raw:            record.Raw,
			}); err != nil {
				return count, &core.SyncError{Step: core.SyncStepUserTokens, Err: err}
			}
			count++
		}
	}

	i.metrics.IncCounter(ctx, "ingest.grants.asserted", int64(count), map[string]string{
		"provider": conn.ProviderSlug,
	})
	return count, nil
}
