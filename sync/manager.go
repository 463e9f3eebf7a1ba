// Package sync orchestrates crawl phases for a connection: it resolves the
// provider and credentials, brackets each phase with a crawl history row,
// and derives the activity stream's start time from the last successful run.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/ingest"
)

const defaultLookback = 180 * 24 * time.Hour

// Config wires the stores and ingesters a Manager orchestrates.
type Config struct {
	Connections core.ConnectionStore
	Crawls      core.CrawlStore
	AuthConfigs core.AuthConfigStore
	Registry    core.Registry
	Credentials core.CredentialSource

	Directory *ingest.DirectoryIngester
	Snapshot  *ingest.SnapshotIngester
	Stream    *ingest.StreamIngester

	Users  core.UserStore
	Apps   core.AppStore
	Grants core.GrantStore
	Events core.EventStore

	// Lookback bounds the first activity window when no successful events
	// crawl exists yet. Zero means the default of 180 days.
	Lookback time.Duration

	Logger  core.Logger
	Metrics core.MetricsRecorder
}

type Manager struct {
	connections core.ConnectionStore
	crawls      core.CrawlStore
	authConfigs core.AuthConfigStore
	registry    core.Registry
	credentials core.CredentialSource

	directory *ingest.DirectoryIngester
	snapshot  *ingest.SnapshotIngester
	stream    *ingest.StreamIngester

	users  core.UserStore
	apps   core.AppStore
	grants core.GrantStore
	events core.EventStore

	lookback time.Duration
	logger   core.Logger
	metrics  core.MetricsRecorder

	Now func() time.Time
}

func NewManager(config Config) (*Manager, error) {
	switch {
	case config.Connections == nil:
		return nil, fmt.Errorf("sync: connection store is required")
	case config.Crawls == nil:
		return nil, fmt.Errorf("sync: crawl store is required")
	case config.AuthConfigs == nil:
		return nil, fmt.Errorf("sync: auth config store is required")
	case config.Registry == nil:
		return nil, fmt.Errorf("sync: provider registry is required")
	case config.Credentials == nil:
		return nil, fmt.Errorf("sync: credential source is required")
	case config.Directory == nil:
		return nil, fmt.Errorf("sync: directory ingester is required")
	case config.Snapshot == nil:
		return nil, fmt.Errorf("sync: snapshot ingester is required")
	case config.Stream == nil:
		return nil, fmt.Errorf("sync: stream ingester is required")
	case config.Users == nil:
		return nil, fmt.Errorf("sync: user store is required")
	case config.Apps == nil:
		return nil, fmt.Errorf("sync: app store is required")
	case config.Grants == nil:
		return nil, fmt.Errorf("sync: grant store is required")
	case config.Events == nil:
		return nil, fmt.Errorf("sync: event store is required")
	}

	lookback := config.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	logger := config.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}

	return &Manager{
		connections: config.Connections,
		crawls:      config.Crawls,
		authConfigs: config.AuthConfigs,
		registry:    config.Registry,
		credentials: config.Credentials,
		directory:   config.Directory,
		snapshot:    config.Snapshot,
		stream:      config.Stream,
		users:       config.Users,
		apps:        config.Apps,
		grants:      config.Grants,
		events:      config.Events,
		lookback:    lookback,
		logger:      logger,
		metrics:     metrics,
		Now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// runContext is everything a phase needs after in-crawl resolution
// succeeded.
type runContext struct {
	conn     core.Connection
	provider core.Provider
	auth     core.AuthContext
}

type phaseFunc func(ctx context.Context, run runContext) (map[string]any, error)

// resolveAuth resolves the provider, OAuth client settings, and a fresh
// usable credential for an already-loaded connection.
func (m *Manager) resolveAuth(ctx context.Context, conn core.Connection) (runContext, error) {
	provider, ok := m.registry.Get(conn.ProviderSlug)
	if !ok {
		return runContext{}, fmt.Errorf("%w: %s", core.ErrProviderNotFound, conn.ProviderSlug)
	}
	authConfig, err := m.authConfigs.FindBySlug(ctx, conn.ProviderSlug)
	if err != nil {
		return runContext{}, err
	}
	auth, err := m.credentials.GetValidCredentials(ctx, conn.ID, provider, authConfig)
	if err != nil {
		return runContext{}, err
	}
	// Refresh may have touched the row; re-read so phases see current state.
	conn, err = m.connections.GetByID(ctx, conn.ID)
	if err != nil {
		return runContext{}, err
	}
	return runContext{conn: conn, provider: provider, auth: auth}, nil
}

// resolve loads the connection and resolves a fresh auth context for it, for
// operations that are not bracketed by a crawl row.
func (m *Manager) resolve(ctx context.Context, connectionID string) (runContext, error) {
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return runContext{}, err
	}
	return m.resolveAuth(ctx, conn)
}

// runPhase brackets one phase with a crawl history row. The crawl row is
// created first; everything after it, credential resolution included, is
// recorded on the row when it fails. The failure is also returned so callers
// can decide whether to continue.
func (m *Manager) runPhase(ctx context.Context, conn core.Connection, crawlType core.CrawlType, phase phaseFunc) (core.CrawlHistory, error) {
	started := m.Now()
	crawl, err := m.crawls.Create(ctx, core.CrawlHistory{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		Type:           crawlType,
		Status:         core.CrawlStatusRunning,
		StartedAt:      started,
	})
	if err != nil {
		return core.CrawlHistory{}, err
	}

	run, phaseErr := m.resolveAuth(ctx, conn)
	var stats map[string]any
	if phaseErr == nil {
		stats, phaseErr = phase(ctx, run)
		if phaseErr != nil {
			m.handleAuthFailure(ctx, conn.ID, phaseErr)
		}
	}
	finished := m.Now()

	if phaseErr != nil {
		debug := map[string]any{"error_type": fmt.Sprintf("%T", phaseErr)}
		var stepErr *core.SyncError
		if errors.As(phaseErr, &stepErr) {
			debug["step"] = string(stepErr.Step)
		}
		updated, updateErr := m.crawls.Update(ctx, crawl.ID, core.UpdateCrawlInput{
			Status:       core.CrawlStatusError,
			FinishedAt:   &finished,
			Stats:        stats,
			ErrorMessage: phaseErr.Error(),
			Debug:        debug,
		})
		if updateErr != nil {
			m.logger.Error("failed to record crawl failure",
				"crawl_id", crawl.ID, "error", updateErr)
			return crawl, phaseErr
		}
		m.metrics.IncCounter(ctx, "sync.crawl.failed", 1, map[string]string{
			"provider": conn.ProviderSlug, "type": string(crawlType),
		})
		return updated, phaseErr
	}

	updated, err := m.crawls.Update(ctx, crawl.ID, core.UpdateCrawlInput{
		Status:     core.CrawlStatusSuccess,
		FinishedAt: &finished,
		Stats:      stats,
	})
	if err != nil {
		return crawl, err
	}
	m.metrics.IncCounter(ctx, "sync.crawl.succeeded", 1, map[string]string{
		"provider": conn.ProviderSlug, "type": string(crawlType),
	})
	m.metrics.ObserveHistogram(ctx, "sync.crawl.duration_seconds",
		finished.Sub(started).Seconds(), map[string]string{
			"provider": conn.ProviderSlug, "type": string(crawlType),
		})
	return updated, nil
}

// handleAuthFailure forwards provider auth rejections to the credential
// manager so the connection row reflects them.
func (m *Manager) handleAuthFailure(ctx context.Context, connectionID string, phaseErr error) {
	var apiErr *core.APIRequestError
	if !errors.As(phaseErr, &apiErr) {
		return
	}
	if apiErr.StatusCode != 401 && apiErr.StatusCode != 403 {
		return
	}
	if _, err := m.credentials.HandleTokenError(ctx, connectionID, apiErr.StatusCode); err != nil {
		m.logger.Error("failed to record auth failure on connection",
			"connection_id", connectionID, "error", err)
	}
}

// RunUsersSync crawls the provider's user directory. Phase failures are
// recorded on the returned crawl row and also returned as the error, so
// callers that only inspect the row can ignore the error.
func (m *Manager) RunUsersSync(ctx context.Context, connectionID string) (core.CrawlHistory, error) {
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return core.CrawlHistory{}, err
	}
	return m.runUsers(ctx, conn)
}

func (m *Manager) runUsers(ctx context.Context, conn core.Connection) (core.CrawlHistory, error) {
	return m.runPhase(ctx, conn, core.CrawlTypeUsers, func(ctx context.Context, run runContext) (map[string]any, error) {
		count, err := m.directory.SyncUsers(ctx, run.conn, run.provider, run.auth)
		return map[string]any{"users": count}, err
	})
}

// RunGroupsSync crawls groups and replaces each group's membership set.
// Phase failures land on the returned crawl row as well as the error.
func (m *Manager) RunGroupsSync(ctx context.Context, connectionID string) (core.CrawlHistory, error) {
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return core.CrawlHistory{}, err
	}
	return m.runGroups(ctx, conn)
}

func (m *Manager) runGroups(ctx context.Context, conn core.Connection) (core.CrawlHistory, error) {
	return m.runPhase(ctx, conn, core.CrawlTypeGroups, func(ctx context.Context, run runContext) (map[string]any, error) {
		groups, memberships, err := m.directory.SyncGroups(ctx, run.conn, run.provider, run.auth)
		return map[string]any{"groups": groups, "memberships": memberships}, err
	})
}

// RunTokensSync snapshots every user's OAuth token inventory. Phase
// failures land on the returned crawl row as well as the error.
func (m *Manager) RunTokensSync(ctx context.Context, connectionID string) (core.CrawlHistory, error) {
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return core.CrawlHistory{}, err
	}
	return m.runTokens(ctx, conn)
}

func (m *Manager) runTokens(ctx context.Context, conn core.Connection) (core.CrawlHistory, error) {
	return m.runPhase(ctx, conn, core.CrawlTypeTokens, func(ctx context.Context, run runContext) (map[string]any, error) {
		count, err := m.snapshot.SyncUserTokens(ctx, run.conn, run.provider, run.auth)
		return map[string]any{"grants": count}, err
	})
}

// RunEventsSync drains the OAuth activity stream. The window starts where
// the last successful events crawl finished, or lookback ago on the first
// run. Phase failures land on the returned crawl row as well as the error.
func (m *Manager) RunEventsSync(ctx context.Context, connectionID string) (core.CrawlHistory, error) {
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return core.CrawlHistory{}, err
	}
	return m.runEvents(ctx, conn)
}

func (m *Manager) runEvents(ctx context.Context, conn core.Connection) (core.CrawlHistory, error) {
	since := m.streamStartTime(ctx, conn.ID)
	return m.runPhase(ctx, conn, core.CrawlTypeEvents, func(ctx context.Context, run runContext) (map[string]any, error) {
		count, err := m.stream.SyncTokenEvents(ctx, run.conn, run.provider, run.auth, since)
		return map[string]any{
			"events": count,
			"since":  since.Format(time.RFC3339),
		}, err
	})
}

func (m *Manager) streamStartTime(ctx context.Context, connectionID string) time.Time {
	last, err := m.crawls.FindLastSuccessful(ctx, connectionID, core.CrawlTypeEvents)
	if err == nil && last.FinishedAt != nil {
		return *last.FinishedAt
	}
	return m.Now().Add(-m.lookback)
}

// FullSyncResult summarizes one full pipeline run. Failed lists the crawl
// types whose phase errored; their crawl rows carry the details.
type FullSyncResult struct {
	ConnectionID string
	Crawls       []core.CrawlHistory
	Failed       []core.CrawlType
}

// RunFullSync runs every phase in pipeline order, resolving a fresh auth
// context for each phase. A phase failure is recorded and the remaining
// phases still run; the connection is stamped synced when at least one
// phase succeeded.
func (m *Manager) RunFullSync(ctx context.Context, connectionID string) (FullSyncResult, error) {
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return FullSyncResult{}, err
	}

	result := FullSyncResult{ConnectionID: conn.ID}
	phases := []struct {
		crawlType core.CrawlType
		run       func(context.Context, core.Connection) (core.CrawlHistory, error)
	}{
		{core.CrawlTypeUsers, m.runUsers},
		{core.CrawlTypeGroups, m.runGroups},
		{core.CrawlTypeTokens, m.runTokens},
		{core.CrawlTypeEvents, m.runEvents},
	}

	for _, phase := range phases {
		crawl, err := phase.run(ctx, conn)
		if crawl.ID != "" {
			result.Crawls = append(result.Crawls, crawl)
		}
		if err != nil {
			result.Failed = append(result.Failed, phase.crawlType)
			m.logger.Warn("sync phase failed, continuing",
				"connection_id", conn.ID, "type", string(phase.crawlType), "error", err)
		}
	}

	if len(result.Failed) < len(phases) {
		if err := m.connections.MarkSynced(ctx, conn.ID, m.Now()); err != nil {
			m.logger.Error("failed to stamp last synced",
				"connection_id", conn.ID, "error", err)
		}
	}
	return result, nil
}

// RevokeAppAccess asks the provider to revoke one user's grant to an app,
// then flips the local grant and appends a revoke row to the ledger. It
// returns whether the provider accepted the revocation.
func (m *Manager) RevokeAppAccess(ctx context.Context, connectionID, providerUserID, clientID string) (bool, error) {
	run, err := m.resolve(ctx, connectionID)
	if err != nil {
		return false, err
	}

	user, err := m.users.FindByProviderID(ctx, run.conn.ID, providerUserID)
	if err != nil {
		return false, err
	}

	accepted, err := run.provider.RevokeAppAccess(ctx, run.auth, providerUserID, clientID)
	if err != nil {
		m.handleAuthFailure(ctx, run.conn.ID, err)
		return false, err
	}
	if !accepted {
		return false, nil
	}

	now := m.Now()
	app, err := m.apps.FindByClientID(ctx, run.conn.OrganizationID, clientID)
	if err != nil {
		// The provider accepted a revocation for an app we never snapshotted;
		// nothing local to flip.
		m.logger.Warn("revoked access to unknown app",
			"connection_id", run.conn.ID, "client_id", clientID)
		return true, nil
	}

	if _, err := m.grants.Find(ctx, run.conn.OrganizationID, user.ID, app.ID); err == nil {
		if _, err := m.grants.Revoke(ctx, run.conn.OrganizationID, user.ID, app.ID, now); err != nil {
			return true, err
		}
	}

	if _, err := m.events.Create(ctx, core.OAuthEvent{
		OrganizationID: run.conn.OrganizationID,
		ConnectionID:   run.conn.ID,
		UserID:         user.ID,
		AppID:          app.ID,
		EventType:      core.EventTypeRevoke,
		EventTime:      now,
	}); err != nil {
		return true, err
	}

	m.metrics.IncCounter(ctx, "sync.revocations", 1, map[string]string{
		"provider": run.conn.ProviderSlug,
	})
	return true, nil
}
