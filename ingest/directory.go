// Package ingest drains provider record sequences into the local stores.
// Each ingester covers one sync phase and reports what it landed so crawl
// rows can carry per-phase stats.
package ingest

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
)

// DirectoryConfig wires the stores a DirectoryIngester writes to.
type DirectoryConfig struct {
	Users       core.UserStore
	Groups      core.GroupStore
	Memberships core.MembershipStore
	Logger      core.Logger
	Metrics     core.MetricsRecorder
}

// DirectoryIngester lands users, groups, and group memberships. Memberships
// are replaced wholesale per group so departures disappear on the next run.
type DirectoryIngester struct {
	users       core.UserStore
	groups      core.GroupStore
	memberships core.MembershipStore
	logger      core.Logger
	metrics     core.MetricsRecorder
}

func NewDirectoryIngester(config DirectoryConfig) (*DirectoryIngester, error) {
	if config.Users == nil {
		return nil, fmt.Errorf("ingest: user store is required")
	}
	if config.Groups == nil {
		return nil, fmt.Errorf("ingest: group store is required")
	}
	if config.Memberships == nil {
		return nil, fmt.Errorf("ingest: membership store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	return &DirectoryIngester{
		users:       config.Users,
		groups:      config.Groups,
		memberships: config.Memberships,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// SyncUsers drains the provider's user sequence and bulk upserts each batch.
// It returns the number of users landed.
func (i *DirectoryIngester) SyncUsers(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthContext) (int, error) {
	seq, err := provider.FetchUsers(ctx, auth)
	if err != nil {
		return 0, &core.SyncError{Step: core.SyncStepUsers, Err: err}
	}

	total := 0
	for {
		batch, ok, err := seq.Next(ctx)
		if err != nil {
			return total, &core.SyncError{Step: core.SyncStepUsers, Err: err}
		}
		if !ok {
			break
		}

		users := make([]core.WorkspaceUser, 0, len(batch))
		for _, record := range batch {
			users = append(users, core.WorkspaceUser{
				OrganizationID:   conn.OrganizationID,
				ConnectionID:     conn.ID,
				ProviderUserID:   record.ProviderUserID,
				Email:            record.Email,
				FullName:         record.FullName,
				GivenName:        record.GivenName,
				FamilyName:       record.FamilyName,
				IsAdmin:          record.IsAdmin,
				IsDelegatedAdmin: record.IsDelegatedAdmin,
				Suspended:        record.Suspended,
				OrgUnitPath:      record.OrgUnitPath,
				AvatarURL:        record.AvatarURL,
				Raw:              record.Raw,
			})
		}

		count, err := i.users.BulkUpsert(ctx, users)
		if err != nil {
			return total, &core.SyncError{Step: core.SyncStepUsers, Err: err}
		}
		total += count
		i.metrics.IncCounter(ctx, "ingest.users.upserted", int64(count), map[string]string{
			"provider": conn.ProviderSlug,
		})
	}

	i.logger.Info("user sync complete",
		"connection_id", conn.ID, "users", total)
	return total, nil
}

// SyncGroups upserts every group, then replaces each group's membership set
// from the provider's member listing. It returns the group and membership
// counts.
func (i *DirectoryIngester) SyncGroups(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthContext) (int, int, error) {
	seq, err := provider.FetchGroups(ctx, auth)
	if err != nil {
		return 0, 0, &core.SyncError{Step: core.SyncStepGroups, Err: err}
	}

	groupTotal := 0
	var groupIDs []string
	for {
		batch, ok, err := seq.Next(ctx)
		if err != nil {
			return groupTotal, 0, &core.SyncError{Step: core.SyncStepGroups, Err: err}
		}
		if !ok {
			break
		}

		groups := make([]core.WorkspaceGroup, 0, len(batch))
		for _, record := range batch {
			groups = append(groups, core.WorkspaceGroup{
				OrganizationID:  conn.OrganizationID,
				ConnectionID:    conn.ID,
				ProviderGroupID: record.ProviderGroupID,
				Email:           record.Email,
				Name:            record.Name,
				Description:     record.Description,
				MemberCount:     record.MemberCount,
				Raw:             record.Raw,
			})
			groupIDs = append(groupIDs, record.ProviderGroupID)
		}

		count, err := i.groups.BulkUpsert(ctx, groups)
		if err != nil {
			return groupTotal, 0, &core.SyncError{Step: core.SyncStepGroups, Err: err}
		}
		groupTotal += count
	}

	memberTotal := 0
	for _, providerGroupID := range groupIDs {
		count, err := i.syncGroupMembers(ctx, conn, provider, auth, providerGroupID)
		if err != nil {
			return groupTotal, memberTotal, err
		}
		memberTotal += count
	}

	i.logger.Info("group sync complete",
		"connection_id", conn.ID, "groups", groupTotal, "memberships", memberTotal)
	return groupTotal, memberTotal, nil
}

func (i *DirectoryIngester) syncGroupMembers(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthContext, providerGroupID string) (int, error) {
	seq, err := provider.FetchGroupMembers(ctx, auth, providerGroupID)
	if err != nil {
		return 0, &core.SyncError{Step: core.SyncStepGroupMembers, Err: err}
	}

	var members []core.GroupMembership
	for {
		batch, ok, err := seq.Next(ctx)
		if err != nil {
			return 0, &core.SyncError{Step: core.SyncStepGroupMembers, Err: err}
		}
		if !ok {
			break
		}
		for _, record := range batch {
			members = append(members, core.GroupMembership{
				OrganizationID:  conn.OrganizationID,
				ConnectionID:    conn.ID,
				ProviderGroupID: providerGroupID,
				ProviderUserID:  record.ProviderUserID,
				Email:           record.Email,
				Role:            record.Role,
			})
		}
	}

	count, err := i.memberships.ReplaceForGroup(ctx, conn.ID, providerGroupID, members)
	if err != nil {
		return 0, &core.SyncError{Step: core.SyncStepGroupMembers, Err: err}
	}
	i.metrics.IncCounter(ctx, "ingest.memberships.replaced", int64(count), map[string]string{
		"provider": conn.ProviderSlug,
	})
	return count, nil
}
