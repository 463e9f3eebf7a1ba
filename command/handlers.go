// Package command exposes the write-side operations as go-command messages so
// schedulers, queues, and HTTP surfaces all mutate through one dispatch path.
package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/sync"
)

// SyncService is the slice of the sync manager the command layer drives.
type SyncService interface {
	RunFullSync(ctx context.Context, connectionID string) (sync.FullSyncResult, error)
	RunUsersSync(ctx context.Context, connectionID string) (core.CrawlHistory, error)
	RunGroupsSync(ctx context.Context, connectionID string) (core.CrawlHistory, error)
	RunTokensSync(ctx context.Context, connectionID string) (core.CrawlHistory, error)
	RunEventsSync(ctx context.Context, connectionID string) (core.CrawlHistory, error)
	RevokeAppAccess(ctx context.Context, connectionID, providerUserID, clientID string) (bool, error)
}

type CredentialService interface {
	StoreCredentials(ctx context.Context, connectionID string, token core.TokenResponse) (core.Connection, error)
}

type RunFullSyncCommand struct {
	service SyncService
}

func NewRunFullSyncCommand(service SyncService) *RunFullSyncCommand {
	return &RunFullSyncCommand{service: service}
}

func (c *RunFullSyncCommand) Execute(ctx context.Context, msg RunFullSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.RunFullSync(ctx, msg.ConnectionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunPhaseSyncCommand struct {
	service SyncService
}

func NewRunPhaseSyncCommand(service SyncService) *RunPhaseSyncCommand {
	return &RunPhaseSyncCommand{service: service}
}

func (c *RunPhaseSyncCommand) Execute(ctx context.Context, msg RunPhaseSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	phase, err := core.ParseCrawlType(msg.Phase)
	if err != nil {
		return commandInvalidInputError(err.Error())
	}

	var crawl core.CrawlHistory
	switch phase {
	case core.CrawlTypeUsers:
		crawl, err = c.service.RunUsersSync(ctx, msg.ConnectionID)
	case core.CrawlTypeGroups:
		crawl, err = c.service.RunGroupsSync(ctx, msg.ConnectionID)
	case core.CrawlTypeTokens:
		crawl, err = c.service.RunTokensSync(ctx, msg.ConnectionID)
	case core.CrawlTypeEvents:
		crawl, err = c.service.RunEventsSync(ctx, msg.ConnectionID)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, crawl)
	return nil
}

type RevokeAppAccessCommand struct {
	service SyncService
}

func NewRevokeAppAccessCommand(service SyncService) *RevokeAppAccessCommand {
	return &RevokeAppAccessCommand{service: service}
}

func (c *RevokeAppAccessCommand) Execute(ctx context.Context, msg RevokeAppAccessMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	accepted, err := c.service.RevokeAppAccess(ctx, msg.ConnectionID, msg.ProviderUserID, msg.ClientID)
	if err != nil {
		return err
	}
	storeResult(ctx, accepted)
	return nil
}

type StoreCredentialsCommand struct {
	service CredentialService
}

func NewStoreCredentialsCommand(service CredentialService) *StoreCredentialsCommand {
	return &StoreCredentialsCommand{service: service}
}

func (c *StoreCredentialsCommand) Execute(ctx context.Context, msg StoreCredentialsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	conn, err := c.service.StoreCredentials(ctx, msg.ConnectionID, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, conn)
	return nil
}

type DisconnectCommand struct {
	connections core.ConnectionStore
}

func NewDisconnectCommand(connections core.ConnectionStore) *DisconnectCommand {
	return &DisconnectCommand{connections: connections}
}

func (c *DisconnectCommand) Execute(ctx context.Context, msg DisconnectMessage) error {
	if c == nil || c.connections == nil {
		return commandDependencyError("command: connection store is required")
	}
	return c.connections.Disconnect(ctx, msg.ConnectionID)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
