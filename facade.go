package workspacesync

import (
	"fmt"

	"github.com/goliatone/go-workspace-sync/adapters/gocommand"
	synccommand "github.com/goliatone/go-workspace-sync/command"
	"github.com/goliatone/go-workspace-sync/core"
	syncquery "github.com/goliatone/go-workspace-sync/query"
)

// Commands bundles every write-side handler the module exposes. Hosts
// dispatch through these directly or register them on a go-command router.
type Commands struct {
	RunFullSync      *synccommand.RunFullSyncCommand
	RunPhaseSync     *synccommand.RunPhaseSyncCommand
	RevokeAppAccess  *synccommand.RevokeAppAccessCommand
	StoreCredentials *synccommand.StoreCredentialsCommand
	Disconnect       *synccommand.DisconnectCommand
}

// Queries bundles the read-side handlers over the same store set.
type Queries struct {
	GetConnection    *syncquery.GetConnectionQuery
	ListConnections  *syncquery.ListConnectionsQuery
	ListCrawls       *syncquery.ListCrawlsQuery
	ListUserGrants   *syncquery.ListUserGrantsQuery
	ListUserEvents   *syncquery.ListUserEventsQuery
	ListApps         *syncquery.ListAppsQuery
	FindUserByEmail  *syncquery.FindUserByEmailQuery
	ListGroupMembers *syncquery.ListGroupMembersQuery
}

type Facade struct {
	sync        synccommand.SyncService
	credentials synccommand.CredentialService
	stores      core.StoreProvider
	commands    Commands
	queries     Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	connections core.ConnectionStore
}

// WithConnectionStore overrides the connection store used by the
// disconnect command and connection queries, typically with a cached
// wrapper around the provider's store.
func WithConnectionStore(store core.ConnectionStore) FacadeOption {
	return func(options *facadeOptions) {
		options.connections = store
	}
}

func NewFacade(syncService synccommand.SyncService, credentialService synccommand.CredentialService, stores core.StoreProvider, opts ...FacadeOption) (*Facade, error) {
	if syncService == nil {
		return nil, fmt.Errorf("workspacesync: sync service is required")
	}
	if credentialService == nil {
		return nil, fmt.Errorf("workspacesync: credential service is required")
	}
	if stores == nil {
		return nil, fmt.Errorf("workspacesync: store provider is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	connections := cfg.connections
	if connections == nil {
		connections = stores.ConnectionStore()
	}
	if connections == nil {
		return nil, fmt.Errorf("workspacesync: connection store is required")
	}

	facade := &Facade{
		sync:        syncService,
		credentials: credentialService,
		stores:      stores,
	}
	facade.commands = Commands{
		RunFullSync:      synccommand.NewRunFullSyncCommand(syncService),
		RunPhaseSync:     synccommand.NewRunPhaseSyncCommand(syncService),
		RevokeAppAccess:  synccommand.NewRevokeAppAccessCommand(syncService),
		StoreCredentials: synccommand.NewStoreCredentialsCommand(credentialService),
		Disconnect:       synccommand.NewDisconnectCommand(connections),
	}
	facade.queries = Queries{
		GetConnection:    syncquery.NewGetConnectionQuery(connections),
		ListConnections:  syncquery.NewListConnectionsQuery(connections),
		ListCrawls:       syncquery.NewListCrawlsQuery(stores.CrawlStore()),
		ListUserGrants:   syncquery.NewListUserGrantsQuery(stores.GrantStore()),
		ListUserEvents:   syncquery.NewListUserEventsQuery(stores.EventStore()),
		ListApps:         syncquery.NewListAppsQuery(stores.AppStore()),
		FindUserByEmail:  syncquery.NewFindUserByEmailQuery(stores.UserStore()),
		ListGroupMembers: syncquery.NewListGroupMembersQuery(stores.MembershipStore()),
	}

	return facade, nil
}

// Attach registers every command and query handler on the bus and subscribes
// them on the process dispatcher, so hosts drive the module through
// gocommand.Dispatch and gocommand.Query. On failure every subscription made
// so far is torn down. Callers still add queue resolvers and call
// Initialize on the bus themselves.
func (f *Facade) Attach(bus *gocommand.Bus) ([]gocommand.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("workspacesync: facade is nil")
	}
	if bus == nil {
		return nil, fmt.Errorf("workspacesync: bus is required")
	}

	var subscriptions []gocommand.Subscription
	attach := func(sub gocommand.Subscription, err error) error {
		if err != nil {
			for _, prior := range subscriptions {
				if prior != nil {
					prior.Unsubscribe()
				}
			}
			return err
		}
		subscriptions = append(subscriptions, sub)
		return nil
	}

	if err := attach(gocommand.AttachCommand[synccommand.RunFullSyncMessage](bus, f.commands.RunFullSync)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachCommand[synccommand.RunPhaseSyncMessage](bus, f.commands.RunPhaseSync)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachCommand[synccommand.RevokeAppAccessMessage](bus, f.commands.RevokeAppAccess)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachCommand[synccommand.StoreCredentialsMessage](bus, f.commands.StoreCredentials)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachCommand[synccommand.DisconnectMessage](bus, f.commands.Disconnect)); err != nil {
		return nil, err
	}

	if err := attach(gocommand.AttachQuery[syncquery.GetConnectionMessage, core.Connection](bus, f.queries.GetConnection)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.ListConnectionsMessage, []core.Connection](bus, f.queries.ListConnections)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.ListCrawlsMessage, []core.CrawlHistory](bus, f.queries.ListCrawls)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.ListUserGrantsMessage, []core.AppGrant](bus, f.queries.ListUserGrants)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.ListUserEventsMessage, []core.OAuthEvent](bus, f.queries.ListUserEvents)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.ListAppsMessage, []core.OAuthApp](bus, f.queries.ListApps)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.FindUserByEmailMessage, core.WorkspaceUser](bus, f.queries.FindUserByEmail)); err != nil {
		return nil, err
	}
	if err := attach(gocommand.AttachQuery[syncquery.ListGroupMembersMessage, []core.GroupMembership](bus, f.queries.ListGroupMembers)); err != nil {
		return nil, err
	}

	return subscriptions, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Stores() core.StoreProvider {
	if f == nil {
		return nil
	}
	return f.stores
}

func (f *Facade) SyncService() synccommand.SyncService {
	if f == nil {
		return nil
	}
	return f.sync
}

func (f *Facade) CredentialService() synccommand.CredentialService {
	if f == nil {
		return nil
	}
	return f.credentials
}
