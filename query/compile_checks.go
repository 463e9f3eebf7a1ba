package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-workspace-sync/core"
)

var (
	_ gocmd.Querier[GetConnectionMessage, core.Connection]           = (*GetConnectionQuery)(nil)
	_ gocmd.Querier[ListConnectionsMessage, []core.Connection]       = (*ListConnectionsQuery)(nil)
	_ gocmd.Querier[ListCrawlsMessage, []core.CrawlHistory]          = (*ListCrawlsQuery)(nil)
	_ gocmd.Querier[ListUserGrantsMessage, []core.AppGrant]          = (*ListUserGrantsQuery)(nil)
	_ gocmd.Querier[ListUserEventsMessage, []core.OAuthEvent]        = (*ListUserEventsQuery)(nil)
	_ gocmd.Querier[ListAppsMessage, []core.OAuthApp]                = (*ListAppsQuery)(nil)
	_ gocmd.Querier[FindUserByEmailMessage, core.WorkspaceUser]      = (*FindUserByEmailQuery)(nil)
	_ gocmd.Querier[ListGroupMembersMessage, []core.GroupMembership] = (*ListGroupMembersQuery)(nil)
)
