// Package query exposes read-side lookups as go-command queries. Handlers
// delegate straight to the store contracts; no query mutates state.
package query

import (
	"context"

	"github.com/goliatone/go-workspace-sync/core"
)

type GetConnectionQuery struct {
	connections core.ConnectionStore
}

func NewGetConnectionQuery(connections core.ConnectionStore) *GetConnectionQuery {
	return &GetConnectionQuery{connections: connections}
}

func (q *GetConnectionQuery) Query(ctx context.Context, msg GetConnectionMessage) (core.Connection, error) {
	if q == nil || q.connections == nil {
		return core.Connection{}, queryDependencyError("query: connection store is required")
	}
	return q.connections.GetByID(ctx, msg.ConnectionID)
}

type ListConnectionsQuery struct {
	connections core.ConnectionStore
}

func NewListConnectionsQuery(connections core.ConnectionStore) *ListConnectionsQuery {
	return &ListConnectionsQuery{connections: connections}
}

func (q *ListConnectionsQuery) Query(ctx context.Context, msg ListConnectionsMessage) ([]core.Connection, error) {
	if q == nil || q.connections == nil {
		return nil, queryDependencyError("query: connection store is required")
	}
	return q.connections.ListByOrganization(ctx, msg.OrganizationID)
}

type ListCrawlsQuery struct {
	crawls core.CrawlStore
}

func NewListCrawlsQuery(crawls core.CrawlStore) *ListCrawlsQuery {
	return &ListCrawlsQuery{crawls: crawls}
}

func (q *ListCrawlsQuery) Query(ctx context.Context, msg ListCrawlsMessage) ([]core.CrawlHistory, error) {
	if q == nil || q.crawls == nil {
		return nil, queryDependencyError("query: crawl store is required")
	}
	return q.crawls.ListByConnection(ctx, msg.ConnectionID, msg.Limit)
}

type ListUserGrantsQuery struct {
	grants core.GrantStore
}

func NewListUserGrantsQuery(grants core.GrantStore) *ListUserGrantsQuery {
	return &ListUserGrantsQuery{grants: grants}
}

func (q *ListUserGrantsQuery) Query(ctx context.Context, msg ListUserGrantsMessage) ([]core.AppGrant, error) {
	if q == nil || q.grants == nil {
		return nil, queryDependencyError("query: grant store is required")
	}
	return q.grants.ListByUser(ctx, msg.OrganizationID, msg.UserID)
}

type ListUserEventsQuery struct {
	events core.EventStore
}

func NewListUserEventsQuery(events core.EventStore) *ListUserEventsQuery {
	return &ListUserEventsQuery{events: events}
}

func (q *ListUserEventsQuery) Query(ctx context.Context, msg ListUserEventsMessage) ([]core.OAuthEvent, error) {
	if q == nil || q.events == nil {
		return nil, queryDependencyError("query: event store is required")
	}
	return q.events.ListByUser(ctx, msg.OrganizationID, msg.UserID, msg.Limit)
}

type ListAppsQuery struct {
	apps core.AppStore
}

func NewListAppsQuery(apps core.AppStore) *ListAppsQuery {
	return &ListAppsQuery{apps: apps}
}

func (q *ListAppsQuery) Query(ctx context.Context, msg ListAppsMessage) ([]core.OAuthApp, error) {
	if q == nil || q.apps == nil {
		return nil, queryDependencyError("query: app store is required")
	}
	return q.apps.ListByOrganization(ctx, msg.OrganizationID)
}

type FindUserByEmailQuery struct {
	users core.UserStore
}

func NewFindUserByEmailQuery(users core.UserStore) *FindUserByEmailQuery {
	return &FindUserByEmailQuery{users: users}
}

func (q *FindUserByEmailQuery) Query(ctx context.Context, msg FindUserByEmailMessage) (core.WorkspaceUser, error) {
	if q == nil || q.users == nil {
		return core.WorkspaceUser{}, queryDependencyError("query: user store is required")
	}
	return q.users.FindByEmail(ctx, msg.OrganizationID, msg.Email)
}

type ListGroupMembersQuery struct {
	memberships core.MembershipStore
}

func NewListGroupMembersQuery(memberships core.MembershipStore) *ListGroupMembersQuery {
	return &ListGroupMembersQuery{memberships: memberships}
}

func (q *ListGroupMembersQuery) Query(ctx context.Context, msg ListGroupMembersMessage) ([]core.GroupMembership, error) {
	if q == nil || q.memberships == nil {
		return nil, queryDependencyError("query: membership store is required")
	}
	return q.memberships.ListForGroup(ctx, msg.ConnectionID, msg.ProviderGroupID)
}
