package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetConnection    = "workspace_sync.query.connection.get"
	TypeListConnections  = "workspace_sync.query.connection.list"
	TypeListCrawls       = "workspace_sync.query.crawl.list"
	TypeListUserGrants   = "workspace_sync.query.grant.list_by_user"
	TypeListUserEvents   = "workspace_sync.query.event.list_by_user"
	TypeListApps         = "workspace_sync.query.app.list"
	TypeFindUserByEmail  = "workspace_sync.query.user.find_by_email"
	TypeListGroupMembers = "workspace_sync.query.membership.list_for_group"
)

type GetConnectionMessage struct {
	ConnectionID string
}

func (GetConnectionMessage) Type() string { return TypeGetConnection }

func (m GetConnectionMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	return nil
}

type ListConnectionsMessage struct {
	OrganizationID string
}

func (ListConnectionsMessage) Type() string { return TypeListConnections }

func (m ListConnectionsMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return fmt.Errorf("query: organization id is required")
	}
	return nil
}

type ListCrawlsMessage struct {
	ConnectionID string
	Limit        int
}

func (ListCrawlsMessage) Type() string { return TypeListCrawls }

func (m ListCrawlsMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type ListUserGrantsMessage struct {
	OrganizationID string
	UserID         string
}

func (ListUserGrantsMessage) Type() string { return TypeListUserGrants }

func (m ListUserGrantsMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return fmt.Errorf("query: organization id is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	return nil
}

type ListUserEventsMessage struct {
	OrganizationID string
	UserID         string
	Limit          int
}

func (ListUserEventsMessage) Type() string { return TypeListUserEvents }

func (m ListUserEventsMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return fmt.Errorf("query: organization id is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("query: user id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type ListAppsMessage struct {
	OrganizationID string
}

func (ListAppsMessage) Type() string { return TypeListApps }

func (m ListAppsMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return fmt.Errorf("query: organization id is required")
	}
	return nil
}

type FindUserByEmailMessage struct {
	OrganizationID string
	Email          string
}

func (FindUserByEmailMessage) Type() string { return TypeFindUserByEmail }

func (m FindUserByEmailMessage) Validate() error {
	if strings.TrimSpace(m.OrganizationID) == "" {
		return fmt.Errorf("query: organization id is required")
	}
	if strings.TrimSpace(m.Email) == "" {
		return fmt.Errorf("query: email is required")
	}
	return nil
}

type ListGroupMembersMessage struct {
	ConnectionID    string
	ProviderGroupID string
}

func (ListGroupMembersMessage) Type() string { return TypeListGroupMembers }

func (m ListGroupMembersMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("query: connection id is required")
	}
	if strings.TrimSpace(m.ProviderGroupID) == "" {
		return fmt.Errorf("query: provider group id is required")
	}
	return nil
}
