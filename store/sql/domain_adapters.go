package sqlstore

import (
	"time"

	"github.com/goliatone/go-workspace-sync/core"
)

func newConnectionRecord(conn core.Connection, now time.Time) *connectionRecord {
	record := &connectionRecord{
		ID:                    conn.ID,
		OrganizationID:        conn.OrganizationID,
		ProviderSlug:          conn.ProviderSlug,
		ExternalAccountID:     conn.ExternalAccountID,
		EncryptedAccessToken:  append([]byte(nil), conn.EncryptedAccessToken...),
		EncryptedRefreshToken: append([]byte(nil), conn.EncryptedRefreshToken...),
		GrantedScopes:         cloneStrings(conn.GrantedScopes),
		Status:                string(conn.Status),
		LastErrorCode:         conn.LastErrorCode,
		LastErrorMessage:      conn.LastErrorMessage,
		RefreshCount:          conn.RefreshCount,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	record.TokenExpiresAt = cloneTimePointer(conn.TokenExpiresAt)
	record.LastSyncedAt = cloneTimePointer(conn.LastSyncedAt)
	return record
}

func (r *connectionRecord) toDomain() core.Connection {
	if r == nil {
		return core.Connection{}
	}
	return core.Connection{
		ID:                    r.ID,
		OrganizationID:        r.OrganizationID,
		ProviderSlug:          r.ProviderSlug,
		ExternalAccountID:     r.ExternalAccountID,
		EncryptedAccessToken:  append([]byte(nil), r.EncryptedAccessToken...),
		EncryptedRefreshToken: append([]byte(nil), r.EncryptedRefreshToken...),
		TokenExpiresAt:        cloneTimePointer(r.TokenExpiresAt),
		GrantedScopes:         cloneStrings(r.GrantedScopes),
		Status:                core.ConnectionStatus(r.Status),
		LastErrorCode:         r.LastErrorCode,
		LastErrorMessage:      r.LastErrorMessage,
		RefreshCount:          r.RefreshCount,
		LastSyncedAt:          cloneTimePointer(r.LastSyncedAt),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
		DeletedAt:             cloneTimePointer(r.DeletedAt),
	}
}

func (r *connectionRecord) applyDomain(conn core.Connection) {
	if r == nil {
		return
	}
	r.EncryptedAccessToken = append([]byte(nil), conn.EncryptedAccessToken...)
	r.EncryptedRefreshToken = append([]byte(nil), conn.EncryptedRefreshToken...)
	r.TokenExpiresAt = cloneTimePointer(conn.TokenExpiresAt)
	r.GrantedScopes = cloneStrings(conn.GrantedScopes)
	r.Status = string(conn.Status)
	r.LastErrorCode = conn.LastErrorCode
	r.LastErrorMessage = conn.LastErrorMessage
	r.RefreshCount = conn.RefreshCount
	r.LastSyncedAt = cloneTimePointer(conn.LastSyncedAt)
	r.UpdatedAt = conn.UpdatedAt
	r.DeletedAt = cloneTimePointer(conn.DeletedAt)
}

func newCrawlHistoryRecord(crawl core.CrawlHistory) *crawlHistoryRecord {
	return &crawlHistoryRecord{
		ID:             crawl.ID,
		OrganizationID: crawl.OrganizationID,
		ConnectionID:   crawl.ConnectionID,
		CrawlType:      string(crawl.Type),
		Status:         string(crawl.Status),
		StartedAt:      crawl.StartedAt,
		FinishedAt:     cloneTimePointer(crawl.FinishedAt),
		Stats:          copyAnyMap(crawl.Stats),
		ErrorMessage:   crawl.ErrorMessage,
		Debug:          copyAnyMap(crawl.Debug),
	}
}

func (r *crawlHistoryRecord) toDomain() core.CrawlHistory {
	if r == nil {
		return core.CrawlHistory{}
	}
	return core.CrawlHistory{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		ConnectionID:   r.ConnectionID,
		Type:           core.CrawlType(r.CrawlType),
		Status:         core.CrawlStatus(r.Status),
		StartedAt:      r.StartedAt,
		FinishedAt:     cloneTimePointer(r.FinishedAt),
		Stats:          copyAnyMap(r.Stats),
		ErrorMessage:   r.ErrorMessage,
		Debug:          copyAnyMap(r.Debug),
	}
}

func newWorkspaceUserRecord(user core.WorkspaceUser, now time.Time) *workspaceUserRecord {
	return &workspaceUserRecord{
		ID:               user.ID,
		OrganizationID:   user.OrganizationID,
		ConnectionID:     user.ConnectionID,
		ProviderUserID:   user.ProviderUserID,
		Email:            user.Email,
		FullName:         user.FullName,
		GivenName:        user.GivenName,
		FamilyName:       user.FamilyName,
		IsAdmin:          user.IsAdmin,
		IsDelegatedAdmin: user.IsDelegatedAdmin,
		Suspended:        user.Suspended,
		OrgUnitPath:      user.OrgUnitPath,
		AvatarURL:        user.AvatarURL,
		Raw:              copyAnyMap(user.Raw),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (r *workspaceUserRecord) toDomain() core.WorkspaceUser {
	if r == nil {
		return core.WorkspaceUser{}
	}
	return core.WorkspaceUser{
		ID:               r.ID,
		OrganizationID:   r.OrganizationID,
		ConnectionID:     r.ConnectionID,
		ProviderUserID:   r.ProviderUserID,
		Email:            r.Email,
		FullName:         r.FullName,
		GivenName:        r.GivenName,
		FamilyName:       r.FamilyName,
		IsAdmin:          r.IsAdmin,
		IsDelegatedAdmin: r.IsDelegatedAdmin,
		Suspended:        r.Suspended,
		OrgUnitPath:      r.OrgUnitPath,
		AvatarURL:        r.AvatarURL,
		Raw:              copyAnyMap(r.Raw),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func newWorkspaceGroupRecord(group core.WorkspaceGroup, now time.Time) *workspaceGroupRecord {
	return &workspaceGroupRecord{
		ID:              group.ID,
		OrganizationID:  group.OrganizationID,
		ConnectionID:    group.ConnectionID,
		ProviderGroupID: group.ProviderGroupID,
		Email:           group.Email,
		Name:            group.Name,
		Description:     group.Description,
		MemberCount:     group.MemberCount,
		Raw:             copyAnyMap(group.Raw),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *workspaceGroupRecord) toDomain() core.WorkspaceGroup {
	if r == nil {
		return core.WorkspaceGroup{}
	}
	return core.WorkspaceGroup{
		ID:              r.ID,
		OrganizationID:  r.OrganizationID,
		ConnectionID:    r.ConnectionID,
		ProviderGroupID: r.ProviderGroupID,
		Email:           r.Email,
		Name:            r.Name,
		Description:     r.Description,
		MemberCount:     r.MemberCount,
		Raw:             copyAnyMap(r.Raw),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func newGroupMembershipRecord(member core.GroupMembership, now time.Time) *groupMembershipRecord {
	created := member.CreatedAt
	if created.IsZero() {
		created = now
	}
	return &groupMembershipRecord{
		ID:              member.ID,
		OrganizationID:  member.OrganizationID,
		ConnectionID:    member.ConnectionID,
		ProviderGroupID: member.ProviderGroupID,
		ProviderUserID:  member.ProviderUserID,
		Email:           member.Email,
		Role:            member.Role,
		CreatedAt:       created,
	}
}

func (r *groupMembershipRecord) toDomain() core.GroupMembership {
	if r == nil {
		return core.GroupMembership{}
	}
	return core.GroupMembership{
		ID:              r.ID,
		OrganizationID:  r.OrganizationID,
		ConnectionID:    r.ConnectionID,
		ProviderGroupID: r.ProviderGroupID,
		ProviderUserID:  r.ProviderUserID,
		Email:           r.Email,
		Role:            r.Role,
		CreatedAt:       r.CreatedAt,
	}
}

func newOAuthAppRecord(app core.OAuthApp, now time.Time) *oauthAppRecord {
	return &oauthAppRecord{
		ID:             app.ID,
		OrganizationID: app.OrganizationID,
		ConnectionID:   app.ConnectionID,
		ClientID:       app.ClientID,
		Name:           app.Name,
		ClientType:     app.ClientType,
		IsSystemApp:    app.IsSystemApp,
		Scopes:         cloneStrings(app.Scopes),
		Raw:            copyAnyMap(app.Raw),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *oauthAppRecord) toDomain() core.OAuthApp {
	if r == nil {
		return core.OAuthApp{}
	}
	return core.OAuthApp{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		ConnectionID:   r.ConnectionID,
		ClientID:       r.ClientID,
		Name:           r.Name,
		ClientType:     r.ClientType,
		IsSystemApp:    r.IsSystemApp,
		Scopes:         cloneStrings(r.Scopes),
		Raw:            copyAnyMap(r.Raw),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newAppGrantRecord(grant core.AppGrant, now time.Time) *appGrantRecord {
	return &appGrantRecord{
		ID:             grant.ID,
		OrganizationID: grant.OrganizationID,
		ConnectionID:   grant.ConnectionID,
		UserID:         grant.UserID,
		AppID:          grant.AppID,
		Status:         string(grant.Status),
		Scopes:         cloneStrings(grant.Scopes),
		GrantedAt:      cloneTimePointer(grant.GrantedAt),
		RevokedAt:      cloneTimePointer(grant.RevokedAt),
		LastSeenAt:     cloneTimePointer(grant.LastSeenAt),
		Raw:            copyAnyMap(grant.Raw),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r *appGrantRecord) toDomain() core.AppGrant {
	if r == nil {
		return core.AppGrant{}
	}
	return core.AppGrant{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		ConnectionID:   r.ConnectionID,
		UserID:         r.UserID,
		AppID:          r.AppID,
		Status:         core.GrantStatus(r.Status),
		Scopes:         cloneStrings(r.Scopes),
		GrantedAt:      cloneTimePointer(r.GrantedAt),
		RevokedAt:      cloneTimePointer(r.RevokedAt),
		LastSeenAt:     cloneTimePointer(r.LastSeenAt),
		Raw:            copyAnyMap(r.Raw),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r *appGrantRecord) applyDomain(grant core.AppGrant) {
	if r == nil {
		return
	}
	r.Status = string(grant.Status)
	r.Scopes = cloneStrings(grant.Scopes)
	r.GrantedAt = cloneTimePointer(grant.GrantedAt)
	r.RevokedAt = cloneTimePointer(grant.RevokedAt)
	r.LastSeenAt = cloneTimePointer(grant.LastSeenAt)
	r.Raw = copyAnyMap(grant.Raw)
	r.UpdatedAt = grant.UpdatedAt
}

func newOAuthEventRecord(event core.OAuthEvent) *oauthEventRecord {
	return &oauthEventRecord{
		ID:             event.ID,
		OrganizationID: event.OrganizationID,
		ConnectionID:   event.ConnectionID,
		UserID:         event.UserID,
		AppID:          event.AppID,
		EventType:      event.EventType,
		EventTime:      event.EventTime,
		Raw:            copyAnyMap(event.Raw),
		CreatedAt:      event.CreatedAt,
	}
}

func (r *oauthEventRecord) toDomain() core.OAuthEvent {
	if r == nil {
		return core.OAuthEvent{}
	}
	return core.OAuthEvent{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		ConnectionID:   r.ConnectionID,
		UserID:         r.UserID,
		AppID:          r.AppID,
		EventType:      r.EventType,
		EventTime:      r.EventTime,
		Raw:            copyAnyMap(r.Raw),
		CreatedAt:      r.CreatedAt,
	}
}

func (r *authConfigRecord) toDomain() core.AuthConfig {
	if r == nil {
		return core.AuthConfig{}
	}
	return core.AuthConfig{
		ID:           r.ID,
		ProviderSlug: r.ProviderSlug,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		RedirectURI:  r.RedirectURI,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}
