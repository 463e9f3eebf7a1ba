// Package memstore provides map-backed implementations of the storage
// contracts. It backs unit tests and local development where a SQL database
// is not worth the setup.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-workspace-sync/core"
)

// Store owns the shared in-memory state. The typed accessors hand out views
// that satisfy the individual storage contracts; all views share one mutex.
type Store struct {
	mu sync.Mutex

	Now func() time.Time

	connections map[string]core.Connection
	crawls      map[string]core.CrawlHistory
	users       map[string]core.WorkspaceUser
	groups      map[string]core.WorkspaceGroup
	memberships map[string][]core.GroupMembership
	apps        map[string]core.OAuthApp
	grants      map[string]core.AppGrant
	events      []core.OAuthEvent
	authConfigs map[string]core.AuthConfig
}

func New() *Store {
	return &Store{
		Now:         func() time.Time { return time.Now().UTC() },
		connections: make(map[string]core.Connection),
		crawls:      make(map[string]core.CrawlHistory),
		users:       make(map[string]core.WorkspaceUser),
		groups:      make(map[string]core.WorkspaceGroup),
		memberships: make(map[string][]core.GroupMembership),
		apps:        make(map[string]core.OAuthApp),
		grants:      make(map[string]core.AppGrant),
		authConfigs: make(map[string]core.AuthConfig),
	}
}

func (s *Store) Connections() core.ConnectionStore { return connectionStore{s} }
func (s *Store) Crawls() core.CrawlStore           { return crawlStore{s} }
func (s *Store) Users() core.UserStore             { return userStore{s} }
func (s *Store) Groups() core.GroupStore           { return groupStore{s} }
func (s *Store) Memberships() core.MembershipStore { return membershipStore{s} }
func (s *Store) Apps() core.AppStore               { return appStore{s} }
func (s *Store) Grants() core.GrantStore           { return grantStore{s} }
func (s *Store) Events() core.EventStore           { return eventStore{s} }
func (s *Store) AuthConfigs() core.AuthConfigStore { return authConfigStore{s} }

// core.StoreProvider aliases so a Store can stand in for the sql factory.
func (s *Store) ConnectionStore() core.ConnectionStore { return s.Connections() }
func (s *Store) CrawlStore() core.CrawlStore           { return s.Crawls() }
func (s *Store) UserStore() core.UserStore             { return s.Users() }
func (s *Store) GroupStore() core.GroupStore           { return s.Groups() }
func (s *Store) MembershipStore() core.MembershipStore { return s.Memberships() }
func (s *Store) AppStore() core.AppStore               { return s.Apps() }
func (s *Store) GrantStore() core.GrantStore           { return s.Grants() }
func (s *Store) EventStore() core.EventStore           { return s.Events() }
func (s *Store) AuthConfigStore() core.AuthConfigStore { return s.AuthConfigs() }

var _ core.StoreProvider = (*Store)(nil)

// PutAuthConfig seeds provider OAuth client settings, keyed by slug.
func (s *Store) PutAuthConfig(config core.AuthConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(config.ID) == "" {
		config.ID = uuid.NewString()
	}
	s.authConfigs[config.ProviderSlug] = config
}

var (
	_ core.ConnectionStore = (*connectionStore)(nil)
	_ core.CrawlStore      = (*crawlStore)(nil)
	_ core.UserStore       = (*userStore)(nil)
	_ core.GroupStore      = (*groupStore)(nil)
	_ core.MembershipStore = (*membershipStore)(nil)
	_ core.AppStore        = (*appStore)(nil)
	_ core.GrantStore      = (*grantStore)(nil)
	_ core.EventStore      = (*eventStore)(nil)
	_ core.AuthConfigStore = (*authConfigStore)(nil)
)

type connectionStore struct{ s *Store }

func (v connectionStore) Create(ctx context.Context, conn core.Connection) (core.Connection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if strings.TrimSpace(conn.ID) == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Status == "" {
		conn.Status = core.ConnectionStatusActive
	}
	now := v.s.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	v.s.connections[conn.ID] = conn
	return conn, nil
}

func (v connectionStore) GetByID(ctx context.Context, id string) (core.Connection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.getLocked(id)
}

func (v connectionStore) getLocked(id string) (core.Connection, error) {
	conn, ok := v.s.connections[strings.TrimSpace(id)]
	if !ok || conn.DeletedAt != nil {
		return core.Connection{}, fmt.Errorf("%w: %s", core.ErrConnectionNotFound, id)
	}
	return conn, nil
}

func (v connectionStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.Connection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.Connection
	for _, conn := range v.s.connections {
		if conn.OrganizationID == organizationID && conn.DeletedAt == nil {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v connectionStore) UpdateTokens(ctx context.Context, id string, input core.UpdateTokensInput) (core.Connection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	conn, err := v.getLocked(id)
	if err != nil {
		return core.Connection{}, err
	}
	conn.EncryptedAccessToken = input.EncryptedAccessToken
	if len(input.EncryptedRefreshToken) > 0 {
		conn.EncryptedRefreshToken = input.EncryptedRefreshToken
	}
	conn.TokenExpiresAt = input.TokenExpiresAt
	if len(input.GrantedScopes) > 0 {
		conn.GrantedScopes = append([]string(nil), input.GrantedScopes...)
	}
	if input.BumpRefreshCount {
		conn.RefreshCount++
	}
	conn.UpdatedAt = v.s.Now()
	v.s.connections[conn.ID] = conn
	return conn, nil
}

func (v connectionStore) UpdateStatus(ctx context.Context, id string, status core.ConnectionStatus, errorCode, errorMessage string) (core.Connection, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	conn, err := v.getLocked(id)
	if err != nil {
		return core.Connection{}, err
	}
	if err := conn.TransitionTo(status, errorMessage, v.s.Now()); err != nil {
		return core.Connection{}, err
	}
	if status != core.ConnectionStatusActive && strings.TrimSpace(errorCode) != "" {
		conn.LastErrorCode = strings.TrimSpace(errorCode)
	}
	v.s.connections[conn.ID] = conn
	return conn, nil
}

func (v connectionStore) MarkSynced(ctx context.Context, id string, at time.Time) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	conn, err := v.getLocked(id)
	if err != nil {
		return err
	}
	stamp := at.UTC()
	conn.LastSyncedAt = &stamp
	conn.UpdatedAt = v.s.Now()
	v.s.connections[conn.ID] = conn
	return nil
}

func (v connectionStore) Disconnect(ctx context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	conn, err := v.getLocked(id)
	if err != nil {
		return err
	}
	now := v.s.Now()
	if err := conn.TransitionTo(core.ConnectionStatusDisconnected, "", now); err != nil {
		return err
	}
	conn.EncryptedAccessToken = nil
	conn.EncryptedRefreshToken = nil
	conn.TokenExpiresAt = nil
	conn.DeletedAt = &now
	v.s.connections[conn.ID] = conn
	return nil
}

type crawlStore struct{ s *Store }

func (v crawlStore) Create(ctx context.Context, crawl core.CrawlHistory) (core.CrawlHistory, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if strings.TrimSpace(crawl.ID) == "" {
		crawl.ID = uuid.NewString()
	}
	if crawl.Status == "" {
		crawl.Status = core.CrawlStatusRunning
	}
	if crawl.StartedAt.IsZero() {
		crawl.StartedAt = v.s.Now()
	}
	v.s.crawls[crawl.ID] = crawl
	return crawl, nil
}

func (v crawlStore) Update(ctx context.Context, id string, input core.UpdateCrawlInput) (core.CrawlHistory, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	crawl, ok := v.s.crawls[strings.TrimSpace(id)]
	if !ok {
		return core.CrawlHistory{}, fmt.Errorf("%w: %s", core.ErrCrawlNotFound, id)
	}
	now := v.s.Now()
	if input.Status != "" && input.Status != crawl.Status {
		if err := crawl.TransitionTo(input.Status, now); err != nil {
			return core.CrawlHistory{}, err
		}
	}
	if input.FinishedAt != nil {
		crawl.FinishedAt = input.FinishedAt
	}
	if input.Stats != nil {
		crawl.Stats = input.Stats
	}
	if strings.TrimSpace(input.ErrorMessage) != "" {
		crawl.ErrorMessage = strings.TrimSpace(input.ErrorMessage)
	}
	if input.Debug != nil {
		crawl.Debug = input.Debug
	}
	v.s.crawls[crawl.ID] = crawl
	return crawl, nil
}

func (v crawlStore) FindLastSuccessful(ctx context.Context, connectionID string, crawlType core.CrawlType) (core.CrawlHistory, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var best *core.CrawlHistory
	for _, crawl := range v.s.crawls {
		crawl := crawl
		if crawl.ConnectionID != connectionID || crawl.Type != crawlType {
			continue
		}
		if crawl.Status != core.CrawlStatusSuccess || crawl.FinishedAt == nil {
			continue
		}
		if best == nil || crawl.FinishedAt.After(*best.FinishedAt) {
			best = &crawl
		}
	}
	if best == nil {
		return core.CrawlHistory{}, fmt.Errorf("%w: no successful %s crawl for %s", core.ErrCrawlNotFound, crawlType, connectionID)
	}
	return *best, nil
}

func (v crawlStore) ListByConnection(ctx context.Context, connectionID string, limit int) ([]core.CrawlHistory, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.CrawlHistory
	for _, crawl := range v.s.crawls {
		if crawl.ConnectionID == connectionID {
			out = append(out, crawl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func userKey(connectionID, providerUserID string) string {
	return connectionID + ":" + providerUserID
}

type userStore struct{ s *Store }

func (v userStore) BulkUpsert(ctx context.Context, users []core.WorkspaceUser) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := v.s.Now()
	count := 0
	for _, user := range users {
		if strings.TrimSpace(user.ProviderUserID) == "" {
			continue
		}
		key := userKey(user.ConnectionID, user.ProviderUserID)
		if existing, ok := v.s.users[key]; ok {
			user.ID = existing.ID
			user.CreatedAt = existing.CreatedAt
		} else {
			user.ID = uuid.NewString()
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		v.s.users[key] = user
		count++
	}
	return count, nil
}

func (v userStore) FindByEmail(ctx context.Context, organizationID, email string) (core.WorkspaceUser, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range v.s.users {
		if user.OrganizationID == organizationID && strings.ToLower(user.Email) == email {
			return user, nil
		}
	}
	return core.WorkspaceUser{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, email)
}

func (v userStore) FindByProviderID(ctx context.Context, connectionID, providerUserID string) (core.WorkspaceUser, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	user, ok := v.s.users[userKey(connectionID, providerUserID)]
	if !ok {
		return core.WorkspaceUser{}, fmt.Errorf("%w: %s", core.ErrUserNotFound, providerUserID)
	}
	return user, nil
}

func (v userStore) ListByConnection(ctx context.Context, connectionID string) ([]core.WorkspaceUser, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.WorkspaceUser
	for _, user := range v.s.users {
		if user.ConnectionID == connectionID {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderUserID < out[j].ProviderUserID })
	return out, nil
}

type groupStore struct{ s *Store }

func (v groupStore) BulkUpsert(ctx context.Context, groups []core.WorkspaceGroup) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := v.s.Now()
	count := 0
	for _, group := range groups {
		if strings.TrimSpace(group.ProviderGroupID) == "" {
			continue
		}
		key := group.ConnectionID + ":" + group.ProviderGroupID
		if existing, ok := v.s.groups[key]; ok {
			group.ID = existing.ID
			group.CreatedAt = existing.CreatedAt
		} else {
			group.ID = uuid.NewString()
			group.CreatedAt = now
		}
		group.UpdatedAt = now
		v.s.groups[key] = group
		count++
	}
	return count, nil
}

func (v groupStore) ListByConnection(ctx context.Context, connectionID string) ([]core.WorkspaceGroup, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.WorkspaceGroup
	for _, group := range v.s.groups {
		if group.ConnectionID == connectionID {
			out = append(out, group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderGroupID < out[j].ProviderGroupID })
	return out, nil
}

type membershipStore struct{ s *Store }

func (v membershipStore) ReplaceForGroup(ctx context.Context, connectionID, providerGroupID string, members []core.GroupMembership) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := connectionID + ":" + providerGroupID
	now := v.s.Now()
	replaced := make([]core.GroupMembership, 0, len(members))
	for _, member := range members {
		if strings.TrimSpace(member.ProviderUserID) == "" {
			continue
		}
		member.ID = uuid.NewString()
		member.ConnectionID = connectionID
		member.ProviderGroupID = providerGroupID
		member.CreatedAt = now
		replaced = append(replaced, member)
	}
	v.s.memberships[key] = replaced
	return len(replaced), nil
}

func (v membershipStore) ListForGroup(ctx context.Context, connectionID, providerGroupID string) ([]core.GroupMembership, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	members := v.s.memberships[connectionID+":"+providerGroupID]
	return append([]core.GroupMembership(nil), members...), nil
}

func appKey(organizationID, clientID string) string {
	return organizationID + ":" + clientID
}

type appStore struct{ s *Store }

func (v appStore) Upsert(ctx context.Context, app core.OAuthApp) (core.OAuthApp, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if strings.TrimSpace(app.ClientID) == "" {
		return core.OAuthApp{}, fmt.Errorf("memstore: app client id is required")
	}
	key := appKey(app.OrganizationID, app.ClientID)
	now := v.s.Now()
	if existing, ok := v.s.apps[key]; ok {
		if strings.TrimSpace(app.Name) != "" {
			existing.Name = app.Name
		}
		if strings.TrimSpace(app.ClientType) != "" {
			existing.ClientType = app.ClientType
		}
		existing.IsSystemApp = existing.IsSystemApp || app.IsSystemApp
		existing.Scopes = mergeScopes(existing.Scopes, app.Scopes)
		if app.Raw != nil {
			existing.Raw = app.Raw
		}
		existing.UpdatedAt = now
		v.s.apps[key] = existing
		return existing, nil
	}
	app.ID = uuid.NewString()
	app.CreatedAt = now
	app.UpdatedAt = now
	v.s.apps[key] = app
	return app, nil
}

func (v appStore) FindByClientID(ctx context.Context, organizationID, clientID string) (core.OAuthApp, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	app, ok := v.s.apps[appKey(organizationID, clientID)]
	if !ok {
		return core.OAuthApp{}, fmt.Errorf("memstore: app not found: %s", clientID)
	}
	return app, nil
}

func (v appStore) ListByOrganization(ctx context.Context, organizationID string) ([]core.OAuthApp, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.OAuthApp
	for _, app := range v.s.apps {
		if app.OrganizationID == organizationID {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func grantKey(organizationID, userID, appID string) string {
	return organizationID + ":" + userID + ":" + appID
}

type grantStore struct{ s *Store }

func (v grantStore) Upsert(ctx context.Context, input core.UpsertGrantInput) (core.AppGrant, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := grantKey(input.OrganizationID, input.UserID, input.AppID)
	now := input.SeenAt
	if now.IsZero() {
		now = v.s.Now()
	}
	if existing, ok := v.s.grants[key]; ok {
		existing.Scopes = mergeScopes(existing.Scopes, input.Scopes)
		seen := now
		existing.LastSeenAt = &seen
		if input.Raw != nil {
			existing.Raw = input.Raw
		}
		if input.MarkActive {
			if existing.Status == core.GrantStatusRevoked {
				if err := existing.TransitionTo(core.GrantStatusActive, now); err != nil {
					return core.AppGrant{}, err
				}
			} else {
				granted := now
				existing.GrantedAt = &granted
			}
		}
		if input.MarkRevoked && existing.Status == core.GrantStatusActive {
			if err := existing.TransitionTo(core.GrantStatusRevoked, now); err != nil {
				return core.AppGrant{}, err
			}
		}
		existing.UpdatedAt = now
		v.s.grants[key] = existing
		return existing, nil
	}

	granted := now
	seen := now
	grant := core.AppGrant{
		ID:             uuid.NewString(),
		OrganizationID: input.OrganizationID,
		ConnectionID:   input.ConnectionID,
		UserID:         input.UserID,
		AppID:          input.AppID,
		Status:         core.GrantStatusActive,
		Scopes:         mergeScopes(nil, input.Scopes),
		GrantedAt:      &granted,
		LastSeenAt:     &seen,
		Raw:            input.Raw,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if input.MarkRevoked {
		revoked := now
		grant.Status = core.GrantStatusRevoked
		grant.GrantedAt = nil
		grant.RevokedAt = &revoked
	}
	v.s.grants[key] = grant
	return grant, nil
}

func (v grantStore) Revoke(ctx context.Context, organizationID, userID, appID string, at time.Time) (core.AppGrant, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := grantKey(organizationID, userID, appID)
	grant, ok := v.s.grants[key]
	if !ok {
		return core.AppGrant{}, fmt.Errorf("memstore: grant not found: %s", key)
	}
	if grant.Status == core.GrantStatusActive {
		if err := grant.TransitionTo(core.GrantStatusRevoked, at.UTC()); err != nil {
			return core.AppGrant{}, err
		}
	}
	v.s.grants[key] = grant
	return grant, nil
}

func (v grantStore) Find(ctx context.Context, organizationID, userID, appID string) (core.AppGrant, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	grant, ok := v.s.grants[grantKey(organizationID, userID, appID)]
	if !ok {
		return core.AppGrant{}, fmt.Errorf("memstore: grant not found")
	}
	return grant, nil
}

func (v grantStore) ListByUser(ctx context.Context, organizationID, userID string) ([]core.AppGrant, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.AppGrant
	for _, grant := range v.s.grants {
		if grant.OrganizationID == organizationID && grant.UserID == userID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppID < out[j].AppID })
	return out, nil
}

type eventStore struct{ s *Store }

func (v eventStore) Exists(ctx context.Context, organizationID, userID, appID, eventType string, eventTime time.Time) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, event := range v.s.events {
		if event.OrganizationID == organizationID &&
			event.UserID == userID &&
			event.AppID == appID &&
			event.EventType == eventType &&
			event.EventTime.Equal(eventTime) {
			return true, nil
		}
	}
	return false, nil
}

func (v eventStore) Create(ctx context.Context, event core.OAuthEvent) (core.OAuthEvent, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = v.s.Now()
	}
	v.s.events = append(v.s.events, event)
	return event, nil
}

func (v eventStore) ListByUser(ctx context.Context, organizationID, userID string, limit int) ([]core.OAuthEvent, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []core.OAuthEvent
	for _, event := range v.s.events {
		if event.OrganizationID == organizationID && event.UserID == userID {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventTime.After(out[j].EventTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type authConfigStore struct{ s *Store }

func (v authConfigStore) FindBySlug(ctx context.Context, providerSlug string) (core.AuthConfig, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	config, ok := v.s.authConfigs[strings.TrimSpace(providerSlug)]
	if !ok {
		return core.AuthConfig{}, fmt.Errorf("%w: %s", core.ErrAuthConfigNotFound, providerSlug)
	}
	return config, nil
}

func mergeScopes(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, scope := range append(append([]string(nil), existing...), incoming...) {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}
