package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type connectionRecord struct {
	bun.BaseModel `bun:"table:workspace_connections,alias:wc"`

	ID                    string     `bun:"id,pk"`
	OrganizationID        string     `bun:"organization_id,notnull"`
	ProviderSlug          string     `bun:"provider_slug,notnull"`
	ExternalAccountID     string     `bun:"external_account_id"`
	EncryptedAccessToken  []byte     `bun:"encrypted_access_token"`
	EncryptedRefreshToken []byte     `bun:"encrypted_refresh_token"`
	TokenExpiresAt        *time.Time `bun:"token_expires_at,nullzero"`
	GrantedScopes         []string   `bun:"granted_scopes,type:jsonb"`
	Status                string     `bun:"status,notnull"`
	LastErrorCode         string     `bun:"last_error_code"`
	LastErrorMessage      string     `bun:"last_error_message"`
	RefreshCount          int        `bun:"refresh_count,notnull"`
	LastSyncedAt          *time.Time `bun:"last_synced_at,nullzero"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt             *time.Time `bun:"deleted_at,soft_delete"`
}

type crawlHistoryRecord struct {
	bun.BaseModel `bun:"table:crawl_history,alias:ch"`

	ID             string         `bun:"id,pk"`
	OrganizationID string         `bun:"organization_id,notnull"`
	ConnectionID   string         `bun:"connection_id,notnull"`
	CrawlType      string         `bun:"crawl_type,notnull"`
	Status         string         `bun:"status,notnull"`
	StartedAt      time.Time      `bun:"started_at,nullzero,notnull"`
	FinishedAt     *time.Time     `bun:"finished_at,nullzero"`
	Stats          map[string]any `bun:"stats,type:jsonb"`
	ErrorMessage   string         `bun:"error_message"`
	Debug          map[string]any `bun:"debug,type:jsonb"`
}

type workspaceUserRecord struct {
	bun.BaseModel `bun:"table:workspace_users,alias:wu"`

	ID               string         `bun:"id,pk"`
	OrganizationID   string         `bun:"organization_id,notnull"`
	ConnectionID     string         `bun:"connection_id,notnull"`
	ProviderUserID   string         `bun:"provider_user_id,notnull"`
	Email            string         `bun:"email"`
	FullName         string         `bun:"full_name"`
	GivenName        string         `bun:"given_name"`
	FamilyName       string         `bun:"family_name"`
	IsAdmin          bool           `bun:"is_admin,notnull"`
	IsDelegatedAdmin bool           `bun:"is_delegated_admin,notnull"`
	Suspended        bool           `bun:"suspended,notnull"`
	OrgUnitPath      string         `bun:"org_unit_path"`
	AvatarURL        string         `bun:"avatar_url"`
	Raw              map[string]any `bun:"raw,type:jsonb"`
	CreatedAt        time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type workspaceGroupRecord struct {
	bun.BaseModel `bun:"table:workspace_groups,alias:wg"`

	ID              string         `bun:"id,pk"`
	OrganizationID  string         `bun:"organization_id,notnull"`
	ConnectionID    string         `bun:"connection_id,notnull"`
	ProviderGroupID string         `bun:"provider_group_id,notnull"`
	Email           string         `bun:"email"`
	Name            string         `bun:"name"`
	Description     string         `bun:"description"`
	MemberCount     int            `bun:"member_count,notnull"`
	Raw             map[string]any `bun:"raw,type:jsonb"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type groupMembershipRecord struct {
	bun.BaseModel `bun:"table:group_memberships,alias:gm"`

	ID              string    `bun:"id,pk"`
	OrganizationID  string    `bun:"organization_id,notnull"`
	ConnectionID    string    `bun:"connection_id,notnull"`
	ProviderGroupID string    `bun:"provider_group_id,notnull"`
	ProviderUserID  string    `bun:"provider_user_id,notnull"`
	Email           string    `bun:"email"`
	Role            string    `bun:"role"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type oauthAppRecord struct {
	bun.BaseModel `bun:"table:oauth_apps,alias:oa"`

	ID             string         `bun:"id,pk"`
	OrganizationID string         `bun:"organization_id,notnull"`
	ConnectionID   string         `bun:"connection_id"`
	ClientID       string         `bun:"client_id,notnull"`
	Name           string         `bun:"name"`
	ClientType     string         `bun:"client_type"`
	IsSystemApp    bool           `bun:"is_system_app,notnull"`
	Scopes         []string       `bun:"scopes,type:jsonb"`
	Raw            map[string]any `bun:"raw,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type appGrantRecord struct {
	bun.BaseModel `bun:"table:app_grants,alias:ag"`

	ID             string         `bun:"id,pk"`
	OrganizationID string         `bun:"organization_id,notnull"`
	ConnectionID   string         `bun:"connection_id"`
	UserID         string         `bun:"user_id,notnull"`
	AppID          string         `bun:"app_id,notnull"`
	Status         string         `bun:"status,notnull"`
	Scopes         []string       `bun:"scopes,type:jsonb"`
	GrantedAt      *time.Time     `bun:"granted_at,nullzero"`
	RevokedAt      *time.Time     `bun:"revoked_at,nullzero"`
	LastSeenAt     *time.Time     `bun:"last_seen_at,nullzero"`
	Raw            map[string]any `bun:"raw,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type oauthEventRecord struct {
	bun.BaseModel `bun:"table:oauth_events,alias:oe"`

	ID             string         `bun:"id,pk"`
	OrganizationID string         `bun:"organization_id,notnull"`
	ConnectionID   string         `bun:"connection_id"`
	UserID         string         `bun:"user_id,notnull"`
	AppID          string         `bun:"app_id,notnull"`
	EventType      string         `bun:"event_type,notnull"`
	EventTime      time.Time      `bun:"event_time,nullzero,notnull"`
	Raw            map[string]any `bun:"raw,type:jsonb"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type authConfigRecord struct {
	bun.BaseModel `bun:"table:provider_auth_configs,alias:pac"`

	ID           string `bun:"id,pk"`
	ProviderSlug string `bun:"provider_slug,notnull"`
	ClientID     string `bun:"client_id,notnull"`
	ClientSecret string `bun:"client_secret,notnull"`
	RedirectURI  string `bun:"redirect_uri"`
}
