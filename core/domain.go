package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidConnectionStatusTransition = errors.New("core: invalid connection status transition")
	ErrInvalidCrawlStatusTransition      = errors.New("core: invalid crawl status transition")
	ErrInvalidGrantStatusTransition      = errors.New("core: invalid grant status transition")
	ErrInvalidCrawlType                  = errors.New("core: invalid crawl type")
	ErrConnectionNotFound                = errors.New("core: connection not found")
	ErrCrawlNotFound                     = errors.New("core: crawl not found")
	ErrProviderNotFound                  = errors.New("core: provider not found")
	ErrAuthConfigNotFound                = errors.New("core: auth config not found")
	ErrUserNotFound                      = errors.New("core: workspace user not found")
	ErrTokenExpired                      = errors.New("core: access token expired")
	ErrTokenRefreshFailed                = errors.New("core: token refresh failed")
	ErrInsufficientScopes                = errors.New("core: insufficient oauth scopes")
)

type ConnectionStatus string

const (
	ConnectionStatusActive             ConnectionStatus = "active"
	ConnectionStatusTokenExpired       ConnectionStatus = "token_expired"
	ConnectionStatusInsufficientScopes ConnectionStatus = "insufficient_scopes"
	ConnectionStatusRefreshFailed      ConnectionStatus = "token_refresh_failed"
	ConnectionStatusDisconnected       ConnectionStatus = "disconnected"
)

// Connection is a tenant's authorized link to a workspace provider. Token
// material is stored encrypted; plaintext only exists in memory while a
// request is being signed.
type Connection struct {
	ID                    string
	OrganizationID        string
	ProviderSlug          string
	ExternalAccountID     string
	EncryptedAccessToken  []byte
	EncryptedRefreshToken []byte
	TokenExpiresAt        *time.Time
	GrantedScopes         []string
	Status                ConnectionStatus
	LastErrorCode         string
	LastErrorMessage      string
	RefreshCount          int
	LastSyncedAt          *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	DeletedAt             *time.Time
}

func (c *Connection) TransitionTo(status ConnectionStatus, reason string, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		if strings.TrimSpace(reason) != "" {
			c.LastErrorMessage = strings.TrimSpace(reason)
		}
		return nil
	}
	if !connectionTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidConnectionStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		c.LastErrorMessage = strings.TrimSpace(reason)
	}
	if status == ConnectionStatusActive {
		c.LastErrorCode = ""
		c.LastErrorMessage = ""
	}
	return nil
}

func connectionTransitionAllowed(current, next ConnectionStatus) bool {
	allowed := map[ConnectionStatus]map[ConnectionStatus]struct{}{
		ConnectionStatusActive: {
			ConnectionStatusTokenExpired:       {},
			ConnectionStatusInsufficientScopes: {},
			ConnectionStatusRefreshFailed:      {},
			ConnectionStatusDisconnected:       {},
		},
		ConnectionStatusTokenExpired: {
			ConnectionStatusActive:        {},
			ConnectionStatusRefreshFailed: {},
			ConnectionStatusDisconnected:  {},
		},
		ConnectionStatusInsufficientScopes: {
			ConnectionStatusActive:       {},
			ConnectionStatusDisconnected: {},
		},
		ConnectionStatusRefreshFailed: {
			ConnectionStatusActive:       {},
			ConnectionStatusTokenExpired: {},
			ConnectionStatusDisconnected: {},
		},
		ConnectionStatusDisconnected: {
			ConnectionStatusActive: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// TokenFresh reports whether the access token is still usable at the given
// instant, keeping the configured buffer ahead of the recorded expiry.
func (c *Connection) TokenFresh(now time.Time, buffer time.Duration) bool {
	if c == nil || len(c.EncryptedAccessToken) == 0 {
		return false
	}
	if c.TokenExpiresAt == nil {
		return true
	}
	return now.Add(buffer).Before(c.TokenExpiresAt.UTC())
}

type CrawlType string

const (
	CrawlTypeUsers  CrawlType = "users"
	CrawlTypeGroups CrawlType = "groups"
	CrawlTypeTokens CrawlType = "tokens"
	CrawlTypeEvents CrawlType = "events"
)

func ParseCrawlType(raw string) (CrawlType, error) {
	switch CrawlType(strings.TrimSpace(strings.ToLower(raw))) {
	case CrawlTypeUsers:
		return CrawlTypeUsers, nil
	case CrawlTypeGroups:
		return CrawlTypeGroups, nil
	case CrawlTypeTokens:
		return CrawlTypeTokens, nil
	case CrawlTypeEvents:
		return CrawlTypeEvents, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCrawlType, raw)
	}
}

type CrawlStatus string

const (
	CrawlStatusRunning CrawlStatus = "running"
	CrawlStatusSuccess CrawlStatus = "success"
	CrawlStatusError   CrawlStatus = "error"
	// CrawlStatusPartial is reserved for crawls that land some batches before
	// failing; nothing writes it yet.
	CrawlStatusPartial CrawlStatus = "partial"
)

// CrawlHistory is the audit row bracketing one sync phase for one connection.
type CrawlHistory struct {
	ID             string
	OrganizationID string
	ConnectionID   string
	Type           CrawlType
	Status         CrawlStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	Stats          map[string]any
	ErrorMessage   string
	Debug          map[string]any
}

func (c *CrawlHistory) TransitionTo(status CrawlStatus, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		return nil
	}
	if !crawlTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCrawlStatusTransition, c.Status, status)
	}
	c.Status = status
	if status != CrawlStatusRunning {
		finished := now
		c.FinishedAt = &finished
	}
	return nil
}

func crawlTransitionAllowed(current, next CrawlStatus) bool {
	allowed := map[CrawlStatus]map[CrawlStatus]struct{}{
		CrawlStatusRunning: {
			CrawlStatusSuccess: {},
			CrawlStatusError:   {},
			CrawlStatusPartial: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// WorkspaceUser is one directory identity as last observed from the provider.
type WorkspaceUser struct {
	ID               string
	OrganizationID   string
	ConnectionID     string
	ProviderUserID   string
	Email            string
	FullName         string
	GivenName        string
	FamilyName       string
	IsAdmin          bool
	IsDelegatedAdmin bool
	Suspended        bool
	OrgUnitPath      string
	AvatarURL        string
	Raw              map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type WorkspaceGroup struct {
	ID              string
	OrganizationID  string
	ConnectionID    string
	ProviderGroupID string
	Email           string
	Name            string
	Description     string
	MemberCount     int
	Raw             map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GroupMembership links a directory user to a group, both referenced by the
// provider's own identifiers so replacement does not depend on local rows.
type GroupMembership struct {
	ID              string
	OrganizationID  string
	ConnectionID    string
	ProviderGroupID string
	ProviderUserID  string
	Email           string
	Role            string
	CreatedAt       time.Time
}

// OAuthApp is a third-party application observed holding or requesting access
// to the tenant's workspace data.
type OAuthApp struct {
	ID             string
	OrganizationID string
	ConnectionID   string
	ClientID       string
	Name           string
	ClientType     string
	IsSystemApp    bool
	Scopes         []string
	Raw            map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "active"
	GrantStatusRevoked GrantStatus = "revoked"
)

// AppGrant is the current state of one user's authorization of one app.
// Grants flip between active and revoked as authorize/revoke activity arrives;
// snapshots only ever assert active.
type AppGrant struct {
	ID             string
	OrganizationID string
	ConnectionID   string
	UserID         string
	AppID          string
	Status         GrantStatus
	Scopes         []string
	GrantedAt      *time.Time
	RevokedAt      *time.Time
	LastSeenAt     *time.Time
	Raw            map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (g *AppGrant) TransitionTo(status GrantStatus, now time.Time) error {
	if g == nil {
		return nil
	}
	if g.Status == status {
		return nil
	}
	switch {
	case g.Status == GrantStatusActive && status == GrantStatusRevoked:
		revoked := now
		g.RevokedAt = &revoked
	case g.Status == GrantStatusRevoked && status == GrantStatusActive:
		granted := now
		g.GrantedAt = &granted
		g.RevokedAt = nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidGrantStatusTransition, g.Status, status)
	}
	g.Status = status
	g.UpdatedAt = now
	return nil
}

// OAuthEvent is one row in the append-only activity ledger. The natural key
// (organization, user, app, event type, event time) makes replayed activity
// windows idempotent.
type OAuthEvent struct {
	ID             string
	OrganizationID string
	ConnectionID   string
	UserID         string
	AppID          string
	EventType      string
	EventTime      time.Time
	Raw            map[string]any
	CreatedAt      time.Time
}

const (
	EventTypeAuthorize = "authorize"
	EventTypeRevoke    = "revoke"
	EventTypeActivity  = "activity"
)

// AuthConfig carries the OAuth client credentials registered for a provider.
type AuthConfig struct {
	ID           string
	ProviderSlug string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}
