package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger carried through every component.
type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SecretProvider encrypts token material before it reaches storage and
// decrypts it on the way back out. Implementations must be safe for
// concurrent use.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// UpdateTokensInput carries already-encrypted token material. A nil refresh
// token leaves the stored refresh token untouched.
type UpdateTokensInput struct {
	EncryptedAccessToken  []byte
	EncryptedRefreshToken []byte
	TokenExpiresAt        *time.Time
	GrantedScopes         []string
	BumpRefreshCount      bool
}

type ConnectionStore interface {
	Create(ctx context.Context, conn Connection) (Connection, error)
	GetByID(ctx context.Context, id string) (Connection, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]Connection, error)
	UpdateTokens(ctx context.Context, id string, input UpdateTokensInput) (Connection, error)
	UpdateStatus(ctx context.Context, id string, status ConnectionStatus, errorCode, errorMessage string) (Connection, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
	// Disconnect soft deletes the connection and clears its token material.
	Disconnect(ctx context.Context, id string) error
}

type UpdateCrawlInput struct {
	Status       CrawlStatus
	FinishedAt   *time.Time
	Stats        map[string]any
	ErrorMessage string
	Debug        map[string]any
}

type CrawlStore interface {
	Create(ctx context.Context, crawl CrawlHistory) (CrawlHistory, error)
	Update(ctx context.Context, id string, input UpdateCrawlInput) (CrawlHistory, error)
	// FindLastSuccessful returns the most recent crawl of the given type that
	// finished with status success, or ErrCrawlNotFound.
	FindLastSuccessful(ctx context.Context, connectionID string, crawlType CrawlType) (CrawlHistory, error)
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]CrawlHistory, error)
}

type UserStore interface {
	BulkUpsert(ctx context.Context, users []WorkspaceUser) (int, error)
	FindByEmail(ctx context.Context, organizationID, email string) (WorkspaceUser, error)
	FindByProviderID(ctx context.Context, connectionID, providerUserID string) (WorkspaceUser, error)
	ListByConnection(ctx context.Context, connectionID string) ([]WorkspaceUser, error)
}

type GroupStore interface {
	BulkUpsert(ctx context.Context, groups []WorkspaceGroup) (int, error)
	ListByConnection(ctx context.Context, connectionID string) ([]WorkspaceGroup, error)
}

type MembershipStore interface {
	// ReplaceForGroup swaps the full membership set of one group in a single
	// transaction and returns the new member count.
	ReplaceForGroup(ctx context.Context, connectionID, providerGroupID string, members []GroupMembership) (int, error)
	ListForGroup(ctx context.Context, connectionID, providerGroupID string) ([]GroupMembership, error)
}

type AppStore interface {
	// Upsert keys on (organization, client id) and returns the stored row.
	Upsert(ctx context.Context, app OAuthApp) (OAuthApp, error)
	FindByClientID(ctx context.Context, organizationID, clientID string) (OAuthApp, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]OAuthApp, error)
}

// UpsertGrantInput asserts the state of one (user, app) grant. MarkActive
// distinguishes snapshot/authorize writes, which activate, from merges that
// only refresh metadata. MarkRevoked makes the write a revocation even when
// no grant row exists yet; at most one of the two may be set.
type UpsertGrantInput struct {
	OrganizationID string
	ConnectionID   string
	UserID         string
	AppID          string
	Scopes         []string
	MarkActive     bool
	MarkRevoked    bool
	SeenAt         time.Time
	Raw            map[string]any
}

type GrantStore interface {
	Upsert(ctx context.Context, input UpsertGrantInput) (AppGrant, error)
	Revoke(ctx context.Context, organizationID, userID, appID string, at time.Time) (AppGrant, error)
	Find(ctx context.Context, organizationID, userID, appID string) (AppGrant, error)
	ListByUser(ctx context.Context, organizationID, userID string) ([]AppGrant, error)
}

type EventStore interface {
	// Exists checks the ledger's natural key so replayed activity windows do
	// not duplicate rows.
	Exists(ctx context.Context, organizationID, userID, appID, eventType string, eventTime time.Time) (bool, error)
	Create(ctx context.Context, event OAuthEvent) (OAuthEvent, error)
	ListByUser(ctx context.Context, organizationID, userID string, limit int) ([]OAuthEvent, error)
}

type AuthConfigStore interface {
	FindBySlug(ctx context.Context, providerSlug string) (AuthConfig, error)
}

// StoreProvider bundles every persistence contract a wired deployment needs.
// Backends hand this to composition code so callers never depend on a
// concrete store package.
type StoreProvider interface {
	ConnectionStore() ConnectionStore
	CrawlStore() CrawlStore
	UserStore() UserStore
	GroupStore() GroupStore
	MembershipStore() MembershipStore
	AppStore() AppStore
	GrantStore() GrantStore
	EventStore() EventStore
	AuthConfigStore() AuthConfigStore
}

// CredentialSource resolves a usable in-memory credential for a connection,
// refreshing the stored token when it is inside the expiry buffer.
type CredentialSource interface {
	GetValidCredentials(ctx context.Context, connectionID string, provider Provider, auth AuthConfig) (AuthContext, error)
	StoreCredentials(ctx context.Context, connectionID string, token TokenResponse) (Connection, error)
	// HandleTokenError reacts to a provider auth failure. It returns false
	// when the connection needs re-authorization or rescoping, true when
	// the failure may be transient.
	HandleTokenError(ctx context.Context, connectionID string, statusCode int) (bool, error)
}

// Provider adapts one workspace vendor's API into the canonical record
// shapes. Fetch sequences are finite and non-restartable.
type Provider interface {
	Slug() string
	// Pipeline lists the steps a full sync runs, in order.
	Pipeline() []SyncStep
	Paginator(step SyncStep) (PaginationStrategy, error)
	Request(step SyncStep, params map[string]string) (RequestDefinition, error)

	FetchUsers(ctx context.Context, auth AuthContext) (*BatchSeq[UserRecord], error)
	FetchGroups(ctx context.Context, auth AuthContext) (*BatchSeq[GroupRecord], error)
	FetchGroupMembers(ctx context.Context, auth AuthContext, providerGroupID string) (*BatchSeq[MemberRecord], error)
	FetchUserTokens(ctx context.Context, auth AuthContext, userProviderID string) (*BatchSeq[TokenRecord], error)
	FetchTokenEvents(ctx context.Context, auth AuthContext, since time.Time) (*BatchSeq[TokenEventRecord], error)

	ExchangeCode(ctx context.Context, code string, auth AuthConfig) (TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string, auth AuthConfig) (TokenResponse, error)
	// RevokeAppAccess reports whether the provider accepted the revocation;
	// an already-absent grant counts as accepted.
	RevokeAppAccess(ctx context.Context, authCtx AuthContext, userProviderID, clientID string) (bool, error)
}

// Registry resolves providers by slug. Sync jobs look providers up per run
// instead of holding one per manager instance.
type Registry interface {
	Register(provider Provider) error
	Get(slug string) (Provider, bool)
	List() []Provider
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
