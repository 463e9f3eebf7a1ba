package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrInvalidSyncStep = errors.New("core: invalid sync step")

// SyncStep identifies one provider endpoint in the ingestion pipeline. Every
// switch over SyncStep must carry a default arm returning ErrInvalidSyncStep
// so an unhandled step fails loudly instead of silently skipping work.
type SyncStep string

const (
	SyncStepUsers        SyncStep = "users"
	SyncStepGroups       SyncStep = "groups"
	SyncStepGroupMembers SyncStep = "group_members"
	SyncStepUserTokens   SyncStep = "user_tokens"
	SyncStepTokenEvents  SyncStep = "token_events"
)

func ParseSyncStep(raw string) (SyncStep, error) {
	switch SyncStep(strings.TrimSpace(strings.ToLower(raw))) {
	case SyncStepUsers:
		return SyncStepUsers, nil
	case SyncStepGroups:
		return SyncStepGroups, nil
	case SyncStepGroupMembers:
		return SyncStepGroupMembers, nil
	case SyncStepUserTokens:
		return SyncStepUserTokens, nil
	case SyncStepTokenEvents:
		return SyncStepTokenEvents, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSyncStep, raw)
	}
}

// UserRecord is the provider-neutral shape a directory user is adapted into
// before ingestion.
type UserRecord struct {
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
}

type GroupRecord struct {
	ProviderGroupID string
	Email           string
	Name            string
	Description     string
	MemberCount     int
	Raw             map[string]any
}

type MemberRecord struct {
	ProviderGroupID string
	ProviderUserID  string
	Email           string
	Role            string
}

// TokenRecord is one entry from a user's current OAuth token inventory.
type TokenRecord struct {
	UserProviderID string
	ClientID       string
	DisplayText    string
	ClientType     string
	IsSystemApp    bool
	Scopes         []string
	Raw            map[string]any
}

// TokenEventRecord is one OAuth activity event. EventTime may be zero when
// the provider omitted the timestamp; ingestion substitutes its own clock.
type TokenEventRecord struct {
	UserEmail  string
	ClientID   string
	AppName    string
	ClientType string
	EventType  string
	EventTime  time.Time
	Scopes     []string
	Raw        map[string]any
}

// AuthContext is the in-memory plaintext credential used to sign requests.
// It is never persisted.
type AuthContext struct {
	AccessToken string
	TokenType   string
	ExpiresAt   *time.Time
}

func (a AuthContext) AuthorizationHeader() string {
	tokenType := strings.TrimSpace(a.TokenType)
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return tokenType + " " + strings.TrimSpace(a.AccessToken)
}

// TokenResponse is the decoded payload of a token grant or refresh exchange.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	Scope        string
}

func (t TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	expires := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &expires
}

func (t TokenResponse) Scopes() []string {
	return strings.Fields(t.Scope)
}

// RequestDefinition describes one provider API call before transport concerns
// (auth header, retries, rate limiting) are applied.
type RequestDefinition struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	Cost    int
}

// APIResponse is a decoded provider response. Data is nil when the body was
// empty or not a JSON object.
type APIResponse struct {
	StatusCode int
	Data       map[string]any
	Headers    http.Header
}

func (r APIResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r APIResponse) IsRateLimited() bool {
	return r.StatusCode == http.StatusTooManyRequests
}

func (r APIResponse) IsServerError() bool {
	return r.StatusCode >= 500
}

// RetryAfter reads the server's requested backoff, zero when absent or
// malformed.
func (r APIResponse) RetryAfter() time.Duration {
	raw := strings.TrimSpace(r.Headers.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	seconds, err := time.ParseDuration(raw + "s")
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

// PaginationStrategy interprets a provider's paging contract over decoded
// response bodies. Implementations live in the transport package.
type PaginationStrategy interface {
	InitialParams() map[string]string
	ExtractItems(data map[string]any) []map[string]any
	// NextParams returns the request parameters for the following page. The
	// second result is false once the sequence is exhausted.
	NextParams(data map[string]any, current map[string]string) (map[string]string, bool)
}

// BatchSeq is a finite pull-based sequence of adapted record batches. Next
// reports false once drained; the sequence does not restart. Abandoning a
// sequence early is allowed and fetches no further pages.
type BatchSeq[T any] struct {
	next func(ctx context.Context) ([]T, bool, error)
	done bool
}

func NewBatchSeq[T any](next func(ctx context.Context) ([]T, bool, error)) *BatchSeq[T] {
	return &BatchSeq[T]{next: next}
}

// Next yields the following batch. It returns (nil, false, nil) once the
// sequence is exhausted, and latches done after the first terminal result.
func (s *BatchSeq[T]) Next(ctx context.Context) ([]T, bool, error) {
	if s == nil || s.next == nil || s.done {
		return nil, false, nil
	}
	batch, ok, err := s.next(ctx)
	if err != nil || !ok {
		s.done = true
	}
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return batch, true, nil
}
