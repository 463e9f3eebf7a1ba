package credentials

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
)

const defaultExpiryBuffer = 300 * time.Second

type Option func(*Manager)

// Manager owns token freshness for connections: it hands out decrypted
// credentials, refreshes tokens that are inside the expiry buffer, and
// records auth failures on the connection row.
type Manager struct {
	connections core.ConnectionStore
	cipher      core.SecretProvider
	buffer      time.Duration
	logger      core.Logger

	Now func() time.Time
}

func WithExpiryBuffer(buffer time.Duration) Option {
	return func(m *Manager) {
		if buffer > 0 {
			m.buffer = buffer
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(connections core.ConnectionStore, cipher core.SecretProvider, opts ...Option) (*Manager, error) {
	if connections == nil {
		return nil, fmt.Errorf("credentials: connection store is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("credentials: secret provider is required")
	}
	manager := &Manager{
		connections: connections,
		cipher:      cipher,
		buffer:      defaultExpiryBuffer,
		logger:      glog.Nop(),
		Now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(manager)
	}
	return manager, nil
}

// GetValidCredentials returns a usable in-memory credential for the
// connection, refreshing through the provider when the stored token is
// expired or inside the buffer. A refresh failure marks the connection and
// returns ErrTokenRefreshFailed.
func (m *Manager) GetValidCredentials(ctx context.Context, connectionID string, provider core.Provider, auth core.AuthConfig) (core.AuthContext, error) {
	if m == nil {
		return core.AuthContext{}, fmt.Errorf("credentials: manager is nil")
	}
	conn, err := m.connections.GetByID(ctx, connectionID)
	if err != nil {
		return core.AuthContext{}, err
	}
	if len(conn.EncryptedAccessToken) == 0 {
		return core.AuthContext{}, fmt.Errorf("%w: connection %s has no token material", core.ErrTokenExpired, conn.ID)
	}

	now := m.Now()
	if conn.TokenFresh(now, m.buffer) {
		plaintext, err := m.cipher.Decrypt(ctx, conn.EncryptedAccessToken)
		if err != nil {
			return core.AuthContext{}, fmt.Errorf("credentials: decrypt access token: %w", err)
		}
		return core.AuthContext{
			AccessToken: string(plaintext),
			TokenType:   "Bearer",
			ExpiresAt:   conn.TokenExpiresAt,
		}, nil
	}

	if len(conn.EncryptedRefreshToken) == 0 {
		if _, statusErr := m.connections.UpdateStatus(ctx, conn.ID, core.ConnectionStatusTokenExpired,
			core.SyncErrorTokenExpired, "access token expired and no refresh token is stored"); statusErr != nil {
			m.logger.Error("failed to mark connection token_expired",
				"connection_id", conn.ID, "error", statusErr)
		}
		return core.AuthContext{}, fmt.Errorf("%w: connection %s has no refresh token", core.ErrTokenExpired, conn.ID)
	}

	return m.refresh(ctx, conn, provider, auth)
}

func (m *Manager) refresh(ctx context.Context, conn core.Connection, provider core.Provider, auth core.AuthConfig) (core.AuthContext, error) {
	if provider == nil {
		return core.AuthContext{}, core.ErrProviderNotFound
	}
	refreshPlain, err := m.cipher.Decrypt(ctx, conn.EncryptedRefreshToken)
	if err != nil {
		return core.AuthContext{}, fmt.Errorf("credentials: decrypt refresh token: %w", err)
	}

	m.logger.Info("refreshing access token",
		"connection_id", conn.ID, "provider", conn.ProviderSlug)

	token, err := provider.RefreshAccessToken(ctx, string(refreshPlain), auth)
	if err != nil {
		if _, statusErr := m.connections.UpdateStatus(ctx, conn.ID, core.ConnectionStatusRefreshFailed,
			core.SyncErrorRefreshFailed, err.Error()); statusErr != nil {
			m.logger.Error("failed to mark connection token_refresh_failed",
				"connection_id", conn.ID, "error", statusErr)
		}
		return core.AuthContext{}, err
	}

	updated, err := m.storeCredentials(ctx, conn.ID, token, true)
	if err != nil {
		return core.AuthContext{}, err
	}
	return core.AuthContext{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   updated.TokenExpiresAt,
	}, nil
}

// StoreCredentials encrypts and persists a token grant. A response without
// a refresh token keeps the one already stored.
func (m *Manager) StoreCredentials(ctx context.Context, connectionID string, token core.TokenResponse) (core.Connection, error) {
	return m.storeCredentials(ctx, connectionID, token, false)
}

func (m *Manager) storeCredentials(ctx context.Context, connectionID string, token core.TokenResponse, refreshed bool) (core.Connection, error) {
	if m == nil {
		return core.Connection{}, fmt.Errorf("credentials: manager is nil")
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return core.Connection{}, fmt.Errorf("credentials: access token is required")
	}

	encryptedAccess, err := m.cipher.Encrypt(ctx, []byte(token.AccessToken))
	if err != nil {
		return core.Connection{}, fmt.Errorf("credentials: encrypt access token: %w", err)
	}
	input := core.UpdateTokensInput{
		EncryptedAccessToken: encryptedAccess,
		TokenExpiresAt:       token.ExpiresAt(m.Now()),
		GrantedScopes:        token.Scopes(),
		BumpRefreshCount:     refreshed,
	}
	if strings.TrimSpace(token.RefreshToken) != "" {
		encryptedRefresh, err := m.cipher.Encrypt(ctx, []byte(token.RefreshToken))
		if err != nil {
			return core.Connection{}, fmt.Errorf("credentials: encrypt refresh token: %w", err)
		}
		input.EncryptedRefreshToken = encryptedRefresh
	}

	updated, err := m.connections.UpdateTokens(ctx, connectionID, input)
	if err != nil {
		return core.Connection{}, err
	}
	if updated.Status != core.ConnectionStatusActive {
		if reactivated, err := m.connections.UpdateStatus(ctx, connectionID, core.ConnectionStatusActive, "", ""); err == nil {
			updated = reactivated
		}
	}
	return updated, nil
}

// HandleTokenError classifies a provider auth failure. It returns false when
// the connection needs re-authorization (401) or operator attention (403),
// true when the status is not an auth problem and the failure may be
// transient.
func (m *Manager) HandleTokenError(ctx context.Context, connectionID string, statusCode int) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("credentials: manager is nil")
	}
	switch statusCode {
	case http.StatusUnauthorized:
		if _, err := m.connections.UpdateStatus(ctx, connectionID, core.ConnectionStatusTokenExpired,
			core.SyncErrorTokenExpired, "provider rejected the access token"); err != nil {
			return false, err
		}
		return false, nil
	case http.StatusForbidden:
		if _, err := m.connections.UpdateStatus(ctx, connectionID, core.ConnectionStatusInsufficientScopes,
			core.SyncErrorInsufficientScopes, "provider denied access for the granted scopes"); err != nil {
			return false, err
		}
		return false, nil
	default:
		return true, nil
	}
}

var _ core.CredentialSource = (*Manager)(nil)
