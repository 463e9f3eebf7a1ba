package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-workspace-sync/core"
)

const (
	TypeRunFullSync      = "workspace_sync.command.crawl.full"
	TypeRunPhaseSync     = "workspace_sync.command.crawl.phase"
	TypeRevokeAppAccess  = "workspace_sync.command.app_access.revoke"
	TypeStoreCredentials = "workspace_sync.command.credentials.store"
	TypeDisconnect       = "workspace_sync.command.connection.disconnect"
)

type RunFullSyncMessage struct {
	ConnectionID string
}

func (RunFullSyncMessage) Type() string { return TypeRunFullSync }

func (m RunFullSyncMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	return nil
}

type RunPhaseSyncMessage struct {
	ConnectionID string
	Phase        string
}

func (RunPhaseSyncMessage) Type() string { return TypeRunPhaseSync }

func (m RunPhaseSyncMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if _, err := core.ParseCrawlType(m.Phase); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	return nil
}

type RevokeAppAccessMessage struct {
	ConnectionID   string
	ProviderUserID string
	ClientID       string
}

func (RevokeAppAccessMessage) Type() string { return TypeRevokeAppAccess }

func (m RevokeAppAccessMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.ProviderUserID) == "" {
		return fmt.Errorf("command: provider user id is required")
	}
	if strings.TrimSpace(m.ClientID) == "" {
		return fmt.Errorf("command: client id is required")
	}
	return nil
}

type StoreCredentialsMessage struct {
	ConnectionID string
	Token        core.TokenResponse
}

func (StoreCredentialsMessage) Type() string { return TypeStoreCredentials }

func (m StoreCredentialsMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	if strings.TrimSpace(m.Token.AccessToken) == "" {
		return fmt.Errorf("command: access token is required")
	}
	return nil
}

type DisconnectMessage struct {
	ConnectionID string
	Reason       string
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	if strings.TrimSpace(m.ConnectionID) == "" {
		return fmt.Errorf("command: connection id is required")
	}
	return nil
}
