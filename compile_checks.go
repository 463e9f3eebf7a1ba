package workspacesync

import (
	synccommand "github.com/goliatone/go-workspace-sync/command"
	"github.com/goliatone/go-workspace-sync/credentials"
	syncengine "github.com/goliatone/go-workspace-sync/sync"
)

var (
	_ synccommand.SyncService       = (*syncengine.Manager)(nil)
	_ synccommand.CredentialService = (*credentials.Manager)(nil)
)
