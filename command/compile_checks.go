package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RunFullSyncMessage]      = (*RunFullSyncCommand)(nil)
	_ gocmd.Commander[RunPhaseSyncMessage]     = (*RunPhaseSyncCommand)(nil)
	_ gocmd.Commander[RevokeAppAccessMessage]  = (*RevokeAppAccessCommand)(nil)
	_ gocmd.Commander[StoreCredentialsMessage] = (*StoreCredentialsCommand)(nil)
	_ gocmd.Commander[DisconnectMessage]       = (*DisconnectCommand)(nil)
)
