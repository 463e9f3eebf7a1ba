package workspace

import (
	"fmt"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/transport"
)

// paginatorForStep returns the cursor strategy for one pipeline step. Every
// Google list endpoint pages through nextPageToken; only the items key
// differs.
func paginatorForStep(step core.SyncStep) (core.PaginationStrategy, error) {
	itemsKeys := map[core.SyncStep]string{
		core.SyncStepUsers:        "users",
		core.SyncStepGroups:       "groups",
		core.SyncStepGroupMembers: "members",
		core.SyncStepUserTokens:   "items",
		core.SyncStepTokenEvents:  "items",
	}
	itemsKey, ok := itemsKeys[step]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidSyncStep, step)
	}
	return transport.CursorPagination{
		CursorResponseKey: "nextPageToken",
		CursorRequestKey:  "pageToken",
		ItemsKey:          itemsKey,
		MaxResultsKey:     "maxResults",
		PageSize:          defaultPageSize,
	}, nil
}
