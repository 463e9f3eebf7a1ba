package workspace

import "github.com/goliatone/go-workspace-sync/ratelimit"

const (
	ProviderSlug = "google-workspace"

	directoryAPIBase = "https://admin.googleapis.com/admin/directory/v1"
	reportsAPIBase   = "https://admin.googleapis.com/admin/reports/v1"
	oauthTokenURL    = "https://oauth2.googleapis.com/token"

	usersEndpoint           = directoryAPIBase + "/users"
	groupsEndpoint          = directoryAPIBase + "/groups"
	groupMembersEndpointFmt = directoryAPIBase + "/groups/%s/members"
	userTokensEndpointFmt   = directoryAPIBase + "/users/%s/tokens"
	tokenActivitiesEndpoint = reportsAPIBase + "/activity/users/all/applications/token"

	defaultPageSize = 100
	maxPageSize     = 500
)

// AdminScopes are the read scopes a connection needs for a full sync.
var AdminScopes = []string{
	"https://www.googleapis.com/auth/admin.reports.audit.readonly",
	"https://www.googleapis.com/auth/admin.directory.user.readonly",
	"https://www.googleapis.com/auth/admin.directory.group.readonly",
	"https://www.googleapis.com/auth/admin.directory.user.security",
}

// Directory traffic tolerates ten requests a second; the Reports API is far
// stricter about audit activity reads.
var (
	directoryRateConfig = ratelimit.Config{RequestsPerSecond: 10, BurstSize: 20}
	reportsRateConfig   = ratelimit.Config{RequestsPerSecond: 2, BurstSize: 5}
)
