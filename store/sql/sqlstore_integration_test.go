package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-workspace-sync/core"
	syncmigrations "github.com/goliatone/go-workspace-sync/migrations"
	sqlstore "github.com/goliatone/go-workspace-sync/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-workspace-sync-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"workspace_connections",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "workspace_connections" {
		t.Fatalf("expected workspace_connections table, got %q", tableName)
	}
}

func TestConnectionStore_LifecycleAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()

	connections := factory.ConnectionStore()

	created, err := connections.Create(ctx, core.Connection{
		OrganizationID: "org_1",
		ProviderSlug:   "google-workspace",
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}
	if created.ID == "" || created.Status != core.ConnectionStatusActive {
		t.Fatalf("unexpected created connection: %#v", created)
	}

	expiry := time.Now().Add(time.Hour).UTC()
	updated, err := connections.UpdateTokens(ctx, created.ID, core.UpdateTokensInput{
		EncryptedAccessToken:  []byte("enc-access"),
		EncryptedRefreshToken: []byte("enc-refresh"),
		TokenExpiresAt:        &expiry,
		GrantedScopes:         []string{"scope.a", "scope.b"},
		BumpRefreshCount:      true,
	})
	if err != nil {
		t.Fatalf("update tokens: %v", err)
	}
	if updated.RefreshCount != 1 {
		t.Fatalf("expected refresh count 1, got %d", updated.RefreshCount)
	}

	refreshOnly, err := connections.UpdateTokens(ctx, created.ID, core.UpdateTokensInput{
		EncryptedAccessToken: []byte("enc-access-2"),
	})
	if err != nil {
		t.Fatalf("update access token: %v", err)
	}
	if string(refreshOnly.EncryptedRefreshToken) != "enc-refresh" {
		t.Fatal("expected stored refresh token to survive a nil refresh input")
	}

	if err := connections.MarkSynced(ctx, created.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	listed, err := connections.ListByOrganization(ctx, "org_1")
	if err != nil {
		t.Fatalf("list connections: %v", err)
	}
	if len(listed) != 1 || listed[0].LastSyncedAt == nil {
		t.Fatalf("expected one synced connection, got %#v", listed)
	}

	if err := connections.Disconnect(ctx, created.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := connections.GetByID(ctx, created.ID); !errors.Is(err, core.ErrConnectionNotFound) {
		t.Fatalf("expected not found after disconnect, got %v", err)
	}
}

func TestCrawlStore_FindLastSuccessfulSkipsFailures(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()

	conn := seedConnection(t, factory, "org_crawl")
	crawls := factory.CrawlStore()

	older, err := crawls.Create(ctx, core.CrawlHistory{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		Type:           core.CrawlTypeEvents,
		StartedAt:      time.Now().Add(-2 * time.Hour).UTC(),
	})
	if err != nil {
		t.Fatalf("create older crawl: %v", err)
	}
	olderDone := time.Now().Add(-90 * time.Minute).UTC()
	if _, err := crawls.Update(ctx, older.ID, core.UpdateCrawlInput{
		Status:     core.CrawlStatusSuccess,
		FinishedAt: &olderDone,
		Stats:      map[string]any{"events": 12},
	}); err != nil {
		t.Fatalf("finish older crawl: %v", err)
	}

	failed, err := crawls.Create(ctx, core.CrawlHistory{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		Type:           core.CrawlTypeEvents,
		StartedAt:      time.Now().Add(-time.Hour).UTC(),
	})
	if err != nil {
		t.Fatalf("create failed crawl: %v", err)
	}
	failedDone := time.Now().Add(-30 * time.Minute).UTC()
	if _, err := crawls.Update(ctx, failed.ID, core.UpdateCrawlInput{
		Status:       core.CrawlStatusError,
		FinishedAt:   &failedDone,
		ErrorMessage: "activity api returned 500",
	}); err != nil {
		t.Fatalf("finish failed crawl: %v", err)
	}

	last, err := crawls.FindLastSuccessful(ctx, conn.ID, core.CrawlTypeEvents)
	if err != nil {
		t.Fatalf("find last successful: %v", err)
	}
	if last.ID != older.ID {
		t.Fatalf("expected last successful %s, got %s", older.ID, last.ID)
	}

	history, err := crawls.ListByConnection(ctx, conn.ID, 0)
	if err != nil {
		t.Fatalf("list crawls: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 crawl rows, got %d", len(history))
	}
}

func TestDirectoryStores_UpsertAndReplaceMembership(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()

	conn := seedConnection(t, factory, "org_dir")
	users := factory.UserStore()
	groups := factory.GroupStore()
	memberships := factory.MembershipStore()

	seed := []core.WorkspaceUser{
		{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			ProviderUserID: "u-1",
			Email:          "Ada@Example.com",
			FullName:       "Ada Lovelace",
		},
		{
			OrganizationID: conn.OrganizationID,
			ConnectionID:   conn.ID,
			ProviderUserID: "u-2",
			Email:          "grace@example.com",
			FullName:       "Grace Hopper",
		},
	}
	if _, err := users.BulkUpsert(ctx, seed); err != nil {
		t.Fatalf("bulk upsert users: %v", err)
	}

	seed[0].FullName = "Ada King"
	seed[0].Suspended = true
	if _, err := users.BulkUpsert(ctx, seed[:1]); err != nil {
		t.Fatalf("re-upsert user: %v", err)
	}

	found, err := users.FindByEmail(ctx, conn.OrganizationID, "ada@example.com")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if found.FullName != "Ada King" || !found.Suspended {
		t.Fatalf("expected updated user row, got %#v", found)
	}
	if all, err := users.ListByConnection(ctx, conn.ID); err != nil || len(all) != 2 {
		t.Fatalf("expected 2 users (err=%v), got %d", err, len(all))
	}

	if _, err := groups.BulkUpsert(ctx, []core.WorkspaceGroup{{
		OrganizationID:  conn.OrganizationID,
		ConnectionID:    conn.ID,
		ProviderGroupID: "g-1",
		Email:           "eng@example.com",
		Name:            "Engineering",
	}}); err != nil {
		t.Fatalf("bulk upsert groups: %v", err)
	}

	first := []core.GroupMembership{
		{OrganizationID: conn.OrganizationID, ProviderUserID: "u-1", Email: "ada@example.com", Role: "OWNER"},
		{OrganizationID: conn.OrganizationID, ProviderUserID: "u-2", Email: "grace@example.com", Role: "MEMBER"},
	}
	if count, err := memberships.ReplaceForGroup(ctx, conn.ID, "g-1", first); err != nil || count != 2 {
		t.Fatalf("replace memberships (err=%v), count %d", err, count)
	}

	second := []core.GroupMembership{
		{OrganizationID: conn.OrganizationID, ProviderUserID: "u-2", Email: "grace@example.com", Role: "OWNER"},
	}
	if count, err := memberships.ReplaceForGroup(ctx, conn.ID, "g-1", second); err != nil || count != 1 {
		t.Fatalf("re-replace memberships (err=%v), count %d", err, count)
	}

	roster, err := memberships.ListForGroup(ctx, conn.ID, "g-1")
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(roster) != 1 || roster[0].ProviderUserID != "u-2" || roster[0].Role != "OWNER" {
		t.Fatalf("expected replaced roster, got %#v", roster)
	}
}

func TestGrantStore_MergeRevokeAndEventLedger(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()

	conn := seedConnection(t, factory, "org_oauth")
	apps := factory.AppStore()
	grants := factory.GrantStore()
	events := factory.EventStore()

	app, err := apps.Upsert(ctx, core.OAuthApp{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		ClientID:       "client-1",
		Name:           "Drive Exporter",
		ClientType:     "WEB",
	})
	if err != nil {
		t.Fatalf("upsert app: %v", err)
	}

	merged, err := apps.Upsert(ctx, core.OAuthApp{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		ClientID:       "client-1",
		IsSystemApp:    true,
	})
	if err != nil {
		t.Fatalf("re-upsert app: %v", err)
	}
	if merged.ID != app.ID || merged.Name != "Drive Exporter" || !merged.IsSystemApp {
		t.Fatalf("expected merged app row, got %#v", merged)
	}

	user := seedUser(t, factory, conn, "u-1", "ada@example.com")

	seen := time.Now().Add(-time.Minute).UTC()
	grant, err := grants.Upsert(ctx, core.UpsertGrantInput{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		UserID:         user.ID,
		AppID:          app.ID,
		Scopes:         []string{"drive.readonly"},
		MarkActive:     true,
		SeenAt:         seen,
	})
	if err != nil {
		t.Fatalf("upsert grant: %v", err)
	}
	if grant.Status != core.GrantStatusActive {
		t.Fatalf("expected active grant, got %s", grant.Status)
	}

	grant, err = grants.Upsert(ctx, core.UpsertGrantInput{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		UserID:         user.ID,
		AppID:          app.ID,
		Scopes:         []string{"calendar.readonly", "drive.readonly"},
		SeenAt:         seen.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("merge grant scopes: %v", err)
	}
	if len(grant.Scopes) != 2 {
		t.Fatalf("expected merged scope union, got %v", grant.Scopes)
	}

	revoked, err := grants.Revoke(ctx, conn.OrganizationID, user.ID, app.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("revoke grant: %v", err)
	}
	if revoked.Status != core.GrantStatusRevoked || revoked.RevokedAt == nil {
		t.Fatalf("expected revoked grant, got %#v", revoked)
	}

	byUser, err := grants.ListByUser(ctx, conn.OrganizationID, user.ID)
	if err != nil || len(byUser) != 1 {
		t.Fatalf("expected 1 grant (err=%v), got %d", err, len(byUser))
	}

	// A revoke write with no prior grant row still lands a revoked row.
	other := seedUser(t, factory, conn, "u-2", "brin@example.com")
	revokedAt := time.Now().Truncate(time.Second).UTC()
	unseen, err := grants.Upsert(ctx, core.UpsertGrantInput{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		UserID:         other.ID,
		AppID:          app.ID,
		MarkRevoked:    true,
		SeenAt:         revokedAt,
	})
	if err != nil {
		t.Fatalf("upsert revoked grant: %v", err)
	}
	if unseen.Status != core.GrantStatusRevoked || unseen.RevokedAt == nil {
		t.Fatalf("expected revoked insert, got %#v", unseen)
	}
	if unseen.GrantedAt != nil {
		t.Fatalf("never-active grant should have no granted_at, got %v", unseen.GrantedAt)
	}

	eventTime := time.Now().Truncate(time.Second).UTC()
	exists, err := events.Exists(ctx, conn.OrganizationID, user.ID, app.ID, core.EventTypeRevoke, eventTime)
	if err != nil {
		t.Fatalf("exists before create: %v", err)
	}
	if exists {
		t.Fatal("expected empty ledger")
	}
	if _, err := events.Create(ctx, core.OAuthEvent{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		UserID:         user.ID,
		AppID:          app.ID,
		EventType:      core.EventTypeRevoke,
		EventTime:      eventTime,
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}
	exists, err = events.Exists(ctx, conn.OrganizationID, user.ID, app.ID, core.EventTypeRevoke, eventTime)
	if err != nil || !exists {
		t.Fatalf("expected ledger hit (err=%v, exists=%v)", err, exists)
	}

	ledger, err := events.ListByUser(ctx, conn.OrganizationID, user.ID, 0)
	if err != nil || len(ledger) != 1 {
		t.Fatalf("expected 1 event (err=%v), got %d", err, len(ledger))
	}
}

func TestAuthConfigStore_FindBySlug(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newSQLiteFactory(t)
	defer cleanup()

	if _, err := factory.DB().NewRaw(
		"INSERT INTO provider_auth_configs (id, provider_slug, client_id, client_secret, redirect_uri) VALUES (?, ?, ?, ?, ?)",
		"cfg-1", "google-workspace", "oauth-client", "oauth-secret", "https://app.example.com/callback",
	).Exec(ctx); err != nil {
		t.Fatalf("seed auth config: %v", err)
	}

	cfg, err := factory.AuthConfigStore().FindBySlug(ctx, "google-workspace")
	if err != nil {
		t.Fatalf("find auth config: %v", err)
	}
	if cfg.ClientID != "oauth-client" || cfg.RedirectURI != "https://app.example.com/callback" {
		t.Fatalf("unexpected auth config: %#v", cfg)
	}

	if _, err := factory.AuthConfigStore().FindBySlug(ctx, "unknown"); !errors.Is(err, core.ErrAuthConfigNotFound) {
		t.Fatalf("expected auth config not found, got %v", err)
	}
}

func TestOpenHelpersValidateInput(t *testing.T) {
	if _, err := sqlstore.OpenPostgres("  "); err == nil {
		t.Fatal("expected error for blank postgres dsn")
	}
	if _, err := sqlstore.OpenSQLite(""); err == nil {
		t.Fatal("expected error for blank sqlite dsn")
	}

	db, err := sqlstore.OpenSQLite("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()

	var one int
	if err := db.NewRaw("SELECT 1").Scan(context.Background(), &one); err != nil {
		t.Fatalf("ping sqlite handle: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}
}

func newSQLiteFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()

	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:workspace-sync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = syncmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != syncmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, syncmigrations.WithValidationTargets(syncmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func seedConnection(t *testing.T, factory *sqlstore.RepositoryFactory, organizationID string) core.Connection {
	t.Helper()

	conn, err := factory.ConnectionStore().Create(context.Background(), core.Connection{
		OrganizationID: organizationID,
		ProviderSlug:   "google-workspace",
	})
	if err != nil {
		t.Fatalf("seed connection: %v", err)
	}
	return conn
}

func seedUser(t *testing.T, factory *sqlstore.RepositoryFactory, conn core.Connection, providerUserID, email string) core.WorkspaceUser {
	t.Helper()

	ctx := context.Background()
	if _, err := factory.UserStore().BulkUpsert(ctx, []core.WorkspaceUser{{
		OrganizationID: conn.OrganizationID,
		ConnectionID:   conn.ID,
		ProviderUserID: providerUserID,
		Email:          email,
	}}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	user, err := factory.UserStore().FindByProviderID(ctx, conn.ID, providerUserID)
	if err != nil {
		t.Fatalf("load seeded user: %v", err)
	}
	return user
}
