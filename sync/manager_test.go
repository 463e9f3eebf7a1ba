package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/credentials"
	"github.com/goliatone/go-workspace-sync/ingest"
	"github.com/goliatone/go-workspace-sync/memstore"
	"github.com/goliatone/go-workspace-sync/security"
)

type recordSet struct {
	users   [][]core.UserRecord
	groups  [][]core.GroupRecord
	members map[string][][]core.MemberRecord
	tokens  map[string][][]core.TokenRecord
	events  [][]core.TokenEventRecord

	usersErr  error
	tokensErr error
}

// fakeProvider serves fresh sequences on every fetch so full syncs can walk
// the same fixture multiple times.
type fakeProvider struct {
	core.Provider

	records recordSet

	eventsSince   time.Time
	revokeCalls   int
	revokeAccepts bool
	revokeErr     error
}

func (p *fakeProvider) Slug() string { return "google-workspace" }

func seqOf[T any](batches [][]T, err error) *core.BatchSeq[T] {
	index := 0
	return core.NewBatchSeq(func(ctx context.Context) ([]T, bool, error) {
		if err != nil {
			return nil, false, err
		}
		if index >= len(batches) {
			return nil, false, nil
		}
		batch := batches[index]
		index++
		return batch, true, nil
	})
}

func (p *fakeProvider) FetchUsers(ctx context.Context, auth core.AuthContext) (*core.BatchSeq[core.UserRecord], error) {
	return seqOf(p.records.users, p.records.usersErr), nil
}

func (p *fakeProvider) FetchGroups(ctx context.Context, auth core.AuthContext) (*core.BatchSeq[core.GroupRecord], error) {
	return seqOf(p.records.groups, nil), nil
}

func (p *fakeProvider) FetchGroupMembers(ctx context.Context, auth core.AuthContext, providerGroupID string) (*core.BatchSeq[core.MemberRecord], error) {
	return seqOf(p.records.members[providerGroupID], nil), nil
}

func (p *fakeProvider) FetchUserTokens(ctx context.Context, auth core.AuthContext, userProviderID string) (*core.BatchSeq[core.TokenRecord], error) {
	return seqOf(p.records.tokens[userProviderID], p.records.tokensErr), nil
}

func (p *fakeProvider) FetchTokenEvents(ctx context.Context, auth core.AuthContext, since time.Time) (*core.BatchSeq[core.TokenEventRecord], error) {
	p.eventsSince = since
	return seqOf(p.records.events, nil), nil
}

func (p *fakeProvider) RevokeAppAccess(ctx context.Context, authCtx core.AuthContext, userProviderID, clientID string) (bool, error) {
	p.revokeCalls++
	if p.revokeErr != nil {
		return false, p.revokeErr
	}
	return p.revokeAccepts, nil
}

type managerFixture struct {
	manager  *Manager
	store    *memstore.Store
	provider *fakeProvider
	conn     core.Connection
	now      time.Time
}

func newManagerFixture(t *testing.T, records recordSet) *managerFixture {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	cipher, err := security.NewTokenCipherFromString("sync-manager-test-key")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	creds, err := credentials.NewManager(store.Connections(), cipher)
	if err != nil {
		t.Fatalf("new credentials manager: %v", err)
	}
	creds.Now = func() time.Time { return now }

	provider := &fakeProvider{records: records, revokeAccepts: true}
	registry := core.NewProviderRegistry()
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	store.PutAuthConfig(core.AuthConfig{
		ProviderSlug: "google-workspace",
		ClientID:     "oauth-client",
		ClientSecret: "oauth-secret",
	})

	encrypted, err := cipher.Encrypt(ctx, []byte("access-plain"))
	if err != nil {
		t.Fatalf("encrypt token: %v", err)
	}
	expires := now.Add(time.Hour)
	conn, err := store.Connections().Create(ctx, core.Connection{
		OrganizationID:       "org-1",
		ProviderSlug:         "google-workspace",
		Status:               core.ConnectionStatusActive,
		EncryptedAccessToken: encrypted,
		TokenExpiresAt:       &expires,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	directory, err := ingest.NewDirectoryIngester(ingest.DirectoryConfig{
		Users:       store.Users(),
		Groups:      store.Groups(),
		Memberships: store.Memberships(),
	})
	if err != nil {
		t.Fatalf("new directory ingester: %v", err)
	}
	snapshot, err := ingest.NewSnapshotIngester(ingest.SnapshotConfig{
		Users:  store.Users(),
		Apps:   store.Apps(),
		Grants: store.Grants(),
	})
	if err != nil {
		t.Fatalf("new snapshot ingester: %v", err)
	}
	snapshot.Now = func() time.Time { return now }
	stream, err := ingest.NewStreamIngester(ingest.StreamConfig{
		Users:  store.Users(),
		Apps:   store.Apps(),
		Grants: store.Grants(),
		Events: store.Events(),
	})
	if err != nil {
		t.Fatalf("new stream ingester: %v", err)
	}
	stream.Now = func() time.Time { return now }

	manager, err := NewManager(Config{
		Connections: store.Connections(),
		Crawls:      store.Crawls(),
		AuthConfigs: store.AuthConfigs(),
		Registry:    registry,
		Credentials: creds,
		Directory:   directory,
		Snapshot:    snapshot,
		Stream:      stream,
		Users:       store.Users(),
		Apps:        store.Apps(),
		Grants:      store.Grants(),
		Events:      store.Events(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	manager.Now = func() time.Time { return now }

	return &managerFixture{manager: manager, store: store, provider: provider, conn: conn, now: now}
}

func defaultRecords() recordSet {
	return recordSet{
		users: [][]core.UserRecord{{
			{ProviderUserID: "u1", Email: "a@example.com"},
			{ProviderUserID: "u2", Email: "b@example.com"},
		}},
		groups: [][]core.GroupRecord{{
			{ProviderGroupID: "g1", Email: "eng@example.com", Name: "Engineering"},
		}},
		members: map[string][][]core.MemberRecord{
			"g1": {{
				{ProviderUserID: "u1", Email: "a@example.com", Role: "MEMBER"},
			}},
		},
		tokens: map[string][][]core.TokenRecord{
			"u1": {{
				{UserProviderID: "u1", ClientID: "client-1", DisplayText: "Mail Widget"},
			}},
		},
		events: [][]core.TokenEventRecord{{
			{
				UserEmail: "a@example.com",
				ClientID:  "client-1",
				EventType: core.EventTypeAuthorize,
				EventTime: time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC),
			},
		}},
	}
}

func TestRunUsersSync_RecordsSuccessfulCrawl(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())

	crawl, err := f.manager.RunUsersSync(context.Background(), f.conn.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crawl.Status != core.CrawlStatusSuccess {
		t.Fatalf("expected success crawl, got %s", crawl.Status)
	}
	if crawl.Type != core.CrawlTypeUsers {
		t.Fatalf("expected users crawl, got %s", crawl.Type)
	}
	if crawl.FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}
	if got := crawl.Stats["users"]; got != 2 {
		t.Fatalf("expected 2 users in stats, got %v", got)
	}
}

func TestRunUsersSync_RecordsFailedCrawl(t *testing.T) {
	records := defaultRecords()
	records.usersErr = errors.New("directory listing failed")
	f := newManagerFixture(t, records)

	crawl, err := f.manager.RunUsersSync(context.Background(), f.conn.ID)
	if err == nil {
		t.Fatal("expected phase error")
	}
	if crawl.Status != core.CrawlStatusError {
		t.Fatalf("expected error crawl, got %s", crawl.Status)
	}
	if crawl.ErrorMessage == "" {
		t.Fatal("expected error message on crawl row")
	}
	if crawl.Debug["step"] != string(core.SyncStepUsers) {
		t.Fatalf("expected step in debug, got %v", crawl.Debug)
	}
}

func TestRunUsersSync_UnknownConnection(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())

	_, err := f.manager.RunUsersSync(context.Background(), "missing")
	if !errors.Is(err, core.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
	crawls, _ := f.store.Crawls().ListByConnection(context.Background(), "missing", 10)
	if len(crawls) != 0 {
		t.Fatalf("pre-crawl failures must not write crawl rows, got %d", len(crawls))
	}
}

func TestRunUsersSync_CredentialFailureRecordsCrawl(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())
	ctx := context.Background()

	expired := f.now.Add(-time.Hour)
	conn, err := f.store.Connections().Create(ctx, core.Connection{
		OrganizationID:       "org-1",
		ProviderSlug:         "google-workspace",
		Status:               core.ConnectionStatusActive,
		EncryptedAccessToken: []byte("stale"),
		TokenExpiresAt:       &expired,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	crawl, err := f.manager.RunUsersSync(ctx, conn.ID)
	if !errors.Is(err, core.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if crawl.Status != core.CrawlStatusError {
		t.Fatalf("expected error crawl, got %s", crawl.Status)
	}
	if crawl.ErrorMessage == "" {
		t.Fatal("expected credential failure message on crawl row")
	}

	crawls, err := f.store.Crawls().ListByConnection(ctx, conn.ID, 10)
	if err != nil || len(crawls) != 1 {
		t.Fatalf("expected 1 crawl row, got %d (%v)", len(crawls), err)
	}
	stored, _ := f.store.Connections().GetByID(ctx, conn.ID)
	if stored.Status != core.ConnectionStatusTokenExpired {
		t.Fatalf("expected token_expired connection, got %s", stored.Status)
	}
}

func TestRunFullSync_CredentialFailureRecordsEveryPhase(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())
	ctx := context.Background()

	expired := f.now.Add(-time.Hour)
	conn, err := f.store.Connections().Create(ctx, core.Connection{
		OrganizationID:       "org-1",
		ProviderSlug:         "google-workspace",
		Status:               core.ConnectionStatusActive,
		EncryptedAccessToken: []byte("stale"),
		TokenExpiresAt:       &expired,
	})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}

	result, err := f.manager.RunFullSync(ctx, conn.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Crawls) != 4 || len(result.Failed) != 4 {
		t.Fatalf("expected 4 failed crawl rows, got %d crawls, %d failed",
			len(result.Crawls), len(result.Failed))
	}
	for _, crawl := range result.Crawls {
		if crawl.Status != core.CrawlStatusError || crawl.ErrorMessage == "" {
			t.Fatalf("expected recorded failure for %s, got %s %q",
				crawl.Type, crawl.Status, crawl.ErrorMessage)
		}
	}
	stored, _ := f.store.Connections().GetByID(ctx, conn.ID)
	if stored.LastSyncedAt != nil {
		t.Fatalf("all phases failed, connection must not be stamped synced, got %v", stored.LastSyncedAt)
	}
}

func TestRunFullSync_ContinuesPastPhaseFailure(t *testing.T) {
	records := defaultRecords()
	records.tokensErr = &core.APIRequestError{StatusCode: 500, Body: "backend error"}
	f := newManagerFixture(t, records)

	result, err := f.manager.RunFullSync(context.Background(), f.conn.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Crawls) != 4 {
		t.Fatalf("expected 4 crawl rows, got %d", len(result.Crawls))
	}
	if len(result.Failed) != 1 || result.Failed[0] != core.CrawlTypeTokens {
		t.Fatalf("expected only tokens phase to fail, got %v", result.Failed)
	}

	// Later phases still ran: the activity event landed.
	users, err := f.store.Users().ListByConnection(context.Background(), f.conn.ID)
	if err != nil || len(users) != 2 {
		t.Fatalf("expected 2 users, got %d (%v)", len(users), err)
	}
	user, err := f.store.Users().FindByEmail(context.Background(), "org-1", "a@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	events, err := f.store.Events().ListByUser(context.Background(), "org-1", user.ID, 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected 1 event, got %d (%v)", len(events), err)
	}

	conn, err := f.store.Connections().GetByID(context.Background(), f.conn.ID)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.LastSyncedAt == nil || !conn.LastSyncedAt.Equal(f.now) {
		t.Fatalf("expected synced stamp, got %v", conn.LastSyncedAt)
	}
}

func TestRunEventsSync_FirstRunUsesLookback(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())

	if _, err := f.manager.RunEventsSync(context.Background(), f.conn.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := f.now.Add(-defaultLookback)
	if !f.provider.eventsSince.Equal(want) {
		t.Fatalf("expected lookback start %v, got %v", want, f.provider.eventsSince)
	}
}

func TestRunEventsSync_ResumesFromLastSuccess(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())
	ctx := context.Background()

	if _, err := f.manager.RunEventsSync(ctx, f.conn.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstFinish := f.now

	if _, err := f.manager.RunEventsSync(ctx, f.conn.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !f.provider.eventsSince.Equal(firstFinish) {
		t.Fatalf("expected window to resume at %v, got %v", firstFinish, f.provider.eventsSince)
	}
}

func TestRunPhase_AuthFailureMarksConnection(t *testing.T) {
	records := defaultRecords()
	records.usersErr = &core.APIRequestError{StatusCode: 401, Body: "invalid credentials"}
	f := newManagerFixture(t, records)

	if _, err := f.manager.RunUsersSync(context.Background(), f.conn.ID); err == nil {
		t.Fatal("expected phase error")
	}

	conn, err := f.store.Connections().GetByID(context.Background(), f.conn.ID)
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if conn.Status != core.ConnectionStatusTokenExpired {
		t.Fatalf("expected token_expired after 401, got %s", conn.Status)
	}
}

func TestRevokeAppAccess(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())
	ctx := context.Background()

	// Land directory and snapshot state first.
	if _, err := f.manager.RunUsersSync(ctx, f.conn.ID); err != nil {
		t.Fatalf("users sync: %v", err)
	}
	if _, err := f.manager.RunTokensSync(ctx, f.conn.ID); err != nil {
		t.Fatalf("tokens sync: %v", err)
	}

	accepted, err := f.manager.RevokeAppAccess(ctx, f.conn.ID, "u1", "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accepted {
		t.Fatal("expected revocation accepted")
	}
	if f.provider.revokeCalls != 1 {
		t.Fatalf("expected one provider call, got %d", f.provider.revokeCalls)
	}

	user, err := f.store.Users().FindByProviderID(ctx, f.conn.ID, "u1")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	app, err := f.store.Apps().FindByClientID(ctx, "org-1", "client-1")
	if err != nil {
		t.Fatalf("find app: %v", err)
	}
	grant, err := f.store.Grants().Find(ctx, "org-1", user.ID, app.ID)
	if err != nil {
		t.Fatalf("find grant: %v", err)
	}
	if grant.Status != core.GrantStatusRevoked {
		t.Fatalf("expected revoked grant, got %s", grant.Status)
	}

	events, err := f.store.Events().ListByUser(ctx, "org-1", user.ID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != core.EventTypeRevoke {
		t.Fatalf("expected a revoke ledger row, got %+v", events)
	}
}

func TestRevokeAppAccess_ProviderError(t *testing.T) {
	f := newManagerFixture(t, defaultRecords())
	ctx := context.Background()

	if _, err := f.manager.RunUsersSync(ctx, f.conn.ID); err != nil {
		t.Fatalf("users sync: %v", err)
	}
	f.provider.revokeErr = &core.APIRequestError{StatusCode: 500, Body: "backend error"}

	accepted, err := f.manager.RevokeAppAccess(ctx, f.conn.ID, "u1", "client-1")
	if err == nil || accepted {
		t.Fatalf("expected provider error, got accepted=%v err=%v", accepted, err)
	}
}
