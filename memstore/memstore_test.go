package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-workspace-sync/core"
)

func newClockedStore(t *testing.T) (*Store, time.Time) {
	t.Helper()
	store := New()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	return store, now
}

func TestGrantUpsert_MergesScopesAndReactivates(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	grant, err := store.Grants().Upsert(ctx, core.UpsertGrantInput{
		OrganizationID: "org-1",
		UserID:         "user-1",
		AppID:          "app-1",
		Scopes:         []string{"scope.b", "scope.a"},
		MarkActive:     true,
		SeenAt:         now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if grant.Status != core.GrantStatusActive {
		t.Fatalf("expected active grant, got %s", grant.Status)
	}

	if _, err := store.Grants().Revoke(ctx, "org-1", "user-1", "app-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	reactivated, err := store.Grants().Upsert(ctx, core.UpsertGrantInput{
		OrganizationID: "org-1",
		UserID:         "user-1",
		AppID:          "app-1",
		Scopes:         []string{"scope.c"},
		MarkActive:     true,
		SeenAt:         now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if reactivated.Status != core.GrantStatusActive {
		t.Fatalf("expected reactivated grant, got %s", reactivated.Status)
	}
	if reactivated.RevokedAt != nil {
		t.Fatal("reactivation should clear revoked timestamp")
	}
	want := []string{"scope.a", "scope.b", "scope.c"}
	if len(reactivated.Scopes) != len(want) {
		t.Fatalf("expected merged scopes %v, got %v", want, reactivated.Scopes)
	}
	for i, scope := range want {
		if reactivated.Scopes[i] != scope {
			t.Fatalf("expected merged scopes %v, got %v", want, reactivated.Scopes)
		}
	}
}

func TestGrantUpsert_MetadataMergeKeepsRevoked(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	input := core.UpsertGrantInput{
		OrganizationID: "org-1",
		UserID:         "user-1",
		AppID:          "app-1",
		SeenAt:         now,
	}
	if _, err := store.Grants().Upsert(ctx, input); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Grants().Revoke(ctx, "org-1", "user-1", "app-1", now); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	input.MarkActive = false
	input.SeenAt = now.Add(time.Hour)
	merged, err := store.Grants().Upsert(ctx, input)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Status != core.GrantStatusRevoked {
		t.Fatalf("metadata merge must not reactivate, got %s", merged.Status)
	}
	if merged.LastSeenAt == nil || !merged.LastSeenAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected last seen refreshed, got %v", merged.LastSeenAt)
	}
}

func TestGrantUpsert_MarkRevokedWithoutExistingRow(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	grant, err := store.Grants().Upsert(ctx, core.UpsertGrantInput{
		OrganizationID: "org-1",
		UserID:         "user-1",
		AppID:          "app-1",
		MarkRevoked:    true,
		SeenAt:         now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if grant.Status != core.GrantStatusRevoked {
		t.Fatalf("expected revoked insert, got %s", grant.Status)
	}
	if grant.RevokedAt == nil || !grant.RevokedAt.Equal(now) {
		t.Fatalf("expected revoked_at %v, got %v", now, grant.RevokedAt)
	}
	if grant.GrantedAt != nil {
		t.Fatalf("never-active grant should have no granted_at, got %v", grant.GrantedAt)
	}
}

func TestCrawlFindLastSuccessful(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	finish := func(crawl core.CrawlHistory, status core.CrawlStatus, at time.Time) {
		t.Helper()
		created, err := store.Crawls().Create(ctx, crawl)
		if err != nil {
			t.Fatalf("create crawl: %v", err)
		}
		if _, err := store.Crawls().Update(ctx, created.ID, core.UpdateCrawlInput{
			Status:     status,
			FinishedAt: &at,
		}); err != nil {
			t.Fatalf("update crawl: %v", err)
		}
	}

	base := core.CrawlHistory{ConnectionID: "conn-1", Type: core.CrawlTypeEvents, StartedAt: now}
	finish(base, core.CrawlStatusSuccess, now.Add(time.Minute))
	finish(base, core.CrawlStatusError, now.Add(2*time.Minute))
	finish(base, core.CrawlStatusSuccess, now.Add(3*time.Minute))

	last, err := store.Crawls().FindLastSuccessful(ctx, "conn-1", core.CrawlTypeEvents)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if last.FinishedAt == nil || !last.FinishedAt.Equal(now.Add(3*time.Minute)) {
		t.Fatalf("expected most recent success, got %v", last.FinishedAt)
	}

	if _, err := store.Crawls().FindLastSuccessful(ctx, "conn-1", core.CrawlTypeUsers); !errors.Is(err, core.ErrCrawlNotFound) {
		t.Fatalf("expected ErrCrawlNotFound, got %v", err)
	}
}

func TestMembershipReplaceForGroup(t *testing.T) {
	store, _ := newClockedStore(t)
	ctx := context.Background()

	first := []core.GroupMembership{
		{ProviderUserID: "u1", Email: "a@example.com", Role: "MEMBER"},
		{ProviderUserID: "u2", Email: "b@example.com", Role: "OWNER"},
	}
	count, err := store.Memberships().ReplaceForGroup(ctx, "conn-1", "g1", first)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 members, got %d (%v)", count, err)
	}

	second := []core.GroupMembership{{ProviderUserID: "u3", Email: "c@example.com", Role: "MEMBER"}}
	count, err = store.Memberships().ReplaceForGroup(ctx, "conn-1", "g1", second)
	if err != nil || count != 1 {
		t.Fatalf("expected replacement count 1, got %d (%v)", count, err)
	}

	members, err := store.Memberships().ListForGroup(ctx, "conn-1", "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(members) != 1 || members[0].ProviderUserID != "u3" {
		t.Fatalf("expected full replacement, got %+v", members)
	}
}

func TestEventNaturalKeyDedupe(t *testing.T) {
	store, now := newClockedStore(t)
	ctx := context.Background()

	event := core.OAuthEvent{
		OrganizationID: "org-1",
		UserID:         "user-1",
		AppID:          "app-1",
		EventType:      core.EventTypeAuthorize,
		EventTime:      now,
	}
	if _, err := store.Events().Create(ctx, event); err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err := store.Events().Exists(ctx, "org-1", "user-1", "app-1", core.EventTypeAuthorize, now)
	if err != nil || !exists {
		t.Fatalf("expected existing event, got %v (%v)", exists, err)
	}
	exists, err = store.Events().Exists(ctx, "org-1", "user-1", "app-1", core.EventTypeRevoke, now)
	if err != nil || exists {
		t.Fatalf("different event type must not collide, got %v (%v)", exists, err)
	}
}

func TestConnectionDisconnectHidesRow(t *testing.T) {
	store, _ := newClockedStore(t)
	ctx := context.Background()

	conn, err := store.Connections().Create(ctx, core.Connection{
		OrganizationID:       "org-1",
		ProviderSlug:         "google-workspace",
		EncryptedAccessToken: []byte("ciphertext"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Connections().Disconnect(ctx, conn.ID); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, err := store.Connections().GetByID(ctx, conn.ID); !errors.Is(err, core.ErrConnectionNotFound) {
		t.Fatalf("expected ErrConnectionNotFound, got %v", err)
	}
}
