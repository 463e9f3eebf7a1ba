package core

import (
	"errors"
	"testing"
	"time"
)

func TestConnectionTransitionTo_ValidAndInvalid(t *testing.T) {
	now := time.Now().UTC()
	conn := Connection{Status: ConnectionStatusActive}

	if err := conn.TransitionTo(ConnectionStatusTokenExpired, "access token expired", now); err != nil {
		t.Fatalf("expected valid transition, got error: %v", err)
	}
	if conn.Status != ConnectionStatusTokenExpired {
		t.Fatalf("expected token_expired, got %q", conn.Status)
	}
	if conn.LastErrorMessage == "" {
		t.Fatalf("expected last_error_message to be set")
	}

	err := conn.TransitionTo(ConnectionStatusInsufficientScopes, "", now)
	if !errors.Is(err, ErrInvalidConnectionStatusTransition) {
		t.Fatalf("expected invalid transition error, got: %v", err)
	}
}

func TestConnectionTransitionTo_ActiveClearsError(t *testing.T) {
	now := time.Now().UTC()
	conn := Connection{
		Status:           ConnectionStatusTokenExpired,
		LastErrorCode:    SyncErrorTokenExpired,
		LastErrorMessage: "access token expired",
	}

	if err := conn.TransitionTo(ConnectionStatusActive, "", now); err != nil {
		t.Fatalf("expected token_expired->active to work: %v", err)
	}
	if conn.LastErrorCode != "" || conn.LastErrorMessage != "" {
		t.Fatalf("expected error fields cleared, got %q / %q", conn.LastErrorCode, conn.LastErrorMessage)
	}
}

func TestConnectionTokenFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buffer := 300 * time.Second

	fresh := now.Add(10 * time.Minute)
	conn := Connection{EncryptedAccessToken: []byte("ct"), TokenExpiresAt: &fresh}
	if !conn.TokenFresh(now, buffer) {
		t.Fatalf("expected token ten minutes out to be fresh")
	}

	inside := now.Add(2 * time.Minute)
	conn.TokenExpiresAt = &inside
	if conn.TokenFresh(now, buffer) {
		t.Fatalf("expected token inside the buffer to be stale")
	}

	conn.TokenExpiresAt = nil
	if !conn.TokenFresh(now, buffer) {
		t.Fatalf("expected token without expiry to be treated as fresh")
	}

	conn.EncryptedAccessToken = nil
	if conn.TokenFresh(now, buffer) {
		t.Fatalf("expected missing token material to be stale")
	}
}

func TestCrawlTransitionTo_TerminalStates(t *testing.T) {
	now := time.Now().UTC()
	crawl := CrawlHistory{Status: CrawlStatusRunning, StartedAt: now}

	if err := crawl.TransitionTo(CrawlStatusSuccess, now); err != nil {
		t.Fatalf("expected running->success to work: %v", err)
	}
	if crawl.FinishedAt == nil {
		t.Fatalf("expected finished_at to be stamped")
	}

	err := crawl.TransitionTo(CrawlStatusError, now)
	if !errors.Is(err, ErrInvalidCrawlStatusTransition) {
		t.Fatalf("expected terminal status to reject transitions, got: %v", err)
	}
}

func TestAppGrantTransitionTo_Lifecycle(t *testing.T) {
	now := time.Now().UTC()
	grant := AppGrant{Status: GrantStatusActive}

	if err := grant.TransitionTo(GrantStatusRevoked, now); err != nil {
		t.Fatalf("expected active->revoked to work: %v", err)
	}
	if grant.RevokedAt == nil {
		t.Fatalf("expected revoked_at to be stamped")
	}

	later := now.Add(time.Hour)
	if err := grant.TransitionTo(GrantStatusActive, later); err != nil {
		t.Fatalf("expected revoked->active to work: %v", err)
	}
	if grant.RevokedAt != nil {
		t.Fatalf("expected revoked_at cleared on re-activation")
	}
	if grant.GrantedAt == nil || !grant.GrantedAt.Equal(later) {
		t.Fatalf("expected granted_at re-stamped, got %v", grant.GrantedAt)
	}
}

func TestParseCrawlType(t *testing.T) {
	parsed, err := ParseCrawlType(" Events ")
	if err != nil {
		t.Fatalf("expected events to parse: %v", err)
	}
	if parsed != CrawlTypeEvents {
		t.Fatalf("expected events, got %q", parsed)
	}

	if _, err := ParseCrawlType("snapshots"); !errors.Is(err, ErrInvalidCrawlType) {
		t.Fatalf("expected invalid crawl type error, got: %v", err)
	}
}

func TestParseSyncStep(t *testing.T) {
	parsed, err := ParseSyncStep("GROUP_MEMBERS")
	if err != nil {
		t.Fatalf("expected group_members to parse: %v", err)
	}
	if parsed != SyncStepGroupMembers {
		t.Fatalf("expected group_members, got %q", parsed)
	}

	if _, err := ParseSyncStep("calendars"); !errors.Is(err, ErrInvalidSyncStep) {
		t.Fatalf("expected invalid sync step error, got: %v", err)
	}
}
