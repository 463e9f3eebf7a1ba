package workspace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/ratelimit"
)

type stubResponse struct {
	status int
	body   string
}

type stubDoer struct {
	responses []stubResponse
	requests  []*http.Request
	bodies    []string
}

func (d *stubDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		d.bodies = append(d.bodies, string(raw))
	} else {
		d.bodies = append(d.bodies, "")
	}
	if len(d.responses) == 0 {
		return nil, errors.New("stub doer exhausted")
	}
	next := d.responses[0]
	d.responses = d.responses[1:]
	return &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(bytes.NewBufferString(next.body)),
		Header:     http.Header{},
	}, nil
}

func newTestProvider(t *testing.T, doer *stubDoer) *Provider {
	t.Helper()
	provider, err := New(Config{HTTPClient: doer, Limiters: ratelimit.NewRegistry()})
	if err != nil {
		t.Fatalf("provider build failed: %v", err)
	}
	return provider
}

func TestProviderPipeline_Order(t *testing.T) {
	provider := newTestProvider(t, &stubDoer{})
	pipeline := provider.Pipeline()
	want := []core.SyncStep{
		core.SyncStepUsers,
		core.SyncStepGroups,
		core.SyncStepGroupMembers,
		core.SyncStepTokenEvents,
	}
	if len(pipeline) != len(want) {
		t.Fatalf("unexpected pipeline length: %v", pipeline)
	}
	for i, step := range want {
		if pipeline[i] != step {
			t.Fatalf("expected %q at %d, got %q", step, i, pipeline[i])
		}
	}
}

func TestProviderRequest_PerStep(t *testing.T) {
	provider := newTestProvider(t, &stubDoer{})

	users, err := provider.Request(core.SyncStepUsers, nil)
	if err != nil {
		t.Fatalf("users request failed: %v", err)
	}
	if users.URL != "https://admin.googleapis.com/admin/directory/v1/users" {
		t.Fatalf("unexpected users url: %q", users.URL)
	}
	if users.Params["customer"] != "my_customer" {
		t.Fatalf("expected customer param, got %v", users.Params)
	}

	members, err := provider.Request(core.SyncStepGroupMembers, map[string]string{"group_key": "g1"})
	if err != nil {
		t.Fatalf("members request failed: %v", err)
	}
	if members.URL != "https://admin.googleapis.com/admin/directory/v1/groups/g1/members" {
		t.Fatalf("unexpected members url: %q", members.URL)
	}

	events, err := provider.Request(core.SyncStepTokenEvents, map[string]string{"start_time": "2026-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("events request failed: %v", err)
	}
	if events.URL != "https://admin.googleapis.com/admin/reports/v1/activity/users/all/applications/token" {
		t.Fatalf("unexpected events url: %q", events.URL)
	}
	if events.Params["startTime"] != "2026-01-01T00:00:00Z" {
		t.Fatalf("expected startTime threaded, got %v", events.Params)
	}

	if _, err := provider.Request(core.SyncStep("calendars"), nil); !errors.Is(err, core.ErrInvalidSyncStep) {
		t.Fatalf("expected unknown step rejected, got: %v", err)
	}
}

func TestProviderFetchUsers_AdaptsBatches(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{200, `{"users":[{"id":"u1","primaryEmail":"one@example.com"}],"nextPageToken":"t2"}`},
		{200, `{"users":[{"id":"u2","primaryEmail":"two@example.com"}]}`},
	}}
	provider := newTestProvider(t, doer)

	seq, err := provider.FetchUsers(context.Background(), core.AuthContext{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("fetch users failed: %v", err)
	}

	var emails []string
	for {
		batch, ok, err := seq.Next(context.Background())
		if err != nil {
			t.Fatalf("batch failed: %v", err)
		}
		if !ok {
			break
		}
		for _, user := range batch {
			emails = append(emails, user.Email)
		}
	}
	if len(emails) != 2 || emails[0] != "one@example.com" || emails[1] != "two@example.com" {
		t.Fatalf("unexpected emails: %v", emails)
	}
}

func TestProviderFetchTokenEvents_SendsStartTime(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{200, `{"items":[]}`},
	}}
	provider := newTestProvider(t, doer)

	since := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	seq, err := provider.FetchTokenEvents(context.Background(), core.AuthContext{AccessToken: "tok"}, since)
	if err != nil {
		t.Fatalf("fetch events failed: %v", err)
	}
	if _, ok, err := seq.Next(context.Background()); ok || err != nil {
		t.Fatalf("expected empty sequence, ok=%v err=%v", ok, err)
	}

	query := doer.requests[0].URL.Query()
	if got := query.Get("startTime"); got != "2026-01-15T00:00:00Z" {
		t.Fatalf("expected startTime param, got %q", got)
	}
}

func TestProviderRefreshAccessToken(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{200, `{"access_token":"new-tok","expires_in":3600,"scope":"a b"}`},
	}}
	provider := newTestProvider(t, doer)

	token, err := provider.RefreshAccessToken(context.Background(), "refresh-tok", core.AuthConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
	})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if token.AccessToken != "new-tok" || token.ExpiresIn != 3600 || token.TokenType != "Bearer" {
		t.Fatalf("unexpected token: %+v", token)
	}

	body := doer.bodies[0]
	for _, fragment := range []string{"grant_type=refresh_token", "refresh_token=refresh-tok", "client_id=cid"} {
		if !bytes.Contains([]byte(body), []byte(fragment)) {
			t.Fatalf("expected %q in form body, got %q", fragment, body)
		}
	}
}

func TestProviderRefreshAccessToken_FailureWrapsSentinel(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{400, `{"error":"invalid_grant","error_description":"Token has been revoked."}`},
	}}
	provider := newTestProvider(t, doer)

	_, err := provider.RefreshAccessToken(context.Background(), "refresh-tok", core.AuthConfig{ClientID: "cid"})
	if !errors.Is(err, core.ErrTokenRefreshFailed) {
		t.Fatalf("expected refresh failure sentinel, got: %v", err)
	}
}

func TestProviderRevokeAppAccess(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{204, ""},
	}}
	provider := newTestProvider(t, doer)

	ok, err := provider.RevokeAppAccess(context.Background(), core.AuthContext{AccessToken: "tok"}, "user-1", "client-1")
	if err != nil || !ok {
		t.Fatalf("expected revoke accepted, ok=%v err=%v", ok, err)
	}

	sent := doer.requests[0]
	if sent.Method != http.MethodDelete {
		t.Fatalf("expected DELETE, got %s", sent.Method)
	}
	wantPath := "/admin/directory/v1/users/user-1/tokens/client-1"
	if sent.URL.Path != wantPath {
		t.Fatalf("expected %q, got %q", wantPath, sent.URL.Path)
	}
}

func TestProviderRevokeAppAccess_AbsentGrantCountsAsRevoked(t *testing.T) {
	doer := &stubDoer{responses: []stubResponse{
		{404, `{"error":"not found"}`},
	}}
	provider := newTestProvider(t, doer)

	ok, err := provider.RevokeAppAccess(context.Background(), core.AuthContext{AccessToken: "tok"}, "user-1", "client-1")
	if err != nil {
		t.Fatalf("expected 404 treated as success: %v", err)
	}
	if !ok {
		t.Fatalf("expected revoked=true for absent grant")
	}
}
