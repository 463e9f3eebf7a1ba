package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/ratelimit"
)

type scriptedResponse struct {
	status  int
	body    string
	headers map[string]string
	err     error
}

type scriptedDoer struct {
	responses []scriptedResponse
	requests  []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	if len(d.responses) == 0 {
		return nil, errors.New("scripted doer exhausted")
	}
	next := d.responses[0]
	d.responses = d.responses[1:]
	if next.err != nil {
		return nil, next.err
	}
	res := &http.Response{
		StatusCode: next.status,
		Body:       io.NopCloser(bytes.NewBufferString(next.body)),
		Header:     http.Header{},
	}
	for key, value := range next.headers {
		res.Header.Set(key, value)
	}
	return res, nil
}

func newTestClient(t *testing.T, doer HTTPDoer) *Client {
	t.Helper()
	limiter, err := ratelimit.NewBucket(ratelimit.Config{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		RetryAfterDefault: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("limiter build failed: %v", err)
	}
	client, err := NewClient(Config{HTTPClient: doer, Limiter: limiter, MaxRetries: 3})
	if err != nil {
		t.Fatalf("client build failed: %v", err)
	}
	return client
}

func TestClientExecute_Success(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 200, body: `{"kind":"directory#users"}`},
	}}
	client := newTestClient(t, doer)

	response, err := client.Execute(context.Background(), core.RequestDefinition{
		Method: "GET",
		URL:    "https://example.test/users",
		Params: map[string]string{"customer": "my_customer"},
	}, core.AuthContext{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if response.StatusCode != 200 || response.Data["kind"] != "directory#users" {
		t.Fatalf("unexpected response: %+v", response)
	}

	sent := doer.requests[0]
	if got := sent.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", got)
	}
	if got := sent.URL.Query().Get("customer"); got != "my_customer" {
		t.Fatalf("expected query param, got %q", got)
	}
}

func TestClientExecute_RetriesRateLimitThenSucceeds(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 429, body: `{}`, headers: map[string]string{"Retry-After": "0"}},
		{status: 200, body: `{"ok":true}`},
	}}
	client := newTestClient(t, doer)

	response, err := client.Execute(context.Background(), core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if response.StatusCode != 200 {
		t.Fatalf("expected final 200, got %d", response.StatusCode)
	}
	if len(doer.requests) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(doer.requests))
	}
}

func TestClientExecute_RateLimitExhaustsBudget(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 429, body: `{}`, headers: map[string]string{"Retry-After": "0"}},
		{status: 429, body: `{}`, headers: map[string]string{"Retry-After": "0"}},
		{status: 429, body: `{}`, headers: map[string]string{"Retry-After": "7"}},
	}}
	client := newTestClient(t, doer)

	_, err := client.Execute(context.Background(), core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"})

	var rateErr *core.RateLimitExceededError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected rate limit error, got: %v", err)
	}
	if rateErr.RetryAfter != 7*time.Second {
		t.Fatalf("expected last retry hint carried, got %s", rateErr.RetryAfter)
	}
}

func TestClientExecute_ServerErrorRetries(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 503, body: `{}`},
		{status: 200, body: `{"ok":true}`},
	}}
	client := newTestClient(t, doer)

	response, err := client.Execute(context.Background(), core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("expected 5xx retry to recover: %v", err)
	}
	if response.StatusCode != 200 {
		t.Fatalf("expected final 200, got %d", response.StatusCode)
	}
}

func TestClientExecute_ClientErrorIsFatal(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 404, body: `{"error":"not found"}`},
	}}
	client := newTestClient(t, doer)

	_, err := client.Execute(context.Background(), core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"})

	var apiErr *core.APIRequestError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api request error, got: %v", err)
	}
	if apiErr.StatusCode != 404 {
		t.Fatalf("expected 404 carried, got %d", apiErr.StatusCode)
	}
	if len(doer.requests) != 1 {
		t.Fatalf("expected no retries on 4xx, got %d attempts", len(doer.requests))
	}
}

func TestClientExecute_NetworkErrorSurfacesAs500(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
	}}
	client := newTestClient(t, doer)

	_, err := client.Execute(context.Background(), core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"})

	var apiErr *core.APIRequestError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api request error, got: %v", err)
	}
	if apiErr.StatusCode != 500 {
		t.Fatalf("expected network errors reported as 500, got %d", apiErr.StatusCode)
	}
}

func TestClassifyAttempt_DecisionTable(t *testing.T) {
	cases := []struct {
		name        string
		response    core.APIResponse
		err         error
		lastAttempt bool
		kind        retryKind
	}{
		{"success", core.APIResponse{StatusCode: 200}, nil, false, retryKindOK},
		{"created", core.APIResponse{StatusCode: 201}, nil, true, retryKindOK},
		{"rate limited", core.APIResponse{StatusCode: 429}, nil, false, retryKindBackoff},
		{"rate limited final", core.APIResponse{StatusCode: 429}, nil, true, retryKindFatal},
		{"server error", core.APIResponse{StatusCode: 502}, nil, false, retryKindRetry},
		{"server error final", core.APIResponse{StatusCode: 502}, nil, true, retryKindFatal},
		{"client error", core.APIResponse{StatusCode: 403}, nil, false, retryKindFatal},
		{"network error", core.APIResponse{}, fmt.Errorf("dial timeout"), false, retryKindRetry},
		{"network error final", core.APIResponse{}, fmt.Errorf("dial timeout"), true, retryKindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyAttempt(tc.response, tc.err, tc.lastAttempt)
			if got.Kind != tc.kind {
				t.Fatalf("expected kind %d, got %d", tc.kind, got.Kind)
			}
			if got.Kind == retryKindFatal && got.Err == nil {
				t.Fatalf("fatal decisions must carry an error")
			}
		})
	}
}

func TestPageSequence_CursorWalkTerminates(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 200, body: `{"users":[{"id":"u1"}],"nextPageToken":"t2"}`},
		{status: 200, body: `{"users":[{"id":"u2"},{"id":"u3"}]}`},
	}}
	client := newTestClient(t, doer)

	pages := client.Paginated(core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"}, CursorPagination{
		CursorResponseKey: "nextPageToken",
		CursorRequestKey:  "pageToken",
		ItemsKey:          "users",
		MaxResultsKey:     "maxResults",
	})

	if len(doer.requests) != 0 {
		t.Fatalf("expected lazy sequence, %d requests sent eagerly", len(doer.requests))
	}

	total := 0
	for {
		items, ok, err := pages.Next(context.Background())
		if err != nil {
			t.Fatalf("page fetch failed: %v", err)
		}
		if !ok {
			break
		}
		total += len(items)
	}
	if total != 3 {
		t.Fatalf("expected 3 items across pages, got %d", total)
	}

	if got := doer.requests[1].URL.Query().Get("pageToken"); got != "t2" {
		t.Fatalf("expected cursor threaded into second request, got %q", got)
	}

	if _, ok, _ := pages.Next(context.Background()); ok {
		t.Fatalf("expected drained sequence to stay drained")
	}
	if len(doer.requests) != 2 {
		t.Fatalf("expected no fetches after drain, got %d", len(doer.requests))
	}
}

func TestPageSequence_SkipsEmptyIntermediatePages(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 200, body: `{"users":[],"nextPageToken":"t2"}`},
		{status: 200, body: `{"users":[{"id":"u1"}]}`},
	}}
	client := newTestClient(t, doer)

	pages := client.Paginated(core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"}, CursorPagination{
		CursorResponseKey: "nextPageToken",
		CursorRequestKey:  "pageToken",
		ItemsKey:          "users",
	})

	items, ok, err := pages.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected batch after empty page, ok=%v err=%v", ok, err)
	}
	if len(items) != 1 || items[0]["id"] != "u1" {
		t.Fatalf("unexpected batch: %v", items)
	}
}

func TestPageSequence_MidIterationFailureIsTerminal(t *testing.T) {
	doer := &scriptedDoer{responses: []scriptedResponse{
		{status: 200, body: `{"users":[{"id":"u1"}],"nextPageToken":"t2"}`},
		{status: 403, body: `{"error":"forbidden"}`},
	}}
	client := newTestClient(t, doer)

	pages := client.Paginated(core.RequestDefinition{
		URL: "https://example.test/users",
	}, core.AuthContext{AccessToken: "tok"}, CursorPagination{
		CursorResponseKey: "nextPageToken",
		CursorRequestKey:  "pageToken",
		ItemsKey:          "users",
	})

	if _, ok, err := pages.Next(context.Background()); !ok || err != nil {
		t.Fatalf("expected first page, ok=%v err=%v", ok, err)
	}
	if _, _, err := pages.Next(context.Background()); err == nil {
		t.Fatalf("expected mid-iteration failure to surface")
	}
	if _, ok, err := pages.Next(context.Background()); ok || err != nil {
		t.Fatalf("expected failed sequence to terminate quietly, ok=%v err=%v", ok, err)
	}
}
