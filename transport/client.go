package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/ratelimit"
)

// HTTPDoer is the subset of http.Client the transport depends on.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	HTTPClient HTTPDoer
	Limiter    *ratelimit.Bucket
	MaxRetries int
	Timeout    time.Duration
	Logger     core.Logger
}

// Client executes provider API calls behind a shared rate limiter, retrying
// 429 and 5xx responses up to the configured budget.
type Client struct {
	http       HTTPDoer
	limiter    *ratelimit.Bucket
	maxRetries int
	logger     core.Logger
}

func NewClient(config Config) (*Client, error) {
	if config.Limiter == nil {
		return nil, fmt.Errorf("transport: rate limiter is required")
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Client{
		http:       httpClient,
		limiter:    config.Limiter,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

// retryDecision is the tagged outcome of classifying one attempt. Exactly one
// of the kinds applies; callers switch over Kind and treat unknown kinds as
// fatal.
type retryDecision struct {
	Kind       retryKind
	RetryAfter time.Duration
	Err        error
}

type retryKind int

const (
	retryKindOK retryKind = iota
	retryKindBackoff
	retryKindRetry
	retryKindFatal
)

// Execute performs one provider call, consuming limiter tokens first. The
// returned response always carries the final attempt's status code.
func (c *Client) Execute(ctx context.Context, req core.RequestDefinition, auth core.AuthContext) (core.APIResponse, error) {
	if c == nil {
		return core.APIResponse{}, fmt.Errorf("transport: client is nil")
	}
	if err := c.limiter.Acquire(ctx, req.Cost); err != nil {
		return core.APIResponse{}, err
	}

	var response core.APIResponse
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		out, err := c.send(ctx, req, auth)
		response = out
		decision := classifyAttempt(out, err, attempt >= c.maxRetries)
		switch decision.Kind {
		case retryKindOK:
			return response, nil
		case retryKindBackoff:
			c.logger.Warn("provider rate limited, backing off",
				"url", req.URL,
				"attempt", attempt,
				"retry_after", decision.RetryAfter,
			)
			if err := c.limiter.WaitForRetry(ctx, decision.RetryAfter); err != nil {
				return response, err
			}
		case retryKindRetry:
			c.logger.Warn("provider request failed, retrying",
				"url", req.URL,
				"attempt", attempt,
				"status", out.StatusCode,
			)
		default:
			return response, decision.Err
		}
	}
	// maxRetries is always >= 1, the loop returns before falling through.
	return response, &core.APIRequestError{StatusCode: response.StatusCode, Body: "retry budget exhausted"}
}

// classifyAttempt maps one attempt's outcome onto the retry ladder. Success
// and 4xx end immediately; 429 waits out the server hint; 5xx and network
// errors retry until the budget runs out.
func classifyAttempt(response core.APIResponse, err error, lastAttempt bool) retryDecision {
	if err != nil {
		if !lastAttempt {
			return retryDecision{Kind: retryKindRetry}
		}
		return retryDecision{Kind: retryKindFatal, Err: &core.APIRequestError{
			StatusCode: http.StatusInternalServerError,
			Body:       err.Error(),
		}}
	}
	switch {
	case response.IsSuccess():
		return retryDecision{Kind: retryKindOK}
	case response.IsRateLimited():
		if lastAttempt {
			return retryDecision{Kind: retryKindFatal, Err: &core.RateLimitExceededError{
				RetryAfter: response.RetryAfter(),
			}}
		}
		return retryDecision{Kind: retryKindBackoff, RetryAfter: response.RetryAfter()}
	case response.IsServerError():
		if lastAttempt {
			return retryDecision{Kind: retryKindFatal, Err: apiError(response)}
		}
		return retryDecision{Kind: retryKindRetry}
	default:
		return retryDecision{Kind: retryKindFatal, Err: apiError(response)}
	}
}

func apiError(response core.APIResponse) error {
	body := ""
	if len(response.Data) > 0 {
		if encoded, err := json.Marshal(response.Data); err == nil {
			body = string(encoded)
		}
	}
	return &core.APIRequestError{StatusCode: response.StatusCode, Body: body}
}

func (c *Client) send(ctx context.Context, req core.RequestDefinition, auth core.AuthContext) (core.APIResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return core.APIResponse{}, err
	}
	if len(req.Params) > 0 {
		query := url.Values{}
		for key, value := range req.Params {
			query.Set(key, value)
		}
		httpReq.URL.RawQuery = query.Encode()
	}
	httpReq.Header.Set("Authorization", auth.AuthorizationHeader())
	httpReq.Header.Set("Accept", "application/json")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return core.APIResponse{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return core.APIResponse{}, err
	}
	response := core.APIResponse{
		StatusCode: res.StatusCode,
		Headers:    res.Header,
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		var data map[string]any
		if err := json.Unmarshal(body, &data); err == nil {
			response.Data = data
		}
	}
	return response, nil
}

// Paginated wraps a request in a lazy page sequence driven by the given
// strategy. No network traffic happens until the first Next call.
func (c *Client) Paginated(req core.RequestDefinition, auth core.AuthContext, strategy core.PaginationStrategy) *PageSequence {
	params := cloneParams(req.Params)
	for key, value := range strategy.InitialParams() {
		if _, exists := params[key]; !exists {
			params[key] = value
		}
	}
	return &PageSequence{
		client:   c,
		request:  req,
		auth:     auth,
		strategy: strategy,
		params:   params,
	}
}

// PageSequence is a finite, non-restartable sequence of item pages. Next
// reports false once the provider stops returning continuation state.
type PageSequence struct {
	client   *Client
	request  core.RequestDefinition
	auth     core.AuthContext
	strategy core.PaginationStrategy
	params   map[string]string
	done     bool
}

// Next fetches pages until one carries items or the sequence ends. Empty
// intermediate pages are skipped, matching providers that return
// continuation tokens without results.
func (s *PageSequence) Next(ctx context.Context) ([]map[string]any, bool, error) {
	if s == nil || s.done {
		return nil, false, nil
	}
	for {
		request := s.request
		request.Params = s.params
		response, err := s.client.Execute(ctx, request, s.auth)
		if err != nil {
			s.done = true
			return nil, false, err
		}
		if !response.IsSuccess() {
			s.done = true
			return nil, false, apiError(response)
		}

		items := s.strategy.ExtractItems(response.Data)
		next, more := s.strategy.NextParams(response.Data, s.params)
		if more {
			s.params = next
		} else {
			s.done = true
		}
		if len(items) > 0 {
			return items, true, nil
		}
		if !more {
			return nil, false, nil
		}
	}
}
