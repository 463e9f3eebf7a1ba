package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-workspace-sync/core"
	"github.com/goliatone/go-workspace-sync/ratelimit"
	"github.com/goliatone/go-workspace-sync/transport"
)

type Config struct {
	HTTPClient transport.HTTPDoer
	Limiters   *ratelimit.Registry
	Timeout    time.Duration
	MaxRetries int
	Logger     core.Logger
}

// Provider adapts the Google Workspace Admin SDK into the canonical sync
// contracts. Directory endpoints share one rate budget; the Reports API gets
// its own, stricter one.
type Provider struct {
	httpClient transport.HTTPDoer
	limiters   *ratelimit.Registry
	timeout    time.Duration
	maxRetries int
	logger     core.Logger
}

func New(config Config) (*Provider, error) {
	limiters := config.Limiters
	if limiters == nil {
		limiters = ratelimit.NewRegistry()
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Provider{
		httpClient: httpClient,
		limiters:   limiters,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

func (p *Provider) Slug() string {
	return ProviderSlug
}

func (p *Provider) Pipeline() []core.SyncStep {
	return []core.SyncStep{
		core.SyncStepUsers,
		core.SyncStepGroups,
		core.SyncStepGroupMembers,
		core.SyncStepTokenEvents,
	}
}

func (p *Provider) Paginator(step core.SyncStep) (core.PaginationStrategy, error) {
	return paginatorForStep(step)
}

// Request builds the API call for one step. The group_key, user_key, and
// start_time entries of params are consumed here; everything else rides along
// as query parameters.
func (p *Provider) Request(step core.SyncStep, params map[string]string) (core.RequestDefinition, error) {
	if params == nil {
		params = map[string]string{}
	}
	requestParams := map[string]string{"customer": "my_customer"}

	var endpoint string
	switch step {
	case core.SyncStepUsers:
		endpoint = usersEndpoint
	case core.SyncStepGroups:
		endpoint = groupsEndpoint
	case core.SyncStepGroupMembers:
		endpoint = fmt.Sprintf(groupMembersEndpointFmt, url.PathEscape(params["group_key"]))
	case core.SyncStepUserTokens:
		endpoint = fmt.Sprintf(userTokensEndpointFmt, url.PathEscape(params["user_key"]))
	case core.SyncStepTokenEvents:
		endpoint = tokenActivitiesEndpoint
		if start := strings.TrimSpace(params["start_time"]); start != "" {
			requestParams["startTime"] = start
		}
	default:
		return core.RequestDefinition{}, fmt.Errorf("%w: %q", core.ErrInvalidSyncStep, step)
	}

	return core.RequestDefinition{
		Method: http.MethodGet,
		URL:    endpoint,
		Params: requestParams,
	}, nil
}

func (p *Provider) FetchUsers(ctx context.Context, auth core.AuthContext) (*core.BatchSeq[core.UserRecord], error) {
	pages, err := p.pages(core.SyncStepUsers, map[string]string{}, auth)
	if err != nil {
		return nil, err
	}
	return core.NewBatchSeq(func(ctx context.Context) ([]core.UserRecord, bool, error) {
		items, ok, err := pages.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		return adaptUsers(items), true, nil
	}), nil
}

func (p *Provider) FetchGroups(ctx context.Context, auth core.AuthContext) (*core.BatchSeq[core.GroupRecord], error) {
	pages, err := p.pages(core.SyncStepGroups, map[string]string{}, auth)
	if err != nil {
		return nil, err
	}
	return core.NewBatchSeq(func(ctx context.Context) ([]core.GroupRecord, bool, error) {
		items, ok, err := pages.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		return adaptGroups(items), true, nil
	}), nil
}

func (p *Provider) FetchGroupMembers(ctx context.Context, auth core.AuthContext, providerGroupID string) (*core.BatchSeq[core.MemberRecord], error) {
	providerGroupID = strings.TrimSpace(providerGroupID)
	if providerGroupID == "" {
		return nil, fmt.Errorf("workspace: group id is required")
	}
	pages, err := p.pages(core.SyncStepGroupMembers, map[string]string{"group_key": providerGroupID}, auth)
	if err != nil {
		return nil, err
	}
	return core.NewBatchSeq(func(ctx context.Context) ([]core.MemberRecord, bool, error) {
		items, ok, err := pages.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		return adaptMembers(items, providerGroupID), true, nil
	}), nil
}

func (p *Provider) FetchUserTokens(ctx context.Context, auth core.AuthContext, userProviderID string) (*core.BatchSeq[core.TokenRecord], error) {
	userProviderID = strings.TrimSpace(userProviderID)
	if userProviderID == "" {
		return nil, fmt.Errorf("workspace: user id is required")
	}
	pages, err := p.pages(core.SyncStepUserTokens, map[string]string{"user_key": userProviderID}, auth)
	if err != nil {
		return nil, err
	}
	return core.NewBatchSeq(func(ctx context.Context) ([]core.TokenRecord, bool, error) {
		items, ok, err := pages.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		return adaptUserTokens(items, userProviderID), true, nil
	}), nil
}

func (p *Provider) FetchTokenEvents(ctx context.Context, auth core.AuthContext, since time.Time) (*core.BatchSeq[core.TokenEventRecord], error) {
	params := map[string]string{}
	if !since.IsZero() {
		params["start_time"] = since.UTC().Format(time.RFC3339)
	}
	pages, err := p.pages(core.SyncStepTokenEvents, params, auth)
	if err != nil {
		return nil, err
	}
	return core.NewBatchSeq(func(ctx context.Context) ([]core.TokenEventRecord, bool, error) {
		items, ok, err := pages.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		return adaptTokenEvents(items), true, nil
	}), nil
}

func (p *Provider) ExchangeCode(ctx context.Context, code string, auth core.AuthConfig) (core.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {auth.ClientID},
		"client_secret": {auth.ClientSecret},
		"redirect_uri":  {auth.RedirectURI},
	}
	return p.tokenEndpointCall(ctx, form)
}

func (p *Provider) RefreshAccessToken(ctx context.Context, refreshToken string, auth core.AuthConfig) (core.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {auth.ClientID},
		"client_secret": {auth.ClientSecret},
	}
	token, err := p.tokenEndpointCall(ctx, form)
	if err != nil {
		return core.TokenResponse{}, fmt.Errorf("%w: %v", core.ErrTokenRefreshFailed, err)
	}
	return token, nil
}

// RevokeAppAccess deletes one client's token for a user. A grant the
// provider no longer knows about counts as revoked.
func (p *Provider) RevokeAppAccess(ctx context.Context, authCtx core.AuthContext, userProviderID, clientID string) (bool, error) {
	userProviderID = strings.TrimSpace(userProviderID)
	clientID = strings.TrimSpace(clientID)
	if userProviderID == "" || clientID == "" {
		return false, fmt.Errorf("workspace: user id and client id are required")
	}
	client, err := p.client(core.SyncStepUserTokens)
	if err != nil {
		return false, err
	}
	endpoint := fmt.Sprintf(userTokensEndpointFmt, url.PathEscape(userProviderID)) + "/" + url.PathEscape(clientID)
	response, err := client.Execute(ctx, core.RequestDefinition{
		Method: http.MethodDelete,
		URL:    endpoint,
	}, authCtx)
	if err != nil {
		var apiErr *core.APIRequestError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone) {
			return true, nil
		}
		return false, err
	}
	return response.IsSuccess(), nil
}

type tokenEndpointPayload struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *Provider) tokenEndpointCall(ctx context.Context, form url.Values) (core.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return core.TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := p.httpClient.Do(req)
	if err != nil {
		return core.TokenResponse{}, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return core.TokenResponse{}, err
	}

	var payload tokenEndpointPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.TokenResponse{}, fmt.Errorf("workspace: decode token response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 || payload.Error != "" {
		detail := strings.TrimSpace(payload.Error + " " + payload.ErrorDescription)
		if detail == "" {
			detail = "token endpoint rejected the request"
		}
		return core.TokenResponse{}, &core.APIRequestError{StatusCode: res.StatusCode, Body: detail}
	}

	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return core.TokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    payload.ExpiresIn,
		Scope:        payload.Scope,
	}, nil
}

func (p *Provider) pages(step core.SyncStep, params map[string]string, auth core.AuthContext) (*transport.PageSequence, error) {
	request, err := p.Request(step, params)
	if err != nil {
		return nil, err
	}
	paginator, err := p.Paginator(step)
	if err != nil {
		return nil, err
	}
	client, err := p.client(step)
	if err != nil {
		return nil, err
	}
	return client.Paginated(request, auth, paginator), nil
}

func (p *Provider) client(step core.SyncStep) (*transport.Client, error) {
	rateConfig := directoryRateConfig
	if step == core.SyncStepTokenEvents {
		rateConfig = reportsRateConfig
	}
	limiter, err := p.limiters.Bucket(ProviderSlug, string(step), rateConfig)
	if err != nil {
		return nil, err
	}
	return transport.NewClient(transport.Config{
		HTTPClient: p.httpClient,
		Limiter:    limiter,
		MaxRetries: p.maxRetries,
		Timeout:    p.timeout,
		Logger:     p.logger,
	})
}

var _ core.Provider = (*Provider)(nil)
