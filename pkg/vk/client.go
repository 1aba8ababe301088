package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"vkdump/pkg/config"
	errs "vkdump/pkg/errors"
	"vkdump/pkg/logger"
	"vkdump/pkg/ratelimit"
	"vkdump/pkg/retry"
)

// Client calls VK API methods with process-wide throttling and
// retry-on-transient-failure. It is the only path to the vendor; every
// fetcher goes through Call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	token      string
	limiter    ratelimit.Limiter
	retryCfg   config.RetryConfig
	logger     logger.Logger
}

// NewClient creates a VK API client from configuration.
func NewClient(cfg *config.Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.API.Timeout},
		baseURL:    cfg.API.BaseURL,
		version:    cfg.API.Version,
		token:      cfg.API.AccessToken,
		limiter:    newLimiter(cfg.RateLimit),
		retryCfg:   cfg.Retry,
		logger:     log,
	}
}

// newLimiter picks the throttle from configuration. The default fixed
// interval matches VK's per-second call ceiling; a burst configuration
// trades that smoothness for short back-to-back runs of calls.
func newLimiter(cfg config.RateLimitConfig) ratelimit.Limiter {
	if cfg.Burst > 0 {
		return ratelimit.NewTokenBucket(cfg.Burst, cfg.BurstWindow)
	}
	return ratelimit.NewInterval(cfg.MinInterval)
}

// switchingBackoff picks the delay strategy for the error that triggered
// the retry: vendor rate-limit signals get the long backoff, everything
// else the transient one.
type switchingBackoff struct {
	transient retry.BackoffStrategy
	rateLimit retry.BackoffStrategy
	current   retry.BackoffStrategy
}

func (s *switchingBackoff) NextDelay(attempt int) time.Duration {
	if s.current == nil {
		return s.transient.NextDelay(attempt)
	}
	return s.current.NextDelay(attempt)
}

func (s *switchingBackoff) observe(err error) {
	if errs.IsKind(err, errs.KindRateLimited) {
		s.current = s.rateLimit
	} else {
		s.current = s.transient
	}
}

// Call invokes one API method, waiting out the global call interval and
// retrying transient failures up to the configured bound. Permanent
// vendor refusals surface immediately as typed errors.
func (c *Client) Call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	backoff := &switchingBackoff{
		transient: retry.NewExponentialBackoff(c.retryCfg.BaseDelay, c.retryCfg.MaxDelay),
		rateLimit: retry.NewExponentialBackoff(c.retryCfg.RateLimitBaseDelay, c.retryCfg.RateLimitMaxDelay),
	}

	return retry.DoWithResult(func() (json.RawMessage, error) {
		resp, err := c.callOnce(ctx, method, params)
		if err != nil {
			backoff.observe(err)
		}
		return resp, err
	}, &retry.Config{
		MaxAttempts: c.retryCfg.MaxAttempts,
		Backoff:     backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      c.logger.WithField("method", method),
	})
}

// callOnce performs a single throttled request with no retry.
func (c *Client) callOnce(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	c.limiter.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set("access_token", c.token)
	query.Set("v", c.version)

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, method, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.New(errs.KindUnavailable, 0, "failed to create request: %v", err)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending API request", map[string]interface{}{
		"method": method,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("API request failed", map[string]interface{}{
			"method":   method,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.New(errs.KindUnavailable, 0, "network error: %v", err)
	}
	defer resp.Body.Close()

	if err := checkHTTPStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.KindUnavailable, resp.StatusCode, "failed to read response body: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse API response", map[string]interface{}{
			"method":       method,
			"body_preview": preview,
		})
		return nil, errs.New(errs.KindParsing, resp.StatusCode, "failed to parse response: %v", err)
	}

	if env.Error != nil {
		apiErr := errs.FromAPICode(env.Error.Code, env.Error.Message)
		c.logger.DebugWithFields("API returned error", map[string]interface{}{
			"method": method,
			"code":   env.Error.Code,
			"kind":   string(apiErr.Kind),
		})
		return nil, apiErr
	}

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"method":   method,
		"duration": duration,
	})

	return env.Response, nil
}

// checkHTTPStatus maps transport-level statuses to typed errors. VK
// normally reports problems inside a 200 response; anything else is the
// CDN or a proxy talking.
func checkHTTPStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return errs.New(errs.KindRateLimited, status, "too many requests")
	case status >= 500:
		return errs.New(errs.KindUnavailable, status, "server error")
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return errs.New(errs.KindRejected, status, "request rejected")
	default:
		return errs.New(errs.KindUnavailable, status, "unexpected status code")
	}
}

// CallInto invokes a method and decodes the response payload into target.
func (c *Client) CallInto(ctx context.Context, method string, params url.Values, target interface{}) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return errs.New(errs.KindParsing, 0, "failed to decode %s response: %v", method, err)
	}
	return nil
}

// ResolveGroupID resolves a community identifier (numeric id or screen
// name) to a positive numeric group id. Failure here is fatal for the
// whole run.
func (c *Client) ResolveGroupID(ctx context.Context, identifier string) (int64, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		if id < 0 {
			id = -id
		}
		return id, nil
	}

	var resolved ResolvedName
	err := c.CallInto(ctx, MethodResolveScreenName, Params("screen_name", identifier), &resolved)
	if err != nil {
		return 0, errs.New(errs.KindResolution, 0, "failed to resolve screen name %q: %v", identifier, err)
	}

	switch resolved.Type {
	case "group", "page", "public", "event":
		return resolved.ObjectID, nil
	default:
		return 0, errs.New(errs.KindResolution, 0, "screen name %q is not a community (type %q)", identifier, resolved.Type)
	}
}

// FetchGroup fetches the community header. It returns both the decoded
// header and the raw group object, which carries many more fields than
// the typed struct models.
func (c *Client) FetchGroup(ctx context.Context, groupID int64) (*Group, json.RawMessage, error) {
	raw, err := c.Call(ctx, MethodGroupsGetByID, GroupHeaderParams(groupID))
	if err != nil {
		return nil, nil, err
	}

	// groups.getById returns a bare array of groups.
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		// Newer API versions wrap the array in an object.
		var wrapped struct {
			Groups []json.RawMessage `json:"groups"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.Groups) == 0 {
			return nil, nil, errs.New(errs.KindParsing, 0, "unexpected groups.getById response shape")
		}
		items = wrapped.Groups
	}

	var group Group
	if err := json.Unmarshal(items[0], &group); err != nil {
		return nil, nil, errs.New(errs.KindParsing, 0, "failed to decode group header: %v", err)
	}
	return &group, items[0], nil
}

// BannerURL returns the widest cover image URL, or empty when the
// community has no banner.
func BannerURL(group *Group) string {
	var best CoverImage
	for _, img := range group.Cover.Images {
		if img.Width > best.Width {
			best = img
		}
	}
	return best.URL
}
