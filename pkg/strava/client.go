package strava

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stravasync/pkg/config"
	errs "stravasync/pkg/errors"
	"stravasync/pkg/logger"
	"stravasync/pkg/retry"
)

// TokenSource supplies a bearer credential for API requests. The
// authorization flow lives in pkg/auth; the client only consumes tokens.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource returning a fixed access token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "no access token configured",
			Code:    http.StatusUnauthorized,
		}
	}
	return string(t), nil
}

// Client is a Strava API v3 client. Every remote call costs exactly one
// request against the athlete's rate budget; budget accounting is the
// caller's concern, the client only reports 429 as a rate-limit error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	retrier    *retry.Retrier
	logger     logger.Logger
}

// New creates a new Strava API client
func New(cfg *config.StravaConfig, tokens TokenSource, maxRetries int, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = maxRetries
	retryCfg.Logger = log

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		tokens:     tokens,
		retrier:    retry.NewRetrier(retryCfg),
		logger:     log,
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs a single authenticated HTTP request
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
			Code:    0,
		}
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// GetJSON performs a GET request and decodes the JSON response. Transient
// network and 5xx failures are retried with backoff; 429 is returned
// immediately as a rate-limit error so the budget tracker can take over.
func (c *Client) GetJSON(url string, target interface{}) error {
	return c.retrier.Do(func() error {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return &errs.Error{
				Type:    errs.ErrorTypeUnknown,
				Message: fmt.Sprintf("failed to create request: %v", err),
				Code:    0,
			}
		}

		resp, err := c.doRequest(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := c.checkResponseStatus(resp); err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errs.Error{
				Type:    errs.ErrorTypeNetwork,
				Message: fmt.Sprintf("failed to read response body: %v", err),
				Code:    resp.StatusCode,
			}
		}

		if err := json.Unmarshal(body, target); err != nil {
			bodyPreview := string(body)
			if len(bodyPreview) > 200 {
				bodyPreview = bodyPreview[:200] + "..."
			}
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          url,
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": bodyPreview,
			})
			return &errs.Error{
				Type:    errs.ErrorTypeParsing,
				Message: fmt.Sprintf("failed to parse JSON: %v", err),
				Code:    resp.StatusCode,
			}
		}

		return nil
	})
}

// checkResponseStatus maps HTTP status codes to the error taxonomy
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "authentication required",
			Code:    resp.StatusCode,
		}
	case http.StatusNotFound:
		return &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case http.StatusTooManyRequests:
		c.logger.WarnWithFields("remote rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &errs.Error{
			Type:    errs.ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Code:    resp.StatusCode,
		}
	default:
		if resp.StatusCode >= 500 {
			return &errs.Error{
				Type:    errs.ErrorTypeServerError,
				Message: fmt.Sprintf("server returned status %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		if resp.StatusCode >= 400 {
			return &errs.Error{
				Type:    errs.ErrorTypeUnknown,
				Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		return nil
	}
}

// FetchActivitiesPage fetches one page of the athlete's activity collection.
// Pages start at 1; an empty slice means the collection is exhausted.
func (c *Client) FetchActivitiesPage(page, perPage int) ([]Activity, error) {
	url := ActivitiesURL(c.baseURL, page, perPage)

	c.logger.DebugWithFields("fetching activities page", map[string]interface{}{
		"page":     page,
		"per_page": perPage,
	})

	var activities []Activity
	if err := c.GetJSON(url, &activities); err != nil {
		return nil, err
	}

	c.logger.DebugWithFields("activities page fetched", map[string]interface{}{
		"page":  page,
		"count": len(activities),
	})

	return activities, nil
}

// FetchActivityStreams fetches the requested stream types for an activity,
// keyed by type. Strava answers 404 when an activity has no streams at all;
// callers should treat that as an empty set, not a failure.
func (c *Client) FetchActivityStreams(activityID int64, types []string) (StreamSet, error) {
	url := StreamsURL(c.baseURL, activityID, types)

	c.logger.DebugWithFields("fetching activity streams", map[string]interface{}{
		"activity_id":  activityID,
		"stream_types": types,
	})

	var streams StreamSet
	if err := c.GetJSON(url, &streams); err != nil {
		return nil, err
	}

	return streams, nil
}
