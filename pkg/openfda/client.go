// Package openfda fetches drug labels from the openFDA label endpoint.
package openfda

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

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/models"
)

var log = internal.GetLogger()

const labelPath = "/drug/label.json"

// Search fields, tried in order.
const (
	GenericNameField = "openfda.generic_name"
	BrandNameField   = "openfda.brand_name"
)

var _ models.LabelFetcher = &Client{}

type Client struct {
	baseURL  string
	apiKey   string
	sections []string
	http     *retryablehttp.Client
}

// NewClient returns a label fetcher for cfg.OpenFDA. Retries are off unless
// openfda.retry_max is set.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.OpenFDA.BaseURL == "" {
		return nil, models.NewConfigurationError("openfda.base_url is not set")
	}
	if _, err := url.Parse(cfg.OpenFDA.BaseURL); err != nil {
		return nil, models.NewConfigurationError("invalid openfda.base_url: %v", err)
	}
	if len(cfg.OpenFDA.Sections) == 0 {
		return nil, models.NewConfigurationError("openfda.sections is empty")
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.OpenFDA.BaseURL, "/"),
		apiKey:   cfg.OpenFDA.APIKey,
		sections: cfg.OpenFDA.Sections,
		http:     newHTTPClient(cfg.OpenFDA.RetryMax, cfg.OpenFDA.Timeout, cfg.Tracing.Enabled),
	}, nil
}

func newHTTPClient(retryMax int, timeout time.Duration, traced bool) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.HTTPClient.Timeout = timeout
	c.Logger = internal.NewLeveledLogrus(log)
	c.CheckRetry = retryPolicy
	// return the last response instead of a generic "giving up" error
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if traced {
		c.HTTPClient.Transport = otelhttp.NewTransport(c.HTTPClient.Transport)
	}
	return c
}

// retryPolicy retries transport errors, 429 and 5xx. A 404 is an answer, not a failure.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// FetchLabel looks the drug up by generic name, then by brand name, and
// returns the first result. The returned label carries the configured sections
// that are present and non-empty.
func (c *Client) FetchLabel(ctx context.Context, drugName string) (*models.Label, error) {
	drugName = strings.TrimSpace(drugName)
	if drugName == "" {
		return nil, fmt.Errorf("drug name is empty: %w", models.ErrBadRequest)
	}

	var upstreamErr error
	for _, field := range []string{GenericNameField, BrandNameField} {
		raw, err := c.search(ctx, field, drugName)
		if err != nil {
			if !errors.Is(err, models.ErrUpstreamUnavailable) {
				return nil, err
			}
			log.Warnf("openfda %s search for %q failed: %v", field, drugName, err)
			upstreamErr = err
			continue
		}
		if raw == nil {
			log.Debugf("openfda %s search for %q returned no results", field, drugName)
			continue
		}
		return c.parseLabel(drugName, raw)
	}

	if upstreamErr != nil {
		return nil, upstreamErr
	}
	return nil, models.NewLabelNotFoundError(drugName)
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// search returns the first result of a field search, or nil when there is none.
func (c *Client) search(ctx context.Context, field, drugName string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("search", field+":"+quoteTerm(drugName))
	params.Set("limit", "1")
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+labelPath+"?"+params.Encode(),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build openfda request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewUpstreamError(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewUpstreamError(resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// openFDA answers 404 "No matches found!" for an empty search
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, models.NewUpstreamError(
			resp.StatusCode,
			fmt.Errorf("openfda returned %s", resp.Status),
		)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, models.NewUpstreamError(resp.StatusCode, fmt.Errorf("invalid openfda response: %w", err))
	}
	if len(sr.Results) == 0 {
		return nil, nil
	}

	return sr.Results[0], nil
}

// quoteTerm wraps multi-word names in double quotes so they match as a phrase.
func quoteTerm(name string) string {
	name = strings.ReplaceAll(name, `"`, "")
	if strings.ContainsAny(name, " \t") {
		return `"` + name + `"`
	}
	return name
}
