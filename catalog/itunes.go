package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"howett.net/plist"

	"github.com/teranos/kwpulse/errors"
	"github.com/teranos/kwpulse/internal/httpclient"
	"github.com/teranos/kwpulse/internal/pace"
)

const (
	DefaultSearchURL = "https://itunes.apple.com/search"
	DefaultHintsURL  = "https://search.itunes.apple.com/WebObjects/MZSearchHints.woa/wa/hints"

	// maxBodyBytes bounds how much of a catalog response is read
	maxBodyBytes = 4 << 20
)

// ITunesConfig configures the App Store adapter.
type ITunesConfig struct {
	SearchURL string
	HintsURL  string
	Timeout   time.Duration
	// Delay spaces consecutive requests to either endpoint
	Delay  time.Duration
	Logger *zap.SugaredLogger
}

// ITunesClient implements Client against the public iTunes endpoints.
type ITunesClient struct {
	searchURL  string
	hintsURL   string
	httpClient *httpclient.SaferClient
	pacer      *pace.Pacer
	logger     *zap.SugaredLogger
}

// NewITunesClient creates an adapter with SSRF protection enabled.
func NewITunesClient(cfg ITunesConfig) *ITunesClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return newITunesClient(cfg, httpclient.NewSaferClient(cfg.Timeout))
}

func newITunesClient(cfg ITunesConfig, hc *httpclient.SaferClient) *ITunesClient {
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.HintsURL == "" {
		cfg.HintsURL = DefaultHintsURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ITunesClient{
		searchURL:  cfg.SearchURL,
		hintsURL:   cfg.HintsURL,
		httpClient: hc,
		pacer:      pace.New(cfg.Delay),
		logger:     logger,
	}
}

// SetHTTPClient replaces the HTTP client (for testing against httptest servers).
func (c *ITunesClient) SetHTTPClient(hc *httpclient.SaferClient) {
	c.httpClient = hc
}

// SetDelay changes the spacing between catalog requests.
func (c *ITunesClient) SetDelay(d time.Duration) {
	c.pacer.SetDelay(d)
}

type searchResponse struct {
	ResultCount int   `json:"resultCount"`
	Results     []App `json:"results"`
}

// Search returns up to limit software results for term in the given storefront.
func (c *ITunesClient) Search(ctx context.Context, term, country string, limit int) ([]App, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.NewInvalidRequestError("search term is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	q := url.Values{}
	q.Set("term", term)
	q.Set("country", strings.ToLower(country))
	q.Set("entity", "software")
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, c.searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "search %q", term)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode search response for %q", term)
	}
	if len(resp.Results) > limit {
		resp.Results = resp.Results[:limit]
	}

	c.logger.Debugw("Catalog search",
		"term", term,
		"country", country,
		"results", len(resp.Results),
	)
	return resp.Results, nil
}

type hintsResponse struct {
	Hints []struct {
		Term     string `plist:"term"`
		Priority int    `plist:"priority"`
	} `plist:"hints"`
}

// Autocomplete returns the store's search hints for term, in ranked order.
func (c *ITunesClient) Autocomplete(ctx context.Context, term, country string) ([]Hint, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.NewInvalidRequestError("hint term is empty")
	}
	storefront, ok := StorefrontHeader(country)
	if !ok {
		return nil, errors.NewInvalidRequestError("no storefront for country %q", country)
	}

	q := url.Values{}
	q.Set("clientApplication", "Software")
	q.Set("term", term)

	body, err := c.get(ctx, c.hintsURL+"?"+q.Encode(), http.Header{
		"X-Apple-Store-Front": []string{storefront},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "hints %q", term)
	}

	var resp hintsResponse
	if _, err := plist.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode hints plist for %q", term)
	}

	hints := make([]Hint, 0, len(resp.Hints))
	for _, h := range resp.Hints {
		kw := strings.TrimSpace(h.Term)
		if kw == "" {
			continue
		}
		hints = append(hints, Hint{Keyword: kw, Priority: h.Priority})
	}
	return hints, nil
}

func (c *ITunesClient) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("catalog request failed with status %d", resp.StatusCode)
	}
	return body, nil
}
