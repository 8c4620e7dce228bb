package sgo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/propline/internal/logging"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.sportsgameodds.com/v2"
	DefaultLimit   = 250
	DefaultTimeout = 20 * time.Second

	// maxPages bounds cursor pagination for a single query.
	maxPages = 10
	// maxErrorBody caps how much of an error response is quoted.
	maxErrorBody = 200
	// DefaultMaxBodyBytes caps one response page.
	DefaultMaxBodyBytes int64 = 32 << 20
)

// ResponseCache stores raw upstream pages. Implementations must be safe for concurrent use.
type ResponseCache interface {
	Lookup(ctx context.Context, key string) ([]byte, bool)
	Store(ctx context.Context, key string, body []byte, ttl time.Duration) error
}

// ClientConfig configures a Client. Zero values take defaults.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Limit      int
	Timeout    time.Duration
	HTTPClient *http.Client
	// MaxBodyBytes rejects larger pages. Default DefaultMaxBodyBytes.
	MaxBodyBytes int64

	Cache         ResponseCache
	RecentTTL     time.Duration
	HistoricalTTL time.Duration
}

// Client talks to the SportsGameOdds events endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	limit      int
	maxBody    int64
	httpClient *http.Client

	cache         ResponseCache
	recentTTL     time.Duration
	historicalTTL time.Duration

	now func() time.Time
	log *logrus.Entry
}

// NewClient builds a Client from cfg.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		limit:         limit,
		maxBody:       maxBody,
		httpClient:    httpClient,
		cache:         cfg.Cache,
		recentTTL:     cfg.RecentTTL,
		historicalTTL: cfg.HistoricalTTL,
		now:           time.Now,
		log:           logging.For("sgo-client"),
	}
}

// HasAPIKey reports whether credentials were configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// Query selects events for one league.
type Query struct {
	League string
	From   time.Time
	To     time.Time
	Season string
	OddIDs []string
}

func (q Query) dateLabel() string {
	if q.From.IsZero() {
		return q.Season
	}
	from := q.From.Format("2006-01-02")
	if q.To.IsZero() || q.To.Format("2006-01-02") == from {
		return from
	}
	return from + ".." + q.To.Format("2006-01-02")
}

// FetchEvents returns every event matching q, following nextCursor up to a fixed page bound.
// All failures are reported as *UpstreamFetchError.
func (c *Client) FetchEvents(ctx context.Context, q Query) ([]RawEvent, error) {
	var (
		events []RawEvent
		cursor string
	)

	for page := 0; page < maxPages; page++ {
		resp, err := c.fetchPage(ctx, q, cursor)
		if err != nil {
			return nil, err
		}
		events = append(events, resp.Data...)

		if resp.NextCursor == "" || resp.NextCursor == cursor {
			break
		}
		cursor = resp.NextCursor
	}

	return events, nil
}

func (c *Client) fetchPage(ctx context.Context, q Query, cursor string) (*EventsResponse, error) {
	fail := func(status int, err error) error {
		return &UpstreamFetchError{League: q.League, Date: q.dateLabel(), StatusCode: status, Err: err}
	}

	params := c.params(q, cursor)
	cacheKey := "sgo:events:" + params.Encode()

	if c.cache != nil {
		if body, ok := c.cache.Lookup(ctx, cacheKey); ok {
			resp, err := decodeEvents(body)
			if err == nil {
				return resp, nil
			}
			c.log.WithError(err).Warn("⚠️  discarding undecodable cached page")
		}
	}

	params.Set("apiKey", c.apiKey)
	endpoint := c.baseURL + "/events?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, c.maxBody+1))
	if err != nil {
		return nil, fail(res.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > c.maxBody {
		return nil, fail(res.StatusCode, fmt.Errorf("response body exceeds %d bytes", c.maxBody))
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fail(res.StatusCode, errors.New(snippet(body)))
	}

	resp, err := decodeEvents(body)
	if err != nil {
		return nil, fail(res.StatusCode, err)
	}

	c.log.WithFields(logrus.Fields{
		"league":   q.League,
		"date":     q.dateLabel(),
		"events":   len(resp.Data),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("fetched events page")

	if ttl := c.ttlFor(q); c.cache != nil && ttl > 0 {
		if err := c.cache.Store(ctx, cacheKey, body, ttl); err != nil {
			c.log.WithError(err).Warn("⚠️  failed to cache events page")
		}
	}

	return resp, nil
}

func (c *Client) params(q Query, cursor string) url.Values {
	params := url.Values{}
	params.Set("leagueID", strings.ToUpper(q.League))
	params.Set("oddsAvailable", "true")
	params.Set("limit", strconv.Itoa(c.limit))
	if !q.From.IsZero() {
		params.Set("dateFrom", q.From.Format("2006-01-02"))
		to := q.To
		if to.IsZero() {
			to = q.From
		}
		params.Set("dateTo", to.Format("2006-01-02"))
	}
	if q.Season != "" {
		params.Set("season", q.Season)
	}
	if len(q.OddIDs) > 0 {
		params.Set("oddIDs", strings.Join(q.OddIDs, ","))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return params
}

// ttlFor keeps recent pages briefly and historical pages much longer.
func (c *Client) ttlFor(q Query) time.Duration {
	end := q.To
	if end.IsZero() {
		end = q.From
	}
	if !end.IsZero() && end.Before(c.now().AddDate(0, 0, -2)) && c.historicalTTL > 0 {
		return c.historicalTTL
	}
	return c.recentTTL
}

func decodeEvents(body []byte) (*EventsResponse, error) {
	var resp EventsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode events: %w (body: %s)", err, snippet(body))
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		if msg == "" {
			msg = "success=false"
		}
		return nil, fmt.Errorf("upstream reported failure: %s", msg)
	}
	return &resp, nil
}

func snippet(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
