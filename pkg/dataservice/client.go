// Package dataservice implements the HTTP transport for the dataservice
// API: paginated filter scans, concurrent by-ID lookups, and the PATCH and
// DELETE calls used by the mutation dispatcher. Retry and backoff live here;
// consumers treat any surfaced error as fatal to their in-flight work.
package dataservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kids-first/dataservice-utils/internal/concurrency"
	"github.com/kids-first/dataservice-utils/pkg/logger"
	"github.com/kids-first/dataservice-utils/pkg/record"
)

const (
	DefaultPageSize     = 100
	DefaultBreadthLimit = 10

	// defaultScanRetryBudget bounds how long a filter scan is re-run when the
	// service's reported total and the streamed record count disagree.
	defaultScanRetryBudget = 15 * time.Second
)

// ErrCountMismatch reports a scan whose streamed distinct records do not add
// up to the total the service claimed, usually because records were added or
// removed mid-scan. An undercounted scan must never be treated as complete.
var ErrCountMismatch = errors.New("scanned record count does not match reported total")

// Filter narrows a scan to records whose fields match every entry.
type Filter map[string]string

// Fetcher resolves (type, filter) and id-set queries into complete,
// deduplicated record sets. Implementations must exhaust pagination and fail
// loudly on any non-success response.
type Fetcher interface {
	FetchByFilter(ctx context.Context, t record.Type, filter Filter) ([]record.Record, error)
	FetchByIDs(ctx context.Context, kfids []string) ([]record.Record, error)
}

// Patcher applies a partial update to one record.
type Patcher interface {
	Patch(ctx context.Context, kfid string, patch map[string]any) error
}

// Deleter removes one record.
type Deleter interface {
	Delete(ctx context.Context, kfid string) error
}

// ProgressEvent is emitted as a scan advances. It is a pure side channel:
// nothing downstream may depend on it.
type ProgressEvent struct {
	Endpoint record.Type
	Fetched  int
	Total    int
}

// Client talks to one dataservice host.
type Client struct {
	baseURL         string
	http            *http.Client
	logger          logger.Logger
	breadthLimit    int
	pageSize        int
	scanRetryBudget time.Duration
	progress        func(ProgressEvent)
}

var (
	_ Fetcher = (*Client)(nil)
	_ Patcher = (*Client)(nil)
	_ Deleter = (*Client)(nil)
)

type ClientOption func(*Client)

func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient overrides the retrying default transport.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithBreadthLimit bounds how many by-ID lookups run concurrently.
func WithBreadthLimit(n int) ClientOption {
	return func(c *Client) { c.breadthLimit = n }
}

func WithPageSize(n int) ClientOption {
	return func(c *Client) { c.pageSize = n }
}

// WithScanRetryBudget bounds the total time spent re-running a scan that
// ended in a count mismatch before the mismatch is surfaced to the caller.
func WithScanRetryBudget(d time.Duration) ClientOption {
	return func(c *Client) { c.scanRetryBudget = d }
}

// WithProgress installs an observer invoked as records stream in.
func WithProgress(fn func(ProgressEvent)) ClientOption {
	return func(c *Client) { c.progress = fn }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 4
	rc.Logger = nil

	c := &Client{
		baseURL:         trimTrailingSlash(baseURL),
		http:            rc.StandardClient(),
		logger:          logger.NewNoopLogger(),
		breadthLimit:    DefaultBreadthLimit,
		pageSize:        DefaultPageSize,
		scanRetryBudget: defaultScanRetryBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host returns the hostname of the client's base URL, e.g. "localhost" for
// "http://localhost:5000". Used by destructive callers for safety checks.
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// page is the envelope the dataservice wraps list responses in.
type page struct {
	Total   int             `json:"total"`
	Results []record.Record `json:"results"`
	Links   map[string]any  `json:"_links"`
}

// single is the envelope for a by-ID lookup.
type single struct {
	Results record.Record  `json:"results"`
	Links   map[string]any `json:"_links"`
}

// FetchByFilter scrapes every page of records matching filter, deduplicated
// by KF ID. A count mismatch is retried under exponential backoff, since it
// usually means the collection moved mid-scan; any other failure aborts
// immediately.
func (c *Client) FetchByFilter(ctx context.Context, t record.Type, filter Filter) ([]record.Record, error) {
	var recs []record.Record

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.scanRetryBudget

	err := backoff.Retry(func() error {
		var err error
		recs, err = c.scanOnce(ctx, t, filter)
		if err != nil && !errors.Is(err, ErrCountMismatch) {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.logger.Warn("retrying inconsistent scan",
				zap.String("endpoint", t.Endpoint()),
				zap.Error(err))
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) scanOnce(ctx context.Context, t record.Type, filter Filter) ([]record.Record, error) {
	endpoint := c.baseURL + "/" + t.Endpoint()

	found := make(map[string]struct{})
	var recs []record.Record

	cursor := url.Values{}
	cursor.Set("limit", strconv.Itoa(c.pageSize))
	for k, v := range filter {
		cursor.Set(k, v)
	}

	expected := 0
	for {
		status, body, err := c.do(ctx, http.MethodGet, endpoint+"?"+cursor.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("dataservice returned %d for %s: %s", status, t.Endpoint(), body)
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decoding %s page: %w", t.Endpoint(), err)
		}
		expected = p.Total

		for _, r := range p.Results {
			kfid := r.KFID()
			if _, ok := found[kfid]; ok {
				continue
			}
			found[kfid] = struct{}{}
			recs = append(recs, r)
			c.notify(ProgressEvent{Endpoint: t, Fetched: len(found), Total: expected})
		}

		next, _ := p.Links["next"].(string)
		if next == "" {
			break
		}
		nextURL, err := url.Parse(next)
		if err != nil {
			return nil, fmt.Errorf("parsing next link %q: %w", next, err)
		}
		q := nextURL.Query()
		cursor.Set("after", q.Get("after"))
		if au := q.Get("after_uuid"); au != "" {
			cursor.Set("after_uuid", au)
		}
	}

	if expected != len(found) {
		return nil, fmt.Errorf("%w: found %d %s but expected %d",
			ErrCountMismatch, len(found), t.Endpoint(), expected)
	}
	return recs, nil
}

// FetchByIDs resolves each KF ID with concurrent direct lookups. Any failed
// lookup cancels the rest and is returned.
func (c *Client) FetchByIDs(ctx context.Context, kfids []string) ([]record.Record, error) {
	var mu sync.Mutex
	recs := make([]record.Record, 0, len(kfids))

	p := concurrency.NewPool(ctx, c.breadthLimit)
	for _, kfid := range kfids {
		kfid := kfid
		p.Go(func(ctx context.Context) error {
			endpoint, err := record.Endpoint(kfid)
			if err != nil {
				return err
			}

			status, body, err := c.do(ctx, http.MethodGet, c.baseURL+"/"+endpoint+"/"+kfid, nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("dataservice returned %d for %s: %s", status, kfid, body)
			}

			var s single
			if err := json.Unmarshal(body, &s); err != nil {
				return fmt.Errorf("decoding %s: %w", kfid, err)
			}
			rec := s.Results
			if s.Links != nil {
				rec["_links"] = s.Links
			}

			mu.Lock()
			recs = append(recs, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}

// Patch applies a partial update to the record behind kfid.
func (c *Client) Patch(ctx context.Context, kfid string, patch map[string]any) error {
	endpoint, err := record.Endpoint(kfid)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, http.MethodPatch, c.baseURL+"/"+endpoint+"/"+kfid, payload)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("patching %s with %s: %d -- %s", kfid, payload, status, body)
	}

	c.logger.Debug("patched record", zap.String("kf_id", kfid))
	return nil
}

// Delete removes the record behind kfid. A 404 is not an error: the record
// is already gone.
func (c *Client) Delete(ctx context.Context, kfid string) error {
	endpoint, err := record.Endpoint(kfid)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, http.MethodDelete, c.baseURL+"/"+endpoint+"/"+kfid, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNotFound && (status < 200 || status > 299) {
		return fmt.Errorf("deleting %s: %d -- %s", kfid, status, body)
	}

	c.logger.Debug("deleted record", zap.String("kf_id", kfid))
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) notify(ev ProgressEvent) {
	if c.progress != nil {
		c.progress(ev)
	}
}
