// Package eutils is the remote source client for the NCBI E-utilities
// catalog. It owns transport, retry, and polite pacing; callers receive
// parsed identifiers and records and never see the wire format.
package eutils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/urbanscope/harvester/internal/config"
	"github.com/urbanscope/harvester/internal/resilience"
)

// Window restricts a search to a date range. Either RelDateDays or the
// MinDate/MaxDate pair may be set; an empty Window means no restriction.
type Window struct {
	RelDateDays int
	MinDate     string // YYYY/MM/DD
	MaxDate     string // YYYY/MM/DD
	DateType    string // e.g. "edat"
}

// Page addresses one slice of a paged search.
type Page struct {
	RetStart int
	RetMax   int
	Sort     string
}

// Client talks to the E-utilities endpoints. All calls block; failed calls
// are retried with exponential backoff, and distinct calls are paced by a
// shared rate limiter. The two timers are independent: backoff spaces
// retries of one failed call, the limiter spaces consecutive calls to stay
// under the upstream rate ceiling.
type Client struct {
	baseURL    string
	apiKey     string
	tool       string
	email      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

// New creates a Client from source configuration.
func New(cfg config.SourceConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2.0
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.OnRetry = resilience.RetryLogger("eutils", "get")

	base := cfg.BaseURL
	if base == "" {
		base = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		tool:    cfg.Tool,
		email:   cfg.Email,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(perSec), 1),
		retry:   retry,
	}
}

// params returns the common identification parameters merged with extra.
func (c *Client) params(extra url.Values) url.Values {
	p := url.Values{}
	for k, vs := range extra {
		p[k] = vs
	}
	if c.apiKey != "" {
		p.Set("api_key", c.apiKey)
	}
	if c.tool != "" {
		p.Set("tool", c.tool)
	}
	if c.email != "" {
		p.Set("email", c.email)
	}
	return p
}

// fetchOnce performs a single paced HTTP attempt and returns the body bytes.
// Network failures and retryable statuses come back wrapped as transient.
func (c *Client) fetchOnce(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "eutils: rate limiter wait")
	}

	fullURL := c.baseURL + endpoint + "?" + c.params(query).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "eutils: create request")
	}
	req.Header.Set("User-Agent", c.userAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "eutils: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "eutils: read body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("eutils: http %d from %s", resp.StatusCode, endpoint)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			zap.L().Warn("eutils: transient upstream status",
				zap.String("endpoint", endpoint),
				zap.Int("status", resp.StatusCode),
			)
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	return body, nil
}

// call fetches and parses one endpoint under a single retry loop, so that
// malformed payloads are re-fetched like any other transient failure.
func call[T any](ctx context.Context, c *Client, endpoint string, query url.Values, parse func([]byte) (T, error)) (T, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (T, error) {
		var zero T
		body, err := c.fetchOnce(ctx, endpoint, query)
		if err != nil {
			return zero, err
		}
		v, err := parse(body)
		if err != nil {
			return zero, resilience.NewMalformedPayloadError(err)
		}
		return v, nil
	})
}

func (c *Client) userAgent() string {
	email := c.email
	if email == "" {
		email = "no-email"
	}
	return fmt.Sprintf("%s/1.0 (%s)", c.tool, email)
}

// Search runs an esearch over db with the given term and window, returning
// up to retmax entry UIDs.
func (c *Client) Search(ctx context.Context, db, term string, window Window, retmax int) ([]string, error) {
	q := url.Values{}
	q.Set("db", db)
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("retmax", fmt.Sprint(retmax))
	if window.RelDateDays > 0 {
		q.Set("reldate", fmt.Sprint(window.RelDateDays))
		q.Set("sort", "date")
	}
	if window.MinDate != "" {
		q.Set("mindate", window.MinDate)
		q.Set("maxdate", window.MaxDate)
	}
	if dt := window.DateType; dt != "" {
		q.Set("datetype", dt)
	}

	res, err := call(ctx, c, "esearch.fcgi", q, parseESearch)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// SearchPage runs one page of an unbounded esearch and returns the page's
// UIDs plus the total result count for termination checks.
func (c *Client) SearchPage(ctx context.Context, db, term string, page Page) ([]string, int, error) {
	q := url.Values{}
	q.Set("db", db)
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("retstart", fmt.Sprint(page.RetStart))
	q.Set("retmax", fmt.Sprint(page.RetMax))
	q.Set("usehistory", "n")
	if page.Sort != "" {
		q.Set("sort", page.Sort)
	}

	res, err := call(ctx, c, "esearch.fcgi", q, parseESearch)
	if err != nil {
		return nil, 0, err
	}
	return res.IDs, res.Count, nil
}

// Summaries fetches esummary documents for SRA entry UIDs. The result maps
// UID to its parsed summary; UIDs absent from the response are omitted.
func (c *Client) Summaries(ctx context.Context, uids []string) (map[string]Summary, error) {
	if len(uids) == 0 {
		return map[string]Summary{}, nil
	}
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("id", strings.Join(uids, ","))
	q.Set("retmode", "xml")

	return call(ctx, c, "esummary.fcgi", q, parseSRASummaries)
}

// RunInfo fetches the per-run CSV table for one SRA entry UID, capped at
// maxRows rows.
func (c *Client) RunInfo(ctx context.Context, uid string, maxRows int) ([]map[string]string, error) {
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("id", uid)
	q.Set("rettype", "runinfo")
	q.Set("retmode", "text")

	return call(ctx, c, "efetch.fcgi", q, func(body []byte) ([]map[string]string, error) {
		return parseRunInfo(body, maxRows)
	})
}

// Linked returns the UIDs in targetDB linked to the given SRA entry UID.
func (c *Client) Linked(ctx context.Context, uid, targetDB string) ([]string, error) {
	q := url.Values{}
	q.Set("dbfrom", "sra")
	q.Set("db", targetDB)
	q.Set("id", uid)
	q.Set("retmode", "xml")

	return call(ctx, c, "elink.fcgi", q, parseELink)
}

// ProjectSummary fetches and parses the esummary document for one BioProject
// UID. The endpoint has shipped three distinct response shapes over the
// years; all three are handled.
func (c *Client) ProjectSummary(ctx context.Context, uid string) (*ProjectSummary, error) {
	q := url.Values{}
	q.Set("db", "bioproject")
	q.Set("id", uid)
	q.Set("retmode", "xml")

	return call(ctx, c, "esummary.fcgi", q, func(body []byte) (*ProjectSummary, error) {
		return parseProjectSummary(uid, body)
	})
}

// ProjectAccession resolves one BioProject UID to its normalized accession.
// Returns "" when the summary carries no accession.
func (c *Client) ProjectAccession(ctx context.Context, uid string) (string, error) {
	ps, err := c.ProjectSummary(ctx, uid)
	if err != nil {
		return "", err
	}
	return ps.Accession, nil
}

// ProjectUID resolves a BioProject accession to its numeric UID via a
// fielded esearch. Returns "" when the accession is unknown upstream.
func (c *Client) ProjectUID(ctx context.Context, accession string) (string, error) {
	q := url.Values{}
	q.Set("db", "bioproject")
	q.Set("term", fmt.Sprintf("%s[Accession]", accession))
	q.Set("retmode", "xml")
	q.Set("retmax", "5")

	res, err := call(ctx, c, "esearch.fcgi", q, parseESearch)
	if err != nil {
		return "", err
	}
	if len(res.IDs) == 0 {
		return "", nil
	}
	return res.IDs[0], nil
}

// SampleDetail fetches the BioSample XML for an accession and returns its
// parsed attribute map.
func (c *Client) SampleDetail(ctx context.Context, accession string) (*SampleDetail, error) {
	q := url.Values{}
	q.Set("db", "biosample")
	q.Set("id", accession)
	q.Set("retmode", "xml")

	return call(ctx, c, "efetch.fcgi", q, parseSampleDetail)
}

// FetchDetail fetches the full per-entry detail document for one SRA UID as
// raw text. Used by the resolver's deep full-text fallback.
func (c *Client) FetchDetail(ctx context.Context, uid string) (string, error) {
	q := url.Values{}
	q.Set("db", "sra")
	q.Set("id", uid)
	q.Set("retmode", "xml")

	return call(ctx, c, "efetch.fcgi", q, func(body []byte) (string, error) {
		return string(body), nil
	})
}
