// Package dispatch fetches the html tables of a public dispatch log page.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"loggingturtle/internal/components/telemetry"
	"loggingturtle/internal/stage"
	"loggingturtle/internal/table"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch = "client.fetch"
	report_client_parse = "client.parse"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Fetcher retrieves every table on the page at a url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]table.Raw, error)
}

type Options struct {
	// Timeout bounds a single fetch, 0 means 30 seconds.
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond throttles requests made through the same client, 0 means unlimited.
	RequestsPerSecond float64
	CloudflareBypass  bool
	// Output receives a dump of every http exchange, it may be nil.
	Output telemetry.MessageOutput
}

// Client is a Fetcher backed by resty, a single Fetch is a single http request.
type Client struct {
	http *resty.Client
	tel  telemetry.API
}

func NewClient(tel telemetry.API, opts Options) *Client {
	tel = telemetry.NewScopedAPI("dispatch_scraper", tel)

	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	httpClient.SetHeader("user-agent", opts.UserAgent)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	if opts.RequestsPerSecond > 0 {
		// burst of 1, requests past the limit wait instead of being dropped
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Client{
		http: httpClient,
		tel:  tel,
	}
}

// Fetch retrieves the page at `url` and returns every table on it in page order.
// Any failure, including a page without tables, is a stage.Fetch error.
func (c *Client) Fetch(ctx context.Context, url string) ([]table.Raw, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch, err, url)
		return nil, stage.Wrap(stage.Fetch, fmt.Errorf("get %s: %w", url, err))
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("get %s: unexpected status %s", url, res.Status())
		c.tel.ReportBroken(report_client_fetch, err)
		return nil, stage.Wrap(stage.Fetch, err)
	}

	tables, err := ParseTables(bytes.NewReader(res.Body()))
	if err != nil {
		c.tel.ReportBroken(report_client_parse, err, url)
		return nil, stage.Wrap(stage.Fetch, err)
	}
	c.tel.ReportCount(report_client_parse, int64(len(tables)))

	return tables, nil
}
