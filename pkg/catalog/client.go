// Package catalog provides the DTN SymbolSearch HTTP client with retry,
// error classification, and request metrics.
package catalog

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/chaitanyamurarka/dtn-symbol-downloader/pkg/logging"
)

// Prometheus metrics for catalog client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_requests_total",
		Help: "Total catalog requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dtn_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dtn_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})
)

// Endpoint paths on the DTN symbol search service.
const (
	searchPath     = "/SymbolSearch/QuerySymbolsDD"
	categoriesPath = "/SymbolSearch/GetSymbolCategories"
)

// DefaultBaseURL is the production DTN symbol search host.
const DefaultBaseURL = "https://ws1.dtn.com"

// DefaultPageLimit matches the page size the DTN web client requests.
const DefaultPageLimit = 4998

// Config holds the client configuration.
type Config struct {
	// BaseURL of the symbol search service.
	BaseURL string

	// UserAgent sent with every request. The service rejects requests
	// without a browser-like agent.
	UserAgent string

	// PageLimit is the maximum records requested per page.
	PageLimit int

	// Timeout per HTTP request.
	Timeout time.Duration

	// Retry policy for transient failures.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		PageLimit: DefaultPageLimit,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the DTN symbol search client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.PageLimit <= 0 {
		return nil, fmt.Errorf("page limit must be > 0 (got %d)", cfg.PageLimit)
	}
	if cfg.Retry.MaxAttempts <= 0 {
		return nil, fmt.Errorf("retry max attempts must be > 0 (got %d)", cfg.Retry.MaxAttempts)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logging.NewLogger("catalog-client"),
	}, nil
}

// queryEnvelope is the top-level response shape shared by both endpoints.
type queryEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []string        `json:"errors"`
}

// queryData is the payload of a QuerySymbolsDD response.
type queryData struct {
	SymbolList []map[string]any `json:"symbolList"`
	TotalFound int              `json:"totalFound"`
	HasMore    bool             `json:"hasMore"`
	NextKey    string           `json:"nextKey"`
}

// categoriesData is the payload of a GetSymbolCategories response.
type categoriesData struct {
	Exchange     []string `json:"exchange"`
	SecurityType []string `json:"securityType"`
}

// FetchPage fetches one page of the symbol catalog at the given cursor.
// An empty cursor requests the first page. Transient failures (network,
// 5xx, 429, backend search database errors) are retried with exponential
// backoff; fatal failures (other 4xx, malformed payloads) escalate
// immediately.
func (c *Client) FetchPage(ctx context.Context, cursor string) (*Page, error) {
	var page *Page

	err := retryWithBackoff(ctx, c.config.Retry, errClassOf, func() error {
		var fetchErr error
		page, fetchErr = c.fetchPageOnce(ctx, cursor)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}

// fetchPageOnce performs a single QuerySymbolsDD request without retry.
func (c *Client) fetchPageOnce(ctx context.Context, cursor string) (*Page, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("nextKey", cursor)
	}
	// Empty search text returns the full catalog
	params.Set("searchText", "")
	params.Set("symbology", "iq")
	params.Set("onlyFront", "false")
	params.Set("onlyContinuous", "false")
	params.Set("onlyMini", "false")
	params.Set("noOptions", "false")
	params.Set("noSpreads", "false")
	params.Set("limit", strconv.Itoa(c.config.PageLimit))
	params.Set("clientVersion", "IQsite 1.0")

	raw, err := c.get(ctx, searchPath, params)
	if err != nil {
		return nil, err
	}

	var data queryData
	if err := json.Unmarshal(raw, &data); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	records := make([]Record, len(data.SymbolList))
	for i, fields := range data.SymbolList {
		rec := make(Record, len(fields))
		for k, v := range fields {
			rec[k] = stringify(v)
		}
		records[i] = rec
	}

	return &Page{
		Records:    records,
		Columns:    columnsFor(records),
		NextKey:    data.NextKey,
		HasMore:    data.HasMore,
		TotalFound: data.TotalFound,
	}, nil
}

// Categories fetches the exchanges and security types the catalog knows.
func (c *Client) Categories(ctx context.Context) (*Categories, error) {
	params := url.Values{}
	params.Set("symbology", "IQ")

	var raw json.RawMessage
	err := retryWithBackoff(ctx, c.config.Retry, errClassOf, func() error {
		var getErr error
		raw, getErr = c.get(ctx, categoriesPath, params)
		return getErr
	})
	if err != nil {
		return nil, err
	}

	var data categoriesData
	if err := json.Unmarshal(raw, &data); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &Categories{
		Exchanges:     data.Exchange,
		SecurityTypes: data.SecurityType,
	}, nil
}

// get performs one GET request against the service and returns the data
// payload of the response envelope.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", c.config.BaseURL+"/IQ/Search/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Catalog request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			Class:   ErrorClassNetwork,
			Message: "read response body",
			Err:     err,
		}
	}

	var envelope queryEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(envelope.Errors) > 0 {
		return nil, c.classifyEnvelopeError(endpoint, envelope.Errors[0])
	}

	if envelope.Data == nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, fmt.Errorf("%w: response carries neither data nor errors", ErrMalformedResponse)
	}

	return envelope.Data, nil
}

// classifyStatus categorizes an HTTP status for retry handling.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// classifyEnvelopeError maps an errors payload to an APIError. The service
// reports overload of its backend search database inside a 200 response;
// those are transient. Anything else in the errors list means the request
// itself is wrong.
func (c *Client) classifyEnvelopeError(endpoint, message string) error {
	class := ErrorClassClient
	if strings.Contains(message, "backend search database") {
		class = ErrorClassServer
	}
	errorsTotal.WithLabelValues(string(class)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Str("error_class", string(class)).
		Str("api_error", message).
		Msg("Catalog returned error payload")
	return &APIError{
		StatusCode: http.StatusOK,
		Class:      class,
		Message:    message,
	}
}

// errClassOf extracts the error class for retry metrics.
func errClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ErrorClassDecode
}
