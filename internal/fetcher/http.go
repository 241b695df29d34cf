package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/IshaanNene/itemreviewed/internal/backoff"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/observability"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// HTTPFetcher implements Fetcher using net/http with bounded retries.
type HTTPFetcher struct {
	client    *http.Client
	policy    RetryPolicy
	userAgent string
	maxBody   int64
	proxyMgr  *ProxyManager
	limiter   Limiter
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher from configuration.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	fc := cfg.Fetcher
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   fc.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          fc.MaxIdleConns,
		MaxIdleConnsPerHost:   max(fc.MaxIdleConns/2, 1),
		IdleConnTimeout:       fc.IdleConnTimeout,
		TLSHandshakeTimeout:   fc.Timeout,
		ResponseHeaderTimeout: fc.Timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: fc.TLSInsecure,
		},
		DisableCompression: true, // decompression is handled here, brotli included
	}

	var proxyMgr *ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = NewProxyManager(&cfg.Proxy, logger)
		transport.Proxy = proxyFromContext
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !fc.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= fc.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", fc.MaxRedirects)
		}
		return nil
	}

	userAgent := fc.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	nonRetryable := fc.NonRetryableStatuses
	if nonRetryable == nil {
		nonRetryable = DefaultNonRetryableStatuses
	}

	// The timeout bounds connect and time-to-first-byte, not the body download:
	// the feed is large and callers bound whole runs with a context deadline.
	return &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			Jar:           jar,
			CheckRedirect: redirectPolicy,
		},
		policy:    NewRetryPolicy(fc.MaxRetries, fc.BackoffFactor, nonRetryable),
		userAgent: userAgent,
		maxBody:   fc.MaxBodySize,
		proxyMgr:  proxyMgr,
		logger:    logger.With("component", "http_fetcher"),
	}, nil
}

// SetLimiter installs a limiter consulted before every attempt.
func (f *HTTPFetcher) SetLimiter(l Limiter) { f.limiter = l }

// SetMetrics installs a metrics sink.
func (f *HTTPFetcher) SetMetrics(m *observability.Metrics) { f.metrics = m }

// Policy returns the retry policy in use.
func (f *HTTPFetcher) Policy() RetryPolicy { return f.policy }

// Fetch performs a GET, retrying retryable HTTP error statuses with exponential backoff.
// Non-retryable statuses and transport errors end the fetch after the failing attempt.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	if err := config.ValidateURL(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.KindTerminal, Err: fmt.Errorf("%w: %v", types.ErrInvalidURL, err)}
	}

	start := time.Now()
	var (
		lastStatus  int
		lastErr     error
		lastBackoff time.Duration
	)

	for attempt := 1; attempt <= f.policy.MaxRetries(); attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return nil, &types.FetchError{URL: rawURL, Kind: types.KindTransport, Attempts: attempt - 1, Err: err}
			}
		}

		httpResp, err := f.do(ctx, rawURL)
		if err != nil {
			f.metrics.FetchAttempt("transport_error")
			return nil, &types.FetchError{URL: rawURL, Kind: types.KindTransport, Attempts: attempt, Err: err}
		}

		if httpResp.StatusCode < http.StatusBadRequest {
			resp, err := f.readResponse(rawURL, httpResp, attempt, start)
			if err != nil {
				f.metrics.FetchAttempt("transport_error")
				return nil, err
			}
			f.metrics.FetchAttempt("success")
			f.metrics.FetchCompleted(f.Type(), resp.FetchDuration)
			return resp, nil
		}

		lastStatus = httpResp.StatusCode
		lastErr = statusError(httpResp)

		if f.policy.IsNonRetryable(lastStatus) {
			f.metrics.FetchAttempt("non_retryable_status")
			return nil, &types.FetchError{URL: rawURL, StatusCode: lastStatus, Kind: types.KindTerminal, Attempts: attempt, Err: lastErr}
		}
		f.metrics.FetchAttempt("retryable_status")

		if attempt == f.policy.MaxRetries() {
			break
		}

		lastBackoff = backoff.Exponential(f.policy.BackoffFactor(), attempt, jitterFunc())
		f.logger.Warn("retrying request",
			"url", rawURL,
			"status", lastStatus,
			"attempt", attempt,
			"backoff", lastBackoff,
		)
		if err := fetchSleepFunc(ctx, lastBackoff); err != nil {
			return nil, &types.FetchError{URL: rawURL, StatusCode: lastStatus, Kind: types.KindTransport, Attempts: attempt, Backoff: lastBackoff, Err: err}
		}
	}

	return nil, &types.FetchError{
		URL:        rawURL,
		StatusCode: lastStatus,
		Kind:       types.KindTerminal,
		Attempts:   f.policy.MaxRetries(),
		Backoff:    lastBackoff,
		Err:        fmt.Errorf("%w: %v", types.ErrMaxRetries, lastErr),
	}
}

// do sends one request. Transport failures are reported to the proxy manager.
func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*http.Response, error) {
	proxy := f.proxyMgr.Next()
	if proxy != nil {
		ctx = withProxy(ctx, proxy)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	httpReq.Header.Set("Connection", "keep-alive")

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		if proxy != nil && !isContextError(err) {
			f.proxyMgr.MarkFailed(proxy, err)
		}
		return nil, err
	}
	return httpResp, nil
}

// readResponse reads, decompresses and UTF-8 normalizes a successful response.
func (f *HTTPFetcher) readResponse(rawURL string, httpResp *http.Response, attempts int, start time.Time) (*types.Response, error) {
	defer httpResp.Body.Close()

	var reader io.Reader = httpResp.Body
	if f.maxBody > 0 {
		reader = io.LimitReader(reader, f.maxBody)
	}

	reader, err := decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Kind: types.KindTransport, Attempts: attempts, Err: err}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, StatusCode: httpResp.StatusCode, Kind: types.KindTransport, Attempts: attempts, Err: err}
	}
	body = toUTF8(body, httpResp.Header.Get("Content-Type"))

	resp := types.NewResponse(rawURL, httpResp, body, attempts, time.Since(start))

	f.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(body),
		"attempts", attempts,
		"duration", resp.FetchDuration,
	)
	return resp, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// statusError drains a short body snippet into an error describing the status.
func statusError(resp *http.Response) error {
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if !utf8.ValidString(msg) {
		msg = strings.ToValidUTF8(msg, "")
	}
	return fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), msg)
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		zr, err := gzip.NewReader(reader)
		if errors.Is(err, io.EOF) {
			return bytes.NewReader(nil), nil
		}
		return zr, err
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// toUTF8 decodes body from its declared or sniffed charset.
// Bodies that are already valid UTF-8 are returned unchanged unless a charset is declared.
func toUTF8(body []byte, contentType string) []byte {
	if len(body) == 0 {
		return body
	}
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(body)) {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
