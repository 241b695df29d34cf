package types

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Response represents the result of fetching a page or feed.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers are the response HTTP headers.
	Headers http.Header

	// Body is the response body, decoded to UTF-8.
	Body []byte

	// URL is the URL that was requested.
	URL string

	// FinalURL is the URL after any redirects.
	FinalURL string

	// ContentType is the MIME type of the response.
	ContentType string

	// Attempts is how many requests were made to obtain this response.
	Attempts int

	// FetchDuration is how long the fetch took, backoff included.
	FetchDuration time.Duration

	// FetchedAt is when this response was received.
	FetchedAt time.Time

	parseOnce sync.Once
	node      *html.Node
	doc       *goquery.Document
	parseErr  error
}

// NewResponse creates a Response from an http.Response and its decoded body.
func NewResponse(rawURL string, httpResp *http.Response, body []byte, attempts int, duration time.Duration) *Response {
	finalURL := rawURL
	if httpResp.Request != nil && httpResp.Request.URL != nil {
		finalURL = httpResp.Request.URL.String()
	}
	return &Response{
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body,
		URL:           rawURL,
		FinalURL:      finalURL,
		ContentType:   httpResp.Header.Get("Content-Type"),
		Attempts:      attempts,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// NewBrowserResponse creates a Response from headless browser output.
func NewBrowserResponse(rawURL string, statusCode int, body []byte, finalURL string, duration time.Duration) *Response {
	return &Response{
		StatusCode:    statusCode,
		Headers:       make(http.Header),
		Body:          body,
		URL:           rawURL,
		FinalURL:      finalURL,
		ContentType:   "text/html; charset=utf-8",
		Attempts:      1,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

func (r *Response) parse() {
	r.parseOnce.Do(func() {
		r.node, r.parseErr = html.Parse(bytes.NewReader(r.Body))
		if r.parseErr == nil {
			r.doc = goquery.NewDocumentFromNode(r.node)
		}
	})
}

// Node returns the parsed HTML root, parsing the body on first use.
func (r *Response) Node() (*html.Node, error) {
	r.parse()
	return r.node, r.parseErr
}

// Document returns a goquery document sharing the tree returned by Node.
func (r *Response) Document() (*goquery.Document, error) {
	r.parse()
	return r.doc, r.parseErr
}

// PageURL returns the final URL when known, otherwise the requested one.
func (r *Response) PageURL() string {
	if r.FinalURL != "" {
		return r.FinalURL
	}
	return r.URL
}

// IsSuccess returns true if the response status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true for 4xx and 5xx statuses.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}
