package discovery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	validateTimeout = 6 * time.Second
	maxPrefixBytes  = 2048
	maxTitleLen     = 100

	headerUserAgent   = "User-Agent"
	headerContentType = "Content-Type"
)

// Validation failure reasons. Every failed probe carries exactly one.
const (
	ReasonRequestFailed = "request_failed"
	ReasonTimedOut      = "timed_out"
	ReasonNoFeedMarkers = "no_feed_markers"
	reasonStatusFmt     = "status_%d"
)

// feedMarkers identify RSS and Atom payloads in a response prefix and the
// declared content type.
var feedMarkers = []string{
	"<rss",
	"<feed",
	"<channel>",
	"<item>",
	"<entry>",
	"application/rss+xml",
	"application/atom+xml",
}

// Result is the outcome of probing one URL.
type Result struct {
	URL    string
	OK     bool
	Title  string
	Reason string
}

// Validator answers one question: does this URL serve a feed. It reads at
// most maxPrefixBytes of the body, enough to sniff markers and the channel
// title without downloading whole feeds.
type Validator struct {
	client    *http.Client
	userAgent string
	logger    *zerolog.Logger
}

func NewValidator(userAgent string, logger *zerolog.Logger) *Validator {
	return &Validator{
		client: &http.Client{
			Timeout: validateTimeout,
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Validate fetches feedURL and reports whether the response looks like a
// feed. The request honors both ctx and the validator's own timeout.
func (v *Validator) Validate(ctx context.Context, feedURL string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return Result{URL: feedURL, Reason: ReasonRequestFailed}
	}

	req.Header.Set(headerUserAgent, v.userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{URL: feedURL, Reason: failureReason(err)}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Result{URL: feedURL, Reason: fmt.Sprintf(reasonStatusFmt, resp.StatusCode)}
	}

	prefix, err := io.ReadAll(io.LimitReader(resp.Body, maxPrefixBytes))
	if err != nil && len(prefix) == 0 {
		return Result{URL: feedURL, Reason: failureReason(err)}
	}

	sniff := strings.ToLower(string(prefix)) + " " + strings.ToLower(resp.Header.Get(headerContentType))
	if !hasFeedMarker(sniff) {
		return Result{URL: feedURL, Reason: ReasonNoFeedMarkers}
	}

	return Result{URL: feedURL, OK: true, Title: extractTitle(string(prefix), feedURL)}
}

func hasFeedMarker(sniff string) bool {
	for _, marker := range feedMarkers {
		if strings.Contains(sniff, marker) {
			return true
		}
	}

	return false
}

func failureReason(err error) string {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() || errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimedOut
	}

	return ReasonRequestFailed
}

// extractTitle pulls the first <title> element out of the prefix. Overlong
// or absent titles fall back to the host name.
func extractTitle(prefix, feedURL string) string {
	lower := strings.ToLower(prefix)

	start := strings.Index(lower, "<title")
	if start >= 0 {
		rest := lower[start:]

		open := strings.IndexByte(rest, '>')
		end := strings.Index(rest, "</title>")

		if open >= 0 && end > open {
			title := strings.TrimSpace(prefix[start+open+1 : start+end])
			title = strings.TrimPrefix(title, "<![CDATA[")
			title = strings.TrimSuffix(title, "]]>")
			title = strings.TrimSpace(title)

			if title != "" && len(title) <= maxTitleLen {
				return html.UnescapeString(title)
			}
		}
	}

	return hostTitle(feedURL)
}

func hostTitle(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}

	return strings.TrimPrefix(u.Hostname(), "www.")
}
