package collect

import (
	"context"
	"crypto/md5" //nolint:gosec // entry fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

const (
	feedTimeout = 30 * time.Second
	seenSetMax  = 10000
	seenSetKeep = 5000

	headerUserAgent = "User-Agent"

	metaFeedURL = "feed_url"
	metaAuthor  = "author"
	metaTags    = "tags"
)

// FeedBackend polls validated feeds and maps entries not yet seen by this
// process to documents. One instance lives for the whole process so repeated
// campaigns in monitor mode do not re-emit old entries.
type FeedBackend struct {
	parser    *gofeed.Parser
	client    *http.Client
	seen      *seenSet
	userAgent string
	logger    *zerolog.Logger
}

func NewFeedBackend(userAgent string, logger *zerolog.Logger) *FeedBackend {
	return &FeedBackend{
		parser:    gofeed.NewParser(),
		client:    &http.Client{Timeout: feedTimeout},
		seen:      newSeenSet(seenSetMax, seenSetKeep),
		userAgent: userAgent,
		logger:    logger,
	}
}

// Poll fetches every source in order and returns up to maxDocs new entries
// published within the lookback window. The second return value counts
// sources that failed to fetch or parse; those failures never abort the
// batch.
func (f *FeedBackend) Poll(ctx context.Context, sources []domain.ValidatedSource, window time.Duration, maxDocs int) ([]domain.Document, int) {
	if maxDocs <= 0 || len(sources) == 0 {
		return nil, 0
	}

	cutoff := time.Now().UTC().Add(-window)
	docs := make([]domain.Document, 0, maxDocs)
	failed := 0

	for _, source := range sources {
		if ctx.Err() != nil || len(docs) >= maxDocs {
			break
		}

		feed, err := f.fetchFeed(ctx, source.URL)
		if err != nil {
			failed++

			f.logger.Warn().Err(err).Str(logKeyURL, source.URL).Msg("Feed fetch failed")

			continue
		}

		docs = f.appendNewEntries(docs, feed, source.URL, cutoff, maxDocs)
	}

	return docs, failed
}

// fetchFeed fetches and parses one RSS/Atom feed.
func (f *FeedBackend) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	req.Header.Set(headerUserAgent, f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

// appendNewEntries converts unseen items into documents. An entry is marked
// seen before the window check, so entries that age out never come back.
func (f *FeedBackend) appendNewEntries(docs []domain.Document, feed *gofeed.Feed, feedURL string, cutoff time.Time, maxDocs int) []domain.Document {
	for _, item := range feed.Items {
		if len(docs) >= maxDocs {
			break
		}

		if item == nil || item.Link == "" {
			continue
		}

		if f.seen.Seen(entryKey(item)) {
			continue
		}

		doc := docFromItem(feed, item, feedURL)
		if doc.PublishedAt != nil && doc.PublishedAt.Before(cutoff) {
			continue
		}

		docs = append(docs, doc)
	}

	return docs
}

// entryKey fingerprints an entry by title and link, the fields stable across
// re-polls of the same feed.
func entryKey(item *gofeed.Item) string {
	sum := md5.Sum([]byte(item.Title + item.Link)) //nolint:gosec // fingerprint only

	return hex.EncodeToString(sum[:])
}

func docFromItem(feed *gofeed.Feed, item *gofeed.Item, feedURL string) domain.Document {
	doc := domain.Document{
		Title:   strings.TrimSpace(item.Title),
		Body:    normalizeWhitespace(coalesce(item.Description, item.Content)),
		URL:     strings.TrimSpace(item.Link),
		Source:  feedSourceName(feed, feedURL),
		Backend: domain.BackendFeed,
		BackendMeta: map[string]string{
			metaFeedURL: feedURL,
		},
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil && item.Authors[0].Name != "" {
		doc.BackendMeta[metaAuthor] = item.Authors[0].Name
	}

	if len(item.Categories) > 0 {
		doc.BackendMeta[metaTags] = strings.Join(item.Categories, ", ")
	}

	doc.PublishedAt = itemTime(item)

	return doc
}

// itemTime prefers the published timestamp, then updated, then a tolerant
// parse of the raw strings. Unparseable dates stay nil rather than being
// invented.
func itemTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()

		return &t
	}

	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()

		return &t
	}

	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}

		if t, err := dateparse.ParseAny(raw); err == nil {
			t = t.UTC()

			return &t
		}
	}

	return nil
}

// feedSourceName is the feed's own title, or a host-derived fallback when
// the feed does not declare one.
func feedSourceName(feed *gofeed.Feed, feedURL string) string {
	if title := strings.TrimSpace(feed.Title); title != "" {
		return title
	}

	if u, err := url.Parse(feedURL); err == nil && u.Hostname() != "" {
		return "RSS Feed - " + u.Hostname()
	}

	return "RSS Feed - " + feedURL
}

// seenSet is a bounded, concurrency-safe set of entry fingerprints. Once it
// grows past max it keeps only the keep most recent insertions.
type seenSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	max   int
	keep  int
}

func newSeenSet(max, keep int) *seenSet {
	return &seenSet{
		keys: make(map[string]struct{}, max),
		max:  max,
		keep: keep,
	}
}

// Seen reports whether key was already recorded, recording it if not.
func (s *seenSet) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return true
	}

	s.keys[key] = struct{}{}
	s.order = append(s.order, key)

	if len(s.order) > s.max {
		s.prune()
	}

	return false
}

func (s *seenSet) prune() {
	cut := len(s.order) - s.keep
	for _, key := range s.order[:cut] {
		delete(s.keys, key)
	}

	s.order = append(s.order[:0:0], s.order[cut:]...)
}

func (s *seenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.keys)
}
