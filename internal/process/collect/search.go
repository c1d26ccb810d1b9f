package collect

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
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
	"github.com/lueurxax/signal-bridge/internal/platform/config"
)

const (
	searchPath         = "/everything"
	searchTimeout      = 30 * time.Second
	maxPageSize        = 100
	searchDateFormat   = "2006-01-02"
	sortByRelevancy    = "relevancy"
	searchLanguage     = "en"
	vendorPrefix       = "NewsAPI - "
	responseSnippetLen = 200
)

var (
	errSearchStatus      = errors.New("search api unexpected status")
	errSearchAPIError    = errors.New("search api error")
	errSearchRateLimited = errors.New("search api rate limited")
)

// SearchBackend queries a keyword news API and maps hits to documents.
type SearchBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewSearchBackend(cfg *config.Config, logger *zerolog.Logger) *SearchBackend {
	timeout := cfg.NewsAPITimeout
	if timeout <= 0 {
		timeout = searchTimeout
	}

	return &SearchBackend{
		baseURL: strings.TrimSuffix(cfg.NewsAPIBaseURL, "/") + searchPath,
		apiKey:  cfg.NewsAPIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Search runs one query over the lookback window. The page size is clamped
// to the API maximum of 100.
func (s *SearchBackend) Search(ctx context.Context, query string, window time.Duration, maxResults int) ([]domain.Document, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL(query, window, maxResults), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errSearchRateLimited
	}

	if resp.StatusCode != http.StatusOK {
		if err := checkSearchError(body); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %d", errSearchStatus, resp.StatusCode)
	}

	return s.parseResponse(body, query, maxResults)
}

func (s *SearchBackend) searchURL(query string, window time.Duration, maxResults int) string {
	now := time.Now()

	params := url.Values{}
	params.Set("q", query)
	params.Set("from", now.Add(-window).Format(searchDateFormat))
	params.Set("to", now.Format(searchDateFormat))
	params.Set("sortBy", sortByRelevancy)
	params.Set("pageSize", strconv.Itoa(min(maxResults, maxPageSize)))
	params.Set("language", searchLanguage)
	params.Set("apiKey", s.apiKey)

	return s.baseURL + "?" + params.Encode()
}

type searchResponse struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"` //nolint:tagliatelle // NewsAPI uses camelCase
	Articles     []searchArticle `json:"articles"`
}

type searchArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"` //nolint:tagliatelle // NewsAPI uses camelCase
	Content     string `json:"content"`
}

func (s *SearchBackend) parseResponse(body []byte, query string, maxResults int) ([]domain.Document, error) {
	if err := checkSearchError(body); err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	if resp.Status != "ok" {
		return nil, fmt.Errorf("%w: %s", errSearchStatus, resp.Status)
	}

	docs := make([]domain.Document, 0, min(len(resp.Articles), maxResults))

	for _, article := range resp.Articles {
		if len(docs) >= maxResults {
			break
		}

		if article.URL == "" {
			continue
		}

		doc := domain.Document{
			Title:   article.Title,
			Body:    coalesce(article.Description, article.Content),
			URL:     article.URL,
			Source:  strings.TrimPrefix(article.Source.Name, vendorPrefix),
			Backend: domain.BackendSearch,
			BackendMeta: map[string]string{
				"query": query,
			},
		}

		if article.PublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, article.PublishedAt); err == nil {
				doc.PublishedAt = &t
			}
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

type searchErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// checkSearchError surfaces the API's structured error payloads, which can
// arrive with any HTTP status.
func checkSearchError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] != '{' && trimmed[0] != '[' {
		msg := string(trimmed)
		if len(msg) > responseSnippetLen {
			msg = msg[:responseSnippetLen] + "..."
		}

		return fmt.Errorf("%w: %s", errSearchAPIError, msg)
	}

	var errResp searchErrorResponse
	if err := json.Unmarshal(trimmed, &errResp); err == nil && errResp.Status == "error" {
		return fmt.Errorf("%w: %s (%s)", errSearchAPIError, errResp.Message, errResp.Code)
	}

	return nil
}
