// Package web performs external web search and normalizes results into
// confidence-scored evidence facts.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rescue-agent/backend/internal/engine"
)

type Client struct {
	serpAPIKey string
	httpClient *http.Client
	normalizer *Normalizer
	log        *zap.Logger
}

// rawResult is an un-scored search hit before normalization.
type rawResult struct {
	Title   string
	URL     string
	Snippet string
	Content string
}

func NewClient(serpAPIKey string, normalizer *Normalizer, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		serpAPIKey: serpAPIKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		normalizer: normalizer,
		log:        log,
	}
}

// Search runs the query against the search API (or a scraped results page
// when no API key is configured) and returns normalized facts sorted by
// confidence, best first.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]engine.WebFact, error) {
	c.log.Info("Performing web search", zap.String("query", query))

	var (
		raws []rawResult
		err  error
	)
	if c.serpAPIKey != "" {
		raws, err = c.searchWithSerpAPI(ctx, query, maxResults)
	} else {
		raws, err = c.searchWithGoogle(ctx, query, maxResults)
	}
	if err != nil {
		return nil, err
	}

	facts, err := c.normalizer.Normalize(ctx, query, raws)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize results: %w", err)
	}

	c.log.Info("Web search completed",
		zap.Int("raw", len(raws)),
		zap.Int("facts", len(facts)),
	)

	return facts, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string, maxResults int) ([]rawResult, error) {
	baseURL := "https://serpapi.com/search"
	params := url.Values{}
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s?%s", baseURL, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]rawResult, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		content, err := c.scrapeContent(r.Link)
		if err != nil {
			c.log.Warn("Failed to scrape content", zap.String("url", r.Link), zap.Error(err))
			content = r.Snippet
		}

		results = append(results, rawResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Content: content,
		})
	}

	return results, nil
}

func (c *Client) searchWithGoogle(ctx context.Context, query string, maxResults int) ([]rawResult, error) {
	searchQuery := url.QueryEscape(fmt.Sprintf("animal rescue first aid %s", query))
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d", searchQuery, maxResults)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	results := make([]rawResult, 0)
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		if i >= maxResults {
			return
		}

		title := s.Find("h3").Text()
		link, _ := s.Find("a").Attr("href")
		snippet := s.Find("div.VwiC3b").Text()

		if title != "" && link != "" {
			content, err := c.scrapeContent(link)
			if err != nil {
				content = snippet
			}

			results = append(results, rawResult{
				Title:   title,
				URL:     link,
				Snippet: snippet,
				Content: content,
			})
		}
	})

	return results, nil
}

func (c *Client) scrapeContent(urlStr string) (string, error) {
	resp, err := c.httpClient.Get(urlStr)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := doc.Find("body").Text()
	text = strings.TrimSpace(text)

	if len(text) > 5000 {
		text = text[:5000]
	}

	return text, nil
}
