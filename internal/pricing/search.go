package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"so101-builder/pkg/apperr"
)

// SearchResult is one hit from a price search provider. Vendor and Price are
// filled when the provider identifies them itself; otherwise they are
// extracted from Title/Content downstream.
type SearchResult struct {
	Title   string
	URL     string
	Content string
	Vendor  string
	Price   *decimal.Decimal
}

// Searcher is a web price search provider.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// vendorDomains are the storefronts price search is restricted to.
var vendorDomains = []string{
	"aliexpress.com",
	"amazon.com",
	"waveshare.com",
	"robotshop.com",
}

const searchTimeout = 30 * time.Second

// =============================================================================
// TAVILY
// =============================================================================

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient searches via the Tavily API.
type TavilyClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewTavilyClient creates a Tavily search client.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:   apiKey,
		endpoint: tavilyEndpoint,
		http:     &http.Client{Timeout: searchTimeout},
	}
}

func (c *TavilyClient) Name() string { return "tavily" }

// Search runs a basic-depth search restricted to the vendor storefronts.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	payload := map[string]any{
		"api_key":         c.apiKey,
		"query":           query,
		"search_depth":    "basic",
		"include_domains": vendorDomains,
		"max_results":     5,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "tavily search failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, snippet), "tavily search failed")
	}

	var decoded struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.Upstream(err, "decoding tavily response")
	}

	results := make([]SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}
	return results, nil
}

// =============================================================================
// SERPAPI
// =============================================================================

const serpAPIEndpoint = "https://serpapi.com/search"

// SerpAPIClient searches Google Shopping via SerpAPI.
type SerpAPIClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewSerpAPIClient creates a SerpAPI search client.
func NewSerpAPIClient(apiKey string) *SerpAPIClient {
	return &SerpAPIClient{
		apiKey:   apiKey,
		endpoint: serpAPIEndpoint,
		http:     &http.Client{Timeout: searchTimeout},
	}
}

func (c *SerpAPIClient) Name() string { return "serpapi" }

// Search runs a Google Shopping query. Shopping results carry the seller and
// a display price, so both are filled on the results.
func (c *SerpAPIClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("engine", "google_shopping")
	params.Set("q", query)
	params.Set("num", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building serpapi request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "serpapi search failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperr.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, snippet), "serpapi search failed")
	}

	var decoded struct {
		ShoppingResults []struct {
			Title  string `json:"title"`
			Link   string `json:"link"`
			Price  string `json:"price"`
			Source string `json:"source"`
		} `json:"shopping_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperr.Upstream(err, "decoding serpapi response")
	}

	results := make([]SearchResult, 0, len(decoded.ShoppingResults))
	for _, r := range decoded.ShoppingResults {
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Content: r.Price,
			Vendor:  vendorSlugFromName(r.Source),
			Price:   parsePriceString(r.Price),
		})
	}
	return results, nil
}

// =============================================================================
// PRICE AND SELLER EXTRACTION
// =============================================================================

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)USD\s*(\d+(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d{2})?)\s*(?:USD|dollars?)`),
}

// extractPrice pulls the first recognizable USD amount out of free text.
func extractPrice(text string) *decimal.Decimal {
	for _, pattern := range pricePatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		price, err := decimal.NewFromString(match[1])
		if err != nil || price.IsNegative() || price.IsZero() {
			continue
		}
		return &price
	}
	return nil
}

var priceStringPattern = regexp.MustCompile(`\$?(\d+(?:\.\d{2})?)`)

// parsePriceString parses a display price like "$19.99" or "1,299.00".
func parsePriceString(s string) *decimal.Decimal {
	match := priceStringPattern.FindStringSubmatch(strings.ReplaceAll(s, ",", ""))
	if match == nil {
		return nil
	}
	price, err := decimal.NewFromString(match[1])
	if err != nil || price.IsZero() {
		return nil
	}
	return &price
}

// vendorSlugFromURL maps a product URL to a known vendor slug, or "".
func vendorSlugFromURL(rawURL string) string {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "aliexpress"):
		return "aliexpress"
	case strings.Contains(lower, "amazon"):
		return "amazon"
	case strings.Contains(lower, "waveshare"):
		return "waveshare"
	case strings.Contains(lower, "robotshop"):
		return "robotshop"
	}
	return ""
}

// vendorSlugFromName maps a seller display name to a known vendor slug, or "".
func vendorSlugFromName(name string) string {
	return vendorSlugFromURL(name)
}
