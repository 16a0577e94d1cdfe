// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/morganforge/grokcli/internal/util"
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	// DuckDuckGo HTML parsing patterns
	ddgTitleRegex   = regexp.MustCompile(`(?s)<a[^>]+class="result__a"[^>]+href="([^"]+)"[^>]*>(.+?)</a>`)
	ddgSnippetRegex = regexp.MustCompile(`(?s)<a[^>]+class="result__snippet"[^>]*>(.+?)</a>`)

	// HTML cleaning patterns for DuckDuckGo results
	ddgTagRegex        = regexp.MustCompile(`<[^>]*>`)
	ddgWhitespaceRegex = regexp.MustCompile(`\s+`)
)

// =============================================================================
// DUCKDUCKGO SEARCH EXECUTOR
// =============================================================================

// DuckDuckGoSearchExecutor implements web search using DuckDuckGo HTML.
type DuckDuckGoSearchExecutor struct {
	// BaseURL is the DuckDuckGo HTML search endpoint
	BaseURL string

	// MaxResults is the maximum number of results to return (default: 5, max: 10)
	MaxResults int

	// Timeout is the maximum time for the request (default: 15s)
	Timeout time.Duration

	// UserAgent is the User-Agent header to send
	UserAgent string

	// HTTPClient allows injection for testing
	HTTPClient *http.Client
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Execute performs a DuckDuckGo search and returns formatted results.
func (e *DuckDuckGoSearchExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	if e.BaseURL == "" {
		e.BaseURL = "https://html.duckduckgo.com/html/"
	}
	if e.MaxResults == 0 {
		e.MaxResults = 5
	}
	if e.Timeout == 0 {
		e.Timeout = 15 * time.Second
	}
	if e.UserAgent == "" {
		e.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	query := strings.TrimSpace(getStringParam(params, "query", ""))
	maxResults := getIntParam(params, "max_results", e.MaxResults)

	if query == "" {
		return Result{}, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}

	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 10 {
		maxResults = 10
	}

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	results, err := e.search(ctx, query)
	if err != nil {
		return Result{
			Success:  false,
			Error:    "search failed: " + err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return Result{
		Success:  true,
		Output:   e.formatResults(query, results),
		Duration: time.Since(start),
	}, nil
}

// search performs the actual DuckDuckGo search.
func (e *DuckDuckGoSearchExecutor) search(ctx context.Context, query string) ([]SearchResult, error) {
	searchURL := e.BaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
	if err != nil {
		return nil, err
	}

	// Note: Don't set Accept-Encoding to gzip/deflate - Go's default http.Client
	// handles this automatically and decompresses. Manual Accept-Encoding breaks this.
	req.Header.Set("User-Agent", e.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")

	client := e.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: e.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	// Limit response body to 5MB
	limitedReader := io.LimitReader(resp.Body, 5*1024*1024)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, err
	}

	return e.parseHTML(string(body)), nil
}

// parseHTML extracts search results from DuckDuckGo HTML.
// Uses pre-compiled ddgTitleRegex and ddgSnippetRegex.
func (e *DuckDuckGoSearchExecutor) parseHTML(html string) []SearchResult {
	var results []SearchResult

	// DuckDuckGo HTML structure (2024+):
	// <div class="result results_links results_links_deep web-result ">
	//   <h2 class="result__title">
	//     <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=URL">Title</a>
	//   </h2>
	//   <a class="result__snippet" href="...">Snippet text</a>
	// </div>
	titleMatches := ddgTitleRegex.FindAllStringSubmatch(html, 30)
	snippetMatches := ddgSnippetRegex.FindAllStringSubmatch(html, 30)

	for i, match := range titleMatches {
		if len(match) < 3 {
			continue
		}

		rawURL := match[1]
		title := match[2]

		// DuckDuckGo uses &amp; for & in HTML - decode it for URL parsing
		rawURL = strings.ReplaceAll(rawURL, "&amp;", "&")

		actualURL := extractActualURL(rawURL)
		if actualURL == "" {
			continue
		}

		title = strings.TrimSpace(cleanHTML(title))

		snippet := ""
		if i < len(snippetMatches) && len(snippetMatches[i]) >= 2 {
			snippet = strings.TrimSpace(cleanHTML(snippetMatches[i][1]))
		}

		if title == "" {
			continue
		}

		results = append(results, SearchResult{
			Title:   title,
			URL:     actualURL,
			Snippet: snippet,
		})

		if len(results) >= 20 {
			break
		}
	}

	return results
}

// extractActualURL extracts the real URL from DuckDuckGo's redirect wrapper.
func extractActualURL(ddgURL string) string {
	// Handle //duckduckgo.com/l/?uddg=ENCODED_URL format
	if strings.Contains(ddgURL, "uddg=") {
		if strings.HasPrefix(ddgURL, "//") {
			ddgURL = "https:" + ddgURL
		}
		parsed, err := url.Parse(ddgURL)
		if err != nil {
			return ""
		}
		if encodedURL := parsed.Query().Get("uddg"); encodedURL != "" {
			return encodedURL
		}
	}

	if strings.HasPrefix(ddgURL, "http://") || strings.HasPrefix(ddgURL, "https://") {
		return ddgURL
	}

	return ""
}

// cleanHTML removes HTML tags and decodes entities.
func cleanHTML(html string) string {
	text := ddgTagRegex.ReplaceAllString(html, "")
	text = decodeHTMLEntities(text)
	text = ddgWhitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// decodeHTMLEntities replaces common HTML entities with plain text.
func decodeHTMLEntities(html string) string {
	entities := map[string]string{
		"&nbsp;":   " ",
		"&amp;":    "&",
		"&lt;":     "<",
		"&gt;":     ">",
		"&quot;":   "\"",
		"&#39;":    "'",
		"&apos;":   "'",
		"&mdash;":  "--",
		"&ndash;":  "-",
		"&hellip;": "...",
		"&rsquo;":  "'",
		"&lsquo;":  "'",
		"&ldquo;":  "\"",
		"&rdquo;":  "\"",
	}

	for entity, replacement := range entities {
		html = strings.ReplaceAll(html, entity, replacement)
	}

	return html
}

// formatResults formats search results as readable text.
func (e *DuckDuckGoSearchExecutor) formatResults(query string, results []SearchResult) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("DuckDuckGo Search Results for: %s\n", query))
	output.WriteString(fmt.Sprintf("Found %d results\n\n", len(results)))

	if len(results) == 0 {
		output.WriteString("No results found.\n")
		return output.String()
	}

	for i, result := range results {
		output.WriteString(fmt.Sprintf("[%d] %s\n", i+1, result.Title))
		output.WriteString(fmt.Sprintf("    URL: %s\n", result.URL))

		if result.Snippet != "" {
			// Rune-aware truncation preserves multi-byte characters
			snippet := util.TruncateRunes(result.Snippet, 300)
			output.WriteString(fmt.Sprintf("    %s\n", snippet))
		}

		output.WriteString("\n")
	}

	return output.String()
}
