// Package scrape crawls a site and turns its pages into documents ready for
// ingestion.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/lorebot/lore/internal/corpus"
)

// Crawler defaults. The crawler stays on the start URL's host and stops at
// MaxPages regardless of how many links it has discovered.
const (
	DefaultMaxDepth         = 2
	DefaultMaxPages         = 50
	DefaultParallelism      = 2
	DefaultDelay            = 500 * time.Millisecond
	DefaultMinContentLength = 200
	DefaultUserAgent        = "lore/1.0 (+https://github.com/lorebot/lore)"

	defaultRequestTimeout = 20 * time.Second
)

// Config configures a crawl.
type Config struct {
	MaxDepth         int           // Link depth from the start URL (default: 2)
	MaxPages         int           // Hard cap on fetched pages (default: 50)
	Parallelism      int           // Concurrent requests per domain (default: 2)
	Delay            time.Duration // Politeness delay between requests (default: 500ms)
	MinContentLength int           // Pages with less extracted text are dropped (default: 200 runes)
	UserAgent        string
	RequestTimeout   time.Duration
}

// Crawler fetches pages from a single site and extracts their readable text.
type Crawler struct {
	cfg    Config
	logger *slog.Logger
}

// NewCrawler creates a crawler, filling config defaults.
func NewCrawler(cfg Config, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &Crawler{cfg: cfg, logger: logger}
}

// Crawl walks the site starting at startURL, staying on the same host, and
// returns one document per page that yielded enough readable text. Pages
// that fail to fetch are logged and skipped; the crawl only errors when the
// start URL itself is unusable.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]corpus.Document, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("parsing start URL %q: %w", startURL, err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", start.Scheme)
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.UserAgent(c.cfg.UserAgent),
		colly.AllowedDomains(start.Hostname()),
	)
	collector.SetRequestTimeout(c.cfg.RequestTimeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       c.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configuring rate limit: %w", err)
	}

	var (
		mu      sync.Mutex
		docs    []corpus.Document
		seen    = make(map[string]bool)
		fetched atomic.Int64
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if fetched.Add(1) > int64(c.cfg.MaxPages) {
			r.Abort()
			return
		}
		c.logger.Debug("fetching page", "url", r.URL.String(), "depth", r.Depth)
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("page fetch failed",
			"url", r.Request.URL.String(),
			"status", r.StatusCode,
			"error", err,
		)
	})

	collector.OnResponse(func(r *colly.Response) {
		contentType := strings.ToLower(r.Headers.Get("Content-Type"))
		if contentType != "" && !strings.HasPrefix(contentType, "text/html") {
			return
		}

		pageURL := r.Request.URL.String()
		title, text := c.extract(r.Body, r.Request.URL)
		if utf8.RuneCountInString(text) < c.cfg.MinContentLength {
			c.logger.Debug("skipping thin page", "url", pageURL, "length", len(text))
			return
		}

		meta := map[string]string{"crawled_at": time.Now().UTC().Format(time.RFC3339)}
		if title != "" {
			meta["title"] = title
		}

		mu.Lock()
		defer mu.Unlock()
		if seen[pageURL] {
			return
		}
		seen[pageURL] = true
		docs = append(docs, corpus.NewDocument(pageURL, text, meta))
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		// AllowedDomains and MaxDepth keep this visit on the site.
		_ = e.Request.Visit(e.Request.AbsoluteURL(href))
	})

	if err := collector.Visit(startURL); err != nil {
		return nil, fmt.Errorf("visiting %q: %w", startURL, err)
	}
	collector.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}

	c.logger.Info("crawl finished",
		"start_url", startURL,
		"pages_fetched", fetched.Load(),
		"documents", len(docs),
	)
	return docs, nil
}

// extract pulls the readable text out of a page, preferring readability
// extraction and falling back to stripped body text when readability finds
// nothing.
func (c *Crawler) extract(body []byte, pageURL *url.URL) (title, text string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.Title, cleanWhitespace(article.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("parsing page HTML", "url", pageURL.String(), "error", err)
		return "", ""
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	sel := doc.Find("body")
	sel.Find("script, style, noscript, nav, header, footer, aside").Remove()
	return title, cleanWhitespace(sel.Text())
}

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

func cleanWhitespace(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	text = newlineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
