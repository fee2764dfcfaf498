package scraper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"dealwatch/internal/models"

	"github.com/rs/zerolog"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// CraigslistScraper fetches Craigslist search-results pages
type CraigslistScraper struct {
	client    *http.Client
	userAgent string
	log       zerolog.Logger
}

// NewCraigslistScraper creates a scraper whose requests give up after timeout.
func NewCraigslistScraper(timeout time.Duration, userAgent string, log zerolog.Logger) *CraigslistScraper {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return &CraigslistScraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       log,
	}
}

// Scrape downloads url and parses its result items. Any network, status or
// read failure is returned as *FetchError.
func (c *CraigslistScraper) Scrape(ctx context.Context, url string) ([]models.Listing, error) {
	cleanURL := c.cleanURL(url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cleanURL, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	listings, failures, err := ParseListings(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	for _, f := range failures {
		c.log.Warn().Err(f).Str("url", url).Msg("malformed result item")
	}

	c.log.Debug().Str("url", url).Int("listings", len(listings)).Int("failures", len(failures)).Msg("page parsed")
	return listings, nil
}

func (c *CraigslistScraper) cleanURL(url string) string {
	parts := strings.Split(url, "#")
	return parts[0]
}
