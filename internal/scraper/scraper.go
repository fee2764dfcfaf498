package scraper

import (
	"context"
	"errors"
	"fmt"

	"dealwatch/internal/models"
)

// ErrMalformedPrice is returned when price text holds no parseable number.
var ErrMalformedPrice = errors.New("malformed price")

// Scraper fetches a search-results page and returns its listings
type Scraper interface {
	Scrape(ctx context.Context, url string) ([]models.Listing, error)
}

// FetchError reports a failed page fetch: transport error, timeout or non-200 status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MalformedListingError is a result item missing its link or title.
type MalformedListingError struct {
	Index  int
	Reason string
}

func (e *MalformedListingError) Error() string {
	return fmt.Sprintf("result %d: %s", e.Index, e.Reason)
}
