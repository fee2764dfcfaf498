package scraper

import (
	"fmt"
	"io"
	"strings"

	"dealwatch/internal/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	resultSelector = "li.cl-static-search-result"
	titleSelector  = "div.title"
	priceSelector  = "div.price"
)

// ParseListings extracts the listings of a search-results page in page order.
// Items missing a link or title are skipped and reported in failures, as are
// prices that could not be normalized (the listing is kept without a price).
// err is set only when the document itself cannot be read.
func ParseListings(r io.Reader) (listings []models.Listing, failures []error, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("parse document: %w", err)
	}

	doc.Find(resultSelector).Each(func(i int, item *goquery.Selection) {
		link := item.Find("a").First()
		if link.Length() == 0 {
			failures = append(failures, &MalformedListingError{Index: i, Reason: "missing link"})
			return
		}

		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			failures = append(failures, &MalformedListingError{Index: i, Reason: "missing href"})
			return
		}

		title := link.Find(titleSelector).First()
		if title.Length() == 0 {
			failures = append(failures, &MalformedListingError{Index: i, Reason: "missing title"})
			return
		}

		listing := models.Listing{
			URL:   href,
			Title: strings.TrimSpace(title.Text()),
		}

		// price is optional
		if price := link.Find(priceSelector).First(); price.Length() > 0 {
			amount, err := NormalizePrice(price.Text())
			if err != nil {
				failures = append(failures, fmt.Errorf("result %d (%s): %w", i, href, err))
			} else {
				listing.Price = models.NewPrice(amount)
			}
		}

		listings = append(listings, listing)
	})

	return listings, failures, nil
}
