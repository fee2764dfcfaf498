package models

import (
	"fmt"
	"strconv"
)

// Source is a configured search-results page to monitor
type Source struct {
	Name string
	URL  string
}

// Price holds a whole-unit amount. Valid is false when the listing showed no price.
type Price struct {
	Amount int64
	Valid  bool
}

// NewPrice returns a known price.
func NewPrice(amount int64) Price {
	return Price{Amount: amount, Valid: true}
}

// String renders the amount, or "" when absent.
func (p Price) String() string {
	if !p.Valid {
		return ""
	}
	return strconv.FormatInt(p.Amount, 10)
}

// Less reports whether both prices are known and p is strictly lower than other.
func (p Price) Less(other Price) bool {
	return p.Valid && other.Valid && p.Amount < other.Amount
}

// Listing is one scraped search result, valid only for the current check
type Listing struct {
	URL   string
	Title string
	Price Price
}

// KnownDeal is a listing that has been seen before and is tracked across runs.
type KnownDeal struct {
	Title         string
	OriginalPrice Price
	CurrentPrice  Price
	URL           string
}

// NotificationKind distinguishes the events the engine reports.
type NotificationKind int

const (
	NewDeal NotificationKind = iota
	PriceDrop
)

func (k NotificationKind) String() string {
	switch k {
	case NewDeal:
		return "new_deal"
	case PriceDrop:
		return "price_drop"
	default:
		return "unknown"
	}
}

// Notification describes one new deal or price drop found for a source.
type Notification struct {
	Kind     NotificationKind
	Source   Source
	Title    string
	URL      string
	OldPrice Price
	NewPrice Price
}

// Text renders the plain-text message sent to chat.
func (n Notification) Text() string {
	switch n.Kind {
	case PriceDrop:
		return fmt.Sprintf("Price drop for %s (%s) to %s from %s [deal](%s) [all deals](%s)",
			n.Title, n.Source.Name, n.NewPrice, n.OldPrice, n.URL, n.Source.URL)
	default:
		return fmt.Sprintf("Found a new craigslist deal for %s: %s %s [all deals](%s)",
			n.Source.Name, n.Title, n.URL, n.Source.URL)
	}
}
