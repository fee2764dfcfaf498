package monitor

import (
	"fmt"
	"strings"

	"dealwatch/internal/database"
	"dealwatch/internal/metrics"
	"dealwatch/internal/models"

	"github.com/rs/zerolog"
)

// StoreError is a failed known-deals write or read. URLs lists the deals
// whose change was not persisted.
type StoreError struct {
	Op   string
	URLs []string
	Err  error
}

func (e *StoreError) Error() string {
	if len(e.URLs) == 0 {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s (%s): %v", e.Op, strings.Join(e.URLs, ", "), e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Reconciler diffs scraped listings against the known deals loaded for one
// cycle and persists every change before reporting it.
type Reconciler struct {
	store   database.Store
	deals   []models.KnownDeal
	index   map[string]int
	metrics metrics.Recorder
	log     zerolog.Logger
}

// NewReconciler takes ownership of deals, the current store contents.
func NewReconciler(store database.Store, deals []models.KnownDeal, rec metrics.Recorder, log zerolog.Logger) *Reconciler {
	index := make(map[string]int, len(deals))
	for i, d := range deals {
		if _, dup := index[d.URL]; !dup {
			index[d.URL] = i
		}
	}
	return &Reconciler{
		store:   store,
		deals:   deals,
		index:   index,
		metrics: rec,
		log:     log,
	}
}

// Deals returns a copy of the in-memory deals.
func (r *Reconciler) Deals() []models.KnownDeal {
	out := make([]models.KnownDeal, len(r.deals))
	copy(out, r.deals)
	return out
}

// Len returns the number of known deals.
func (r *Reconciler) Len() int {
	return len(r.deals)
}

// Reconcile records new listings and price drops for src. On a store failure
// it returns the notifications for changes already persisted along with a
// *StoreError.
func (r *Reconciler) Reconcile(src models.Source, listings []models.Listing) ([]models.Notification, error) {
	var notifications []models.Notification
	// deals first stored by this call are not compared again below
	added := make(map[string]bool)

	// New deals
	for _, l := range listings {
		if _, known := r.index[l.URL]; known {
			continue
		}

		deal := models.KnownDeal{
			Title:         l.Title,
			OriginalPrice: l.Price,
			CurrentPrice:  l.Price,
			URL:           l.URL,
		}
		err := r.store.Append(deal)
		r.metrics.IncStoreWrites("append", err)
		if err != nil {
			return notifications, &StoreError{Op: "append", URLs: []string{l.URL}, Err: err}
		}

		r.index[l.URL] = len(r.deals)
		r.deals = append(r.deals, deal)
		added[l.URL] = true

		r.log.Info().Str("source", src.Name).Str("url", l.URL).Msg("found a new deal")
		notifications = append(notifications, models.Notification{
			Kind:     models.NewDeal,
			Source:   src,
			Title:    l.Title,
			URL:      l.URL,
			NewPrice: l.Price,
		})
	}

	// Price drops
	for _, l := range listings {
		if added[l.URL] {
			continue
		}
		i := r.index[l.URL]
		deal := r.deals[i]

		switch {
		case l.Price.Less(deal.CurrentPrice):
			updated := deal
			updated.CurrentPrice = l.Price
			if err := r.replace(i, updated); err != nil {
				return notifications, err
			}

			r.log.Info().Str("source", src.Name).Str("url", l.URL).
				Int64("from", deal.CurrentPrice.Amount).Int64("to", l.Price.Amount).Msg("price drop")
			notifications = append(notifications, models.Notification{
				Kind:     models.PriceDrop,
				Source:   src,
				Title:    l.Title,
				URL:      l.URL,
				OldPrice: deal.CurrentPrice,
				NewPrice: l.Price,
			})

		case !deal.CurrentPrice.Valid && l.Price.Valid:
			// first time a price is shown for this deal
			updated := deal
			updated.CurrentPrice = l.Price
			if !updated.OriginalPrice.Valid {
				updated.OriginalPrice = l.Price
			}
			if err := r.replace(i, updated); err != nil {
				return notifications, err
			}
			r.log.Debug().Str("url", l.URL).Int64("price", l.Price.Amount).Msg("recorded first price")
		}
	}

	return notifications, nil
}

func (r *Reconciler) replace(i int, updated models.KnownDeal) error {
	prev := r.deals[i]
	r.deals[i] = updated

	err := r.store.RewriteAll(r.deals)
	r.metrics.IncStoreWrites("rewrite", err)
	if err != nil {
		r.deals[i] = prev
		return &StoreError{Op: "rewrite", URLs: []string{updated.URL}, Err: err}
	}
	return nil
}
