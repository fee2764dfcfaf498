package monitor

import (
	"errors"
	"testing"

	"dealwatch/internal/metrics"
	"dealwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory database.Store that records writes.
type memStore struct {
	deals      []models.KnownDeal
	appends    int
	rewrites   int
	appendErr  error
	rewriteErr error
	loadErr    error
}

func (s *memStore) Load() ([]models.KnownDeal, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]models.KnownDeal, len(s.deals))
	copy(out, s.deals)
	return out, nil
}

func (s *memStore) Append(d models.KnownDeal) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appends++
	s.deals = append(s.deals, d)
	return nil
}

func (s *memStore) RewriteAll(deals []models.KnownDeal) error {
	if s.rewriteErr != nil {
		return s.rewriteErr
	}
	s.rewrites++
	s.deals = make([]models.KnownDeal, len(deals))
	copy(s.deals, deals)
	return nil
}

func (s *memStore) Close() error { return nil }

var couches = models.Source{Name: "couches", URL: "https://sfbay.craigslist.org/search/fua?query=couch"}

func newTestReconciler(t *testing.T, store *memStore) *Reconciler {
	t.Helper()
	deals, err := store.Load()
	require.NoError(t, err)
	return NewReconciler(store, deals, metrics.Noop{}, zerolog.Nop())
}

func knownDeal(url string, original, current int64) models.KnownDeal {
	return models.KnownDeal{Title: "Couch", OriginalPrice: models.NewPrice(original), CurrentPrice: models.NewPrice(current), URL: url}
}

func TestReconcile_NewDeal(t *testing.T) {
	store := &memStore{}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(100)}})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, models.NewDeal, got[0].Kind)
	assert.Equal(t, "u1", got[0].URL)
	assert.Contains(t, got[0].Text(), "u1")
	assert.Contains(t, got[0].Text(), couches.URL)

	assert.Equal(t, []models.KnownDeal{knownDeal("u1", 100, 100)}, store.deals)
	assert.Equal(t, 1, store.appends)
	assert.Zero(t, store.rewrites)
}

func TestReconcile_PriceDrop(t *testing.T) {
	store := &memStore{deals: []models.KnownDeal{knownDeal("u1", 100, 100)}}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(80)}})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, models.PriceDrop, got[0].Kind)
	assert.Contains(t, got[0].Text(), "100")
	assert.Contains(t, got[0].Text(), "80")

	assert.Equal(t, []models.KnownDeal{knownDeal("u1", 100, 80)}, store.deals)
	assert.Equal(t, 1, store.rewrites)
	assert.Zero(t, store.appends)
}

func TestReconcile_EqualOrHigherPriceIsNoop(t *testing.T) {
	for _, price := range []int64{100, 120} {
		store := &memStore{deals: []models.KnownDeal{knownDeal("u1", 100, 100)}}
		r := newTestReconciler(t, store)

		got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(price)}})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Zero(t, store.appends)
		assert.Zero(t, store.rewrites)
		assert.Equal(t, []models.KnownDeal{knownDeal("u1", 100, 100)}, store.deals)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := &memStore{}
	listings := []models.Listing{
		{URL: "u1", Title: "Couch", Price: models.NewPrice(100)},
		{URL: "u2", Title: "Chair", Price: models.NewPrice(40)},
		{URL: "u3", Title: "Lamp"},
	}

	first, err := newTestReconciler(t, store).Reconcile(couches, listings)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	appends, rewrites := store.appends, store.rewrites
	second, err := newTestReconciler(t, store).Reconcile(couches, listings)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Equal(t, appends, store.appends)
	assert.Equal(t, rewrites, store.rewrites)
}

func TestReconcile_SecondDropUsesCurrentPrice(t *testing.T) {
	store := &memStore{deals: []models.KnownDeal{knownDeal("u1", 100, 80)}}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(60)}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.NewPrice(80), got[0].OldPrice)
	assert.Equal(t, knownDeal("u1", 100, 60), store.deals[0])
}

func TestReconcile_AbsentPrices(t *testing.T) {
	store := &memStore{deals: []models.KnownDeal{knownDeal("u1", 100, 100)}}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch"}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.rewrites)
}

func TestReconcile_BackfillsFirstPrice(t *testing.T) {
	store := &memStore{deals: []models.KnownDeal{{Title: "Lamp", URL: "u1"}}}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Lamp", Price: models.NewPrice(30)}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, store.rewrites)
	assert.Equal(t, models.NewPrice(30), store.deals[0].OriginalPrice)
	assert.Equal(t, models.NewPrice(30), store.deals[0].CurrentPrice)
}

func TestReconcile_DuplicateURLOnPage(t *testing.T) {
	store := &memStore{}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{
		{URL: "u1", Title: "Couch", Price: models.NewPrice(100)},
		{URL: "u1", Title: "Couch", Price: models.NewPrice(100)},
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, store.deals, 1)
}

func TestReconcile_DuplicateURLWithLowerPrice(t *testing.T) {
	store := &memStore{}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{
		{URL: "u1", Title: "Couch", Price: models.NewPrice(100)},
		{URL: "u1", Title: "Couch", Price: models.NewPrice(80)},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.NewDeal, got[0].Kind)
	assert.Equal(t, []models.KnownDeal{knownDeal("u1", 100, 100)}, store.deals)
	assert.Zero(t, store.rewrites)

	// the lower price counts as a drop on the next check
	got, err = r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(80)}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.PriceDrop, got[0].Kind)
}

func TestReconcile_NewDealsBeforePriceDrops(t *testing.T) {
	store := &memStore{deals: []models.KnownDeal{knownDeal("u1", 100, 100)}}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{
		{URL: "u1", Title: "Couch", Price: models.NewPrice(90)},
		{URL: "u2", Title: "Chair", Price: models.NewPrice(20)},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.NewDeal, got[0].Kind)
	assert.Equal(t, models.PriceDrop, got[1].Kind)
}

func TestReconcile_SharedAcrossSources(t *testing.T) {
	store := &memStore{}
	r := newTestReconciler(t, store)
	other := models.Source{Name: "sofas", URL: "https://sfbay.craigslist.org/search/fua?query=sofa"}

	_, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(100)}})
	require.NoError(t, err)

	got, err := r.Reconcile(other, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(100)}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, r.Len())
}

func TestReconcile_AppendFailure(t *testing.T) {
	store := &memStore{appendErr: errors.New("disk full")}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{{URL: "u1", Title: "Couch", Price: models.NewPrice(100)}})
	assert.Empty(t, got)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "append", storeErr.Op)
	assert.Equal(t, []string{"u1"}, storeErr.URLs)
	assert.Empty(t, r.Deals())
}

func TestReconcile_RewriteFailureKeepsEarlierNotifications(t *testing.T) {
	store := &memStore{deals: []models.KnownDeal{knownDeal("u1", 100, 100)}, rewriteErr: errors.New("read-only fs")}
	r := newTestReconciler(t, store)

	got, err := r.Reconcile(couches, []models.Listing{
		{URL: "u2", Title: "Chair", Price: models.NewPrice(20)},
		{URL: "u1", Title: "Couch", Price: models.NewPrice(50)},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "u2", got[0].URL)

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "rewrite", storeErr.Op)
	assert.Equal(t, []string{"u1"}, storeErr.URLs)

	// in-memory state is rolled back to what is on disk
	assert.Equal(t, models.NewPrice(100), r.Deals()[0].CurrentPrice)
}
