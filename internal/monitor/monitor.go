package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealwatch/internal/database"
	"dealwatch/internal/metrics"
	"dealwatch/internal/models"
	"dealwatch/internal/scraper"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SourceProvider returns the search pages to check, in order.
type SourceProvider interface {
	Sources() ([]models.Source, error)
}

// Notifier delivers the notifications of one cycle.
type Notifier interface {
	Notify(ctx context.Context, notifications []models.Notification) error
}

// Config controls cycle timing
type Config struct {
	CheckInterval time.Duration
	SourceDelay   time.Duration
	FetchTimeout  time.Duration
	Window        Window
}

// Monitor runs check cycles over all sources, one source at a time
type Monitor struct {
	cfg      Config
	sources  SourceProvider
	store    database.Store
	scraper  scraper.Scraper
	notifier Notifier
	metrics  metrics.Recorder
	log      zerolog.Logger

	now     func() time.Time
	trigger chan struct{}
}

// New creates a monitor
func New(cfg Config, sources SourceProvider, store database.Store, s scraper.Scraper, notifier Notifier, rec metrics.Recorder, log zerolog.Logger) *Monitor {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Monitor{
		cfg:      cfg,
		sources:  sources,
		store:    store,
		scraper:  s,
		notifier: notifier,
		metrics:  rec,
		log:      log,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// Start runs a cycle immediately, then on every tick and every Trigger,
// until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.log.Info().Dur("interval", m.cfg.CheckInterval).Dur("source_delay", m.cfg.SourceDelay).Msg("monitor started")

	m.runAndDeliver(ctx, false)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
			m.runAndDeliver(ctx, false)
		case <-m.trigger:
			m.runAndDeliver(ctx, true)
		}
	}
}

// Trigger asks Start to run a cycle now, ignoring the run window. It
// returns false if a triggered run is already pending.
func (m *Monitor) Trigger() bool {
	select {
	case m.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// RunCycle checks every source once, unless the run window blocks it.
func (m *Monitor) RunCycle(ctx context.Context) ([]models.Notification, error) {
	return m.run(ctx, false)
}

// CheckNow checks every source once regardless of the run window.
func (m *Monitor) CheckNow(ctx context.Context) ([]models.Notification, error) {
	return m.run(ctx, true)
}

func (m *Monitor) runAndDeliver(ctx context.Context, force bool) {
	notifications, err := m.run(ctx, force)
	if err != nil && !errors.Is(err, context.Canceled) {
		m.log.Error().Err(err).Msg("check cycle failed")
	}
	if len(notifications) == 0 {
		return
	}

	// the store already reflects these, so deliver even when shutting down
	if err := m.notifier.Notify(context.WithoutCancel(ctx), notifications); err != nil {
		m.log.Error().Err(err).Int("notifications", len(notifications)).Msg("failed to deliver notifications")
		return
	}
	m.log.Info().Int("notifications", len(notifications)).Msg("notifications sent")
}

func (m *Monitor) run(ctx context.Context, force bool) ([]models.Notification, error) {
	now := m.now()
	if !force && m.cfg.Window.Blocked(now) {
		m.log.Info().Int("hour", now.Hour()).Msg("outside run window, skipping cycle")
		m.metrics.IncCyclesSkipped()
		return nil, nil
	}

	log := m.log.With().Str("run_id", uuid.NewString()).Logger()
	started := time.Now()
	defer func() { m.metrics.ObserveCycle(time.Since(started)) }()

	sources, err := m.sources.Sources()
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}

	deals, err := m.store.Load()
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}
	log.Info().Int("sources", len(sources)).Int("known_deals", len(deals)).Msg("starting check cycle")

	rec := NewReconciler(m.store, deals, m.metrics, log)
	defer func() { m.metrics.SetKnownDeals(rec.Len()) }()

	var notifications []models.Notification
	for i, src := range sources {
		// cancellation stops the cycle here, never mid-fetch
		err := ctx.Err()
		if err == nil && i > 0 {
			err = pause(ctx, m.cfg.SourceDelay)
		}
		if err != nil {
			log.Info().Err(err).Str("next_source", src.Name).Msg("cycle cancelled")
			return notifications, err
		}

		srcLog := log.With().Str("source", src.Name).Logger()
		srcLog.Debug().Str("url", src.URL).Msg("checking source")

		listings, err := m.fetch(ctx, src)
		if err != nil {
			srcLog.Error().Err(err).Msg("fetch failed, skipping source")
			continue
		}

		found, err := rec.Reconcile(src, listings)
		m.countNotifications(found)
		notifications = append(notifications, found...)
		if err != nil {
			var storeErr *StoreError
			if errors.As(err, &storeErr) {
				srcLog.Error().Err(storeErr.Err).Str("op", storeErr.Op).Strs("urls", storeErr.URLs).Msg("store write failed, aborting cycle")
			}
			return notifications, err
		}

		if len(found) == 0 {
			srcLog.Info().Int("listings", len(listings)).Msg("no new deals or price drops")
		} else {
			srcLog.Info().Int("listings", len(listings)).Int("notifications", len(found)).Msg("source checked")
		}
	}

	log.Info().Int("notifications", len(notifications)).Dur("took", time.Since(started)).Msg("check cycle completed")
	return notifications, nil
}

// fetch runs the scrape outside ctx's cancellation so a shutdown never cuts
// a request in half; the timeout still bounds it.
func (m *Monitor) fetch(ctx context.Context, src models.Source) ([]models.Listing, error) {
	fetchCtx := context.WithoutCancel(ctx)
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, m.cfg.FetchTimeout)
		defer cancel()
	}

	started := time.Now()
	listings, err := m.scraper.Scrape(fetchCtx, src.URL)
	m.metrics.ObserveFetch(src.Name, time.Since(started), err)
	if err != nil {
		return nil, err
	}
	m.metrics.AddListings(src.Name, len(listings))
	return listings, nil
}

func (m *Monitor) countNotifications(notifications []models.Notification) {
	for _, n := range notifications {
		m.metrics.IncNotifications(n.Kind.String())
	}
}

// pause waits d after a source has been checked, or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
