/*
Package ingest drives the refresh cycle that populates the entity
store from the upstream catalog.

PURPOSE:
  One refresh is the original three-step pipeline:
    1. fetch the full store catalog and replace stores, hour windows,
       and occupancy samples
    2. derive the distinct zip-code set from the ingested stores
    3. fetch clearance data per zip, deduplicating stores that appear
       under several zips, and replace each store's offer set

  Records flow through the flattener (shape.go) and the binder
  (bind.go) before touching storage, so every row carries synthetic
  identity, parent links, and list positions.

FAILURE POLICY:
  One bad record degrades to a logged, counted skip. One unavailable
  zip is skipped. Only a failure to fetch the store catalog itself
  aborts the cycle, because without step 1 there is no zip set to
  query.

CONCURRENCY:
  Refreshes are serialized. A second Run while one is in flight
  returns ErrRefreshRunning immediately instead of queueing.

SEE ALSO:
  - shape.go: schemas for the two upstream payloads
  - bind.go: flattened rows to catalog entities
  - source.go: the upstream HTTP client
*/
package ingest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/spildspotter/clearance-engine/catalog"
	"github.com/spildspotter/clearance-engine/flatten"
	"github.com/spildspotter/clearance-engine/metrics"
)

// ErrRefreshRunning is returned when a refresh is requested while one
// is already in flight.
var ErrRefreshRunning = errors.New("a refresh is already running")

// Source delivers raw nested records from the upstream catalog.
type Source interface {
	FetchStores(ctx context.Context) ([]map[string]any, error)
	FetchClearances(ctx context.Context, zip string) ([]map[string]any, error)
}

// Sink is the write surface of the entity store.
type Sink interface {
	ReplaceStores(ctx context.Context, stores []catalog.Store) error
	ReplaceHours(ctx context.Context, storeID string, windows []catalog.HourWindow, samples []catalog.OccupancySample) (int, error)
	ReplaceClearances(ctx context.Context, storeID, queriedZip string, offers []catalog.ClearanceOffer) error
	PruneHours(ctx context.Context, before string) error
}

// Summary reports what one refresh cycle accomplished.
type Summary struct {
	Stores          int
	SkippedStores   int
	DroppedSamples  int
	Zips            int
	SkippedZips     int
	ClearanceStores int
	Offers          int
	Duration        time.Duration
}

// Refresher runs refresh cycles against a Source and a Sink, one at a
// time.
type Refresher struct {
	source  Source
	sink    Sink
	metrics *metrics.Registry
	log     *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

func NewRefresher(source Source, sink Sink, reg *metrics.Registry, log *slog.Logger) *Refresher {
	return &Refresher{
		source:  source,
		sink:    sink,
		metrics: reg,
		log:     log,
		now:     time.Now,
	}
}

// Run executes one full refresh cycle.
func (r *Refresher) Run(ctx context.Context) (*Summary, error) {
	if !r.mu.TryLock() {
		return nil, ErrRefreshRunning
	}
	defer r.mu.Unlock()

	started := r.now()
	r.metrics.RefreshRuns.Inc()
	r.log.Info("refresh started")

	summary, err := r.run(ctx)
	if err != nil {
		r.metrics.RefreshFailures.Inc()
		r.log.Error("refresh failed", "error", err)
		return nil, err
	}

	summary.Duration = r.now().Sub(started)
	r.metrics.RefreshSeconds.Observe(summary.Duration.Seconds())
	r.log.Info("refresh finished",
		"stores", summary.Stores,
		"skipped_stores", summary.SkippedStores,
		"zips", summary.Zips,
		"skipped_zips", summary.SkippedZips,
		"clearance_stores", summary.ClearanceStores,
		"offers", summary.Offers,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (r *Refresher) run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	records, err := r.source.FetchStores(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "store catalog fetch")
	}

	schema := StoreSchema()
	zips := map[string]bool{}
	var stores []catalog.Store
	type storeHours struct {
		storeID string
		windows []catalog.HourWindow
		samples []catalog.OccupancySample
	}
	var hours []storeHours

	for _, record := range records {
		splitCoordinates(record)
		rows, err := flatten.Flatten(schema, record)
		if err != nil {
			r.skipStore("flatten", err)
			summary.SkippedStores++
			continue
		}
		store, windows, samples, err := BindStore(rows)
		if err != nil {
			r.skipStore("bind", err)
			summary.SkippedStores++
			continue
		}
		stores = append(stores, store)
		hours = append(hours, storeHours{storeID: store.ID, windows: windows, samples: samples})
		if store.Zip != "" {
			zips[store.Zip] = true
		}
	}

	if err := r.sink.ReplaceStores(ctx, stores); err != nil {
		return nil, errors.Wrap(err, "replace stores")
	}
	summary.Stores = len(stores)
	r.metrics.StoresIngested.Add(float64(len(stores)))

	for _, h := range hours {
		dropped, err := r.sink.ReplaceHours(ctx, h.storeID, h.windows, h.samples)
		if err != nil {
			r.log.Warn("hour replacement failed, store skipped", "store", h.storeID, "error", err)
			r.metrics.StoresSkipped.Inc()
			summary.SkippedStores++
			continue
		}
		summary.DroppedSamples += dropped
		r.metrics.SamplesDropped.Add(float64(dropped))
	}

	sorted := make([]string, 0, len(zips))
	for zip := range zips {
		sorted = append(sorted, zip)
	}
	sort.Strings(sorted)
	summary.Zips = len(sorted)
	r.log.Info("store catalog ingested", "stores", summary.Stores, "zips", summary.Zips)

	clearanceSchema := ClearanceSchema()
	seen := map[string]bool{}
	for _, zip := range sorted {
		records, err := r.source.FetchClearances(ctx, zip)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Warn("zip skipped", "zip", zip, "error", err)
			r.metrics.ZipsSkipped.Inc()
			summary.SkippedZips++
			continue
		}
		for _, record := range records {
			if nested, ok := record["store"].(map[string]any); ok {
				splitCoordinates(nested)
			}
			rows, err := flatten.Flatten(clearanceSchema, record)
			if err != nil {
				r.skipStore("flatten", err)
				continue
			}
			store, queriedZip, offers, err := BindClearance(rows)
			if err != nil {
				r.skipStore("bind", err)
				continue
			}
			if seen[store.ID] {
				continue
			}
			seen[store.ID] = true
			if queriedZip == "" {
				queriedZip = zip
			}
			if err := r.sink.ReplaceStores(ctx, []catalog.Store{store}); err != nil {
				return nil, errors.Wrapf(err, "upsert clearance store %s", store.ID)
			}
			if err := r.sink.ReplaceClearances(ctx, store.ID, queriedZip, offers); err != nil {
				r.log.Warn("offer replacement failed, store skipped", "store", store.ID, "error", err)
				r.metrics.StoresSkipped.Inc()
				continue
			}
			summary.ClearanceStores++
			summary.Offers += len(offers)
			r.metrics.OffersIngested.Add(float64(len(offers)))
		}
	}

	today := r.now().UTC().Format("2006-01-02")
	if err := r.sink.PruneHours(ctx, today); err != nil {
		return nil, errors.Wrap(err, "prune hour windows")
	}
	return summary, nil
}

func (r *Refresher) skipStore(stage string, err error) {
	r.log.Warn("record skipped", "stage", stage, "error", err)
	r.metrics.FlattenFailures.Inc()
}
