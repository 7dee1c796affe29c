// Package indexer maintains the index-service documents from the primary
// store: single upserts, pooled bulk loads, full rebuilds and incremental
// change-window sync.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/marketsearch/internal/db"
	"github.com/kailas-cloud/marketsearch/internal/domain/document"
	"github.com/kailas-cloud/marketsearch/internal/domain/record"
	"github.com/kailas-cloud/marketsearch/internal/engine/indexsvc"
	"github.com/kailas-cloud/marketsearch/internal/metrics"
	"github.com/kailas-cloud/marketsearch/internal/transform"
)

const (
	syncCursorPrefix = "msearch:index:sync_cursor:"
	reindexPageSize  = 200
	bulkBatchSize    = 100
	defaultWorkers   = 8
)

// syncCursorKey returns the cursor key of one record type. Each type keeps
// its own cursor so one type's failed pass cannot discard the other's.
func syncCursorKey(rt record.Type) string {
	return syncCursorPrefix + string(rt)
}

// Stats summarizes one indexing run.
type Stats struct {
	Upserted int
	Deleted  int
	Failed   int
}

// Indexer pushes primary-store records into the index service.
type Indexer struct {
	rel    db.RelationalStore
	idx    db.IndexStore
	pool   *ants.Pool
	logger *zap.Logger
	now    func() time.Time
}

// New creates an indexer with a bounded worker pool for bulk loads.
// workers <= 0 uses the default pool size.
func New(rel db.RelationalStore, idx db.IndexStore, workers int, logger *zap.Logger) (*Indexer, error) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	return &Indexer{
		rel:    rel,
		idx:    idx,
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close releases the worker pool.
func (ix *Indexer) Close() {
	ix.pool.Release()
}

// IndexOne reindexes a single record by id. A record that has become
// ineligible is removed from the index instead.
func (ix *Indexer) IndexOne(ctx context.Context, rt record.Type, id int64) error {
	doc, eligible, err := ix.loadDocument(ctx, rt, id)
	if err != nil {
		return err
	}
	if !eligible {
		return ix.Delete(ctx, rt, id)
	}
	err = ix.idx.UpsertDoc(ctx, docItem(doc))
	metrics.ObserveIndexOp("upsert", err)
	return err
}

// BulkIndex loads documents through the worker pool in pipeline batches.
// Per-batch failures are logged and counted; the run continues.
func (ix *Indexer) BulkIndex(ctx context.Context, docs []*document.Document) Stats {
	var (
		stats Stats
		mu    sync.Mutex
		wg    sync.WaitGroup
	)

	for start := 0; start < len(docs); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		items := make([]db.DocItem, len(batch))
		for i, doc := range batch {
			items[i] = docItem(doc)
		}

		wg.Add(1)
		submitErr := ix.pool.Submit(func() {
			defer wg.Done()
			errs := ix.idx.UpsertDocs(ctx, items)

			mu.Lock()
			defer mu.Unlock()
			for i, err := range errs {
				metrics.ObserveIndexOp("bulk_upsert", err)
				if err != nil {
					stats.Failed++
					ix.logger.Warn("bulk index item failed",
						zap.String("key", items[i].Key), zap.Error(err))
					continue
				}
				stats.Upserted++
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			stats.Failed += len(items)
			mu.Unlock()
			ix.logger.Error("bulk index batch not scheduled", zap.Error(submitErr))
		}
	}

	wg.Wait()
	return stats
}

// Update refreshes part of a record's document. With a field subset, only
// those fields plus the ranking signals are patched; the signals always
// travel together. An empty subset does a full upsert.
func (ix *Indexer) Update(ctx context.Context, rt record.Type, id int64, fields []string) error {
	doc, eligible, err := ix.loadDocument(ctx, rt, id)
	if err != nil {
		return err
	}
	if !eligible {
		return ix.Delete(ctx, rt, id)
	}
	if len(fields) == 0 {
		return ix.idx.UpsertDoc(ctx, docItem(doc))
	}

	patch := make(map[string]string, len(fields)+5)
	for _, name := range fields {
		if v, ok := doc.Fields[name]; ok {
			patch[name] = v
		}
	}
	for _, name := range signalFields {
		if v, ok := doc.Fields[name]; ok {
			patch[name] = v
		}
	}
	err = ix.idx.PatchDoc(ctx, doc.Key(indexsvc.KeyPrefix), patch)
	metrics.ObserveIndexOp("patch", err)
	return err
}

var signalFields = []string{"boost_score", "quality_score", "activity_score", "completeness", "updated_ts"}

// Delete removes a record's document from the index.
func (ix *Indexer) Delete(ctx context.Context, rt record.Type, id int64) error {
	doc := document.Document{ID: id, Type: rt}
	err := ix.idx.DeleteDoc(ctx, doc.Key(indexsvc.KeyPrefix))
	metrics.ObserveIndexOp("delete", err)
	return err
}

// ReindexAll rebuilds both indexes by sweeping every eligible record in
// pages. It does not drop documents first; stale ones are left to the
// incremental sync.
func (ix *Indexer) ReindexAll(ctx context.Context) (Stats, error) {
	var total Stats

	for offset := 0; ; offset += reindexPageSize {
		listings, err := ix.rel.EligibleListings(ctx, offset, reindexPageSize)
		if err != nil {
			return total, fmt.Errorf("paging listings at %d: %w", offset, err)
		}
		if len(listings) == 0 {
			break
		}

		now := ix.now()
		docs := make([]*document.Document, 0, len(listings))
		for i := range listings {
			docs = append(docs, transform.ListingDocument(&listings[i], now))
		}
		total = total.add(ix.BulkIndex(ctx, docs))
	}

	for offset := 0; ; offset += reindexPageSize {
		providers, err := ix.rel.EligibleProviders(ctx, offset, reindexPageSize)
		if err != nil {
			return total, fmt.Errorf("paging providers at %d: %w", offset, err)
		}
		if len(providers) == 0 {
			break
		}

		now := ix.now()
		docs := make([]*document.Document, 0, len(providers))
		for i := range providers {
			docs = append(docs, transform.ProviderDocument(&providers[i], now))
		}
		total = total.add(ix.BulkIndex(ctx, docs))
	}

	ix.logger.Info("full reindex finished",
		zap.Int("upserted", total.Upserted),
		zap.Int("failed", total.Failed),
	)
	return total, nil
}

// SyncWithDatabase reconciles records changed since each type's persisted
// cursor (or, without one, since now minus window): still-eligible rows
// are upserted, rows that dropped out of eligibility are deleted. A type's
// cursor advances to the start of the run once its pass completes.
func (ix *Indexer) SyncWithDatabase(ctx context.Context, window time.Duration) (Stats, error) {
	started := ix.now()
	fallback := started.Add(-window)

	var stats Stats

	listingsSince := ix.loadCursor(ctx, record.Listing, fallback)
	listings, err := ix.rel.ListingsChangedSince(ctx, listingsSince)
	if err != nil {
		return stats, fmt.Errorf("loading changed listings: %w", err)
	}
	for i := range listings {
		l := &listings[i]
		if l.Eligible() {
			if err := ix.idx.UpsertDoc(ctx, docItem(transform.ListingDocument(l, started))); err != nil {
				stats.Failed++
				ix.logger.Warn("sync upsert failed", zap.Int64("id", l.ID), zap.Error(err))
				continue
			}
			stats.Upserted++
			continue
		}
		if err := ix.Delete(ctx, record.Listing, l.ID); err != nil {
			stats.Failed++
			ix.logger.Warn("sync delete failed", zap.Int64("id", l.ID), zap.Error(err))
			continue
		}
		stats.Deleted++
	}
	ix.saveCursor(ctx, record.Listing, started)

	providersSince := ix.loadCursor(ctx, record.Provider, fallback)
	providers, err := ix.rel.ProvidersChangedSince(ctx, providersSince)
	if err != nil {
		return stats, fmt.Errorf("loading changed providers: %w", err)
	}
	for i := range providers {
		p := &providers[i]
		if p.Eligible() {
			if err := ix.idx.UpsertDoc(ctx, docItem(transform.ProviderDocument(p, started))); err != nil {
				stats.Failed++
				ix.logger.Warn("sync upsert failed", zap.Int64("id", p.ID), zap.Error(err))
				continue
			}
			stats.Upserted++
			continue
		}
		if err := ix.Delete(ctx, record.Provider, p.ID); err != nil {
			stats.Failed++
			ix.logger.Warn("sync delete failed", zap.Int64("id", p.ID), zap.Error(err))
			continue
		}
		stats.Deleted++
	}
	ix.saveCursor(ctx, record.Provider, started)

	ix.logger.Info("incremental sync finished",
		zap.Time("listings_since", listingsSince),
		zap.Time("providers_since", providersSince),
		zap.Int("upserted", stats.Upserted),
		zap.Int("deleted", stats.Deleted),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// --- internals ---

func (s Stats) add(o Stats) Stats {
	s.Upserted += o.Upserted
	s.Deleted += o.Deleted
	s.Failed += o.Failed
	return s
}

func docItem(doc *document.Document) db.DocItem {
	return db.DocItem{Key: doc.Key(indexsvc.KeyPrefix), Fields: doc.Fields}
}

// loadDocument fetches a record and transforms it, reporting eligibility.
func (ix *Indexer) loadDocument(ctx context.Context, rt record.Type, id int64) (*document.Document, bool, error) {
	switch rt {
	case record.Provider:
		p, err := ix.rel.GetProvider(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return transform.ProviderDocument(p, ix.now()), p.Eligible(), nil
	default:
		l, err := ix.rel.GetListing(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return transform.ListingDocument(l, ix.now()), l.Eligible(), nil
	}
}

func (ix *Indexer) loadCursor(ctx context.Context, rt record.Type, fallback time.Time) time.Time {
	data, err := ix.idx.Get(ctx, syncCursorKey(rt))
	if err != nil {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		ix.logger.Warn("sync cursor corrupt, using window fallback",
			zap.String("record_type", rt.String()), zap.Error(err))
		return fallback
	}
	return t
}

func (ix *Indexer) saveCursor(ctx context.Context, rt record.Type, t time.Time) {
	if err := ix.idx.Set(ctx, syncCursorKey(rt), []byte(t.UTC().Format(time.RFC3339))); err != nil {
		ix.logger.Warn("sync cursor not persisted",
			zap.String("record_type", rt.String()), zap.Error(err))
	}
}
