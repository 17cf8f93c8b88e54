/*
Package sqlite provides the SQLite-backed entity store for the
clearance catalog.

PURPOSE:
  Holds the flattened tables (stores, hour_windows, occupancy_samples,
  clearance_offers, clearance_participants) with foreign-key parent
  links and list-index columns, and implements both the write surface
  used by ingestion and the catalog.Storage read surface used by the
  query façade.

WRITE SEMANTICS:
  Append-or-replace per entity type:
  - stores:            upsert by natural key (store ID)
  - clearance offers:  delete-and-insert per store inside one
                       transaction (the synthetic offer key makes
                       re-ingesting an unchanged payload idempotent)
  - hour windows +
    occupancy samples: replaced wholesale per parent store; stale
                       dates are pruned separately
  Every batch runs in one SQL transaction: a refresh either fully
  commits or rolls back, so no reader ever sees mismatched
  parent/child rows.

REFERENTIAL ERRORS:
  Occupancy samples pointing at a window absent from the same batch
  are orphans; they are dropped (and counted for the caller's log),
  never attached elsewhere.

CONCURRENCY:
  WAL mode so readers do not block on the single writer; an RWMutex
  serializes writers within the process. Refreshes are additionally
  serialized above this layer.

SEE ALSO:
  - catalog/service.go: the read façade projecting over this store
  - ingest/refresh.go: the only writer
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/spildspotter/clearance-engine/catalog"
)

// Store implements the entity store over SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the
// schema. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps ":memory:" databases coherent across the
	// pool and matches the single-writer model.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stores (
		id TEXT PRIMARY KEY,
		name TEXT,
		brand TEXT,
		street TEXT,
		city TEXT,
		zip TEXT,
		latitude REAL,
		longitude REAL,
		store_type TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_stores_brand ON stores(brand);
	CREATE INDEX IF NOT EXISTS idx_stores_city ON stores(city);

	-- One day's operating hours for one store. Child of stores via
	-- store_id; list_index preserves the upstream list order.
	CREATE TABLE IF NOT EXISTS hour_windows (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		list_index INTEGER NOT NULL,
		date TEXT NOT NULL,
		window_type TEXT NOT NULL,
		open_time TEXT,
		close_time TEXT,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE(store_id, date, window_type)
	);

	-- Hot path: "this store's today/tomorrow window".
	CREATE INDEX IF NOT EXISTS idx_hour_windows_store_date
		ON hour_windows(store_id, date, window_type);

	CREATE TABLE IF NOT EXISTS occupancy_samples (
		id TEXT PRIMARY KEY,
		window_id TEXT NOT NULL REFERENCES hour_windows(id) ON DELETE CASCADE,
		list_index INTEGER NOT NULL,
		hour INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
		value REAL NOT NULL,
		UNIQUE(window_id, hour)
	);

	-- Not every store participates in clearance; this link table is
	-- the intermediate between stores and their offers.
	CREATE TABLE IF NOT EXISTS clearance_participants (
		store_id TEXT PRIMARY KEY,
		queried_zip TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clearance_offers (
		id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL,
		list_index INTEGER NOT NULL,
		ean TEXT,
		description TEXT,
		category_path TEXT,
		image TEXT,
		currency TEXT,
		original_price TEXT,
		new_price TEXT,
		discount_percent REAL,
		discount_amount TEXT,
		stock REAL NOT NULL DEFAULT 0,
		stock_unit TEXT,
		start_time TEXT,
		end_time TEXT,
		last_updated TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_offers_store ON clearance_offers(store_id, stock);
	CREATE INDEX IF NOT EXISTS idx_offers_end_time ON clearance_offers(end_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITE SURFACE (ingestion)
// =============================================================================

// ReplaceStores upserts a batch of stores by natural key in one
// transaction.
func (s *Store) ReplaceStores(ctx context.Context, stores []catalog.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO stores (id, name, brand, street, city, zip, latitude, longitude, store_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			street = excluded.street,
			city = excluded.city,
			zip = excluded.zip,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			store_type = excluded.store_type,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, st := range stores {
		if _, err := tx.ExecContext(ctx, query,
			st.ID, st.Name, st.Brand, st.Street, st.City, st.Zip,
			nullFloat(st.Latitude), nullFloat(st.Longitude), st.Type, now,
		); err != nil {
			return fmt.Errorf("failed to upsert store %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

// ReplaceHours replaces the entire hour-window set of one store.
// Samples whose WindowID does not match a window in the same batch
// are orphans and are dropped; the count of dropped orphans is
// returned for logging.
func (s *Store) ReplaceHours(ctx context.Context, storeID string, windows []catalog.HourWindow, samples []catalog.OccupancySample) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM hour_windows WHERE store_id = ?", storeID); err != nil {
		return 0, fmt.Errorf("failed to clear hour windows for %s: %w", storeID, err)
	}

	known := make(map[string]bool, len(windows))
	for _, w := range windows {
		known[w.ID] = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO hour_windows (id, store_id, list_index, date, window_type, open_time, close_time, closed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			w.ID, storeID, w.ListIndex, w.Date, w.Type,
			nullString(w.Open), nullString(w.Close), w.Closed,
		); err != nil {
			return 0, fmt.Errorf("failed to insert hour window: %w", err)
		}
	}

	dropped := 0
	for _, sample := range samples {
		if !known[sample.WindowID] {
			dropped++
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO occupancy_samples (id, window_id, list_index, hour, value)
			VALUES (?, ?, ?, ?, ?)`,
			sample.ID, sample.WindowID, sample.ListIndex, sample.Hour, sample.Value,
		); err != nil {
			return 0, fmt.Errorf("failed to insert occupancy sample: %w", err)
		}
	}

	return dropped, tx.Commit()
}

// PruneHours drops hour windows (and, via cascade, their samples)
// older than the given date. Only today and tomorrow are consumed
// downstream, so the retention window is short.
func (s *Store) PruneHours(ctx context.Context, before string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM hour_windows WHERE date < ?", before)
	if err != nil {
		return fmt.Errorf("failed to prune hour windows: %w", err)
	}
	return nil
}

// ReplaceClearances replaces one store's offer set and records its
// clearance participation, all in one transaction. Offers with
// stock <= 0 are stored too; the façade filters them from current
// listings.
func (s *Store) ReplaceClearances(ctx context.Context, storeID, queriedZip string, offers []catalog.ClearanceOffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO clearance_participants (store_id, queried_zip, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(store_id) DO UPDATE SET
			queried_zip = excluded.queried_zip,
			updated_at = excluded.updated_at`,
		storeID, queriedZip, now,
	); err != nil {
		return fmt.Errorf("failed to upsert clearance participant: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM clearance_offers WHERE store_id = ?", storeID); err != nil {
		return fmt.Errorf("failed to clear offers for %s: %w", storeID, err)
	}

	query := `
		INSERT INTO clearance_offers
		(id, store_id, list_index, ean, description, category_path, image, currency,
		 original_price, new_price, discount_percent, discount_amount,
		 stock, stock_unit, start_time, end_time, last_updated, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, o := range offers {
		if _, err := tx.ExecContext(ctx, query,
			o.ID, storeID, o.ListIndex,
			nullString(o.EAN), nullString(o.Description), nullString(o.CategoryPath),
			nullString(o.Image), nullString(o.Currency),
			nullDecimal(o.OriginalPrice), nullDecimal(o.NewPrice),
			nullFloat(o.DiscountPercent), nullDecimal(o.DiscountAmount),
			o.Stock, nullString(o.StockUnit),
			nullTime(o.StartTime), nullTime(o.EndTime), nullTime(o.LastUpdated), now,
		); err != nil {
			return fmt.Errorf("failed to insert offer %s: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

// Reset clears all data (tests and dev tooling only).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"occupancy_samples", "hour_windows", "clearance_offers", "clearance_participants", "stores"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// READ SURFACE (catalog.Storage)
// =============================================================================

// ListBrands returns the ordered set of brands that currently have
// clearance stores with stock on offer.
func (s *Store) ListBrands(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT s.brand
		FROM stores s
		INNER JOIN clearance_participants p ON s.id = p.store_id
		INNER JOIN clearance_offers c ON c.store_id = s.id
		WHERE c.stock > 0 AND s.brand IS NOT NULL
		ORDER BY s.brand
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brands []string
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// ListStores returns clearance-participating stores with stock on
// offer, optionally filtered by brand and/or city, ordered by brand,
// city, name.
func (s *Store) ListStores(ctx context.Context, brand, city string) ([]catalog.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT DISTINCT s.id, s.name, s.brand, s.street, s.city, s.zip,
		       s.latitude, s.longitude, s.store_type
		FROM stores s
		INNER JOIN clearance_participants p ON s.id = p.store_id
		INNER JOIN clearance_offers c ON c.store_id = s.id
		WHERE c.stock > 0
	`
	var args []any
	if brand != "" {
		query += " AND LOWER(s.brand) = LOWER(?)"
		args = append(args, brand)
	}
	if city != "" {
		query += " AND LOWER(s.city) = LOWER(?)"
		args = append(args, city)
	}
	query += " ORDER BY s.brand, s.city, s.name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []catalog.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		stores = append(stores, st)
	}
	return stores, rows.Err()
}

// GetStore returns one store by ID, or nil when unknown.
func (s *Store) GetStore(ctx context.Context, id string) (*catalog.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, brand, street, city, zip, latitude, longitude, store_type
		FROM stores WHERE id = ?`, id)

	st, err := scanStore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListCities returns the ordered set of cities with stores.
func (s *Store) ListCities(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT city FROM stores WHERE city IS NOT NULL AND city != '' ORDER BY city")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// StoreWindow returns the store-type hour window for one calendar
// date, or nil when none is stored.
func (s *Store) StoreWindow(ctx context.Context, storeID, date string) (*catalog.HourWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, list_index, date, window_type, open_time, close_time, closed
		FROM hour_windows
		WHERE store_id = ? AND date = ? AND window_type = ?`,
		storeID, date, catalog.WindowStore)

	var w catalog.HourWindow
	var open, close sql.NullString
	err := row.Scan(&w.ID, &w.StoreID, &w.ListIndex, &w.Date, &w.Type, &open, &close, &w.Closed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.Open = strPtr(open)
	w.Close = strPtr(close)
	return &w, nil
}

// SamplesFor returns a window's occupancy samples ordered by hour
// ascending.
func (s *Store) SamplesFor(ctx context.Context, windowID string) ([]catalog.OccupancySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, window_id, list_index, hour, value
		FROM occupancy_samples
		WHERE window_id = ?
		ORDER BY hour ASC`, windowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []catalog.OccupancySample
	for rows.Next() {
		var smp catalog.OccupancySample
		if err := rows.Scan(&smp.ID, &smp.WindowID, &smp.ListIndex, &smp.Hour, &smp.Value); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// OffersFor returns all stored offers for a store, including
// zero-stock ones; the façade applies the current-listing filter.
func (s *Store) OffersFor(ctx context.Context, storeID string) ([]catalog.ClearanceOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, list_index, ean, description, category_path, image, currency,
		       original_price, new_price, discount_percent, discount_amount,
		       stock, stock_unit, start_time, end_time, last_updated
		FROM clearance_offers
		WHERE store_id = ?
		ORDER BY end_time ASC, list_index ASC`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []catalog.ClearanceOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// =============================================================================
// SCANNING & NULL HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (catalog.Store, error) {
	var st catalog.Store
	var name, brand, street, city, zip, storeType sql.NullString
	var lat, lon sql.NullFloat64

	err := row.Scan(&st.ID, &name, &brand, &street, &city, &zip, &lat, &lon, &storeType)
	if err != nil {
		return st, err
	}
	st.Name = name.String
	st.Brand = brand.String
	st.Street = street.String
	st.City = city.String
	st.Zip = zip.String
	st.Type = storeType.String
	if lat.Valid {
		v := lat.Float64
		st.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		st.Longitude = &v
	}
	return st, nil
}

func scanOffer(rows *sql.Rows) (catalog.ClearanceOffer, error) {
	var o catalog.ClearanceOffer
	var ean, description, categoryPath, image, currency sql.NullString
	var originalPrice, newPrice, discountAmount sql.NullString
	var discountPercent sql.NullFloat64
	var stockUnit, startTime, endTime, lastUpdated sql.NullString

	err := rows.Scan(&o.ID, &o.StoreID, &o.ListIndex,
		&ean, &description, &categoryPath, &image, &currency,
		&originalPrice, &newPrice, &discountPercent, &discountAmount,
		&o.Stock, &stockUnit, &startTime, &endTime, &lastUpdated)
	if err != nil {
		return o, fmt.Errorf("failed to scan offer: %w", err)
	}

	o.EAN = strPtr(ean)
	o.Description = strPtr(description)
	o.CategoryPath = strPtr(categoryPath)
	o.Image = strPtr(image)
	o.Currency = strPtr(currency)
	o.OriginalPrice = decPtr(originalPrice)
	o.NewPrice = decPtr(newPrice)
	o.DiscountAmount = decPtr(discountAmount)
	if discountPercent.Valid {
		v := discountPercent.Float64
		o.DiscountPercent = &v
	}
	o.StockUnit = strPtr(stockUnit)
	o.StartTime = timePtr(startTime)
	o.EndTime = timePtr(endTime)
	o.LastUpdated = timePtr(lastUpdated)
	return o, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func decPtr(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
