/*
Package catalog holds the flat entity model for the clearance catalog
and the pure fact-derivation engine computed over it.

PURPOSE:
  This is the domain layer between ingestion and the query façade.
  Entities mirror the stored tables one to one (stores, hour windows,
  occupancy samples, clearance offers). Derived facts (open status,
  busyness, hour formatting, category decomposition, time to expiry)
  are pure functions of (entity state, reference timestamp) and are
  recomputed on every query, never persisted, so they are always
  consistent with "now".

DESIGN PRINCIPLES:
  1. Explicit time: every derivation takes a reference timestamp.
     Nothing in this package reads the process clock.
  2. Precision: prices use decimal.Decimal, never float64.
  3. Degradation over failure: malformed category paths, missing
     samples, and absent hours all produce defined fallback values.

SEE ALSO:
  - derive.go: the derivation functions
  - service.go: the query façade over a Storage implementation
  - reconcile.go: shopping-list to clearance matching
*/
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Known retail brands. The upstream reports lowercase slugs.
const (
	BrandFoetex = "foetex"
	BrandNetto  = "netto"
	BrandBilka  = "bilka"
)

// WindowStore is the hour-window type downstream views consume; the
// upstream also reports delivery and pickup windows, which are stored
// but ignored by derivation.
const WindowStore = "store"

// Store is one retail location. Latitude/Longitude are nil when the
// upstream omits coordinates; such stores are still listed but must be
// excluded from map-based views.
type Store struct {
	ID        string
	Name      string
	Brand     string
	Street    string
	City      string
	Zip       string
	Latitude  *float64
	Longitude *float64
	Type      string
}

// Mappable reports whether the store carries usable coordinates.
func (s Store) Mappable() bool {
	return s.Latitude != nil && s.Longitude != nil &&
		(*s.Latitude != 0 || *s.Longitude != 0)
}

// DisplayBrand maps upstream brand slugs to their customer-facing
// names; unknown slugs get simple title casing.
func (s Store) DisplayBrand() string {
	switch strings.ToLower(s.Brand) {
	case BrandFoetex:
		return "Føtex"
	case BrandNetto:
		return "Netto"
	case BrandBilka:
		return "Bilka"
	default:
		return titleWord(s.Brand)
	}
}

// Label renders the store-picker label: "Brand - Name, Street, Zip City".
func (s Store) Label() string {
	return fmt.Sprintf("%s - %s, %s, %s %s", s.DisplayBrand(), s.Name, s.Street, s.Zip, s.City)
}

func titleWord(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
}

// HourWindow is one day's operating hours for one store. Open/Close
// are wall-clock "HH:MM" strings local to the store; Close may be
// absent. Windows are replaced wholesale on each refresh.
type HourWindow struct {
	ID        string
	StoreID   string
	Date      string // "2006-01-02"
	Type      string
	Open      *string
	Close     *string
	Closed    bool
	ListIndex int
}

// OccupancySample is one hour's fractional busyness estimate for its
// parent window. Hour is 0-23 and unique per window; Value is in
// [0,1] after field coalescing. A day with fewer than 24 samples is
// valid; missing hours simply have no row.
type OccupancySample struct {
	ID        string
	WindowID  string
	Hour      int
	Value     float64
	ListIndex int
}

// ClearanceOffer is one discounted, near-expiry product listing at one
// store. The upstream has no durable offer ID, so identity is the
// synthetic composite produced by OfferKey. Offers with Stock <= 0
// stay in storage but are excluded from current listings.
type ClearanceOffer struct {
	ID              string
	StoreID         string
	ListIndex       int
	EAN             *string
	Description     *string
	CategoryPath    *string
	Image           *string
	Currency        *string
	OriginalPrice   *decimal.Decimal
	NewPrice        *decimal.Decimal
	DiscountPercent *float64
	DiscountAmount  *decimal.Decimal
	Stock           float64
	StockUnit       *string
	StartTime       *time.Time
	EndTime         *time.Time
	LastUpdated     *time.Time
}

// OfferKey builds the synthetic natural key (store, product, start).
// EAN identifies the product when present; the raw description is the
// fallback. Stable across refreshes for an unchanged offer.
func OfferKey(storeID string, ean, description *string, start *time.Time) string {
	product := ""
	if ean != nil && *ean != "" {
		product = *ean
	} else if description != nil {
		product = *description
	}
	startPart := ""
	if start != nil {
		startPart = start.UTC().Format(time.RFC3339)
	}
	return storeID + "|" + product + "|" + startPart
}
