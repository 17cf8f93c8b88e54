/*
service.go - the query façade

PURPOSE:
  The one interface downstream consumers (dashboard, backend API, chat
  assistant) use. Each read is a pure projection over the entity store
  plus the derivation engine: storage rows in, derived facts attached,
  nothing cached and nothing persisted. The same reference-time input
  always produces the same output for unchanged storage.

OPERATIONS:
  ListBrands                 ordered set of brand slugs
  ListStores                 optionally filtered by brand and/or city
  GetStore                   one store with hours/status/busyness facts
  ListCurrentClearances      stock > 0, facts attached, sorted by
                             category L1/L2/L3 then soonest expiry
  ReconcileShoppingList      classify externally generated list lines
                             against the store's current clearances
*/
package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// PlaceholderImage substitutes absent or malformed product image refs.
const PlaceholderImage = "https://placehold.co/80x80?text=No+Image"

// ErrStoreNotFound is returned by reads against an unknown store ID.
var ErrStoreNotFound = errors.New("store not found")

// Storage is the read surface of the entity store the façade projects
// over. store/sqlite implements it.
type Storage interface {
	ListBrands(ctx context.Context) ([]string, error)
	ListCities(ctx context.Context) ([]string, error)
	ListStores(ctx context.Context, brand, city string) ([]Store, error)
	GetStore(ctx context.Context, id string) (*Store, error)

	// StoreWindow returns the store-type hour window for one calendar
	// date, or nil when none is stored.
	StoreWindow(ctx context.Context, storeID, date string) (*HourWindow, error)
	SamplesFor(ctx context.Context, windowID string) ([]OccupancySample, error)
	OffersFor(ctx context.Context, storeID string) ([]ClearanceOffer, error)
}

// Service is the query façade.
type Service struct {
	storage Storage
}

func NewService(storage Storage) *Service {
	return &Service{storage: storage}
}

// StoreDetail is a store with its point-in-time derived facts.
type StoreDetail struct {
	Store
	HoursToday    string
	HoursTomorrow string
	OpenStatus    string
	Busyness      string
}

// OfferDetail is a clearance offer with its derived facts attached.
// HoursToExpiry is nil when the offer carries no end time.
type OfferDetail struct {
	ClearanceOffer
	Category      CategoryLevels
	HoursToExpiry *float64
	ImageURL      string
}

func (s *Service) ListBrands(ctx context.Context) ([]string, error) {
	return s.storage.ListBrands(ctx)
}

func (s *Service) ListCities(ctx context.Context) ([]string, error) {
	return s.storage.ListCities(ctx)
}

func (s *Service) ListStores(ctx context.Context, brand, city string) ([]Store, error) {
	return s.storage.ListStores(ctx, brand, city)
}

// GetStore fetches one store and computes its facts as of ref.
func (s *Service) GetStore(ctx context.Context, id string, ref time.Time) (*StoreDetail, error) {
	store, err := s.storage.GetStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrStoreNotFound
	}

	today := ref.Format("2006-01-02")
	tomorrow := ref.AddDate(0, 0, 1).Format("2006-01-02")

	todayWindow, err := s.storage.StoreWindow(ctx, id, today)
	if err != nil {
		return nil, err
	}
	tomorrowWindow, err := s.storage.StoreWindow(ctx, id, tomorrow)
	if err != nil {
		return nil, err
	}

	var samples []OccupancySample
	if todayWindow != nil {
		samples, err = s.storage.SamplesFor(ctx, todayWindow.ID)
		if err != nil {
			return nil, err
		}
	}

	status := OpenStatus(todayWindow, ref)
	return &StoreDetail{
		Store:         *store,
		HoursToday:    FormatHours(todayWindow),
		HoursTomorrow: FormatHours(tomorrowWindow),
		OpenStatus:    status,
		Busyness:      Busyness(status, samples, ref),
	}, nil
}

// ListCurrentClearances returns the store's offers with stock > 0,
// derived facts attached, sorted by category level 1/2/3 and then
// offer end time ascending - soonest-expiring first within a
// category. Already-expired offers stay in the listing.
func (s *Service) ListCurrentClearances(ctx context.Context, storeID string, ref time.Time) ([]OfferDetail, error) {
	store, err := s.storage.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrStoreNotFound
	}

	offers, err := s.storage.OffersFor(ctx, storeID)
	if err != nil {
		return nil, err
	}

	details := make([]OfferDetail, 0, len(offers))
	for _, offer := range offers {
		if offer.Stock <= 0 {
			continue
		}
		d := OfferDetail{
			ClearanceOffer: offer,
			Category:       SplitCategoryPath(offer.CategoryPath),
			ImageURL:       ImageRef(offer.Image),
		}
		if offer.EndTime != nil {
			h := HoursToExpiry(*offer.EndTime, ref)
			d.HoursToExpiry = &h
		}
		details = append(details, d)
	}

	sort.SliceStable(details, func(i, j int) bool {
		if c := compareCategory(details[i].Category, details[j].Category); c != 0 {
			return c < 0
		}
		return endBefore(details[i].EndTime, details[j].EndTime)
	})
	return details, nil
}

// ReconcileShoppingList matches items against the store's current
// clearance listing.
func (s *Service) ReconcileShoppingList(ctx context.Context, storeID string, items []ShoppingItem, ref time.Time) ([]ReconciledItem, error) {
	details, err := s.ListCurrentClearances(ctx, storeID, ref)
	if err != nil {
		return nil, err
	}
	offers := make([]ClearanceOffer, len(details))
	for i, d := range details {
		offers[i] = d.ClearanceOffer
	}
	return ReconcileShoppingList(items, offers), nil
}

// ImageRef applies the placeholder sentinel: missing refs, refs too
// short to be real URLs, and the upstream's bare "/image" stubs all
// map to the placeholder.
func ImageRef(image *string) string {
	if image == nil {
		return PlaceholderImage
	}
	ref := strings.TrimSpace(*image)
	if len(ref) < 20 || strings.HasSuffix(ref, "/image") {
		return PlaceholderImage
	}
	return ref
}

func compareCategory(a, b CategoryLevels) int {
	pairs := [][2]*string{
		{a.Level1, b.Level1},
		{a.Level2, b.Level2},
		{a.Level3, b.Level3},
	}
	for _, p := range pairs {
		if c := strings.Compare(deref(p[0]), deref(p[1])); c != 0 {
			return c
		}
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// endBefore orders end times ascending with nil (no expiry) last.
func endBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}
