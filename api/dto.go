/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication plus the display
  formatting the dashboard expects: Danish price strings, title-cased
  product names, store-picker labels, and the image placeholder.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
  - catalog/service.go: The domain types these project
*/
package api

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/spildspotter/clearance-engine/catalog"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// BrandDTO pairs the upstream brand slug with its display name.
type BrandDTO struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// StoreDTO represents a store in list responses.
type StoreDTO struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Name      string   `json:"name"`
	Brand     string   `json:"brand"`
	BrandName string   `json:"brand_name"`
	Street    string   `json:"street"`
	City      string   `json:"city"`
	Zip       string   `json:"zip"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Mappable  bool     `json:"mappable"`
}

// StoreDetailDTO adds the point-in-time derived facts.
type StoreDetailDTO struct {
	StoreDTO
	HoursToday    string `json:"hours_today"`
	HoursTomorrow string `json:"hours_tomorrow"`
	OpenStatus    string `json:"open_status"`
	Busyness      string `json:"busyness"`
}

// ClearanceDTO represents one offer with derived facts and display
// strings attached. Prices appear both as raw decimal strings and
// pre-formatted for display.
type ClearanceDTO struct {
	ID              string   `json:"id"`
	Product         string   `json:"product"`
	EAN             *string  `json:"ean,omitempty"`
	CategoryPath    *string  `json:"category_path,omitempty"`
	CategoryLevel1  *string  `json:"category_level1"`
	CategoryLevel2  *string  `json:"category_level2"`
	CategoryLevel3  *string  `json:"category_level3"`
	CategoryLevel4  *string  `json:"category_level4"`
	Image           string   `json:"image"`
	Currency        *string  `json:"currency,omitempty"`
	OriginalPrice   *string  `json:"original_price,omitempty"`
	NewPrice        *string  `json:"new_price,omitempty"`
	OriginalDisplay string   `json:"original_price_display"`
	NewDisplay      string   `json:"new_price_display"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
	DiscountAmount  *string  `json:"discount_amount,omitempty"`
	Stock           float64  `json:"stock"`
	StockUnit       *string  `json:"stock_unit,omitempty"`
	StartTime       *string  `json:"start_time,omitempty"`
	EndTime         *string  `json:"end_time,omitempty"`
	HoursToExpiry   *float64 `json:"hours_to_expiry,omitempty"`
}

// ReconciledItemDTO is one classified shopping-list line.
type ReconciledItemDTO struct {
	Name           string        `json:"name"`
	Classification string        `json:"classification"`
	Offer          *ClearanceDTO `json:"offer,omitempty"`
}

// RefreshSummaryDTO reports what a triggered refresh accomplished.
type RefreshSummaryDTO struct {
	Stores          int     `json:"stores"`
	SkippedStores   int     `json:"skipped_stores"`
	Zips            int     `json:"zips"`
	SkippedZips     int     `json:"skipped_zips"`
	ClearanceStores int     `json:"clearance_stores"`
	Offers          int     `json:"offers"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ReconcileRequest asks for a shopping list to be matched against one
// store's current clearances.
type ReconcileRequest struct {
	StoreID string `json:"store_id"`
	Items   []struct {
		Name         string `json:"name"`
		PantryStaple bool   `json:"pantry_staple"`
	} `json:"items"`
}

// =============================================================================
// PROJECTION & FORMATTING
// =============================================================================

func toStoreDTO(s catalog.Store) StoreDTO {
	return StoreDTO{
		ID:        s.ID,
		Label:     s.Label(),
		Name:      s.Name,
		Brand:     s.Brand,
		BrandName: s.DisplayBrand(),
		Street:    s.Street,
		City:      s.City,
		Zip:       s.Zip,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Mappable:  s.Mappable(),
	}
}

func toClearanceDTO(d catalog.OfferDetail) ClearanceDTO {
	return ClearanceDTO{
		ID:              d.ID,
		Product:         TitleCase(deref(d.Description)),
		EAN:             d.EAN,
		CategoryPath:    d.CategoryPath,
		CategoryLevel1:  d.Category.Level1,
		CategoryLevel2:  d.Category.Level2,
		CategoryLevel3:  d.Category.Level3,
		CategoryLevel4:  d.Category.Level4,
		Image:           d.ImageURL,
		Currency:        d.Currency,
		OriginalPrice:   decString(d.OriginalPrice),
		NewPrice:        decString(d.NewPrice),
		OriginalDisplay: FormatPrice(d.OriginalPrice),
		NewDisplay:      FormatPrice(d.NewPrice),
		DiscountPercent: d.DiscountPercent,
		DiscountAmount:  decString(d.DiscountAmount),
		Stock:           d.Stock,
		StockUnit:       d.StockUnit,
		StartTime:       timeString(d.StartTime),
		EndTime:         timeString(d.EndTime),
		HoursToExpiry:   d.HoursToExpiry,
	}
}

// FormatPrice renders a price Danish style: "20.- kr" for whole
// amounts, "20.34 kr" otherwise. Nil prices render empty.
func FormatPrice(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	if d.IsInteger() {
		return d.StringFixed(0) + ".- kr"
	}
	return d.StringFixed(2) + " kr"
}

// TitleCase converts all-caps product names to title case and leaves
// already properly cased text alone.
func TitleCase(s string) string {
	if s == "" || strings.ToUpper(s) != s {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			startOfWord = true
			b.WriteRune(r)
		case startOfWord:
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func decString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
