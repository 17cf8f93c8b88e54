package ingest

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/spildspotter/clearance-engine/catalog"
	"github.com/spildspotter/clearance-engine/flatten"
)

// splitCoordinates rewrites the upstream [lon, lat] coordinate array
// into separate longitude/latitude scalars on the record. Absent or
// short arrays leave both fields unset; the store stays listable, just
// unmappable.
func splitCoordinates(record map[string]any) {
	raw, ok := record["coordinates"].([]any)
	delete(record, "coordinates")
	if !ok || len(raw) < 2 {
		return
	}
	if lon := flatten.AsFloat(raw[0]); lon != nil {
		record["longitude"] = *lon
	}
	if lat := flatten.AsFloat(raw[1]); lat != nil {
		record["latitude"] = *lat
	}
}

// BindStore turns the flattened rows of one stores-catalog record into
// entities. Malformed windows and samples are dropped row by row;
// only a store without an ID fails the whole record.
func BindStore(rows []flatten.Row) (catalog.Store, []catalog.HourWindow, []catalog.OccupancySample, error) {
	var store catalog.Store
	root := ""
	for _, r := range rows {
		if r.Table != TableStores {
			continue
		}
		id := flatten.AsString(r.Values["id"])
		if id == nil || *id == "" {
			return store, nil, nil, errors.New("store record has no id")
		}
		store = catalog.Store{
			ID:        *id,
			Name:      strOr(r.Values["name"]),
			Brand:     strOr(r.Values["brand"]),
			Type:      strOr(r.Values["type"]),
			Street:    strOr(r.Values["address__street"]),
			City:      strOr(r.Values["address__city"]),
			Zip:       strOr(r.Values["address__zip"]),
			Latitude:  flatten.AsFloat(r.Values["latitude"]),
			Longitude: flatten.AsFloat(r.Values["longitude"]),
		}
		root = r.ID
		break
	}
	if root == "" {
		return store, nil, nil, errors.New("no store row in flattened record")
	}

	var windows []catalog.HourWindow
	windowRows := map[string]bool{}
	seenDay := map[string]bool{}
	for _, r := range rows {
		if r.Table != TableHours || r.ParentID != root {
			continue
		}
		date := flatten.AsString(r.Values["date"])
		if date == nil || *date == "" {
			continue
		}
		wtype := strOr(r.Values["type"])
		if wtype == "" {
			wtype = catalog.WindowStore
		}
		day := *date + "|" + wtype
		if seenDay[day] {
			continue
		}
		seenDay[day] = true
		closed := false
		if b := flatten.AsBool(r.Values["closed"]); b != nil {
			closed = *b
		}
		windows = append(windows, catalog.HourWindow{
			ID:        r.ID,
			StoreID:   store.ID,
			Date:      *date,
			Type:      wtype,
			Open:      flatten.AsString(r.Values["open"]),
			Close:     flatten.AsString(r.Values["close"]),
			Closed:    closed,
			ListIndex: r.ListIndex,
		})
		windowRows[r.ID] = true
	}

	var samples []catalog.OccupancySample
	seenHour := map[string]bool{}
	for _, r := range rows {
		if r.Table != TableSamples || !windowRows[r.ParentID] {
			continue
		}
		hour := flatten.AsInt(r.Values["hour"])
		if hour == nil || *hour < 0 || *hour > 23 {
			continue
		}
		slot := r.ParentID + "|" + strconv.Itoa(*hour)
		if seenHour[slot] {
			continue
		}
		seenHour[slot] = true
		value := flatten.CoalesceFloat(
			flatten.AsFloat(r.Values["percentage"]),
			flatten.AsFloat(r.Values["percentage__v_double"]),
			0,
		)
		samples = append(samples, catalog.OccupancySample{
			ID:        r.ID,
			WindowID:  r.ParentID,
			Hour:      *hour,
			Value:     clamp01(value),
			ListIndex: r.ListIndex,
		})
	}
	return store, windows, samples, nil
}

// BindClearance turns the flattened rows of one per-zip food-waste
// record into the participating store and its offer set. Offers
// sharing a natural key keep the first occurrence.
func BindClearance(rows []flatten.Row) (catalog.Store, string, []catalog.ClearanceOffer, error) {
	var store catalog.Store
	zip := ""
	root := ""
	for _, r := range rows {
		if r.Table != TableClearances {
			continue
		}
		id := flatten.AsString(r.Values["store__id"])
		if id == nil || *id == "" {
			return store, "", nil, errors.New("clearance record has no store id")
		}
		store = catalog.Store{
			ID:        *id,
			Name:      strOr(r.Values["store__name"]),
			Brand:     strOr(r.Values["store__brand"]),
			Type:      strOr(r.Values["store__type"]),
			Street:    strOr(r.Values["store__address__street"]),
			City:      strOr(r.Values["store__address__city"]),
			Zip:       strOr(r.Values["store__address__zip"]),
			Latitude:  flatten.AsFloat(r.Values["store__latitude"]),
			Longitude: flatten.AsFloat(r.Values["store__longitude"]),
		}
		zip = strOr(r.Values["queried_zip_code"])
		root = r.ID
		break
	}
	if root == "" {
		return store, "", nil, errors.New("no store row in flattened clearance record")
	}

	var offers []catalog.ClearanceOffer
	seen := map[string]bool{}
	for _, r := range rows {
		if r.Table != TableOffers || r.ParentID != root {
			continue
		}
		o := catalog.ClearanceOffer{
			StoreID:        store.ID,
			ListIndex:      r.ListIndex,
			EAN:            nonEmpty(flatten.AsString(r.Values["product__ean"])),
			Description:    flatten.AsString(r.Values["product__description"]),
			CategoryPath:   flatten.AsString(r.Values["product__categories__en"]),
			Image:          flatten.AsString(r.Values["product__image"]),
			Currency:       flatten.AsString(r.Values["offer__currency"]),
			OriginalPrice:  asDecimal(r.Values["offer__originalPrice"]),
			NewPrice:       asDecimal(r.Values["offer__newPrice"]),
			DiscountAmount: asDecimal(r.Values["offer__discount"]),
			StockUnit:      flatten.AsString(r.Values["offer__stockUnit"]),
			StartTime:      asTime(r.Values["offer__startTime"]),
			EndTime:        asTime(r.Values["offer__endTime"]),
			LastUpdated:    asTime(r.Values["offer__lastUpdate"]),
		}
		if s := flatten.AsFloat(r.Values["offer__stock"]); s != nil {
			o.Stock = *s
		}
		first := flatten.AsFloat(r.Values["offer__percentDiscount"])
		second := flatten.AsFloat(r.Values["offer__percentDiscount__v_double"])
		if first != nil || second != nil {
			pct := flatten.CoalesceFloat(first, second, 0)
			o.DiscountPercent = &pct
		}
		// A new price above the original is inconsistent. Keep the price
		// actually charged and drop the reduction fields, which describe
		// a difference that no longer holds.
		if o.OriginalPrice != nil && o.NewPrice != nil && o.NewPrice.GreaterThan(*o.OriginalPrice) {
			o.OriginalPrice = nil
			o.DiscountAmount = nil
			o.DiscountPercent = nil
		}
		o.ID = catalog.OfferKey(store.ID, o.EAN, o.Description, o.StartTime)
		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		offers = append(offers, o)
	}
	return store, zip, offers, nil
}

func strOr(v any) string {
	if s := flatten.AsString(v); s != nil {
		return *s
	}
	return ""
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// asDecimal parses a price value the source may deliver as a JSON
// number or a numeric string.
func asDecimal(v any) *decimal.Decimal {
	switch n := v.(type) {
	case float64:
		d := decimal.NewFromFloat(n)
		return &d
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return nil
		}
		return &d
	default:
		return nil
	}
}

func asTime(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
