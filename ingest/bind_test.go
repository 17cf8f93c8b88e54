package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spildspotter/clearance-engine/catalog"
	"github.com/spildspotter/clearance-engine/flatten"
)

func storeRecord() map[string]any {
	return map[string]any{
		"id":    "store-1",
		"name":  "Netto Trøjborg",
		"brand": "netto",
		"type":  "store",
		"address": map[string]any{
			"street": "Tordenskjoldsgade 23",
			"city":   "Aarhus",
			"zip":    "8200",
		},
		"coordinates": []any{10.21, 56.17},
		"hours": []any{
			map[string]any{
				"date":   "2026-08-31",
				"type":   "store",
				"open":   "08:00:00",
				"close":  "22:00:00",
				"closed": false,
				"customers_by_hour": []any{
					map[string]any{"hour": float64(8), "percentage": 0.12},
					map[string]any{"hour": float64(9), "percentage__v_double": 0.55},
					map[string]any{"hour": float64(10), "percentage": 1.4},
					map[string]any{"hour": float64(25), "percentage": 0.3},
					map[string]any{"hour": float64(8), "percentage": 0.99},
				},
			},
			map[string]any{
				"date":   "2026-09-01",
				"type":   "delivery",
				"closed": true,
			},
		},
	}
}

func clearanceRecord() map[string]any {
	return map[string]any{
		"store": map[string]any{
			"id":    "store-1",
			"name":  "Netto Trøjborg",
			"brand": "netto",
			"address": map[string]any{
				"street": "Tordenskjoldsgade 23",
				"city":   "Aarhus",
				"zip":    "8200",
			},
			"coordinates": []any{10.21, 56.17},
		},
		"queried_zip_code": "8200",
		"clearances": []any{
			map[string]any{
				"offer": map[string]any{
					"currency":        "DKK",
					"discount":        25.0,
					"ean":             "5701234567890",
					"endTime":         "2026-09-01T22:00:00Z",
					"lastUpdate":      "2026-08-31T06:30:00Z",
					"newPrice":        25.0,
					"originalPrice":   50.0,
					"percentDiscount": 50.0,
					"startTime":       "2026-08-30T06:00:00Z",
					"stock":           3.0,
					"stockUnit":       "each",
				},
				"product": map[string]any{
					"description": "Hakket Oksekød 500g",
					"ean":         "5701234567890",
					"image":       "https://images.example.com/5701234567890.jpg",
					"categories": map[string]any{
						"da": "Mad>Kød>Oksekød",
						"en": "Food>Meat>Beef",
					},
				},
			},
		},
	}
}

func TestSplitCoordinates(t *testing.T) {
	rec := map[string]any{"coordinates": []any{10.2, 56.15}}
	splitCoordinates(rec)
	assert.Equal(t, 10.2, rec["longitude"])
	assert.Equal(t, 56.15, rec["latitude"])
	assert.NotContains(t, rec, "coordinates")

	short := map[string]any{"coordinates": []any{10.2}}
	splitCoordinates(short)
	assert.NotContains(t, short, "longitude")
	assert.NotContains(t, short, "latitude")

	absent := map[string]any{}
	splitCoordinates(absent)
	assert.Empty(t, absent)
}

func TestBindStore(t *testing.T) {
	rec := storeRecord()
	splitCoordinates(rec)
	rows, err := flatten.Flatten(StoreSchema(), rec)
	require.NoError(t, err)

	store, windows, _, err := BindStore(rows)
	require.NoError(t, err)

	assert.Equal(t, "store-1", store.ID)
	assert.Equal(t, "netto", store.Brand)
	assert.Equal(t, "8200", store.Zip)
	require.NotNil(t, store.Longitude)
	assert.Equal(t, 10.21, *store.Longitude)
	require.NotNil(t, store.Latitude)
	assert.Equal(t, 56.17, *store.Latitude)

	require.Len(t, windows, 2)
	assert.Equal(t, catalog.WindowStore, windows[0].Type)
	assert.Equal(t, "2026-08-31", windows[0].Date)
	assert.Equal(t, "08:00:00", *windows[0].Open)
	assert.False(t, windows[0].Closed)
	assert.Equal(t, "delivery", windows[1].Type)
	assert.True(t, windows[1].Closed)
	assert.Nil(t, windows[1].Open)
}

func TestBindStore_SampleRules(t *testing.T) {
	rec := storeRecord()
	splitCoordinates(rec)
	rows, err := flatten.Flatten(StoreSchema(), rec)
	require.NoError(t, err)

	_, windows, samples, err := BindStore(rows)
	require.NoError(t, err)

	// 5 raw samples: hour 25 dropped, duplicate hour 8 keeps first.
	require.Len(t, samples, 3)
	byHour := map[int]catalog.OccupancySample{}
	for _, s := range samples {
		byHour[s.Hour] = s
		assert.Equal(t, windows[0].ID, s.WindowID)
	}
	assert.Equal(t, 0.12, byHour[8].Value)
	// Variant field wins when the primary is absent.
	assert.Equal(t, 0.55, byHour[9].Value)
	// Out-of-range values clamp into [0,1].
	assert.Equal(t, 1.0, byHour[10].Value)
}

func TestBindStore_MissingID(t *testing.T) {
	rows, err := flatten.Flatten(StoreSchema(), map[string]any{"name": "Anonymous"})
	require.NoError(t, err)
	_, _, _, err = BindStore(rows)
	assert.Error(t, err)
}

func TestBindStore_DuplicateWindowDayKeepsFirst(t *testing.T) {
	rec := map[string]any{
		"id": "store-1",
		"hours": []any{
			map[string]any{"date": "2026-08-31", "type": "store", "open": "08:00"},
			map[string]any{"date": "2026-08-31", "type": "store", "open": "09:00"},
		},
	}
	rows, err := flatten.Flatten(StoreSchema(), rec)
	require.NoError(t, err)
	_, windows, _, err := BindStore(rows)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "08:00", *windows[0].Open)
}

func TestBindClearance(t *testing.T) {
	rec := clearanceRecord()
	if nested, ok := rec["store"].(map[string]any); ok {
		splitCoordinates(nested)
	}
	rows, err := flatten.Flatten(ClearanceSchema(), rec)
	require.NoError(t, err)

	store, zip, offers, err := BindClearance(rows)
	require.NoError(t, err)

	assert.Equal(t, "store-1", store.ID)
	assert.Equal(t, "8200", zip)
	require.Len(t, offers, 1)

	o := offers[0]
	assert.Equal(t, "5701234567890", *o.EAN)
	assert.Equal(t, "Hakket Oksekød 500g", *o.Description)
	assert.Equal(t, "Food>Meat>Beef", *o.CategoryPath)
	assert.True(t, o.NewPrice.Equal(decimal.NewFromFloat(25.0)))
	assert.True(t, o.OriginalPrice.Equal(decimal.NewFromFloat(50.0)))
	assert.True(t, o.DiscountAmount.Equal(decimal.NewFromFloat(25.0)))
	assert.Equal(t, 50.0, *o.DiscountPercent)
	assert.Equal(t, 3.0, o.Stock)
	assert.Equal(t, "each", *o.StockUnit)
	assert.Equal(t, "2026-09-01T22:00:00Z", o.EndTime.Format("2006-01-02T15:04:05Z"))
	assert.Equal(t, catalog.OfferKey("store-1", o.EAN, o.Description, o.StartTime), o.ID)
}

func TestBindClearance_MissingOfferFieldsDegrade(t *testing.T) {
	rec := map[string]any{
		"store":            map[string]any{"id": "store-2"},
		"queried_zip_code": "8000",
		"clearances": []any{
			map[string]any{
				"offer":   map[string]any{"stock": "not a number"},
				"product": map[string]any{"description": "Gnocchi"},
			},
		},
	}
	rows, err := flatten.Flatten(ClearanceSchema(), rec)
	require.NoError(t, err)

	_, _, offers, err := BindClearance(rows)
	require.NoError(t, err)
	require.Len(t, offers, 1)

	o := offers[0]
	assert.Nil(t, o.NewPrice)
	assert.Nil(t, o.OriginalPrice)
	assert.Nil(t, o.DiscountPercent)
	assert.Nil(t, o.EAN)
	assert.Equal(t, 0.0, o.Stock)
	assert.Equal(t, "Gnocchi", *o.Description)
}

func TestBindClearance_NewPriceAboveOriginalDropsReduction(t *testing.T) {
	rec := map[string]any{
		"store":            map[string]any{"id": "store-2"},
		"queried_zip_code": "8000",
		"clearances": []any{
			map[string]any{
				"offer": map[string]any{
					"newPrice":        60.0,
					"originalPrice":   50.0,
					"discount":        -10.0,
					"percentDiscount": -20.0,
				},
				"product": map[string]any{"description": "Gnocchi"},
			},
		},
	}
	rows, err := flatten.Flatten(ClearanceSchema(), rec)
	require.NoError(t, err)

	_, _, offers, err := BindClearance(rows)
	require.NoError(t, err)
	require.Len(t, offers, 1)

	o := offers[0]
	require.NotNil(t, o.NewPrice)
	assert.True(t, o.NewPrice.Equal(decimal.NewFromFloat(60.0)))
	assert.Nil(t, o.OriginalPrice)
	assert.Nil(t, o.DiscountAmount)
	assert.Nil(t, o.DiscountPercent)
}

func TestBindClearance_DuplicateOffersKeepFirst(t *testing.T) {
	dup := map[string]any{
		"offer":   map[string]any{"newPrice": 10.0, "startTime": "2026-08-30T06:00:00Z"},
		"product": map[string]any{"description": "Gnocchi"},
	}
	rec := map[string]any{
		"store":      map[string]any{"id": "store-2"},
		"clearances": []any{dup, dup},
	}
	rows, err := flatten.Flatten(ClearanceSchema(), rec)
	require.NoError(t, err)

	_, _, offers, err := BindClearance(rows)
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}
