package ingest

import "github.com/spildspotter/clearance-engine/flatten"

// Table names emitted by the upstream schemas.
const (
	TableStores     = "all_stores"
	TableHours      = "all_stores__hours"
	TableSamples    = "all_stores__hours__customers_by_hour"
	TableClearances = "food_waste_stores"
	TableOffers     = "food_waste_stores__clearances"
)

// StoreSchema describes one element of the stores catalog payload:
// a store with its address, coordinates, and a list of daily hour
// windows, each carrying per-hour customer-flow samples. Coordinates
// arrive as a [lon, lat] array and are split into longitude/latitude
// scalars by splitCoordinates before flattening.
func StoreSchema() *flatten.Table {
	return &flatten.Table{
		Name: TableStores,
		Fields: []flatten.Field{
			{Name: "id", Kind: flatten.Scalar},
			{Name: "name", Kind: flatten.Scalar},
			{Name: "brand", Kind: flatten.Scalar},
			{Name: "type", Kind: flatten.Scalar},
			{Name: "address", Kind: flatten.Record, Fields: []flatten.Field{
				{Name: "street", Kind: flatten.Scalar},
				{Name: "city", Kind: flatten.Scalar},
				{Name: "zip", Kind: flatten.Scalar},
			}},
			{Name: "longitude", Kind: flatten.Scalar},
			{Name: "latitude", Kind: flatten.Scalar},
			{Name: "hours", Kind: flatten.RecordList, Child: &flatten.Table{
				Name: TableHours,
				Fields: []flatten.Field{
					{Name: "date", Kind: flatten.Scalar},
					{Name: "type", Kind: flatten.Scalar},
					{Name: "open", Kind: flatten.Scalar},
					{Name: "close", Kind: flatten.Scalar},
					{Name: "closed", Kind: flatten.Scalar},
					{Name: "customers_by_hour", Kind: flatten.RecordList, Child: &flatten.Table{
						Name: TableSamples,
						Fields: []flatten.Field{
							{Name: "hour", Kind: flatten.Scalar},
							// The source types the fraction under one of
							// two fields depending on the record; the
							// binder coalesces them, first non-null wins.
							{Name: "percentage", Kind: flatten.Scalar},
							{Name: "percentage__v_double", Kind: flatten.Scalar},
						},
					}},
				},
			}},
		},
	}
}

// ClearanceSchema describes one element of the per-zip food-waste
// payload: the participating store plus its list of clearance offers,
// each an offer/product pair.
func ClearanceSchema() *flatten.Table {
	return &flatten.Table{
		Name: TableClearances,
		Fields: []flatten.Field{
			{Name: "store", Kind: flatten.Record, Fields: []flatten.Field{
				{Name: "id", Kind: flatten.Scalar},
				{Name: "name", Kind: flatten.Scalar},
				{Name: "brand", Kind: flatten.Scalar},
				{Name: "type", Kind: flatten.Scalar},
				{Name: "address", Kind: flatten.Record, Fields: []flatten.Field{
					{Name: "street", Kind: flatten.Scalar},
					{Name: "city", Kind: flatten.Scalar},
					{Name: "zip", Kind: flatten.Scalar},
				}},
				{Name: "longitude", Kind: flatten.Scalar},
				{Name: "latitude", Kind: flatten.Scalar},
			}},
			{Name: "queried_zip_code", Kind: flatten.Scalar},
			{Name: "clearances", Kind: flatten.RecordList, Child: &flatten.Table{
				Name: TableOffers,
				Fields: []flatten.Field{
					{Name: "offer", Kind: flatten.Record, Fields: []flatten.Field{
						{Name: "currency", Kind: flatten.Scalar},
						{Name: "discount", Kind: flatten.Scalar},
						{Name: "ean", Kind: flatten.Scalar},
						{Name: "endTime", Kind: flatten.Scalar},
						{Name: "lastUpdate", Kind: flatten.Scalar},
						{Name: "newPrice", Kind: flatten.Scalar},
						{Name: "originalPrice", Kind: flatten.Scalar},
						{Name: "percentDiscount", Kind: flatten.Scalar},
						{Name: "percentDiscount__v_double", Kind: flatten.Scalar},
						{Name: "startTime", Kind: flatten.Scalar},
						{Name: "stock", Kind: flatten.Scalar},
						{Name: "stockUnit", Kind: flatten.Scalar},
					}},
					{Name: "product", Kind: flatten.Record, Fields: []flatten.Field{
						{Name: "description", Kind: flatten.Scalar},
						{Name: "ean", Kind: flatten.Scalar},
						{Name: "image", Kind: flatten.Scalar},
						{Name: "categories", Kind: flatten.Record, Fields: []flatten.Field{
							{Name: "da", Kind: flatten.Scalar},
							{Name: "en", Kind: flatten.Scalar},
						}},
					}},
				},
			}},
		},
	}
}
