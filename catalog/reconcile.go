/*
reconcile.go - shopping-list to clearance matching

Matches free-text ingredient names produced by the recipe generator
against known clearance product descriptions so the shopping list can
carry live price/discount/image metadata.

MATCHING RULE (load-bearing, not incidental):
  The ingredient name must contain the FULL product description, never
  the other way around. A generic ingredient like "Peber" must not
  match the specific product "Peberbøf"; the specific ingredient
  "Hakket Oksekød 500g" should match the product "Hakket Oksekød".
  At most one match is returned - the first found.
*/
package catalog

import "strings"

// Shopping-list line classifications.
const (
	LineClearance = "clearance"
	LineStaple    = "staple"
	LineOther     = "other"
)

// ShoppingItem is one externally produced shopping-list line.
// PantryStaple is set by the generator for items like salt or oil.
type ShoppingItem struct {
	Name         string
	PantryStaple bool
}

// ReconciledItem is a shopping-list line with any matched clearance
// offer attached. Offer is nil for staples and unmatched lines.
type ReconciledItem struct {
	Name           string
	Classification string
	Offer          *ClearanceOffer
}

// ReconcileShoppingList classifies each line against the given
// clearance offers. A staple flag forces nil offer metadata even when
// an accidental substring match exists.
func ReconcileShoppingList(items []ShoppingItem, offers []ClearanceOffer) []ReconciledItem {
	out := make([]ReconciledItem, 0, len(items))
	for _, item := range items {
		if item.PantryStaple {
			out = append(out, ReconciledItem{Name: item.Name, Classification: LineStaple})
			continue
		}
		if offer := matchOffer(item.Name, offers); offer != nil {
			out = append(out, ReconciledItem{Name: item.Name, Classification: LineClearance, Offer: offer})
			continue
		}
		out = append(out, ReconciledItem{Name: item.Name, Classification: LineOther})
	}
	return out
}

// matchOffer finds the first offer whose full product description is
// contained in the ingredient name. Case-insensitive; whitespace
// trimmed on both sides.
func matchOffer(ingredient string, offers []ClearanceOffer) *ClearanceOffer {
	needle := normalize(ingredient)
	if needle == "" {
		return nil
	}
	for i := range offers {
		if offers[i].Description == nil {
			continue
		}
		product := normalize(*offers[i].Description)
		if product == "" {
			continue
		}
		if strings.Contains(needle, product) {
			return &offers[i]
		}
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
