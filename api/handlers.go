/*
handlers.go - HTTP API handlers for the clearance engine

PURPOSE:
  Exposes the query façade and the refresh trigger via REST. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

ENDPOINTS:
  GET  /api/health                      Liveness probe
  GET  /api/brands                      Brands with current clearances
  GET  /api/cities                      Cities with current clearances
  GET  /api/stores?brand=&city=         Store list, optionally filtered
  GET  /api/stores/{id}                 Store detail with derived facts
  GET  /api/stores/{id}/clearances      Current offers, facts attached
  POST /api/shopping-list/reconcile     Match a list against a store
  POST /api/refresh                     Trigger one ingestion cycle

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input
  - 404: Store not found
  - 409: Refresh already in flight
  - 500: Internal errors

REFERENCE TIME:
  Every read derives its facts from a single reference timestamp
  taken once per request, so all facts in one response are mutually
  consistent.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spildspotter/clearance-engine/catalog"
	"github.com/spildspotter/clearance-engine/ingest"
)

// RefreshRunner triggers one ingestion cycle. *ingest.Refresher
// implements it.
type RefreshRunner interface {
	Run(ctx context.Context) (*ingest.Summary, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *catalog.Service
	Refresher RefreshRunner
	Log       *slog.Logger

	// Now supplies the reference time; tests pin it.
	Now func() time.Time
}

// NewHandler creates a new handler around the query façade.
func NewHandler(service *catalog.Service, refresher RefreshRunner, log *slog.Logger) *Handler {
	return &Handler{
		Service:   service,
		Refresher: refresher,
		Log:       log,
		Now:       time.Now,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListBrands returns the brands that currently have clearances.
func (h *Handler) ListBrands(w http.ResponseWriter, r *http.Request) {
	slugs, err := h.Service.ListBrands(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list brands", err)
		return
	}

	dtos := make([]BrandDTO, len(slugs))
	for i, slug := range slugs {
		dtos[i] = BrandDTO{
			Slug: slug,
			Name: catalog.Store{Brand: slug}.DisplayBrand(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCities returns the cities that currently have clearances.
func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.Service.ListCities(r.Context())
	if err != nil {
		h.internalError(w, "Failed to list cities", err)
		return
	}
	if cities == nil {
		cities = []string{}
	}
	writeJSON(w, http.StatusOK, cities)
}

// ListStores returns clearance-participating stores, optionally
// filtered by brand and/or city.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	brand := r.URL.Query().Get("brand")
	city := r.URL.Query().Get("city")

	stores, err := h.Service.ListStores(r.Context(), brand, city)
	if err != nil {
		h.internalError(w, "Failed to list stores", err)
		return
	}

	dtos := make([]StoreDTO, len(stores))
	for i, s := range stores {
		dtos[i] = toStoreDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStore returns one store with its derived facts.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := h.Service.GetStore(r.Context(), id, h.Now())
	if errors.Is(err, catalog.ErrStoreNotFound) {
		writeError(w, http.StatusNotFound, "Store not found", nil)
		return
	}
	if err != nil {
		h.internalError(w, "Failed to get store", err)
		return
	}

	writeJSON(w, http.StatusOK, StoreDetailDTO{
		StoreDTO:      toStoreDTO(detail.Store),
		HoursToday:    detail.HoursToday,
		HoursTomorrow: detail.HoursTomorrow,
		OpenStatus:    detail.OpenStatus,
		Busyness:      detail.Busyness,
	})
}

// ListClearances returns a store's current offers, sorted and with
// derived facts attached.
func (h *Handler) ListClearances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.ListCurrentClearances(r.Context(), id, h.Now())
	if errors.Is(err, catalog.ErrStoreNotFound) {
		writeError(w, http.StatusNotFound, "Store not found", nil)
		return
	}
	if err != nil {
		h.internalError(w, "Failed to list clearances", err)
		return
	}

	dtos := make([]ClearanceDTO, len(details))
	for i, d := range details {
		dtos[i] = toClearanceDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ReconcileShoppingList classifies shopping-list lines against one
// store's current clearances.
func (h *Handler) ReconcileShoppingList(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.StoreID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required", nil)
		return
	}

	items := make([]catalog.ShoppingItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = catalog.ShoppingItem{Name: item.Name, PantryStaple: item.PantryStaple}
	}

	ref := h.Now()
	reconciled, err := h.Service.ReconcileShoppingList(r.Context(), req.StoreID, items, ref)
	if errors.Is(err, catalog.ErrStoreNotFound) {
		writeError(w, http.StatusNotFound, "Store not found", nil)
		return
	}
	if err != nil {
		h.internalError(w, "Failed to reconcile shopping list", err)
		return
	}

	dtos := make([]ReconciledItemDTO, len(reconciled))
	for i, item := range reconciled {
		dto := ReconciledItemDTO{Name: item.Name, Classification: item.Classification}
		if item.Offer != nil {
			detail := catalog.OfferDetail{
				ClearanceOffer: *item.Offer,
				Category:       catalog.SplitCategoryPath(item.Offer.CategoryPath),
				ImageURL:       catalog.ImageRef(item.Offer.Image),
			}
			if item.Offer.EndTime != nil {
				hours := catalog.HoursToExpiry(*item.Offer.EndTime, ref)
				detail.HoursToExpiry = &hours
			}
			offer := toClearanceDTO(detail)
			dto.Offer = &offer
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerRefresh runs one ingestion cycle. A cycle already in flight
// yields 409.
func (h *Handler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Refresher.Run(r.Context())
	if errors.Is(err, ingest.ErrRefreshRunning) {
		writeError(w, http.StatusConflict, "A refresh is already running", nil)
		return
	}
	if err != nil {
		h.internalError(w, "Refresh failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RefreshSummaryDTO{
		Stores:          summary.Stores,
		SkippedStores:   summary.SkippedStores,
		Zips:            summary.Zips,
		SkippedZips:     summary.SkippedZips,
		ClearanceStores: summary.ClearanceStores,
		Offers:          summary.Offers,
		DurationSeconds: summary.Duration.Seconds(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	h.Log.Error(message, "error", err)
	writeError(w, http.StatusInternalServerError, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
