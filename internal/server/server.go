// Package server exposes the comparison engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/store"
)

// Comparer is the aggregation surface the handlers need.
type Comparer interface {
	Compare(ctx context.Context, query string, limit int) []model.ProductRecord
	CompareExact(ctx context.Context, identifier string, limit int) []model.ProductRecord
	CompareMulti(ctx context.Context, queries []string, limit int) []model.ProductRecord
	DetailedProducts(ctx context.Context, query string, limit int) []model.ProductRecord
}

// JANResolver resolves marketplace identifiers to JAN codes.
type JANResolver interface {
	ResolveJAN(ctx context.Context, marketplaceID, title string) (string, bool)
}

// Deps carries everything the router serves from.
type Deps struct {
	Engine   Comparer
	Resolver JANResolver
	Store    store.Store
}

// Handler builds the HTTP API.
func Handler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/compare", handleCompare(deps, false))
		r.Get("/compare/exact", handleCompare(deps, true))
		r.Get("/products", handleProducts(deps))
		r.Get("/resolve", handleResolve(deps))

		r.Post("/watches", handleAddWatch(deps))
		r.Get("/watches", handleListWatches(deps))
		r.Delete("/watches/{id}", handleRemoveWatch(deps))
	})

	return r
}

func handleCompare(deps Deps, exact bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		limit := intParam(r, "limit")

		var records []model.ProductRecord
		if exact {
			records = deps.Engine.CompareExact(r.Context(), query, limit)
		} else {
			records = deps.Engine.Compare(r.Context(), query, limit)
		}
		recordHistory(r.Context(), deps, query, records)
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   query,
			"results": records,
		})
	}
}

func handleProducts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		records := deps.Engine.DetailedProducts(r.Context(), query, intParam(r, "limit"))
		writeJSON(w, http.StatusOK, map[string]any{
			"query":   query,
			"results": records,
		})
	}
}

func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}
		if deps.Resolver == nil {
			writeError(w, http.StatusServiceUnavailable, "identifier resolution is not configured")
			return
		}
		jan, ok := deps.Resolver.ResolveJAN(r.Context(), id, r.URL.Query().Get("title"))
		if !ok {
			writeError(w, http.StatusNotFound, "identifier could not be resolved")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "jan": jan})
	}
}

func handleAddWatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Source        string `json:"source"`
			MarketplaceID string `json:"marketplace_id"`
			Title         string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Source == "" || req.MarketplaceID == "" {
			writeError(w, http.StatusBadRequest, "source and marketplace_id are required")
			return
		}
		item, err := deps.Store.AddWatch(r.Context(), model.WatchItem{
			Source:        model.Source(req.Source),
			MarketplaceID: req.MarketplaceID,
			Title:         req.Title,
		})
		if err != nil {
			zap.L().Warn("add watch failed", zap.Error(err))
			writeError(w, http.StatusConflict, "watch could not be created")
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func handleListWatches(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Store.ListWatches(r.Context(), store.WatchFilter{
			Source: model.Source(r.URL.Query().Get("source")),
			Limit:  intParam(r, "limit"),
		})
		if err != nil {
			zap.L().Warn("list watches failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "listing failed")
			return
		}
		if items == nil {
			items = []model.WatchItem{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"watches": items})
	}
}

func handleRemoveWatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Store.RemoveWatch(r.Context(), id); err != nil {
			writeError(w, http.StatusNotFound, "watch not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func recordHistory(ctx context.Context, deps Deps, query string, records []model.ProductRecord) {
	if deps.Store == nil {
		return
	}
	cheapest := 0
	for _, rec := range records {
		if rec.Price > 0 && (cheapest == 0 || rec.Price < cheapest) {
			cheapest = rec.Price
		}
	}
	if err := deps.Store.RecordSearch(ctx, query, len(records), cheapest); err != nil {
		zap.L().Debug("record search failed", zap.Error(err))
	}
}

func intParam(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
