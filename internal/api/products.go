package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-scraper/internal/catalog"
	"github.com/JakeFAU/catalog-scraper/internal/notify"
)

type productRequest struct {
	Code     *int64  `json:"code"`
	Name     *string `json:"name"`
	Price    *int64  `json:"price"`
	Currency *string `json:"currency"`
}

func (p productRequest) toRecord() (catalog.ProductRecord, error) {
	if p.Code == nil || p.Name == nil || p.Price == nil || p.Currency == nil {
		return catalog.ProductRecord{}, errors.New("code, name, price and currency are required")
	}
	rec := catalog.ProductRecord{
		Code:     *p.Code,
		Name:     strings.TrimSpace(*p.Name),
		Price:    *p.Price,
		Currency: strings.TrimSpace(*p.Currency),
	}
	if err := rec.Validate(); err != nil {
		return catalog.ProductRecord{}, err
	}
	return rec, nil
}

type productResponse struct {
	ID       int64  `json:"id"`
	Code     int64  `json:"code"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

func toResponse(p catalog.Product) productResponse {
	return productResponse{
		ID:       p.ID,
		Code:     p.Code,
		Name:     p.Name,
		Price:    p.Price,
		Currency: p.Currency,
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.List(r.Context())
	if err != nil {
		s.storeFailure(w, "list products", err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(products, func(p catalog.Product, _ int) productResponse {
		return toResponse(p)
	}))
	s.broadcast(r.Context(), notify.CountEvent(notify.KindProductsListed, len(products)))
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	s.respondProduct(w, r, func(ctx context.Context) (catalog.Product, error) {
		return s.store.Get(ctx, id)
	})
}

func (s *Server) getProductByCode(w http.ResponseWriter, r *http.Request) {
	code, ok := pathInt(w, r, "code")
	if !ok {
		return
	}
	s.respondProduct(w, r, func(ctx context.Context) (catalog.Product, error) {
		return s.store.GetByCode(ctx, code)
	})
}

func (s *Server) respondProduct(w http.ResponseWriter, r *http.Request, load func(context.Context) (catalog.Product, error)) {
	p, err := load(r.Context())
	if errors.Is(err, catalog.ErrNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		s.storeFailure(w, "get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
	s.broadcast(r.Context(), notify.ProductEvent(notify.KindProductFetched, p))
}

func (s *Server) addProduct(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	p, created, err := s.store.UpsertByCode(r.Context(), rec)
	if err != nil {
		s.storeFailure(w, "add product", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
	kind := notify.KindProductUpdated
	if created {
		kind = notify.KindProductCreated
	}
	s.broadcast(r.Context(), notify.ProductEvent(kind, p))
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	p, err := s.store.Update(r.Context(), id, rec)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeNotFound(w)
		return
	case errors.Is(err, catalog.ErrConflict):
		writeError(w, http.StatusConflict, fmt.Sprintf("product code %d is already in use", rec.Code))
		return
	case err != nil:
		s.storeFailure(w, "update product", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
	s.broadcast(r.Context(), notify.ProductEvent(notify.KindProductUpdated, p))
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	err := s.store.Delete(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeNotFound(w)
		return
	}
	if err != nil {
		s.storeFailure(w, "delete product", err)
		return
	}
	writeMessage(w, fmt.Sprintf("Product with Id '%d' has been deleted.", id))
	s.broadcast(r.Context(), notify.Event{Kind: notify.KindProductDeleted, ID: id})
}

// runParserOnce runs a full scrape on the request goroutine. The run keeps
// going if the client disconnects.
func (s *Server) runParserOnce(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper is not configured")
		return
	}
	n, err := s.runner.RunOnce(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, catalog.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Warn("on-demand scrape failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeMessage(w, fmt.Sprintf("%d products have been added.", n))
}

func (s *Server) storeFailure(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, catalog.ErrInvalidRecord) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (catalog.ProductRecord, bool) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return catalog.ProductRecord{}, false
	}
	rec, err := req.toRecord()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return catalog.ProductRecord{}, false
	}
	return rec, true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return v, true
}
