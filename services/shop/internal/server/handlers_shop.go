package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pearl/pkg/domain"
	"pearl/services/shop/internal/app"
)

// catalog

func productQuery(r *http.Request) (app.ProductQuery, error) {
	page, err := paging(r)
	if err != nil {
		return app.ProductQuery{}, err
	}
	available, err := queryBool(r, "available")
	if err != nil {
		return app.ProductQuery{}, err
	}
	q := r.URL.Query()
	return app.ProductQuery{Paging: page, Category: q.Get("category"), Available: available, Query: q.Get("q")}, nil
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := productQuery(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	products, err := s.app.ListProducts(r.Context(), q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": products, "count": len(products)})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req app.ProductInput
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.app.CreateProduct(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req app.ProductPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.app.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProductReviews(w http.ResponseWriter, r *http.Request) {
	page, err := paging(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	reviews, err := s.app.ListProductReviews(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reviews, "count": len(reviews)})
}

// orders

func orderQuery(r *http.Request) (app.OrderQuery, error) {
	page, err := paging(r)
	if err != nil {
		return app.OrderQuery{}, err
	}
	q := r.URL.Query()
	return app.OrderQuery{Paging: page, AccountID: q.Get("accountId"), Status: q.Get("status")}, nil
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q, err := orderQuery(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	// the customer listing never widens to other accounts
	q.AccountID = ""
	acc := mustAccount(r)
	acc.Role = domain.RoleUser
	orders, err := s.app.ListOrders(r.Context(), acc, q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orders, "count": len(orders)})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req app.OrderInput
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := s.app.CreateOrder(r.Context(), mustAccount(r), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.app.GetOrder(r.Context(), mustAccount(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteOrder(r.Context(), mustAccount(r), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req app.OrderStatusPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := s.app.UpdateOrderStatus(r.Context(), mustAccount(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleAddOrderItem(w http.ResponseWriter, r *http.Request) {
	var req app.OrderItemInput
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := s.app.AddOrderItem(r.Context(), mustAccount(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleUpdateOrderItem(w http.ResponseWriter, r *http.Request) {
	var req app.OrderItemPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := s.app.UpdateOrderItem(r.Context(), mustAccount(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleRemoveOrderItem(w http.ResponseWriter, r *http.Request) {
	o, err := s.app.RemoveOrderItem(r.Context(), mustAccount(r), chi.URLParam(r, "id"), chi.URLParam(r, "itemId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleFinalizeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.app.FinalizeOrder(r.Context(), mustAccount(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// reviews

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req app.ReviewInput
	if !decodeJSON(w, r, &req) {
		return
	}
	rev, err := s.app.CreateReview(r.Context(), mustAccount(r), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	var reader *domain.Account
	if acc, ok := accountFrom(r); ok {
		reader = &acc
	}
	rev, err := s.app.GetReview(r.Context(), reader, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	var req app.ReviewPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	rev, err := s.app.UpdateReview(r.Context(), mustAccount(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteReview(r.Context(), mustAccount(r), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReviewHelpful(w http.ResponseWriter, r *http.Request) {
	rev, err := s.app.MarkReviewHelpful(r.Context(), mustAccount(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}
