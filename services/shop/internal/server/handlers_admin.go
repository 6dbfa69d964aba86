package server

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pearl/services/shop/internal/app"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleAdminAccounts(w http.ResponseWriter, r *http.Request) {
	page, err := paging(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	verified, err := queryBool(r, "verified")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	q := r.URL.Query()
	accounts, err := s.app.ListAccounts(r.Context(), app.AccountQuery{
		Paging:   page,
		Query:    q.Get("q"),
		Verified: verified,
		Role:     q.Get("role"),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": accounts, "count": len(accounts)})
}

func (s *Server) handleAdminUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req app.AdminAccountPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := mustAccount(r)
	id := chi.URLParam(r, "id")
	acc, err := s.app.AdminUpdateAccount(r.Context(), actor, id, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.admin.account.update", "success", "account_id", actor.ID, "target_id", id)
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleAdminDeleteAccount(w http.ResponseWriter, r *http.Request) {
	actor := mustAccount(r)
	id := chi.URLParam(r, "id")
	if id == actor.ID {
		writeError(w, r, http.StatusConflict, "conflict", "use /auth/me to delete your own account")
		return
	}
	if err := s.app.DeleteAccount(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.admin.account.delete", "success", "account_id", actor.ID, "target_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminProfiles(w http.ResponseWriter, r *http.Request) {
	page, err := paging(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	q := r.URL.Query()
	profiles, err := s.app.ListProfiles(r.Context(), app.ProfileQuery{Paging: page, City: q.Get("city"), Country: q.Get("country")})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": profiles, "count": len(profiles)})
}

func (s *Server) handleAdminCodes(w http.ResponseWriter, r *http.Request) {
	page, err := paging(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	used, err := queryBool(r, "used")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	since, err := queryTime(r, "since")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	codes, err := s.app.ListVerificationCodes(r.Context(), app.CodeQuery{
		Paging:    page,
		AccountID: r.URL.Query().Get("accountId"),
		Used:      used,
		Since:     since,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": codes, "count": len(codes)})
}

func (s *Server) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	q, err := orderQuery(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	orders, err := s.app.ListOrders(r.Context(), mustAccount(r), q)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orders, "count": len(orders)})
}

func (s *Server) handleAdminReviews(w http.ResponseWriter, r *http.Request) {
	page, err := paging(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	approved, err := queryBool(r, "approved")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	q := r.URL.Query()
	reviews, err := s.app.ListReviews(r.Context(), app.ReviewQuery{
		Paging:    page,
		ProductID: q.Get("productId"),
		AccountID: q.Get("accountId"),
		Approved:  approved,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reviews, "count": len(reviews)})
}

type approveRequest struct {
	Approved *bool `json:"approved"`
}

func (s *Server) handleAdminApproveReview(w http.ResponseWriter, r *http.Request) {
	approved := true
	if r.ContentLength != 0 {
		var req approveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Approved != nil {
			approved = *req.Approved
		}
	}
	rev, err := s.app.ApproveReview(r.Context(), chi.URLParam(r, "id"), approved)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

func (s *Server) handleAdminExportProducts(w http.ResponseWriter, r *http.Request) {
	q, err := productQuery(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.app.ExportProducts(r.Context(), &buf, q); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=products.xlsx")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
