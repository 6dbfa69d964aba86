package server

import (
	"net/http"

	"pearl/pkg/domain"
	"pearl/services/shop/internal/app"
)

type registerResponse struct {
	Account domain.Account `json:"account"`
	Message string         `json:"message"`
}

type verifyRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type codeRequest struct {
	Phone string `json:"phone"`
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req app.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	acc, err := s.app.Register(r.Context(), req)
	if err != nil {
		s.audit(r, "shop.register", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.register", "success", "account_id", acc.ID)
	writeJSON(w, http.StatusCreated, registerResponse{Account: acc, Message: "verification code sent"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	acc, err := s.app.VerifyCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		s.audit(r, "shop.verify", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.verify", "success", "account_id", acc.ID)
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleRequestCode(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.codeLimiter) {
		s.audit(r, "shop.code", "rate_limited")
		return
	}
	var req codeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.RequestCode(r.Context(), req.Phone); err != nil {
		s.audit(r, "shop.code", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.code", "success")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.app.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		s.audit(r, "shop.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.login", "success", "account_id", sess.Account.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.audit(r, "shop.refresh", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.refresh", "success", "account_id", sess.Account.ID)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	token, _ := bearerToken(r)
	acc := mustAccount(r)
	if err := s.app.Logout(r.Context(), token, req.RefreshToken); err != nil {
		s.audit(r, "shop.logout", "fail", "account_id", acc.ID, "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.logout", "success", "account_id", acc.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mustAccount(r))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req app.AccountPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	acc := mustAccount(r)
	updated, err := s.app.UpdateAccount(r.Context(), acc.ID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.NewPassword != nil {
		s.audit(r, "shop.password.change", "success", "account_id", acc.ID)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	acc := mustAccount(r)
	if err := s.app.DeleteAccount(r.Context(), acc.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "shop.account.delete", "success", "account_id", acc.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.GetProfile(r.Context(), mustAccount(r).ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req app.ProfilePatch
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.app.UpdateProfile(r.Context(), mustAccount(r).ID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
