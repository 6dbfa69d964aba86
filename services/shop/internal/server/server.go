package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"pearl/internal/ratelimit"
	"pearl/internal/util"
	"pearl/pkg/domain"
	"pearl/services/shop/internal/app"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// CodeLimiter throttles verification code issuance per client IP.
	CodeLimiter        ratelimit.Limiter
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
}

// Server exposes the shop REST API.
type Server struct {
	app            *app.App
	codeLimiter    ratelimit.Limiter
	trustedProxies *util.TrustedProxies
	router         chi.Router
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	s := &Server{
		app:            cfg.App,
		codeLimiter:    cfg.CodeLimiter,
		trustedProxies: cfg.TrustedProxies,
		router:         chi.NewRouter(),
	}
	s.routes(cfg.CORSAllowedOrigins)
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Route is one registered method and path pattern.
type Route struct {
	Method  string
	Pattern string
}

// Routes lists every route the server registers, sorted by pattern then
// method. It needs no dependencies.
func Routes() ([]Route, error) {
	s := &Server{router: chi.NewRouter()}
	s.routes(nil)
	var out []Route
	err := chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if len(route) > 1 {
			route = strings.TrimSuffix(route, "/")
		}
		out = append(out, Route{Method: method, Pattern: route})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out, nil
}

func (s *Server) routes(origins []string) {
	r := s.router
	r.Use(util.WithRequestID)
	r.Use(util.WithRequestLog)
	r.Use(util.WithSecurityHeaders)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/verify", s.handleVerify)
		r.Post("/code", s.handleRequestCode)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/jwks", s.handleJWKS)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticated)
			r.Post("/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Patch("/me", s.handleUpdateMe)
			r.Delete("/me", s.handleDeleteMe)
			r.Get("/me/profile", s.handleProfile)
			r.Patch("/me/profile", s.handleUpdateProfile)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", s.handleListProducts)
		r.Get("/{id}", s.handleGetProduct)
		r.Get("/{id}/reviews", s.handleProductReviews)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticated, s.adminOnly)
			r.Post("/", s.handleCreateProduct)
			r.Patch("/{id}", s.handleUpdateProduct)
			r.Delete("/{id}", s.handleDeleteProduct)
		})
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(s.authenticated)
		r.Get("/", s.handleListOrders)
		r.Post("/", s.handleCreateOrder)
		r.Get("/{id}", s.handleGetOrder)
		r.Delete("/{id}", s.handleDeleteOrder)
		r.With(s.adminOnly).Patch("/{id}", s.handleUpdateOrderStatus)
		r.Post("/{id}/items", s.handleAddOrderItem)
		r.Patch("/{id}/items/{itemId}", s.handleUpdateOrderItem)
		r.Delete("/{id}/items/{itemId}", s.handleRemoveOrderItem)
		r.Post("/{id}/finalize", s.handleFinalizeOrder)
	})

	r.Route("/reviews", func(r chi.Router) {
		r.With(s.optionalAuth).Get("/{id}", s.handleGetReview)
		r.Group(func(r chi.Router) {
			r.Use(s.authenticated)
			r.Post("/", s.handleCreateReview)
			r.Patch("/{id}", s.handleUpdateReview)
			r.Delete("/{id}", s.handleDeleteReview)
			r.Post("/{id}/helpful", s.handleReviewHelpful)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authenticated, s.adminOnly)
		r.Get("/accounts", s.handleAdminAccounts)
		r.Patch("/accounts/{id}", s.handleAdminUpdateAccount)
		r.Delete("/accounts/{id}", s.handleAdminDeleteAccount)
		r.Get("/profiles", s.handleAdminProfiles)
		r.Get("/verification-codes", s.handleAdminCodes)
		r.Get("/orders", s.handleAdminOrders)
		r.Get("/reviews", s.handleAdminReviews)
		r.Post("/reviews/{id}/approve", s.handleAdminApproveReview)
		r.Get("/products/export", s.handleAdminExportProducts)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Ping(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type accountContextKey struct{}

func withAccount(ctx context.Context, acc domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, acc)
}

// accountFrom returns the authenticated account placed by authenticated.
func accountFrom(r *http.Request) (domain.Account, bool) {
	acc, ok := r.Context().Value(accountContextKey{}).(domain.Account)
	return acc, ok
}

func mustAccount(r *http.Request) domain.Account {
	acc, _ := accountFrom(r)
	return acc
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "shop.authorize", "fail", "reason", "missing_token")
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		acc, err := s.app.AccountFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, app.ErrUnauthorized) {
				s.audit(r, "shop.authorize", "fail", "reason", "invalid_token")
			}
			writeAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), acc)))
	})
}

// optionalAuth attaches the account when a valid token is sent and
// otherwise lets the request through anonymously.
func (s *Server) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if acc, err := s.app.AccountFromToken(r.Context(), token); err == nil {
				r = r.WithContext(withAccount(r.Context(), acc))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc, ok := accountFrom(r)
		if !ok || acc.Role != domain.RoleAdmin {
			s.audit(r, "shop.admin.authorize", "fail", "account_id", acc.ID, "reason", "forbidden")
			writeError(w, r, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate reports whether the request fits the limiter's quota and writes
// a 429 when it does not. A nil limiter allows everything.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter ratelimit.Limiter) bool {
	if limiter == nil {
		return true
	}
	if limiter.Allow(r.Context(), r.URL.Path+"|"+s.clientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
	return false
}
