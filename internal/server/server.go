package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/packwise/internal/auth"
	"github.com/dukerupert/packwise/internal/database"
	"github.com/dukerupert/packwise/internal/handler"
	"github.com/dukerupert/packwise/internal/middleware"
	"github.com/dukerupert/packwise/internal/packing"
	ws "github.com/dukerupert/packwise/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	tokens      *auth.Tokens
	wsOrigins   []string
	authH       *handler.AuthHandler
	memberH     *handler.FamilyMemberHandler
	catalogH    *handler.CatalogHandler
	templateH   *handler.TemplateHandler
	listH       *handler.PackingListHandler
	jobH        *handler.JobHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, svc *packing.Service, tokens *auth.Tokens, hub *ws.Hub, wsOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		db:          db,
		hub:         hub,
		tokens:      tokens,
		wsOrigins:   wsOrigins,
		authH:       handler.NewAuthHandler(svc, tokens, logger.With("component", "auth")),
		memberH:     handler.NewFamilyMemberHandler(svc, logger.With("component", "family_member")),
		catalogH:    handler.NewCatalogHandler(svc, logger.With("component", "catalog")),
		templateH:   handler.NewTemplateHandler(svc, logger.With("component", "template")),
		listH:       handler.NewPackingListHandler(svc, logger.With("component", "packing_list")),
		jobH:        handler.NewJobHandler(svc, logger.With("component", "reconcile_job")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens)
	outerMux.Handle("/", authMiddleware(protectedMux))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	version, err := database.Version(s.db)
	if err != nil {
		s.logger.Error("health check", "error", err)
		writeHealth(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeHealth(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"schema_version": version,
		"ws_clients":     s.hub.ClientCount(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.ByIP, authRateLimit, authRateWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.RequireAdmin(h)
	}

	// Family
	mux.HandleFunc("GET /api/family/members", s.memberH.List)
	mux.Handle("POST /api/family/members", admin(s.memberH.Create))

	// Catalog
	mux.HandleFunc("GET /api/categories", s.catalogH.ListCategories)
	mux.Handle("POST /api/categories", admin(s.catalogH.CreateCategory))
	mux.Handle("PUT /api/categories/{id}", admin(s.catalogH.UpdateCategory))
	mux.Handle("DELETE /api/categories/{id}", admin(s.catalogH.DeleteCategory))

	mux.HandleFunc("GET /api/items", s.catalogH.ListItems)
	mux.Handle("POST /api/items", admin(s.catalogH.CreateItem))
	mux.HandleFunc("GET /api/items/{id}", s.catalogH.GetItem)
	mux.Handle("PUT /api/items/{id}", admin(s.catalogH.UpdateItem))
	mux.Handle("DELETE /api/items/{id}", admin(s.catalogH.DeleteItem))

	// Templates
	mux.HandleFunc("GET /api/templates", s.templateH.List)
	mux.Handle("POST /api/templates", admin(s.templateH.Create))
	mux.HandleFunc("GET /api/templates/{id}", s.templateH.Get)
	mux.Handle("PUT /api/templates/{id}", admin(s.templateH.Update))
	mux.Handle("DELETE /api/templates/{id}", admin(s.templateH.Delete))
	mux.HandleFunc("GET /api/templates/{id}/items", s.templateH.ExpandedItems)
	mux.Handle("PUT /api/templates/{id}/items", admin(s.templateH.SyncItems))
	mux.Handle("POST /api/templates/{id}/items/{item_id}", admin(s.templateH.AddItem))
	mux.Handle("DELETE /api/templates/{id}/items/{item_id}", admin(s.templateH.RemoveItem))
	mux.Handle("POST /api/templates/{id}/categories/{category_id}", admin(s.templateH.AddCategory))
	mux.Handle("DELETE /api/templates/{id}/categories/{category_id}", admin(s.templateH.RemoveCategory))

	// Packing lists
	mux.HandleFunc("GET /api/packing-lists", s.listH.List)
	mux.HandleFunc("POST /api/packing-lists", s.listH.Create)
	mux.HandleFunc("GET /api/packing-lists/{id}", s.listH.Get)
	mux.HandleFunc("PUT /api/packing-lists/{id}", s.listH.Rename)
	mux.HandleFunc("DELETE /api/packing-lists/{id}", s.listH.Delete)
	mux.HandleFunc("POST /api/packing-lists/{id}/templates/{template_id}", s.listH.Subscribe)
	mux.HandleFunc("DELETE /api/packing-lists/{id}/templates/{template_id}", s.listH.Unsubscribe)
	mux.HandleFunc("POST /api/packing-lists/{id}/resync", s.listH.Resync)
	mux.HandleFunc("GET /api/packing-lists/{id}/items", s.listH.Items)
	mux.HandleFunc("POST /api/packing-lists/{id}/items", s.listH.AddItem)
	mux.HandleFunc("POST /api/packing-lists/{id}/one-offs", s.listH.AddOneOff)
	mux.HandleFunc("DELETE /api/packing-lists/{id}/items/{item_id}", s.listH.RemoveItem)
	mux.HandleFunc("POST /api/packing-lists/{id}/items/{item_id}/check", s.listH.Check)
	mux.HandleFunc("POST /api/packing-lists/{id}/items/{item_id}/not-needed", s.listH.NotNeeded)
	mux.HandleFunc("PUT /api/packing-lists/{id}/items/{item_id}/assignee", s.listH.Assign)
	mux.HandleFunc("POST /api/packing-lists/{id}/items/{item_id}/promote", s.listH.Promote)
	mux.HandleFunc("GET /api/packing-lists/{id}/audit", s.listH.Audit)
	mux.HandleFunc("GET /api/packing-lists/{id}/items/{item_id}/audit", s.listH.ItemAudit)

	mux.HandleFunc("GET /api/reconcile-jobs/{id}", s.jobH.Get)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.wsOrigins, s.logger.With("component", "websocket")))
}

func writeHealth(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
