/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for frontend
  5. requireOwner: X-Owner-ID header on every /api route

IDENTITY:
  The X-Owner-ID header is the caller's identity. There is no session or
  token layer here; the header is trusted as-is and a gateway in front of
  this service is expected to authenticate it. A missing header is a 401
  with a generic denial.

ROUTE GROUPS:
  /api/cycles/*    Cycle lifecycle, summary, coach, shields
  /api/goals/*     Tactics under a goal
  /api/tactics/*   Version chain operations
  /api/actions/*   Daily completion toggles
  /api/admin/*     Elevated operations (credit revocation)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aeterna/momentum-engine/momentum"
)

type contextKey string

const ownerKey contextKey = "owner"

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Owner-ID", "X-Admin-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Demo scenarios carry their own fixed owner and reset the
		// database, so they sit outside the identity requirement.
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireOwner)
			registerOwnerRoutes(r, h)
		})
	})

	// Health check (outside the identity requirement)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

// registerOwnerRoutes mounts every route that acts on behalf of the
// identity established by requireOwner.
func registerOwnerRoutes(r chi.Router, h *Handler) {
	// Cycle routes
	r.Route("/cycles", func(r chi.Router) {
		r.Post("/", h.InitializeCycle)
		r.Get("/active", h.GetActiveCycle)
		r.Post("/{id}/close", h.CloseCycle)
		r.Get("/{id}/summary", h.GetSummary)
		r.Get("/{id}/coach", h.GetCoach)
		r.Get("/{id}/shields", h.ListShields)
		r.Get("/{id}/shields/validate", h.ValidateShield)
		r.Post("/{id}/shields", h.ActivateShield)
	})

	// Tactic routes
	r.Route("/goals/{id}/tactics", func(r chi.Router) {
		r.Post("/", h.CreateTactic)
		r.Get("/", h.ListTactics)
	})
	r.Route("/tactics", func(r chi.Router) {
		r.Patch("/{id}", h.UpdateTactic)
		r.Get("/{id}/history", h.TacticHistory)
		r.Post("/{id}/retire", h.RetireTactic)
	})

	// Action routes
	r.Route("/actions", func(r chi.Router) {
		r.Post("/{id}/checkoff", h.CheckOffAction)
		r.Post("/{id}/uncheck", h.UncheckAction)
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Post("/credits/{id}/revoke", h.RevokeCredit)
	})
}

// requireOwner rejects requests without an X-Owner-ID header and stores
// the identity in the request context for handlers.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-Owner-ID")
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey, momentum.OwnerID(owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFrom returns the identity established by requireOwner.
func ownerFrom(r *http.Request) momentum.OwnerID {
	owner, _ := r.Context().Value(ownerKey).(momentum.OwnerID)
	return owner
}
