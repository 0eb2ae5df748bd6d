/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the routes. This is
  the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in logs
  2. RealIP:     Client address behind proxies
  3. Logger:     zap access log
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend
  6. RateLimit:  Token bucket per employee (or per IP)

SECURITY NOTE:
  Authentication happens in front of this service; X-Employee-ID is
  trusted as given.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/leave-engine/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

type RouterOptions struct {
	AllowedOrigins     []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewRouter creates a router with all routes configured. A zero rate
// limit disables limiting.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", EmployeeHeader},
		AllowCredentials: true,
	}))
	if opts.RateLimitPerSecond > 0 && opts.RateLimitBurst > 0 {
		r.Use(RateLimit(NewClientRateLimiter(rate.Limit(opts.RateLimitPerSecond), opts.RateLimitBurst)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/leave-types", h.ListLeaveTypes)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Post("/", h.SubmitRequest)
			r.Post("/validate", h.ValidateRequest)
			r.Post("/bulk", h.BulkSubmit)
			r.Post("/bulk/approve", h.BulkApprove)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		r.Route("/employees/{id}", func(r chi.Router) {
			r.Get("/balances", h.GetBalances)
			r.Put("/balances/{leaveTypeId}", h.UpsertBalance)
			r.Get("/balances/{leaveTypeId}/transactions", h.ListTransactions)
			r.Get("/dashboard", h.GetDashboard)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reminders", h.RunReminders)
		})
	})

	return r
}
