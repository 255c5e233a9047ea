package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-leave-go/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-leave-go/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/httprate"
)

// RouterConfig holds the HTTP edge settings.
type RouterConfig struct {
	AllowedOrigins []string
	// RateLimit is requests per RateWindow per client IP; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

func NewRouter(cfg RouterConfig, logger *slog.Logger, leaveHandler LeaveHandler, eventsHandler EventsHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.HeaderActorID, middleware.HeaderActorRole},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	if cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.Limit(cfg.RateLimit, window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				response.TooManyRequests(w, "Rate limit exceeded")
			}),
		))
	}

	r.Route("/api/v1/leave", func(r chi.Router) {
		r.Use(middleware.ActorRequired)

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", leaveHandler.CreateRequest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", leaveHandler.GetRequest)
				r.Put("/", leaveHandler.EditRequest)
				r.Delete("/", leaveHandler.DeleteRequest)

				// Admin only
				r.Group(func(r chi.Router) {
					r.Use(middleware.AdminOnly)
					r.Post("/approve", leaveHandler.ApproveRequest)
					r.Post("/reject", leaveHandler.RejectRequest)
				})
			})
		})

		r.Route("/ledger", func(r chi.Router) {
			r.With(middleware.AdminOnly).Post("/reconcile", leaveHandler.Reconcile)
			r.Get("/{employeeID}", leaveHandler.ListLedger)
			r.Get("/{employeeID}/{leaveTypeID}", leaveHandler.GetLedgerEntry)
			r.Get("/{employeeID}/{leaveTypeID}/remaining", leaveHandler.GetRemainingQuota)
		})

		r.Get("/events/{employeeID}", eventsHandler.Stream)
	})
	return r
}
