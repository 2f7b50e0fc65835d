package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"progresspal-web/internal/handlers"
	"progresspal-web/internal/middleware"
)

func New(
	auth middleware.Authenticator,
	liveHandler *handlers.LiveSessionHandler,
	mutationLimit int,
	frontendURL string,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// Mutation rate limiter (per user per minute)
	mutationLimiter := middleware.NewRateLimiter(mutationLimit, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware)

		// ──── Live Session Routes ────
		r.Route("/live", func(r chi.Router) {
			r.Get("/", liveHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(mutationLimiter.Middleware)
				r.Post("/", liveHandler.Start)
				r.Post("/pause", liveHandler.Pause)
				r.Post("/resume", liveHandler.Resume)
				r.Post("/stop", liveHandler.Stop)
				r.Put("/goal", liveHandler.UpdateGoal)
				r.Put("/progress", liveHandler.UpdateProgress)
				r.Post("/progress/undo", liveHandler.UndoProgress)
				r.Delete("/progress/draft", liveHandler.DiscardDraft)
			})
		})

		// ──── Goal Routes ────
		r.Post("/goals/preview", liveHandler.GoalPreview)

		// ──── Activity Type Routes ────
		r.Get("/activity-types", liveHandler.ActivityTypes)
	})

	return r
}
