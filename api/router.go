package api

import (
	"compress/flate"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	api_middleware "gitlab.uncharted.software/WM/lora-campaign/api/middleware"
	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/routes"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// NewRouter returns a chi router with endpoints registered.
func NewRouter(cfg config.Config, requestQueue *queue.ListFIFOQueue[runner.Request], campaignRunner *runner.CampaignRunner) (chi.Router, error) {

	// Setup the router and configure baseline middleware
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(api_middleware.Logger(cfg.Logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(flate.DefaultCompression))

	// Configure CORS handling
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Route("/campaigns", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Put("/enqueue", routes.EnqueueRequest(&cfg, requestQueue)) // PUT instead of POST due to idempotency
		r.Put("/bulk-enqueue", routes.BulkEnqueueRequest(&cfg, requestQueue))
		r.Get("/status", routes.StatusRequest(&cfg, requestQueue, campaignRunner))
		r.Get("/jobs", routes.JobsRequest(&cfg, requestQueue))
		r.Post("/start", routes.StartRequest(&cfg, campaignRunner))
		r.Post("/stop", routes.StopRequest(&cfg, campaignRunner))
		r.Post("/cancel", routes.CancelRequest(&cfg, campaignRunner))
		r.Delete("/clear", routes.ClearRequest(&cfg, requestQueue))
	})

	return r, nil
}
