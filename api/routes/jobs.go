package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// JobsRequest returns the campaigns waiting in the queue, next first.
func JobsRequest(cfg *config.Config, requestQueue *queue.ListFIFOQueue[runner.Request]) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		requests, err := requestQueue.GetAll()
		if err != nil {
			handleErrorType(w, r, err, http.StatusInternalServerError, cfg.Logger)
			return
		}
		handleJSON(w, r, requests)
	}
}
