package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// ClearRequest drops every waiting campaign.  The running campaign is not affected.
func ClearRequest(cfg *config.Config, requestQueue *queue.ListFIFOQueue[runner.Request]) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestQueue.Clear(); err != nil {
			handleErrorType(w, r, err, http.StatusInternalServerError, cfg.Logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
