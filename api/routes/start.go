package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// StartRequest will start the campaign runner.  If its already running then the request does nothing.
func StartRequest(cfg *config.Config, campaignRunner *runner.CampaignRunner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignRunner.Start()
		w.WriteHeader(http.StatusNoContent)
	}
}
