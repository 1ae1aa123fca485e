package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// StopRequest stops the campaign runner, interrupting the running campaign between items.
// Campaigns can still be enqueued, but the queue will not be serviced.
func StopRequest(cfg *config.Config, campaignRunner *runner.CampaignRunner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignRunner.Stop()
		w.WriteHeader(http.StatusNoContent)
	}
}
