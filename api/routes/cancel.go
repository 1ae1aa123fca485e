package routes

import (
	"net/http"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// CancelRequest interrupts the running campaign between items.  The runner moves on to the
// next queued campaign.
func CancelRequest(cfg *config.Config, campaignRunner *runner.CampaignRunner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if !campaignRunner.Cancel() {
			handleErrorType(w, r, errors.New("no campaign is running"), http.StatusConflict, cfg.Logger)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
