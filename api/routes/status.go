package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// StatusResponse provides the number of campaigns currently queued, whether the runner is
// servicing the queue, and the running and last finished campaigns.
type StatusResponse struct {
	Count     int             `json:"count"`
	IsRunning bool            `json:"is_running"`
	Current   *runner.Current `json:"current"`
	Last      *runner.Result  `json:"last"`
}

// StatusRequest creates a get request handler that will return status info for the queue and runner.
func StatusRequest(cfg *config.Config, requestQueue *queue.ListFIFOQueue[runner.Request], campaignRunner *runner.CampaignRunner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		handleJSON(w, r, StatusResponse{
			Count:     requestQueue.Size(),
			IsRunning: campaignRunner.Running(),
			Current:   campaignRunner.Current(),
			Last:      campaignRunner.Last(),
		})
	}
}
