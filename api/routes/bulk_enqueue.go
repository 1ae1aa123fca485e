package routes

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// BulkEnqueueRequest adds a JSON array of campaign definitions to the queue.  Every
// definition is validated before any is queued; definitions are then added until the queue
// reaches capacity.
func BulkEnqueueRequest(cfg *config.Config, requestQueue *queue.ListFIFOQueue[runner.Request]) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		defer r.Body.Close()
		if err != nil {
			handleErrorType(w, r, errors.Wrap(err, "failed to read bulk enqueue request body"), http.StatusBadRequest, cfg.Logger)
			return
		}

		var definitions []json.RawMessage
		if err := json.Unmarshal(body, &definitions); err != nil {
			handleErrorType(w, r, errors.Wrap(err, "failed to unmarshal bulk enqueue request body"), http.StatusBadRequest, cfg.Logger)
			return
		}

		requests := make([]runner.Request, 0, len(definitions))
		for i, raw := range definitions {
			req, err := newRequest(cfg, raw)
			if err != nil {
				handleErrorType(w, r, errors.Wrapf(err, "definition %d", i), http.StatusBadRequest, cfg.Logger)
				return
			}
			requests = append(requests, req)
		}

		responses := make([]EnqueueResponse, 0, len(requests))
		for _, req := range requests {
			resp, err := addToQueue(cfg, requestQueue, req)
			if err != nil {
				code := http.StatusInternalServerError
				if errors.Is(err, errQueueFull) {
					code = http.StatusServiceUnavailable
				}
				handleErrorType(w, r, errors.Wrapf(err, "%d of %d definitions queued", len(responses), len(requests)), code, cfg.Logger)
				return
			}
			responses = append(responses, resp)
		}
		handleJSON(w, r, responses)
	}
}
