package routes

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
	"gitlab.uncharted.software/WM/lora-campaign/config"
	"gopkg.in/yaml.v3"
)

// errQueueFull is reported when the queue has no room left.
var errQueueFull = errors.New("request queue full")

// EnqueueResponse acknowledges a queued campaign.
type EnqueueResponse struct {
	ID        string `json:"id,omitempty"`
	Key       string `json:"key"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Duplicate bool   `json:"duplicate"`
}

// EnqueueRequest adds a campaign definition (JSON or YAML) to the queue if there is space, or
// returns an error if the queue is currently at maximum capacity.  A definition identical to
// one already waiting is acknowledged without being queued twice.
func EnqueueRequest(cfg *config.Config, requestQueue *queue.ListFIFOQueue[runner.Request]) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		defer r.Body.Close()
		if err != nil {
			handleErrorType(w, r, errors.Wrap(err, "failed to read enqueue request body"), http.StatusBadRequest, cfg.Logger)
			return
		}

		req, err := newRequest(cfg, body)
		if err != nil {
			handleErrorType(w, r, err, http.StatusBadRequest, cfg.Logger)
			return
		}

		resp, err := addToQueue(cfg, requestQueue, req)
		if err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, errQueueFull) {
				code = http.StatusServiceUnavailable
			}
			handleErrorType(w, r, err, code, cfg.Logger)
			return
		}
		handleJSON(w, r, resp)
	}
}

// newRequest validates a campaign definition and wraps it for the queue.
func newRequest(cfg *config.Config, body []byte) (runner.Request, error) {
	var def campaign.Definition
	unmarshal := yaml.Unmarshal
	if json.Valid(body) {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(body, &def); err != nil {
		return runner.Request{}, errors.Wrap(err, "failed to unmarshal campaign definition")
	}
	plan, err := def.Plan(cfg.Environment.LoraBaseName)
	if err != nil {
		return runner.Request{}, err
	}
	return runner.Request{
		ID:         uuid.NewString(),
		Key:        queue.Key(body),
		Definition: def,
		Total:      plan.Total(),
		EnqueuedAt: time.Now(),
	}, nil
}

func addToQueue(cfg *config.Config, requestQueue *queue.ListFIFOQueue[runner.Request], req runner.Request) (EnqueueResponse, error) {
	resp := EnqueueResponse{
		Key:   fmt.Sprintf("%08x", req.Key),
		Name:  req.Definition.Name,
		Total: req.Total,
	}
	if requestQueue.Contains(req.Key) {
		resp.Duplicate = true
		return resp, nil
	}

	added, err := requestQueue.EnqueueHashed(req.Key, req)
	if err != nil {
		return resp, errors.Wrap(err, "failed to enqueue campaign")
	}
	if !added {
		return resp, errQueueFull
	}
	resp.ID = req.ID
	cfg.Logger.Infow("Campaign queued", "id", req.ID, "name", req.Definition.Name, "total", req.Total, "key", resp.Key)
	return resp, nil
}
