package runner

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
	"gitlab.uncharted.software/WM/lora-campaign/config"
)

// ExecuteFunc runs one campaign to completion, reporting progress to obs.
type ExecuteFunc func(ctx context.Context, req Request, obs campaign.Observer) (campaign.Summary, error)

// CampaignRunner services the campaign queue.  Campaigns run one at a time since the
// render server only ever works on one job.
type CampaignRunner struct {
	config.Config
	queue   *queue.ListFIFOQueue[Request]
	execute ExecuteFunc

	mutex   *sync.RWMutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
	current *Current
	cancel  context.CancelFunc
	last    *Result
}

// NewCampaignRunner creates a runner for the queue.  It is idle until started.
func NewCampaignRunner(cfg *config.Config, requestQueue *queue.ListFIFOQueue[Request], execute ExecuteFunc) *CampaignRunner {
	return &CampaignRunner{
		Config: config.Config{
			Logger:      cfg.Logger,
			Environment: cfg.Environment,
		},
		queue:   requestQueue,
		execute: execute,
		mutex:   &sync.RWMutex{},
	}
}

// Start initiates queue servicing.  Starting a running runner does nothing.
func (r *CampaignRunner) Start() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.running {
		return
	}

	ctx, stop := context.WithCancel(context.Background())
	r.running = true
	r.stop = stop
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.Logger.Info("Campaign runner started")
}

func (r *CampaignRunner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		req, err := r.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.Logger.Errorf("Campaign runner stopped: %v", err)
			}
			return
		}
		r.run(ctx, req)
	}
}

func (r *CampaignRunner) run(parent context.Context, req Request) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	r.mutex.Lock()
	r.current = &Current{ID: req.ID, Name: req.Definition.Name, Total: req.Total, StartedAt: time.Now()}
	r.cancel = cancel
	r.mutex.Unlock()

	r.Logger.Infof("Running campaign %s (%s)", req.Definition.Name, req.ID)
	summary, err := r.execute(ctx, req, &progress{runner: r})

	result := &Result{ID: req.ID, Name: req.Definition.Name, Summary: summary, FinishedAt: time.Now()}
	if err != nil {
		result.Error = err.Error()
		r.Logger.Warnf("Campaign %s ended early: %v", req.Definition.Name, err)
	} else {
		r.Logger.Infof("Campaign %s finished: %d submitted, %d succeeded, %d failed, %d skipped",
			req.Definition.Name, summary.Submitted, summary.Succeeded, summary.Failed, summary.Skipped)
	}

	r.mutex.Lock()
	r.current = nil
	r.cancel = nil
	r.last = result
	r.mutex.Unlock()
}

// Stop ends queue servicing and interrupts the running campaign between items.  Requests
// can still be enqueued, but the queue is not serviced until the next Start.
func (r *CampaignRunner) Stop() {
	r.mutex.Lock()
	if !r.running {
		r.mutex.Unlock()
		return
	}
	r.running = false
	stop, done := r.stop, r.done
	r.mutex.Unlock()

	stop()
	<-done
	r.Logger.Info("Campaign runner stopped")
}

// Running indicates whether the runner is servicing the queue.
func (r *CampaignRunner) Running() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.running
}

// Cancel interrupts the running campaign and moves on to the next one.  It returns false if
// no campaign is running.
func (r *CampaignRunner) Cancel() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Current returns a snapshot of the running campaign, or nil.
func (r *CampaignRunner) Current() *Current {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.current == nil {
		return nil
	}
	c := *r.current
	return &c
}

// Last returns the result of the most recently finished campaign, or nil.
func (r *CampaignRunner) Last() *Result {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if r.last == nil {
		return nil
	}
	l := *r.last
	return &l
}

// progress keeps the current campaign's counters up to date.
type progress struct {
	runner *CampaignRunner
}

func (p *progress) Started(name string, total int) {
	p.update(func(c *Current) { c.Total = total })
}

func (p *progress) Item(sub campaign.Submission) {}

func (p *progress) Progress(count, total int) {
	p.update(func(c *Current) {
		c.Count = count
		c.Total = total
		c.Percent = campaign.Percent(count, total)
	})
}

func (p *progress) Finished(summary campaign.Summary) {}

func (p *progress) update(fn func(c *Current)) {
	p.runner.mutex.Lock()
	defer p.runner.mutex.Unlock()
	if p.runner.current != nil {
		fn(p.runner.current)
	}
}
