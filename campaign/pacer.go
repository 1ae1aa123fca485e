package campaign

import (
	"context"
	"time"

	"gitlab.uncharted.software/WM/lora-campaign/comfy"
	"go.uber.org/zap"
)

// Pacer holds the campaign back until the render server is ready for the next job.
type Pacer interface {
	Pace(ctx context.Context, sub *Submission) comfy.Outcome
}

// Waiter is the status side of the render queue.
type Waiter interface {
	Wait(ctx context.Context, jobID string, interval, timeout time.Duration, onError func(error)) (comfy.Outcome, *comfy.Status)
}

// PollingPacer waits for each job to finish by polling the render server's history, so
// the next job is only submitted once the previous one has succeeded or failed.
type PollingPacer struct {
	Waiter   Waiter
	Interval time.Duration
	Timeout  time.Duration
	// Settle is slept after each job before the next submission.
	Settle time.Duration
	Logger *zap.SugaredLogger
}

// Pace implements Pacer.
func (p *PollingPacer) Pace(ctx context.Context, sub *Submission) comfy.Outcome {
	// nothing was queued, there is nothing to wait on
	if sub.JobID == "" {
		return comfy.OutcomeFailed
	}

	outcome, status := p.Waiter.Wait(ctx, sub.JobID, p.Interval, p.Timeout, func(err error) {
		if p.Logger != nil {
			p.Logger.Debugf("status poll for %s failed: %v", sub.JobID, err)
		}
	})
	if outcome == comfy.OutcomeFailed {
		sub.Detail = status.Describe()
	}
	if outcome != comfy.OutcomeCanceled {
		if !sleep(ctx, p.Settle) {
			return comfy.OutcomeCanceled
		}
	}
	return outcome
}

// SleepPacer waits a fixed delay after every submission, successful or not.  It cannot
// tell whether a job succeeded.
type SleepPacer struct {
	Delay time.Duration
}

// Pace implements Pacer.
func (p *SleepPacer) Pace(ctx context.Context, sub *Submission) comfy.Outcome {
	if !sleep(ctx, p.Delay) {
		return comfy.OutcomeCanceled
	}
	if sub.JobID == "" {
		return comfy.OutcomeFailed
	}
	return comfy.OutcomeUnknown
}

// sleep waits for d, returning false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
