package campaign

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/comfy"
	"go.uber.org/zap"
)

// Submitter is the submit side of the render queue.
type Submitter interface {
	Submit(ctx context.Context, job interface{}) (string, error)
}

// SeedFunc returns the base seed for a combination; variation i uses base+i.
type SeedFunc func() int64

// UnixSeeds bases seeds on the current unix time.
func UnixSeeds() int64 {
	return time.Now().Unix()
}

// Submission is the record of one submitted job.
type Submission struct {
	Campaign    string
	Index       int
	Total       int
	JobID       string
	Description string
	Prefix      string
	Seed        int64
	Labels      map[string]string
	Settings    map[Slot]interface{}
	Outcome     comfy.Outcome
	Detail      string
	Err         error
	SubmittedAt time.Time
}

// Summary tallies a campaign run.  It is informational only; individual failures never
// fail the campaign.
type Summary struct {
	Campaign  string `json:"campaign"`
	Total     int    `json:"total"`
	Attempted int    `json:"attempted"`
	Submitted int    `json:"submitted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Canceled  bool   `json:"canceled"`
}

// Driver runs a plan against the render queue, one job at a time.
type Driver struct {
	Submitter  Submitter
	Pacer      Pacer
	Observer   Observer
	Provenance ProvenanceSink
	Nodes      NodeMap
	Seeds      SeedFunc
	Logger     *zap.SugaredLogger
	Now        func() time.Time
}

// Run submits every combination of the plan in nesting order.  Submission and render
// failures are logged and skipped.  An error is only returned when the template cannot
// take the plan's settings, before anything is submitted, or when ctx is canceled.
func (d *Driver) Run(ctx context.Context, tmpl *Template, plan *Plan) (Summary, error) {
	d.defaults()

	summary := Summary{Campaign: plan.Name, Total: plan.Total()}
	if err := plan.Compile(); err != nil {
		return summary, err
	}
	if err := d.Nodes.Check(tmpl, plan.Slots()); err != nil {
		return summary, errors.Wrapf(err, "campaign %s does not fit the template", plan.Name)
	}

	d.Observer.Started(plan.Name, summary.Total)

	var base int64
	err := plan.Each(func(c Combination) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Variation == 0 {
			base = d.Seeds()
		}

		sub := d.submit(ctx, tmpl, plan, c, base+int64(c.Variation))
		summary.Attempted++
		if sub.Err != nil {
			summary.Skipped++
			d.Logger.Warnf("Failed: %s: %v", sub.Description, sub.Err)
		} else {
			summary.Submitted++
		}

		sub.Outcome = d.Pacer.Pace(ctx, &sub)
		switch sub.Outcome {
		case comfy.OutcomeSucceeded:
			summary.Succeeded++
		case comfy.OutcomeFailed, comfy.OutcomeTimedOut:
			if sub.Err == nil {
				summary.Failed++
			}
		}

		if d.Provenance != nil {
			if err := d.Provenance.Record(recordFor(sub)); err != nil {
				d.Logger.Errorf("failed to record provenance for %s: %v", sub.Prefix, err)
			}
		}
		d.Observer.Item(sub)
		d.Observer.Progress(summary.Attempted, summary.Total)
		return nil
	})

	if err != nil {
		summary.Canceled = ctx.Err() != nil
		d.Observer.Finished(summary)
		return summary, errors.Wrapf(err, "campaign %s stopped after %d of %d", plan.Name, summary.Attempted, summary.Total)
	}
	d.Observer.Finished(summary)
	return summary, nil
}

func (d *Driver) submit(ctx context.Context, tmpl *Template, plan *Plan, c Combination, seed int64) Submission {
	settings := map[Slot]interface{}{}
	for k, v := range plan.Fixed {
		settings[k] = v
	}
	for k, v := range c.Settings() {
		settings[k] = v
	}

	sub := Submission{
		Campaign:    plan.Name,
		Index:       c.Index + 1,
		Total:       plan.Total(),
		Description: plan.Describe(c),
		Seed:        seed,
		Labels:      c.Labels(),
		Settings:    settings,
		SubmittedAt: d.Now(),
	}

	prefix, err := plan.Prefix(c)
	if err != nil {
		sub.Err = err
		return sub
	}
	sub.Prefix = prefix

	slots := make(map[Slot]interface{}, len(settings)+2)
	for k, v := range settings {
		slots[k] = v
	}
	slots[SlotSeed] = seed
	slots[SlotPrefix] = prefix

	overrides, err := d.Nodes.Overrides(slots)
	if err != nil {
		sub.Err = err
		return sub
	}
	job, err := tmpl.Apply(overrides)
	if err != nil {
		sub.Err = err
		return sub
	}

	sub.JobID, sub.Err = d.Submitter.Submit(ctx, job)
	return sub
}

func (d *Driver) defaults() {
	if d.Nodes == nil {
		d.Nodes = DefaultNodeMap()
	}
	if d.Seeds == nil {
		d.Seeds = UnixSeeds
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Observer == nil {
		d.Observer = MultiObserver{}
	}
	if d.Pacer == nil {
		d.Pacer = &SleepPacer{}
	}
}
