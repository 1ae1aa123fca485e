package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
	"gitlab.uncharted.software/WM/lora-campaign/comfy"
	"gitlab.uncharted.software/WM/lora-campaign/config"
	"gitlab.uncharted.software/WM/lora-campaign/dataset"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func newRenderClient(env *config.Environment) (*comfy.Client, error) {
	return comfy.NewClient(comfy.Options{
		Addr:    env.RenderAddr,
		Timeout: seconds(env.RenderTimeoutSec),
	})
}

// statsChecker is the preflight side of the render queue.
type statsChecker interface {
	campaign.Waiter
	SystemStats(ctx context.Context) error
}

// newPacer polls job history unless pacing is configured as a fixed delay.  When the
// render server does not answer a status check the fixed delay is used instead.
func newPacer(ctx context.Context, cfg config.Config, client statsChecker) campaign.Pacer {
	env := cfg.Environment
	delay := &campaign.SleepPacer{Delay: seconds(env.SubmitDelaySec)}
	if env.PacingMode == config.PacingSleep {
		return delay
	}
	if err := client.SystemStats(ctx); err != nil {
		cfg.Logger.Warnf("Render server status check failed, pacing with a fixed %ds delay: %v", env.SubmitDelaySec, err)
		return delay
	}
	return &campaign.PollingPacer{
		Waiter:   client,
		Interval: seconds(env.RenderPollIntervalSec),
		Timeout:  seconds(env.RenderJobTimeoutSec),
		Logger:   cfg.Logger,
	}
}

func newDriver(ctx context.Context, cfg config.Config, obs campaign.Observer, nodes campaign.NodeMap) (*campaign.Driver, error) {
	client, err := newRenderClient(cfg.Environment)
	if err != nil {
		return nil, err
	}
	sink, err := campaign.NewJSONLSink(cfg.Environment.ProvenancePath)
	if err != nil {
		return nil, err
	}
	return &campaign.Driver{
		Submitter:  client,
		Pacer:      newPacer(ctx, cfg, client),
		Observer:   obs,
		Provenance: sink,
		Nodes:      nodes,
		Seeds:      campaign.UnixSeeds,
		Logger:     cfg.Logger,
	}, nil
}

// templatePath prefers the definition's own template over the configured one.
func templatePath(env *config.Environment, def *campaign.Definition) string {
	if def != nil && def.Template != "" {
		return def.Template
	}
	return env.TemplatePath
}

// runCampaign runs a plan from the command line, printing progress to out.
func runCampaign(ctx context.Context, cfg config.Config, out io.Writer, plan *campaign.Plan, tmplPath string, nodes campaign.NodeMap) error {
	tmpl, err := campaign.LoadTemplate(tmplPath)
	if err != nil {
		return err
	}
	obs := &campaign.ConsoleObserver{Out: out, Every: plan.ProgressEvery}
	driver, err := newDriver(ctx, cfg, obs, nodes)
	if err != nil {
		return err
	}

	summary, err := driver.Run(ctx, tmpl, plan)
	cfg.Logger.Debugw("Campaign summary", "summary", summary)
	return err
}

// campaignExecutor runs queued campaigns for the service runner.
func campaignExecutor(cfg config.Config) runner.ExecuteFunc {
	return func(ctx context.Context, req runner.Request, progress campaign.Observer) (campaign.Summary, error) {
		def := req.Definition
		plan, err := def.Plan(cfg.Environment.LoraBaseName)
		if err != nil {
			return campaign.Summary{Campaign: def.Name}, err
		}
		tmpl, err := campaign.LoadTemplate(templatePath(cfg.Environment, &def))
		if err != nil {
			return campaign.Summary{Campaign: def.Name, Total: plan.Total()}, err
		}
		obs := campaign.MultiObserver{&campaign.LogObserver{Logger: cfg.Logger}, progress}
		driver, err := newDriver(ctx, cfg, obs, def.NodeMap())
		if err != nil {
			return campaign.Summary{Campaign: def.Name, Total: plan.Total()}, err
		}
		return driver.Run(ctx, tmpl, plan)
	}
}

// newCaptioner returns the remote captioner for provider, or nil when every image should
// get a rule-based caption.  A missing credential is returned as dataset.ErrNoCredential.
func newCaptioner(ctx context.Context, env *config.Environment, provider, trigger, class string) (dataset.Captioner, error) {
	timeout := seconds(env.CaptionTimeoutSec)
	switch provider {
	case config.CaptionNone:
		return nil, nil
	case config.CaptionAnthropic:
		c, err := dataset.NewAnthropicCaptioner(dataset.AnthropicOptions{
			APIKey:  env.APIKey(provider),
			Model:   env.AnthropicModel,
			BaseURL: env.AnthropicAddr,
			Timeout: timeout,
			Trigger: trigger,
			Class:   class,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CaptionGemini:
		c, err := dataset.NewGeminiCaptioner(ctx, dataset.GeminiOptions{
			APIKey:     env.APIKey(provider),
			Model:      env.GeminiModel,
			HTTPClient: &http.Client{Timeout: timeout},
			Trigger:    trigger,
			Class:      class,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, errors.Errorf("invalid caption provider %q", provider)
}
