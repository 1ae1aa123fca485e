package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gitlab.uncharted.software/WM/lora-campaign/api"
	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
	"gitlab.uncharted.software/WM/lora-campaign/dataset"
	"gitlab.uncharted.software/WM/lora-campaign/gallery"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newCampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Run evaluation campaigns against the render server",
	}
	cmd.AddCommand(
		newCheckpointsCmd(),
		newStrengthsCmd(),
		newPromptsCmd(),
		newMassCmd(),
		newRunCmd(),
	)
	return cmd
}

func newCheckpointsCmd() *cobra.Command {
	var variations int
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Phase 1: compare every saved checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			plan := campaign.CheckpointPhase(campaign.DefaultCheckpoints(env.LoraBaseName), variations)
			return runCampaign(cmd.Context(), cfg, cmd.OutOrStdout(), plan, env.TemplatePath, nil)
		},
	}
	cmd.Flags().IntVar(&variations, "variations", 5, "Variations per checkpoint")
	return cmd
}

func newStrengthsCmd() *cobra.Command {
	var variations int
	var checkpoint string
	cmd := &cobra.Command{
		Use:   "strengths",
		Short: "Phase 2: compare LoRA strengths on one checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			ckpt, err := campaign.ParseCheckpoint(env.LoraBaseName, checkpoint)
			if err != nil {
				return err
			}
			plan := campaign.StrengthPhase(ckpt, campaign.DefaultStrengths, variations)
			return runCampaign(cmd.Context(), cfg, cmd.OutOrStdout(), plan, env.TemplatePath, nil)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "750", "Checkpoint step or file name")
	cmd.Flags().IntVar(&variations, "variations", 5, "Variations per strength")
	return cmd
}

func newPromptsCmd() *cobra.Command {
	var variations int
	var checkpoint, strength string
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Phase 3: compare prompt categories with a fixed checkpoint and strength",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			ckpt, err := campaign.ParseCheckpoint(env.LoraBaseName, checkpoint)
			if err != nil {
				return err
			}
			s, err := campaign.ParseStrength(strength)
			if err != nil {
				return err
			}
			plan := campaign.PromptPhase(ckpt, s, campaign.TestPrompts, variations)
			return runCampaign(cmd.Context(), cfg, cmd.OutOrStdout(), plan, env.TemplatePath, nil)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "750", "Checkpoint step or file name")
	cmd.Flags().StringVar(&strength, "strength", "0.7", "LoRA strength")
	cmd.Flags().IntVar(&variations, "variations", 10, "Variations per prompt")
	return cmd
}

func newMassCmd() *cobra.Command {
	var batchSize int
	var checkpoint, strength string
	cmd := &cobra.Command{
		Use:   "mass",
		Short: "Phase 4: generate a large batch with the chosen checkpoint and strength",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			ckpt, err := campaign.ParseCheckpoint(env.LoraBaseName, checkpoint)
			if err != nil {
				return err
			}
			s, err := campaign.ParseStrength(strength)
			if err != nil {
				return err
			}
			plan := campaign.MassPhase(ckpt, s, campaign.MassPrompts, batchSize)
			return runCampaign(cmd.Context(), cfg, cmd.OutOrStdout(), plan, env.TemplatePath, nil)
		},
	}
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "750", "Checkpoint step or file name")
	cmd.Flags().StringVar(&strength, "strength", "0.7", "LoRA strength")
	cmd.Flags().IntVar(&batchSize, "batch-size", 20, "Variations per prompt")
	return cmd
}

func newRunCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a campaign described in a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			def, err := campaign.LoadDefinition(file)
			if err != nil {
				return err
			}
			plan, err := def.Plan(env.LoraBaseName)
			if err != nil {
				return err
			}
			return runCampaign(cmd.Context(), cfg, cmd.OutOrStdout(), plan, templatePath(env, def), def.NodeMap())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "campaign.yaml", "Campaign definition")
	return cmd
}

func newCaptionCmd() *cobra.Command {
	var imagesDir, trigger, class, provider string
	var limit int
	cmd := &cobra.Command{
		Use:   "caption",
		Short: "Normalize, hash and caption a directory of training images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			if trigger == "" {
				trigger = env.TriggerToken
			}
			if class == "" {
				class = env.ClassToken
			}
			if provider == "" {
				provider = env.CaptionProvider
			}

			ctx := cmd.Context()
			captioner, err := newCaptioner(ctx, env, provider, trigger, class)
			if errors.Is(err, dataset.ErrNoCredential) {
				cfg.Logger.Warnf("No %s API key set, using rule-based captions", provider)
				captioner, err = nil, nil
			}
			if err != nil {
				return err
			}

			p := &dataset.Processor{
				Captioner: captioner,
				Fallback:  &dataset.FallbackCaptioner{Trigger: trigger, Class: class},
				Layout:    dataset.Layout{Root: env.DatasetDir},
				Quality:   env.ImageQuality,
				Note:      env.ProvenanceNote,
				Logger:    cfg.Logger,
			}
			summary, err := p.ProcessDir(ctx, imagesDir, limit)
			cfg.Logger.Infof("Captioned %d of %d images (%d rule-based, %d failed)",
				summary.Processed, summary.Found, summary.Fallbacks, summary.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&imagesDir, "images-dir", "", "Directory of source images")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Trigger token (defaults to LORA_TRIGGER_TOKEN)")
	cmd.Flags().StringVar(&class, "class-token", "", "Class token (defaults to LORA_CLASS_TOKEN)")
	cmd.Flags().StringVar(&provider, "provider", "", "Caption provider: anthropic, gemini or none")
	cmd.Flags().IntVar(&limit, "limit", 0, "Process at most this many images")
	_ = cmd.MarkFlagRequired("images-dir")
	return cmd
}

func newGalleryCmd() *cobra.Command {
	var outputDir, manifest, out string
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Index render outputs for the gallery viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := cfg.Environment
			if outputDir == "" {
				outputDir = env.RenderOutputDir
			}
			if manifest == "" {
				manifest = env.ProvenancePath
			}

			records, bad, err := campaign.ReadProvenance(manifest)
			if err != nil {
				if !os.IsNotExist(errors.Cause(err)) {
					return err
				}
				cfg.Logger.Warnf("No provenance manifest at %s, indexing by filename only", manifest)
			}
			if bad > 0 {
				cfg.Logger.Warnf("Skipped %d malformed provenance lines", bad)
			}

			items, err := gallery.NewBuilder(records).Scan(outputDir, gallery.DefaultPattern)
			if err != nil {
				return err
			}
			if err := gallery.Write(out, items); err != nil {
				return err
			}

			cfg.Logger.Infof("Indexed %d images from %s into %s", len(items), filepath.Clean(outputDir), out)
			for _, c := range gallery.Summarize(items) {
				cfg.Logger.Infof("  %s: %d", c.Category, c.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Render output directory (defaults to LORA_RENDER_OUTPUT_DIR)")
	cmd.Flags().StringVar(&manifest, "manifest", "", "Provenance manifest (defaults to LORA_PROVENANCE_PATH)")
	cmd.Flags().StringVar(&out, "out", "image_data.json", "Gallery data file to write")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept campaigns over HTTP and run them one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	env := cfg.Environment
	requestQueue := queue.NewListFIFOQueue[runner.Request](env.QueueSize)
	// runs after the runner has stopped, refusing anything that slips in during shutdown
	defer func() {
		if err := requestQueue.Close(); err != nil {
			cfg.Logger.Warnf("Failed to close campaign queue: %v", err)
		}
	}()
	campaignRunner := runner.NewCampaignRunner(&cfg, requestQueue, campaignExecutor(cfg))

	r, err := api.NewRouter(cfg, requestQueue, campaignRunner)
	if err != nil {
		return err
	}
	server := &http.Server{Addr: env.Addr, Handler: r}

	campaignRunner.Start()
	defer campaignRunner.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg.Logger.Infof("Listening on %s", env.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		cfg.Logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
