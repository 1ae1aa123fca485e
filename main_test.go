package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.uncharted.software/WM/lora-campaign/api/runner"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
	"gitlab.uncharted.software/WM/lora-campaign/comfy"
	"gitlab.uncharted.software/WM/lora-campaign/config"
	"gitlab.uncharted.software/WM/lora-campaign/dataset"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type renderServer struct {
	mutex  sync.Mutex
	jobs   []map[string]interface{}
	status http.HandlerFunc
}

func newRenderServer(t *testing.T) (*renderServer, string) {
	rs := &renderServer{}
	r := chi.NewRouter()
	r.Post("/prompt", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rs.mutex.Lock()
		rs.jobs = append(rs.jobs, body)
		id := fmt.Sprintf("job-%d", len(rs.jobs))
		rs.mutex.Unlock()
		_, _ = fmt.Fprintf(w, `{"prompt_id":%q,"number":1}`, id)
	})
	r.Get("/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		_, _ = fmt.Fprintf(w, `{%q:{"status":{"status_str":"success","completed":true,"messages":[]}}}`, id)
	})
	r.Get("/system_stats", func(w http.ResponseWriter, r *http.Request) {
		if rs.status != nil {
			rs.status(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"system":{}}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return rs, srv.URL
}

func (rs *renderServer) count() int {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	return len(rs.jobs)
}

func testConfig(t *testing.T, renderAddr string) config.Config {
	return config.Config{
		Logger: zap.NewNop().Sugar(),
		Environment: &config.Environment{
			Mode:                  "dev",
			Addr:                  "127.0.0.1:0",
			RenderAddr:            renderAddr,
			RenderTimeoutSec:      5,
			RenderPollIntervalSec: 1,
			RenderJobTimeoutSec:   5,
			PacingMode:            config.PacingPoll,
			TemplatePath:          "campaign/testdata/workflow.json",
			LoraBaseName:          "blondie_lora",
			ProvenancePath:        filepath.Join(t.TempDir(), "provenance.jsonl"),
			CaptionProvider:       config.CaptionNone,
			CaptionTimeoutSec:     5,
			QueueSize:             4,
		},
	}
}

type fakeQueue struct {
	statsErr error
}

func (f *fakeQueue) Wait(ctx context.Context, jobID string, interval, timeout time.Duration, onError func(error)) (comfy.Outcome, *comfy.Status) {
	return comfy.OutcomeSucceeded, nil
}

func (f *fakeQueue) SystemStats(ctx context.Context) error {
	return f.statsErr
}

func TestNewPacer(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:8188")
	cfg.Environment.SubmitDelaySec = 3

	pacer := newPacer(context.Background(), cfg, &fakeQueue{})
	polling, ok := pacer.(*campaign.PollingPacer)
	require.True(t, ok)
	assert.Equal(t, time.Second, polling.Interval)
	assert.Equal(t, 5*time.Second, polling.Timeout)

	core, logs := observer.New(zapcore.WarnLevel)
	cfg.Logger = zap.New(core).Sugar()
	pacer = newPacer(context.Background(), cfg, &fakeQueue{statsErr: errors.New("connection refused")})
	assert.Equal(t, &campaign.SleepPacer{Delay: 3 * time.Second}, pacer)
	assert.Equal(t, 1, logs.FilterMessageSnippet("status check failed").Len())

	cfg.Environment.PacingMode = config.PacingSleep
	pacer = newPacer(context.Background(), cfg, &fakeQueue{})
	assert.Equal(t, &campaign.SleepPacer{Delay: 3 * time.Second}, pacer)
}

func TestTemplatePath(t *testing.T) {
	env := &config.Environment{TemplatePath: "workflow.json"}
	assert.Equal(t, "workflow.json", templatePath(env, nil))
	assert.Equal(t, "workflow.json", templatePath(env, &campaign.Definition{}))
	assert.Equal(t, "other.json", templatePath(env, &campaign.Definition{Template: "other.json"}))
}

func TestNewCaptioner(t *testing.T) {
	env := &config.Environment{CaptionTimeoutSec: 5}
	ctx := context.Background()

	c, err := newCaptioner(ctx, env, config.CaptionNone, "blondie", "woman")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = newCaptioner(ctx, env, config.CaptionAnthropic, "blondie", "woman")
	assert.True(t, errors.Is(err, dataset.ErrNoCredential))

	_, err = newCaptioner(ctx, env, config.CaptionGemini, "blondie", "woman")
	assert.True(t, errors.Is(err, dataset.ErrNoCredential))

	env.AnthropicAPIKey = "key"
	c, err = newCaptioner(ctx, env, config.CaptionAnthropic, "blondie", "woman")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	// the key follows the requested provider
	env.GeminiAPIKey = "gemini-key"
	c, err = newCaptioner(ctx, env, config.CaptionGemini, "blondie", "woman")
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.Name())

	_, err = newCaptioner(ctx, env, "openai", "blondie", "woman")
	assert.Error(t, err)
}

type countingObserver struct {
	campaign.MultiObserver
	progress []int
}

func (c *countingObserver) Progress(count, total int) {
	c.progress = append(c.progress, count)
}

func TestCampaignExecutor(t *testing.T) {
	rs, addr := newRenderServer(t)
	cfg := testConfig(t, addr)

	req := runner.Request{
		ID: "abc",
		Definition: campaign.Definition{
			Name:       "sweep",
			Variations: 1,
			Fixed:      map[campaign.Slot]campaign.Scalar{campaign.SlotLora: "750"},
			Axes:       []campaign.AxisDefinition{{Kind: campaign.KindStrength, Values: []campaign.Scalar{"0.5", "0.7"}}},
		},
	}
	obs := &countingObserver{}
	summary, err := campaignExecutor(cfg)(context.Background(), req, obs)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Submitted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, []int{1, 2}, obs.progress)
	assert.Equal(t, 2, rs.count())

	records, bad, err := campaign.ReadProvenance(cfg.Environment.ProvenancePath)
	require.NoError(t, err)
	assert.Equal(t, 0, bad)
	require.Len(t, records, 2)
	assert.Equal(t, "job-1", records[0].JobID)
	assert.Equal(t, "blondie_lora-step00000750.safetensors", records[1].Lora)
	assert.Equal(t, string(comfy.OutcomeSucceeded), records[1].Outcome)
}

func TestCampaignExecutorMissingTemplate(t *testing.T) {
	rs, addr := newRenderServer(t)
	cfg := testConfig(t, addr)

	req := runner.Request{Definition: campaign.Definition{
		Name:       "sweep",
		Template:   "missing.json",
		Variations: 1,
		Axes:       []campaign.AxisDefinition{{Kind: campaign.KindPrompt, Values: []campaign.Scalar{"a"}}},
	}}
	summary, err := campaignExecutor(cfg)(context.Background(), req, campaign.MultiObserver{})
	assert.Error(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 0, rs.count())
}

func TestRunCampaignCanceled(t *testing.T) {
	rs, addr := newRenderServer(t)
	cfg := testConfig(t, addr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ckpt, err := campaign.ParseCheckpoint("blondie_lora", "750")
	require.NoError(t, err)
	var out bytes.Buffer
	err = runCampaign(ctx, cfg, &out, campaign.StrengthPhase(ckpt, []float64{0.5}, 1), cfg.Environment.TemplatePath, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, rs.count())
}

func TestStrengthsCommand(t *testing.T) {
	rs, addr := newRenderServer(t)
	cfg = testConfig(t, addr)

	cmd := newStrengthsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--checkpoint", "final", "--variations", "1"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, len(campaign.DefaultStrengths), rs.count())
	assert.Contains(t, out.String(), "Progress: 6/6 (100%)")
}

func TestStrengthsCommandBadCheckpoint(t *testing.T) {
	rs, addr := newRenderServer(t)
	cfg = testConfig(t, addr)

	cmd := newStrengthsCmd()
	cmd.SetOut(ioutil.Discard)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs([]string{"--checkpoint", "latest"})
	assert.Error(t, cmd.Execute())
	assert.Equal(t, 0, rs.count())
}

func TestGalleryCommandWithoutManifest(t *testing.T) {
	cfg = testConfig(t, "http://127.0.0.1:8188")
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "test_strength_7_00001_.png"), []byte("png"), 0o644))
	out := filepath.Join(dir, "image_data.json")

	cmd := newGalleryCmd()
	cmd.SetArgs([]string{"--output-dir", dir, "--manifest", filepath.Join(dir, "missing.jsonl"), "--out", out})
	require.NoError(t, cmd.Execute())

	data, err := ioutil.ReadFile(out)
	require.NoError(t, err)
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "strength", items[0]["category"])
	assert.Equal(t, 0.7, items[0]["strength"])
}

func TestServeStopsOnCancel(t *testing.T) {
	_, addr := newRenderServer(t)
	cfg = testConfig(t, addr)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
