package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.uncharted.software/WM/lora-campaign/api/queue"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
	"gitlab.uncharted.software/WM/lora-campaign/config"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	return &config.Config{Logger: zap.NewNop().Sugar(), Environment: &config.Environment{}}
}

func request(id, name string) Request {
	return Request{ID: id, Definition: campaign.Definition{Name: name, Variations: 1}, Total: 2}
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunnerServicesQueueInOrder(t *testing.T) {
	q := queue.NewListFIFOQueue[Request](10)
	var mutex sync.Mutex
	var ran []string
	execute := func(ctx context.Context, req Request, obs campaign.Observer) (campaign.Summary, error) {
		obs.Started(req.Definition.Name, 2)
		obs.Progress(1, 2)
		obs.Progress(2, 2)
		mutex.Lock()
		ran = append(ran, req.ID)
		mutex.Unlock()
		return campaign.Summary{Campaign: req.Definition.Name, Total: 2, Submitted: 2}, nil
	}
	_, _ = q.EnqueueHashed(1, request("a", "first"))
	_, _ = q.EnqueueHashed(2, request("b", "second"))

	r := NewCampaignRunner(testConfig(), q, execute)
	assert.False(t, r.Running())
	r.Start()
	r.Start()
	assert.True(t, r.Running())

	waitFor(t, func() bool {
		last := r.Last()
		return last != nil && last.ID == "b"
	})
	r.Stop()
	assert.False(t, r.Running())

	mutex.Lock()
	assert.Equal(t, []string{"a", "b"}, ran)
	mutex.Unlock()
	last := r.Last()
	assert.Equal(t, "second", last.Name)
	assert.Equal(t, 2, last.Summary.Submitted)
	assert.Empty(t, last.Error)
	assert.Nil(t, r.Current())
}

func TestRunnerCancelCurrent(t *testing.T) {
	q := queue.NewListFIFOQueue[Request](10)
	execute := func(ctx context.Context, req Request, obs campaign.Observer) (campaign.Summary, error) {
		obs.Started(req.Definition.Name, 10)
		obs.Progress(3, 10)
		<-ctx.Done()
		return campaign.Summary{Canceled: true}, ctx.Err()
	}
	_, _ = q.EnqueueHashed(1, request("a", "long"))

	r := NewCampaignRunner(testConfig(), q, execute)
	assert.False(t, r.Cancel())
	r.Start()
	defer r.Stop()

	waitFor(t, func() bool {
		c := r.Current()
		return c != nil && c.Count == 3
	})
	current := r.Current()
	assert.Equal(t, "long", current.Name)
	assert.Equal(t, 30, current.Percent)

	require.True(t, r.Cancel())
	waitFor(t, func() bool { return r.Last() != nil })
	assert.Contains(t, r.Last().Error, "canceled")
	assert.True(t, r.Last().Summary.Canceled)
	// the runner keeps servicing the queue
	assert.True(t, r.Running())
}

func TestRunnerStopInterruptsCampaign(t *testing.T) {
	q := queue.NewListFIFOQueue[Request](10)
	started := make(chan struct{})
	execute := func(ctx context.Context, req Request, obs campaign.Observer) (campaign.Summary, error) {
		close(started)
		<-ctx.Done()
		return campaign.Summary{}, ctx.Err()
	}
	_, _ = q.EnqueueHashed(1, request("a", "long"))
	_, _ = q.EnqueueHashed(2, request("b", "waiting"))

	r := NewCampaignRunner(testConfig(), q, execute)
	r.Start()
	<-started
	r.Stop()

	assert.Equal(t, 1, q.Size())
	assert.Equal(t, "a", r.Last().ID)
	goleak.VerifyNone(t)
}

func TestRunnerStopWhileIdle(t *testing.T) {
	q := queue.NewListFIFOQueue[Request](10)
	r := NewCampaignRunner(testConfig(), q, func(ctx context.Context, req Request, obs campaign.Observer) (campaign.Summary, error) {
		return campaign.Summary{}, nil
	})
	r.Stop()
	r.Start()
	r.Stop()
	assert.False(t, r.Running())
	goleak.VerifyNone(t)
}
