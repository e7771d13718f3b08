//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/infra/memory"
)

var testTimeouts = config.ControllerConfig{
	ConnectTimeout:   time.Second,
	StatusTimeout:    time.Second,
	TrainTimeout:     time.Second,
	JobStatusTimeout: time.Second,
}

func newCluster() (*clusterUC, *fakeNodeClient, *memory.NodeRegistry) {
	client := newFakeNodeClient()
	nodes := memory.NewNodeRegistry()
	uc := NewClusterUseCase(nodes, memory.NewJobRegistry(), client, &seqIDs{}, testTimeouts, nil)
	return uc, client, nodes
}

func TestNormalizeURL(t *testing.T) {
	ok := map[string]string{
		"https://abc.ngrok.io/":      "https://abc.ngrok.io",
		"  http://10.0.0.2:5000  ":   "http://10.0.0.2:5000",
		"http://localhost:5000/api/": "http://localhost:5000/api",
	}
	for in, want := range ok {
		got, err := NormalizeURL(in)
		if err != nil || got != want {
			t.Errorf("%q: expected %q, got %q (%v)", in, want, got, err)
		}
	}
	for _, bad := range []string{"", "   ", "abc.ngrok.io", "ftp://host", "http://"} {
		if _, err := NormalizeURL(bad); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("%q: expected ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestClusterConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("registers a healthy node", func(t *testing.T) {
		uc, client, nodes := newCluster()
		client.add("https://abc.ngrok.io")

		node, err := uc.Connect(ctx, "https://abc.ngrok.io/")
		if err != nil {
			t.Fatal(err)
		}
		if node.ID != "colab_001" || node.BaseURL != "https://abc.ngrok.io" || node.Info.GPU != "Tesla T4" {
			t.Errorf("unexpected node %+v", node)
		}
		if n, _ := nodes.Count(ctx); n != 1 {
			t.Errorf("expected 1 node, got %d", n)
		}
	})

	t.Run("unreachable node leaves the registry unchanged", func(t *testing.T) {
		uc, _, nodes := newCluster()
		_, err := uc.Connect(ctx, "https://gone.example")
		if !errors.Is(err, domain.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		if n, _ := nodes.Count(ctx); n != 0 {
			t.Errorf("expected empty registry, got %d", n)
		}
	})

	t.Run("info failure is a connection error", func(t *testing.T) {
		uc, client, nodes := newCluster()
		client.add("https://a.example").infoErr = errors.New("HTTP 500")
		if _, err := uc.Connect(ctx, "https://a.example"); !errors.Is(err, domain.ErrConnection) {
			t.Fatalf("expected ErrConnection, got %v", err)
		}
		if n, _ := nodes.Count(ctx); n != 0 {
			t.Errorf("expected empty registry, got %d", n)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		uc, _, _ := newCluster()
		if _, err := uc.Connect(ctx, "not a url"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestClusterStatusReportsErrorsInline(t *testing.T) {
	ctx := context.Background()
	uc, client, _ := newCluster()
	client.add("https://a.example").resources = model.ResourceSnapshot{CPU: model.CPUStats{Count: 8, Usage: 12.5}}
	b := client.add("https://b.example")

	_, _ = uc.Connect(ctx, "https://a.example")
	_, _ = uc.Connect(ctx, "https://b.example")
	b.resourcesErr = errors.New("timeout")

	reports, err := uc.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Err != nil || reports[0].Resources == nil || reports[0].Resources.CPU.Count != 8 {
		t.Errorf("unexpected first report %+v", reports[0])
	}
	if reports[1].Err == nil || reports[1].Resources != nil {
		t.Errorf("expected inline error for second node, got %+v", reports[1])
	}
}

func TestClusterSubmitTraining(t *testing.T) {
	ctx := context.Background()

	t.Run("validation happens before any request", func(t *testing.T) {
		uc, client, _ := newCluster()
		client.add("https://a.example")
		_, _ = uc.Connect(ctx, "https://a.example")

		for name, args := range map[string]struct {
			nodes, epochs int
			code          string
		}{
			"zero nodes":  {0, 1, "x"},
			"zero epochs": {1, 0, "x"},
			"empty code":  {1, 1, "  "},
		} {
			if _, err := uc.SubmitTraining(ctx, args.nodes, args.epochs, args.code); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
			}
		}
		if client.posts != 0 {
			t.Errorf("expected no POSTs, got %d", client.posts)
		}
	})

	t.Run("no nodes", func(t *testing.T) {
		uc, client, _ := newCluster()
		if _, err := uc.SubmitTraining(ctx, 1, 1, "x"); !errors.Is(err, domain.ErrNoNodes) {
			t.Fatalf("expected ErrNoNodes, got %v", err)
		}
		if client.posts != 0 {
			t.Errorf("expected no POSTs, got %d", client.posts)
		}
	})

	t.Run("more nodes requested than available", func(t *testing.T) {
		uc, client, _ := newCluster()
		client.add("https://a.example")
		_, _ = uc.Connect(ctx, "https://a.example")

		sub, err := uc.SubmitTraining(ctx, 3, 5, "update_progress(1, 0.5)")
		if err != nil {
			t.Fatal(err)
		}
		if !sub.Shortage() || sub.Available != 1 {
			t.Errorf("expected shortage, got %+v", sub)
		}
		if client.posts != 1 {
			t.Errorf("expected 1 POST, got %d", client.posts)
		}
		if sub.Job == nil || len(sub.Job.Nodes) != 1 || sub.Job.Epochs != 5 {
			t.Fatalf("unexpected job %+v", sub.Job)
		}
	})

	t.Run("only the first n nodes receive the script", func(t *testing.T) {
		uc, client, _ := newCluster()
		a := client.add("https://a.example")
		b := client.add("https://b.example")
		c := client.add("https://c.example")
		for _, u := range []string{"https://a.example", "https://b.example", "https://c.example"} {
			_, _ = uc.Connect(ctx, u)
		}

		sub, err := uc.SubmitTraining(ctx, 2, 3, "x")
		if err != nil {
			t.Fatal(err)
		}
		if client.posts != 2 || len(c.trained) != 0 {
			t.Errorf("expected POSTs to the first two nodes only, posts=%d", client.posts)
		}
		if a.trained[0].NodeIndex != 0 || b.trained[0].NodeIndex != 1 || b.trained[0].TotalNodes != 2 {
			t.Errorf("unexpected node indices: %+v %+v", a.trained[0], b.trained[0])
		}
		if a.trained[0].JobID != sub.Job.ID || a.trained[0].NodeID != "colab_001" {
			t.Errorf("unexpected request %+v", a.trained[0])
		}
		if sub.Shortage() {
			t.Error("unexpected shortage")
		}
	})

	t.Run("job lists only accepting nodes", func(t *testing.T) {
		uc, client, _ := newCluster()
		client.add("https://a.example").trainErr = errors.New("HTTP 503: worker queue full")
		client.add("https://b.example")
		_, _ = uc.Connect(ctx, "https://a.example")
		_, _ = uc.Connect(ctx, "https://b.example")

		sub, err := uc.SubmitTraining(ctx, 2, 1, "x")
		if err != nil {
			t.Fatal(err)
		}
		if sub.Results[0].Err == nil || sub.Results[1].Accepted == nil {
			t.Errorf("unexpected results %+v", sub.Results)
		}
		if len(sub.Job.Nodes) != 1 || sub.Job.Nodes[0].BaseURL != "https://b.example" {
			t.Errorf("unexpected job nodes %+v", sub.Job.Nodes)
		}
	})

	t.Run("no job when every node fails", func(t *testing.T) {
		uc, client, _ := newCluster()
		client.add("https://a.example").trainErr = errors.New("boom")
		_, _ = uc.Connect(ctx, "https://a.example")

		sub, err := uc.SubmitTraining(ctx, 1, 1, "x")
		if err != nil {
			t.Fatal(err)
		}
		if sub.Job != nil {
			t.Errorf("expected no job, got %+v", sub.Job)
		}
		if jobs, _ := uc.ListJobs(ctx); len(jobs) != 0 {
			t.Errorf("expected no recorded jobs, got %d", len(jobs))
		}
		if code, ok := uc.LastScript(); !ok || code != "x" {
			t.Errorf("last script not kept: %q", code)
		}
	})
}

func TestClusterJobStatusAndCancel(t *testing.T) {
	ctx := context.Background()
	uc, client, _ := newCluster()
	a := client.add("https://a.example")
	b := client.add("https://b.example")
	_, _ = uc.Connect(ctx, "https://a.example")
	_, _ = uc.Connect(ctx, "https://b.example")

	sub, err := uc.SubmitTraining(ctx, 2, 3, "x")
	if err != nil {
		t.Fatal(err)
	}
	jobID := sub.Job.ID

	loss := 0.4
	a.jobs[jobID].CurrentEpoch = 2
	a.jobs[jobID].CurrentLoss = &loss
	b.jobs[jobID].Status = model.JobStatusError
	b.jobs[jobID].Error = "division by zero"

	job, reports, err := uc.JobStatus(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusRunning {
		t.Errorf("controller job status must not be refreshed, got %s", job.Status)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Record.CurrentEpoch != 2 || reports[1].Record.Status != model.JobStatusError {
		t.Errorf("reports not verbatim: %+v %+v", reports[0].Record, reports[1].Record)
	}

	delete(b.jobs, jobID)
	_, reports, _ = uc.JobStatus(ctx, jobID)
	if !errors.Is(reports[1].Err, domain.ErrNotFound) {
		t.Errorf("expected inline not found, got %v", reports[1].Err)
	}

	_, reports, err = uc.CancelJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if reports[0].Record == nil || reports[0].Record.Status != model.JobStatusCancelled {
		t.Errorf("unexpected cancel report %+v", reports[0])
	}

	if _, _, err := uc.JobStatus(ctx, "job_unknown"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
