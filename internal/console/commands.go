package console

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/usecase"
)

const gib = 1 << 30

func (c *Console) connect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: connect <url>", domain.ErrInvalidArgument)
	}
	node, err := c.cluster.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	c.printf("connected to %s\n", node.BaseURL)
	c.printf("  node id: %s\n", node.ID)
	c.printf("  GPU:     %s\n", node.Info.GPU)
	c.printf("  CUDA:    %s\n", yesNo(node.Info.CUDAAvailable))
	c.printf("  runtime: %s\n", node.Info.RuntimeVersion)
	return nil
}

func (c *Console) nodes(ctx context.Context) error {
	nodes, err := c.cluster.Nodes(ctx)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		c.printf("no nodes connected\n")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tURL\tGPU\tCONNECTED")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.BaseURL, n.Info.GPU, n.ConnectedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func (c *Console) status(ctx context.Context) error {
	reports, err := c.cluster.Status(ctx)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		c.printf("no nodes connected\n")
		return nil
	}
	for _, r := range reports {
		c.printf("%s (%s)\n", r.Node.ID, r.Node.BaseURL)
		if r.Err != nil {
			c.printf("  error: %v\n", r.Err)
			continue
		}
		s := r.Resources
		c.printf("  CPU:    %d cores, %.1f%%\n", s.CPU.Count, s.CPU.Usage)
		c.printf("  memory: %.1f / %.1f GiB (%.1f%%)\n", float64(s.Memory.Used)/gib, float64(s.Memory.Total)/gib, s.Memory.Percent)
		c.printf("  disk:   %.1f / %.1f GiB, %.1f GiB free\n", float64(s.Disk.Used)/gib, float64(s.Disk.Total)/gib, float64(s.Disk.Free)/gib)
		if len(s.GPUs) == 0 {
			c.printf("  GPU:    none\n")
		}
		for _, g := range s.GPUs {
			c.printf("  GPU %d:  %s, %.1f / %.1f GiB, %.0f%% util, %.0f°C\n",
				g.ID, g.Name, float64(g.MemoryUsed)/gib, float64(g.MemoryTotal)/gib, g.Utilization, g.Temperature)
		}
	}
	return nil
}

func (c *Console) train(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	nodes := fs.Int("nodes", 1, "number of nodes")
	epochs := fs.Int("epochs", model.DefaultEpochs, "number of epochs")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v (usage: train [--nodes N] [--epochs E])", domain.ErrInvalidArgument, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", domain.ErrInvalidArgument, fs.Arg(0))
	}

	c.printf("enter the training script, finish with a line '%s'\n", blockEnd)
	code := c.readBlock(ctx)

	sub, err := c.cluster.SubmitTraining(ctx, *nodes, *epochs, code)
	if err != nil {
		return err
	}
	if sub.Shortage() {
		c.printf("warning: requested %d nodes, only %d available\n", sub.Requested, sub.Available)
	}
	for _, r := range sub.Results {
		if r.Err != nil {
			c.printf("  %s: failed: %v\n", r.Node.ID, r.Err)
			continue
		}
		c.printf("  %s: %s\n", r.Node.ID, r.Accepted.Message)
	}
	if sub.Job == nil {
		return errors.New("no node accepted the job")
	}
	c.printf("job %s started on %d node(s), %d epochs\n", sub.Job.ID, len(sub.Job.Nodes), sub.Job.Epochs)
	c.printf("check progress with: job_status %s\n", sub.Job.ID)
	return nil
}

func (c *Console) jobStatus(ctx context.Context, args []string) error {
	switch len(args) {
	case 0:
		return c.listJobs(ctx)
	case 1:
		job, reports, err := c.cluster.JobStatus(ctx, args[0])
		if err != nil {
			return err
		}
		c.printReports(job, reports)
		return nil
	default:
		return fmt.Errorf("%w: usage: job_status [job_id]", domain.ErrInvalidArgument)
	}
}

func (c *Console) listJobs(ctx context.Context) error {
	jobs, err := c.cluster.ListJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		c.printf("no jobs submitted\n")
		return nil
	}
	now := c.now()
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tNODES\tSTATUS\tEPOCHS\tELAPSED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", j.ID, len(j.Nodes), j.Status, j.Epochs, j.Elapsed(now).Round(time.Second))
	}
	return tw.Flush()
}

func (c *Console) cancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: usage: cancel <job_id>", domain.ErrInvalidArgument)
	}
	job, reports, err := c.cluster.CancelJob(ctx, args[0])
	if err != nil {
		return err
	}
	c.printReports(job, reports)
	return nil
}

func (c *Console) printReports(job *model.Job, reports []usecase.NodeJobReport) {
	c.printf("job %s\n", job.ID)
	now := c.now()
	for _, r := range reports {
		if r.Err != nil {
			c.printf("  %s: error: %v\n", r.Node.ID, r.Err)
			continue
		}
		rec := r.Record
		loss := "-"
		if rec.CurrentLoss != nil {
			loss = fmt.Sprintf("%.4f", *rec.CurrentLoss)
		}
		c.printf("  %s: %s, epoch %d/%d, loss %s, elapsed %s\n",
			r.Node.ID, rec.Status, rec.CurrentEpoch, rec.TotalEpochs, loss, rec.Elapsed(now).Round(time.Second))
		if rec.Error != "" {
			c.printf("    %s\n", rec.Error)
		}
	}
}

func (c *Console) ask(ctx context.Context, message string) error {
	if c.assistant == nil {
		return errors.New("assistant is not configured")
	}
	if message == "" {
		return fmt.Errorf("%w: usage: ask <message>", domain.ErrInvalidArgument)
	}
	reply, err := c.assistant.Ask(ctx, message)
	if err != nil {
		return err
	}
	c.printf("%s\n", strings.TrimRight(reply, "\n"))
	return nil
}

func (c *Console) analyze(ctx context.Context) error {
	if c.assistant == nil {
		return errors.New("assistant is not configured")
	}
	c.printf("enter the code to analyze, finish with a line '%s'\n", blockEnd)
	code := c.readBlock(ctx)
	reply, err := c.assistant.Analyze(ctx, code)
	if err != nil {
		return err
	}
	c.printf("%s\n", strings.TrimRight(reply, "\n"))
	return nil
}

func (c *Console) optimize(ctx context.Context) error {
	if c.assistant == nil {
		return errors.New("assistant is not configured")
	}
	reply, err := c.assistant.Optimize(ctx)
	if errors.Is(err, domain.ErrNoHistory) {
		return errors.New("no training script submitted yet; run train first")
	}
	if err != nil {
		return err
	}
	c.printf("%s\n", strings.TrimRight(reply, "\n"))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
