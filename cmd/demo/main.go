package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/infra/adapters/nodeclient"
	"gpu-notebook-bridge/internal/infra/api"
	"gpu-notebook-bridge/internal/infra/idgen"
	"gpu-notebook-bridge/internal/infra/logging"
	"gpu-notebook-bridge/internal/infra/memory"
	"gpu-notebook-bridge/internal/infra/script"
	"gpu-notebook-bridge/internal/infra/security"
	"gpu-notebook-bridge/internal/infra/system"
	"gpu-notebook-bridge/internal/infra/worker"
	"gpu-notebook-bridge/internal/usecase"
)

// demoScript reports three epochs with a decaying loss.
const demoScript = `map(1..epochs, update_progress(#, 1.0 / #))`

// This demo runs a worker and a controller in one process: connect, train,
// then poll the job until every node reports a terminal state.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := config.LoadConfig("", true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(config.LogConfig{Level: "warn"}, true)

	// 1. Worker on a random local port
	pool := worker.NewPool(cfg.Worker.PoolSize, cfg.Worker.QueueSize, logger)
	pool.Start(ctx)
	defer pool.Stop()

	runner := script.NewRunner(cfg.Worker.ScriptMaxNodes, logger)
	if err := runner.Check(demoScript); err != nil {
		log.Fatalf("demo script: %v", err)
	}
	training := usecase.NewTrainingUseCase(memory.NewWorkerJobTable(), pool, runner,
		usecase.TrainingOptions{JobTimeout: 30 * time.Second}, logger)
	host := usecase.NewHostUseCase(system.NewProbe(cfg.Worker.DiskPath, logger))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: api.NewRouter(cfg.Worker, api.Deps{Training: training, Host: host}, logger)}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("worker server: %v", err)
		}
	}()
	defer srv.Close()
	workerURL := "http://" + ln.Addr().String()

	// 2. Controller
	cluster := usecase.NewClusterUseCase(memory.NewNodeRegistry(), memory.NewJobRegistry(),
		nodeclient.New(&http.Client{}, security.NewTokenManager("", 0)),
		idgen.NewULIDGenerator(), cfg.Controller, logger)

	node, err := cluster.Connect(ctx, workerURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	fmt.Printf("connected %s at %s (GPU: %s)\n", node.ID, node.BaseURL, node.Info.GPU)

	sub, err := cluster.SubmitTraining(ctx, 1, 3, demoScript)
	if err != nil {
		log.Fatalf("train: %v", err)
	}
	if sub.Job == nil {
		log.Fatalf("no node accepted the job: %v", sub.Results[0].Err)
	}
	fmt.Printf("submitted %s\n", sub.Job.ID)

	// 3. Poll
	for {
		_, reports, err := cluster.JobStatus(ctx, sub.Job.ID)
		if err != nil {
			log.Fatalf("job status: %v", err)
		}
		done := true
		for _, r := range reports {
			if r.Err != nil {
				log.Fatalf("%s: %v", r.Node.ID, r.Err)
			}
			loss := "-"
			if r.Record.CurrentLoss != nil {
				loss = fmt.Sprintf("%.3f", *r.Record.CurrentLoss)
			}
			fmt.Printf("  %s: %s epoch %d/%d loss %s\n", r.Node.ID, r.Record.Status, r.Record.CurrentEpoch, r.Record.TotalEpochs, loss)
			if r.Record.Status == model.JobStatusRunning {
				done = false
			}
			if r.Record.Error != "" {
				fmt.Printf("    %s\n", r.Record.Error)
			}
		}
		if done {
			return
		}
		select {
		case <-ctx.Done():
			log.Fatalf("demo timed out")
		case <-time.After(200 * time.Millisecond):
		}
	}
}
