package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuannvm/otrs-connector/internal/actions"
	"github.com/tuannvm/otrs-connector/internal/common"
	"github.com/tuannvm/otrs-connector/internal/config"
	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/platform"
	"github.com/tuannvm/otrs-connector/internal/scheduler"
	"github.com/tuannvm/otrs-connector/internal/snapshot"
)

func main() {
	defer log.Sync()

	// "once" runs every job a single time and exits
	once := len(os.Args) > 1 && os.Args[1] == "once"

	cfg := config.NewConfig()
	if len(cfg.Jobs) == 0 {
		log.Fatalf("No jobs configured; set %s to a config file with a jobs list", config.ConfigFileEnv)
	}

	store, err := snapshot.NewSQLite(cfg.SnapshotDBPath)
	if err != nil {
		log.Fatalf("Failed to open snapshot store: %v", err)
	}
	defer store.Close()

	var storage platform.Storage
	if cfg.PlatformAPIURI != "" {
		storage = platform.NewStorageClient(cfg.PlatformAPIURI, cfg.PlatformAPIUsername, cfg.PlatformAPIKey, nil)
	}
	registry := actions.NewRegistry(actions.NewClientFactory(storage, cfg.HTTPTimeout))

	opts := []scheduler.Option{scheduler.WithStore(store)}
	if cfg.DownstreamAgentURL != "" {
		a2aClient, err := common.SetupA2AClient(cfg, cfg.DownstreamAgentURL)
		if err != nil {
			log.Fatalf("Failed to create downstream client: %v", err)
		}
		log.Infof("Forwarding emitted tickets to %s", cfg.DownstreamAgentURL)
		opts = append(opts, scheduler.WithForwarder(common.NewA2AForwarder(a2aClient)))
	}
	sched := scheduler.New(registry, opts...)

	jobs, err := scheduler.JobsFromConfig(cfg.Jobs)
	if err != nil {
		log.Fatalf("Invalid jobs configuration: %v", err)
	}
	for _, job := range jobs {
		if !actions.IsTrigger(job.Function) {
			log.Warnf("Job %s runs %s, which is not a polling trigger", job.Name, job.Function)
		}
		if err := sched.Add(job); err != nil {
			log.Fatalf("Failed to schedule job: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		failed := 0
		for _, job := range sched.Jobs() {
			run, err := sched.RunJob(ctx, job.Name)
			if err != nil {
				failed++
				log.Errorf("Job %s failed after %d messages: %v", job.Name, run.Emitted, err)
				continue
			}
			fmt.Printf("%s: %d messages, snapshot %s\n", job.Name, run.Emitted, string(run.Snapshot))
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := common.StartHTTPServer(ctx, cfg.MetricsAddr, mux); err != nil {
			log.Errorf("Metrics server error: %v", err)
		}
	}()

	sched.Start(ctx)
	fmt.Printf("Polling %d jobs, metrics on %s/metrics\n", len(jobs), cfg.MetricsAddr)
	<-ctx.Done()
	sched.Stop()

	log.Infof("Poller shutdown complete")
}
