// Package scheduler runs connector triggers on cron schedules, keeping each
// job's snapshot between runs.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tuannvm/otrs-connector/internal/config"
	log "github.com/tuannvm/otrs-connector/internal/logging"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/platform"
	"github.com/tuannvm/otrs-connector/internal/snapshot"
)

// ErrUnknownJob is returned by RunJob for names that were never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is one scheduled connector invocation.
type Job struct {
	Name     string
	Function string
	Schedule string
	Cfg      models.StepConfig
}

// Invoker runs a connector function by name.
type Invoker interface {
	Invoke(ctx context.Context, inv platform.Invocation, rec *platform.Recorder) error
}

// Forwarder receives every message a job emits.
type Forwarder func(ctx context.Context, job string, msg platform.Message) error

// Scheduler manages cron jobs and their snapshots.
type Scheduler struct {
	opts    options
	invoker Invoker
	cron    *cron.Cron
	metrics *jobMetrics

	mu      sync.Mutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	locks   map[string]*sync.Mutex
	baseCtx context.Context
}

// New creates a scheduler. Without WithStore snapshots live in memory.
func New(invoker Invoker, opts ...Option) *Scheduler {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Cron == nil {
		o.Cron = cron.New(cron.WithLocation(o.Location), cron.WithLogger(cronLogger{}))
	}
	if o.Store == nil {
		o.Store = snapshot.NewMemory()
	}
	if o.Forward == nil {
		o.Forward = logForwarder
	}
	return &Scheduler{
		opts:    o,
		invoker: invoker,
		cron:    o.Cron,
		metrics: globalJobMetrics(),
		jobs:    make(map[string]Job),
		entries: make(map[string]cron.EntryID),
		locks:   make(map[string]*sync.Mutex),
		baseCtx: context.Background(),
	}
}

// JobsFromConfig converts configured jobs.
func JobsFromConfig(cfgs []config.JobConfig) ([]Job, error) {
	jobs := make([]Job, 0, len(cfgs))
	for _, c := range cfgs {
		job := Job{Name: c.Name, Function: c.Function, Schedule: c.Schedule}
		if job.Name == "" {
			job.Name = c.Function
		}
		if len(c.Cfg) > 0 {
			raw, err := json.Marshal(c.Cfg)
			if err != nil {
				return nil, fmt.Errorf("job %s: failed to marshal cfg: %w", job.Name, err)
			}
			if err := json.Unmarshal(raw, &job.Cfg); err != nil {
				return nil, fmt.Errorf("job %s: invalid cfg: %w", job.Name, err)
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Add schedules job. Runs of the same job never overlap; a tick that finds the
// previous run still going is skipped.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Function == "" {
		return fmt.Errorf("job needs a name and a function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already exists", job.Name)
	}

	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		if _, err := s.RunJob(ctx, job.Name); err != nil {
			log.Errorf("Job %s failed: %v", job.Name, err)
		}
	}))
	id, err := s.cron.AddJob(job.Schedule, wrapped)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Schedule, job.Name, err)
	}

	s.jobs[job.Name] = job
	s.entries[job.Name] = id
	s.locks[job.Name] = &sync.Mutex{}
	log.Infof("Scheduled job %s (%s) at %q", job.Name, job.Function, job.Schedule)
	return nil
}

// Jobs returns the scheduled jobs sorted by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// Start begins firing jobs. Runs use ctx as their parent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	n := len(s.jobs)
	s.mu.Unlock()
	s.cron.Start()
	log.Infof("Scheduler started with %d jobs", n)
}

// Stop stops firing jobs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Infof("Scheduler stopped")
}

// RunJob runs the named job once: it loads the job's snapshot, invokes the
// function with a forwarding recorder and stores the last emitted cursor,
// also when the run failed.
func (s *Scheduler) RunJob(ctx context.Context, name string) (snapshot.Run, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	lock := s.locks[name]
	s.mu.Unlock()
	if !ok {
		return snapshot.Run{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	lock.Lock()
	defer lock.Unlock()

	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	run := snapshot.Run{Job: name, StartedAt: time.Now()}
	prev, err := s.opts.Store.Load(ctx, name)
	if err != nil {
		return run, err
	}

	rec := &platform.Recorder{Forward: func(ctx context.Context, msg platform.Message) error {
		return s.opts.Forward(ctx, name, msg)
	}}
	runErr := s.invoker.Invoke(ctx, platform.Invocation{
		Function: job.Function,
		Cfg:      job.Cfg,
		Snapshot: prev,
	}, rec)

	// the run's context may be done by now; persisting must not depend on it
	persistCtx := context.WithoutCancel(ctx)
	if cursor, ok := rec.Snapshot(); ok {
		data, err := json.Marshal(cursor)
		if err != nil {
			return run, fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := s.opts.Store.Save(persistCtx, name, data); err != nil {
			return run, err
		}
		run.Snapshot = data
	}

	run.FinishedAt = time.Now()
	run.Emitted = len(rec.Data())
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.opts.Store.RecordRun(persistCtx, run); err != nil {
		log.Warnf("Failed to record run of job %s: %v", name, err)
	}
	s.metrics.recordRun(name, run.Emitted, run.FinishedAt.Sub(run.StartedAt), runErr)

	if runErr != nil {
		return run, runErr
	}
	log.Infof("Job %s emitted %d messages in %s", name, run.Emitted, run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

func logForwarder(ctx context.Context, job string, msg platform.Message) error {
	log.Infow("emitted", "job", job, "id", msg.ID, "body", string(msg.Body))
	return nil
}

// cronLogger routes cron's own logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Errorw(msg, append(keysAndValues, "error", err)...)
}
