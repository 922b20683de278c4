// Package scheduler re-runs the orchestrator on recurring cadences.
//
// Jobs live in a JobStore so that the CLI and a long-running serve process
// see the same set; the in-process cron only holds entries for active jobs
// and is reconciled against the store by Sync.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/observability"
)

// ErrJobNotFound is returned for operations on an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Job is the persisted descriptor of a recurring request.
type Job struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Request     string      `json:"request"`
	Trigger     TriggerSpec `json:"trigger"`
	Paused      bool        `json:"paused"`
	RunCount    int         `json:"run_count"`
	MaxRuns     int         `json:"max_runs,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	LastFiredAt time.Time   `json:"last_fired_at,omitempty"`
}

// Exhausted reports whether a bounded job has used up its firings.
func (j Job) Exhausted() bool {
	return j.MaxRuns > 0 && j.RunCount >= j.MaxRuns
}

// JobSummary is the listing view of a job.
type JobSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Request     string    `json:"request"`
	Description string    `json:"description"`
	NextFire    time.Time `json:"next_fire,omitempty"`
	Paused      bool      `json:"paused"`
	RunCount    int       `json:"run_count"`
	MaxRuns     int       `json:"max_runs,omitempty"`
}

// Firing is one entry of the scheduler execution log.
type Firing struct {
	JobID       string        `json:"job_id"`
	ExecutionID string        `json:"execution_id"`
	Request     string        `json:"request"`
	FiredAt     time.Time     `json:"fired_at"`
	Success     bool          `json:"success"`
	Outcome     string        `json:"outcome"`
	Duration    time.Duration `json:"duration"`
}

// JobStore persists jobs. RecordFiring must increment run_count and set
// last_fired_at atomically and return the new count.
type JobStore interface {
	SaveJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	DeleteJob(ctx context.Context, id string) error
	SetPaused(ctx context.Context, id string, paused bool) error
	RecordFiring(ctx context.Context, id string, firedAt time.Time) (int, error)
}

// ExecutionLog is the append-only record of firings.
type ExecutionLog interface {
	AppendFiring(ctx context.Context, f Firing) error
}

// Runner executes one request. *agent.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, request string, opts ...agent.RunOption) *agent.WorkflowState
}

// Options tunes a Scheduler.
type Options struct {
	// Workers caps how many firings run at once across all jobs.
	Workers int
	// BypassMemory disables duplicate suppression for scheduled runs.
	BypassMemory bool
	// SyncInterval is how often Start reconciles with the job store.
	SyncInterval time.Duration
	Events       *observability.Logger
	Location     *time.Location
	Now          func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Workers:      10,
		BypassMemory: true,
		SyncInterval: 30 * time.Second,
	}
}

// Scheduler owns one cron entry per active job.
type Scheduler struct {
	runner  Runner
	jobs    JobStore
	history ExecutionLog
	opts    Options

	cron *cron.Cron
	sem  *semaphore.Weighted

	mu      sync.Mutex
	entries map[string]cron.EntryID
	descs   map[string]string
	running map[string]bool // job ids with a firing in flight

	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a stopped scheduler. history may be nil.
func New(runner Runner, jobs JobStore, history ExecutionLog, opts Options) *Scheduler {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = def.SyncInterval
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := cron.PrintfLogger(log.New(log.Writer(), "[scheduler] ", log.LstdFlags))
	s := &Scheduler{
		runner:  runner,
		jobs:    jobs,
		history: history,
		opts:    opts,
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(opts.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger)),
		),
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		entries: make(map[string]cron.EntryID),
		descs:   make(map[string]string),
		running: make(map[string]bool),
		runCtx:  context.Background(),
	}
	return s
}

// Schedule compiles spec, persists a new job and registers it.
func (s *Scheduler) Schedule(ctx context.Context, request string, spec TriggerSpec, name string) (string, error) {
	trig, err := Compile(spec)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = defaultJobName(request)
	}

	job := Job{
		ID:        uuid.NewString(),
		Name:      name,
		Request:   request,
		Trigger:   trig.Spec,
		MaxRuns:   trig.MaxRuns,
		CreatedAt: s.opts.Now(),
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	s.mu.Lock()
	s.registerLocked(job.ID, trig)
	s.mu.Unlock()

	log.Printf("[scheduler] scheduled job %s (%s): %s", job.ID, trig.Description, request)
	return job.ID, nil
}

// Remove deletes a job. An in-flight firing is not interrupted.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.jobs.GetJob(ctx, id); err != nil {
		return err
	}
	s.unregisterLocked(id)
	if err := s.jobs.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	log.Printf("[scheduler] removed job %s", id)
	return nil
}

// Pause stops future firings until Resume.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.jobs.GetJob(ctx, id); err != nil {
		return err
	}
	if err := s.jobs.SetPaused(ctx, id, true); err != nil {
		return fmt.Errorf("failed to pause job %s: %w", id, err)
	}
	s.unregisterLocked(id)
	log.Printf("[scheduler] paused job %s", id)
	return nil
}

func (s *Scheduler) Resume(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	trig, err := Compile(job.Trigger)
	if err != nil {
		return err
	}
	if err := s.jobs.SetPaused(ctx, id, false); err != nil {
		return fmt.Errorf("failed to resume job %s: %w", id, err)
	}
	s.registerLocked(id, trig)
	log.Printf("[scheduler] resumed job %s", id)
	return nil
}

// List returns every stored job ordered by creation time.
func (s *Scheduler) List(ctx context.Context) ([]JobSummary, error) {
	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	out := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.summarize(j))
	}
	return out, nil
}

func (s *Scheduler) Get(ctx context.Context, id string) (JobSummary, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return JobSummary{}, err
	}
	return s.summarize(job), nil
}

// Active returns the number of registered cron entries.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) summarize(j Job) JobSummary {
	sum := JobSummary{
		ID:       j.ID,
		Name:     j.Name,
		Request:  j.Request,
		Paused:   j.Paused,
		RunCount: j.RunCount,
		MaxRuns:  j.MaxRuns,
	}

	s.mu.Lock()
	eid, registered := s.entries[j.ID]
	sum.Description = s.descs[j.ID]
	s.mu.Unlock()

	if sum.Description == "" {
		if trig, err := Compile(j.Trigger); err == nil {
			sum.Description = trig.Description
		} else {
			sum.Description = j.Trigger.String()
		}
	}
	if registered {
		sum.NextFire = s.cron.Entry(eid).Next
	}
	if sum.NextFire.IsZero() && !j.Paused {
		if trig, err := Compile(j.Trigger); err == nil {
			sum.NextFire = trig.Schedule.Next(s.opts.Now().In(s.opts.Location))
		}
	}
	return sum
}

// Start loads jobs from the store, starts the cron loop and keeps it in
// sync with the store until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	if err := s.Sync(ctx); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[scheduler] started with %d active jobs, %d workers", s.Active(), s.opts.Workers)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.runCtx.Done():
				return
			case <-ticker.C:
				if err := s.Sync(s.runCtx); err != nil {
					log.Printf("[scheduler] sync failed: %v", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts future firings and waits for in-flight ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	log.Println("[scheduler] stopped")
}

// Sync registers stored jobs that are active and unregisters everything
// else. Exhausted bounded jobs are deleted.
func (s *Scheduler) Sync(ctx context.Context) error {
	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if j.Exhausted() {
			log.Printf("[scheduler] job %s already fired %d/%d times, removing", j.ID, j.RunCount, j.MaxRuns)
			if err := s.jobs.DeleteJob(ctx, j.ID); err != nil {
				log.Printf("[scheduler] failed to delete exhausted job %s: %v", j.ID, err)
			}
			continue
		}
		if j.Paused {
			continue
		}
		want[j.ID] = true
		if _, ok := s.entries[j.ID]; ok {
			continue
		}
		trig, err := Compile(j.Trigger)
		if err != nil {
			log.Printf("[scheduler] skipping job %s: %v", j.ID, err)
			continue
		}
		s.registerLocked(j.ID, trig)
	}
	for id := range s.entries {
		if !want[id] {
			s.unregisterLocked(id)
		}
	}
	return nil
}

func (s *Scheduler) registerLocked(id string, trig Trigger) {
	if _, ok := s.entries[id]; ok {
		return
	}
	// SkipIfStillRunning covers one entry; fire's running set covers the
	// job across re-registration.
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.fire(id)
	}))
	s.entries[id] = s.cron.Schedule(trig.Schedule, job)
	s.descs[id] = trig.Description
}

func (s *Scheduler) unregisterLocked(id string) {
	if eid, ok := s.entries[id]; ok {
		s.cron.Remove(eid)
		delete(s.entries, id)
		delete(s.descs, id)
	}
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	ctx := s.runCtx
	_, registered := s.entries[id]
	busy := s.running[id]
	if registered && !busy {
		s.running[id] = true
	}
	s.mu.Unlock()
	if !registered {
		return
	}
	if busy {
		log.Printf("[scheduler] job %s is still running, skipping this firing", id)
		return
	}
	defer func() {
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		log.Printf("[scheduler] job %s vanished: %v", id, err)
		s.mu.Lock()
		s.unregisterLocked(id)
		s.mu.Unlock()
		return
	}
	if job.Paused {
		return
	}
	if job.Exhausted() {
		s.finish(ctx, job)
		return
	}

	done := observability.BeginRun(observability.RoleScheduler, job.Name)
	defer done()

	firedAt := s.opts.Now()
	runCount, err := s.jobs.RecordFiring(ctx, id, firedAt)
	if errors.Is(err, ErrJobNotFound) {
		log.Printf("[scheduler] job %s removed before firing", id)
		s.mu.Lock()
		s.unregisterLocked(id)
		s.mu.Unlock()
		return
	}
	if err != nil {
		log.Printf("[scheduler] failed to record firing of %s: %v", id, err)
		runCount = job.RunCount + 1
	}

	opts := []agent.RunOption{agent.WithSource("scheduler:" + id)}
	if s.opts.BypassMemory {
		opts = append(opts, agent.WithoutMemoryCheck())
	}
	log.Printf("[scheduler] firing job %s (%s) run %d", id, job.Name, runCount)
	st := s.runner.Run(ctx, job.Request, opts...)

	f := Firing{
		JobID:    id,
		Request:  job.Request,
		FiredAt:  firedAt,
		Outcome:  agent.OutcomeSummary(st),
		Duration: s.opts.Now().Sub(firedAt),
	}
	if st != nil {
		f.ExecutionID = st.ExecutionID
		f.Success = st.Success
	}
	if s.history != nil {
		if err := s.history.AppendFiring(ctx, f); err != nil {
			log.Printf("[scheduler] failed to append execution log for %s: %v", id, err)
		}
	}
	s.opts.Events.LogFiring(id, f.ExecutionID, runCount, f.Success, f.Outcome)

	if job.MaxRuns > 0 && runCount >= job.MaxRuns {
		job.RunCount = runCount
		s.finish(ctx, job)
	}
}

// finish removes a bounded job's timer and descriptor together.
func (s *Scheduler) finish(ctx context.Context, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unregisterLocked(job.ID)
	if err := s.jobs.DeleteJob(ctx, job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
		log.Printf("[scheduler] failed to delete finished job %s: %v", job.ID, err)
		return
	}
	log.Printf("[scheduler] job %s completed %d/%d runs, removed", job.ID, job.RunCount, job.MaxRuns)
}

func defaultJobName(request string) string {
	name := request
	if len(name) > 40 {
		name = name[:37] + "..."
	}
	return name
}
