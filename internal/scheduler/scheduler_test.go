package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/tools"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]Job)}
}

func (m *memJobStore) SaveJob(ctx context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobStore) GetJob(ctx context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

func (m *memJobStore) ListJobs(ctx context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *memJobStore) DeleteJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(m.jobs, id)
	return nil
}

func (m *memJobStore) SetPaused(ctx context.Context, id string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.Paused = paused
	m.jobs[id] = j
	return nil
}

func (m *memJobStore) RecordFiring(ctx context.Context, id string, firedAt time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	j.RunCount++
	j.LastFiredAt = firedAt
	m.jobs[id] = j
	return j.RunCount, nil
}

type memHistory struct {
	mu      sync.Mutex
	firings []Firing
}

func (h *memHistory) AppendFiring(ctx context.Context, f Firing) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.firings = append(h.firings, f)
	return nil
}

func (h *memHistory) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.firings)
}

type countingRunner struct {
	calls   atomic.Int32
	sources sync.Map
	delay   time.Duration
	active  atomic.Int32
	overlap atomic.Bool
}

func (r *countingRunner) Run(ctx context.Context, request string, opts ...agent.RunOption) *agent.WorkflowState {
	if r.active.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.active.Add(-1)
	n := r.calls.Add(1)
	time.Sleep(r.delay)
	delivered := tools.ExecutionResult{Success: true}
	return &agent.WorkflowState{
		ExecutionID: fmt.Sprintf("exec-%d", n),
		Request:     request,
		Results:     map[string]tools.ExecutionResult{},
		Delivery:    &delivered,
		Success:     true,
	}
}

func TestSchedule_BoundedIntervalFiresExactlyMaxRuns(t *testing.T) {
	store := newMemJobStore()
	history := &memHistory{}
	runner := &countingRunner{}
	s := New(runner, store, history, Options{Workers: 4})

	id, err := s.Schedule(context.Background(), "ping me", TriggerSpec{Type: TriggerBoundedInterval, Value: "1:3"}, "ping")
	require.NoError(t, err)

	jobs, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, 3, jobs[0].MaxRuns)
	assert.False(t, jobs[0].NextFire.IsZero())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		jobs, err := s.List(context.Background())
		return err == nil && len(jobs) == 0
	}, 8*time.Second, 50*time.Millisecond)

	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int32(3), runner.calls.Load())
	assert.Equal(t, 3, history.len())
	assert.Equal(t, 0, s.Active())

	_, err = s.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSchedule_InvalidTrigger(t *testing.T) {
	s := New(&countingRunner{}, newMemJobStore(), nil, Options{})
	_, err := s.Schedule(context.Background(), "x", TriggerSpec{Type: "daily", Value: "25:00"}, "")
	assert.ErrorIs(t, err, ErrInvalidTrigger)

	jobs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSchedule_DefaultName(t *testing.T) {
	s := New(&countingRunner{}, newMemJobStore(), nil, Options{})
	id, err := s.Schedule(context.Background(), "Send me 2 coding questions", TriggerSpec{Type: "daily", Value: "09:00"}, "")
	require.NoError(t, err)

	sum, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Send me 2 coding questions", sum.Name)
	assert.Equal(t, "every day at 09:00", sum.Description)
}

func TestRemovePauseResume(t *testing.T) {
	store := newMemJobStore()
	s := New(&countingRunner{}, store, nil, Options{})
	ctx := context.Background()

	id, err := s.Schedule(ctx, "daily digest", TriggerSpec{Type: "daily", Value: "08:00"}, "digest")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Active())

	require.NoError(t, s.Pause(ctx, id))
	assert.Equal(t, 0, s.Active())
	sum, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, sum.Paused)
	assert.True(t, sum.NextFire.IsZero())

	require.NoError(t, s.Resume(ctx, id))
	assert.Equal(t, 1, s.Active())
	sum, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, sum.Paused)
	assert.False(t, sum.NextFire.IsZero())

	require.NoError(t, s.Remove(ctx, id))
	assert.Equal(t, 0, s.Active())
	assert.ErrorIs(t, s.Remove(ctx, id), ErrJobNotFound)
	assert.ErrorIs(t, s.Pause(ctx, "missing"), ErrJobNotFound)
	assert.ErrorIs(t, s.Resume(ctx, "missing"), ErrJobNotFound)
}

func TestFiringsOfOneJobNeverOverlap(t *testing.T) {
	runner := &countingRunner{delay: 2500 * time.Millisecond}
	s := New(runner, newMemJobStore(), nil, Options{Workers: 4})

	_, err := s.Schedule(context.Background(), "slow", TriggerSpec{Type: TriggerInterval, Value: "1"}, "slow")
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(2 * time.Second)
	s.Stop()

	assert.False(t, runner.overlap.Load())
}

func TestSync_PicksUpExternalChanges(t *testing.T) {
	store := newMemJobStore()
	s := New(&countingRunner{}, store, nil, Options{})
	ctx := context.Background()

	require.NoError(t, store.SaveJob(ctx, Job{
		ID:      "external",
		Name:    "from cli",
		Request: "check mail",
		Trigger: TriggerSpec{Type: TriggerDaily, Value: "07:30"},
	}))
	require.NoError(t, store.SaveJob(ctx, Job{
		ID:       "spent",
		Request:  "ping",
		Trigger:  TriggerSpec{Type: TriggerBoundedInterval, Value: "60:2"},
		RunCount: 2,
		MaxRuns:  2,
	}))

	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, 1, s.Active())
	_, err := store.GetJob(ctx, "spent")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, store.DeleteJob(ctx, "external"))
	require.NoError(t, s.Sync(ctx))
	assert.Equal(t, 0, s.Active())
}

func TestFire_UsesSchedulerSourceAndRecordsFiring(t *testing.T) {
	store := newMemJobStore()
	history := &memHistory{}
	var gotSource atomic.Value
	runner := runnerFunc(func(ctx context.Context, request string, opts ...agent.RunOption) *agent.WorkflowState {
		o := agent.NewOrchestrator(
			agent.PlannerFunc(func(ctx context.Context, request string) (*agent.TaskPlan, error) {
				return &agent.TaskPlan{Tasks: []tools.TaskDescriptor{{ID: "n", Kind: tools.KindNotify}}}, nil
			}),
			tools.NewRegistry(),
			agent.NotifierFunc(func(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
				return tools.ExecutionResult{Success: true}, nil
			}),
		)
		st := o.Run(ctx, request, opts...)
		gotSource.Store(st.Source)
		return st
	})

	s := New(runner, store, history, Options{})
	id, err := s.Schedule(context.Background(), "hello", TriggerSpec{Type: TriggerInterval, Value: "3600"}, "hourly")
	require.NoError(t, err)

	s.fire(id)

	assert.Equal(t, "scheduler:"+id, gotSource.Load())
	require.Equal(t, 1, history.len())
	assert.Equal(t, id, history.firings[0].JobID)
	assert.True(t, history.firings[0].Success)
	assert.Contains(t, history.firings[0].Outcome, "ok")

	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, job.RunCount)
	assert.False(t, job.LastFiredAt.IsZero())
}

type runnerFunc func(ctx context.Context, request string, opts ...agent.RunOption) *agent.WorkflowState

func (f runnerFunc) Run(ctx context.Context, request string, opts ...agent.RunOption) *agent.WorkflowState {
	return f(ctx, request, opts...)
}

// gatedRunner blocks every run until release is closed.
type gatedRunner struct {
	entered atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedRunner) Run(ctx context.Context, request string, opts ...agent.RunOption) *agent.WorkflowState {
	r.entered.Add(1)
	r.once.Do(func() { close(r.started) })
	<-r.release
	return &agent.WorkflowState{Request: request, Success: true}
}

func TestPauseResumeDuringFiringDoesNotOverlap(t *testing.T) {
	runner := &gatedRunner{started: make(chan struct{}), release: make(chan struct{})}
	s := New(runner, newMemJobStore(), nil, Options{Workers: 4})
	ctx := context.Background()

	id, err := s.Schedule(ctx, "slow", TriggerSpec{Type: TriggerInterval, Value: "1"}, "slow")
	require.NoError(t, err)
	require.NoError(t, s.Start(ctx))

	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	// the job gets a fresh cron entry while its first firing is blocked
	require.NoError(t, s.Pause(ctx, id))
	require.NoError(t, s.Resume(ctx, id))
	time.Sleep(2500 * time.Millisecond)

	assert.Equal(t, int32(1), runner.entered.Load())

	close(runner.release)
	s.Stop()
}

// vanishingStore drops the job between the lookup and the counter update.
type vanishingStore struct {
	*memJobStore
}

func (v vanishingStore) RecordFiring(ctx context.Context, id string, firedAt time.Time) (int, error) {
	if err := v.DeleteJob(ctx, id); err != nil {
		return 0, err
	}
	return v.memJobStore.RecordFiring(ctx, id, firedAt)
}

func TestFire_JobRemovedBeforeCounterUpdate(t *testing.T) {
	runner := &countingRunner{}
	history := &memHistory{}
	s := New(runner, vanishingStore{newMemJobStore()}, history, Options{})

	id, err := s.Schedule(context.Background(), "hello", TriggerSpec{Type: TriggerInterval, Value: "3600"}, "hourly")
	require.NoError(t, err)

	s.fire(id)

	assert.Zero(t, runner.calls.Load())
	assert.Zero(t, history.len())
	assert.Equal(t, 0, s.Active())
}
