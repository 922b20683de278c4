// Package agent drives one request from raw text to a delivered, logged
// outcome.
//
// A run is a small state machine:
//
//	MemoryCheck -> PlanCompile -> Route -> Dispatch <-> Retry -> (Summarize) -> Deliver -> Log
//
// Individual task failures never abort a run. They are recorded, retried
// while the retry policy allows it, and the run then moves forward so the
// user always receives a report. The only early exit is a memory "skip"
// verdict, which jumps straight to Deliver.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Hemesh11/autotasker/internal/governance"
	"github.com/Hemesh11/autotasker/internal/memory"
	"github.com/Hemesh11/autotasker/internal/observability"
	"github.com/Hemesh11/autotasker/internal/retry"
	"github.com/Hemesh11/autotasker/internal/tools"
)

type node int

const (
	nodeMemoryCheck node = iota
	nodePlanCompile
	nodeRoute
	nodeDispatch
	nodeAfterDispatch
	nodeRetry
	nodeSummarize
	nodeDeliver
	nodeLog
	nodeEnd
)

var nodeNames = map[node]string{
	nodeMemoryCheck:   "memory_check",
	nodePlanCompile:   "plan",
	nodeRoute:         "route",
	nodeDispatch:      "dispatch",
	nodeAfterDispatch: "after_dispatch",
	nodeRetry:         "retry",
	nodeSummarize:     "summarize",
	nodeDeliver:       "deliver",
	nodeLog:           "log",
}

// Orchestrator is the workflow execution engine. It is safe to call Run
// concurrently; each run owns its WorkflowState.
type Orchestrator struct {
	planner   Planner
	executors *tools.Registry
	notifier  Notifier
	memory    Memory
	retry     *retry.Policy
	logger    ExecutionLogger
	policy    governance.PolicyEngine
	events    *observability.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithMemory(m Memory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

func WithRetryPolicy(p *retry.Policy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

func WithExecutionLogger(l ExecutionLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithPolicy(p governance.PolicyEngine) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithEventLogger(l *observability.Logger) Option {
	return func(o *Orchestrator) { o.events = l }
}

// WithSleep replaces the backoff wait between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the required collaborators. Memory, execution
// logging and policy checks are optional.
func NewOrchestrator(planner Planner, executors *tools.Registry, notifier Notifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:   planner,
		executors: executors,
		notifier:  notifier,
		retry:     retry.NewPolicy(retry.DefaultConfig()),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunOption adjusts a single run.
type RunOption func(*runConfig)

type runConfig struct {
	source     string
	skipMemory bool
}

// WithSource tags the run with its entry point (cli, telegram, scheduler:<id>).
func WithSource(source string) RunOption {
	return func(c *runConfig) { c.source = source }
}

// WithoutMemoryCheck bypasses duplicate suppression for this run.
func WithoutMemoryCheck() RunOption {
	return func(c *runConfig) { c.skipMemory = true }
}

// Run executes request end to end and returns the final state. It never
// returns an error: every collaborator failure ends up in state.Errors.
func (o *Orchestrator) Run(ctx context.Context, request string, opts ...RunOption) *WorkflowState {
	cfg := runConfig{source: "direct"}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := newWorkflowState(uuid.NewString(), request, cfg.source, o.now())
	done := observability.BeginRun(observability.RoleOrchestrator, request)
	defer done()

	log.Printf("[orchestrator] run %s started (source=%s): %s", st.ExecutionID, st.Source, request)

	n := nodeMemoryCheck
	for n != nodeEnd {
		n = o.step(ctx, st, n, cfg)
	}

	log.Printf("[orchestrator] run %s finished: %s", st.ExecutionID, OutcomeSummary(st))
	return st
}

// step runs one node and converts a panic into a recorded error so no
// collaborator failure escapes the run.
func (o *Orchestrator) step(ctx context.Context, st *WorkflowState, n node, cfg runConfig) (next node) {
	defer func() {
		if r := recover(); r != nil {
			st.Errors = append(st.Errors, fmt.Sprintf("%s: panic: %v", nodeNames[n], r))
			switch n {
			case nodeDeliver:
				next = nodeLog
			case nodeLog:
				next = nodeEnd
			default:
				st.pendingError = false
				next = nodeDeliver
			}
		}
	}()

	switch n {
	case nodeMemoryCheck:
		return o.memoryCheck(st, cfg)
	case nodePlanCompile:
		return o.compilePlan(ctx, st)
	case nodeRoute:
		return o.selectNextDispatch(ctx, st)
	case nodeDispatch:
		return o.dispatch(ctx, st)
	case nodeAfterDispatch:
		return o.afterDispatch(st)
	case nodeRetry:
		return o.handleRetry(ctx, st)
	case nodeSummarize:
		return o.summarize(ctx, st)
	case nodeDeliver:
		return o.deliver(ctx, st)
	case nodeLog:
		return o.logRun(ctx, st)
	}
	return nodeEnd
}

func (o *Orchestrator) memoryCheck(st *WorkflowState, cfg runConfig) node {
	if cfg.skipMemory || o.memory == nil {
		st.Memory = memory.Verdict{
			MatchType: memory.MatchNone,
			Signature: memory.Signature(st.Request),
			Reason:    "memory check bypassed",
		}
		return nodePlanCompile
	}

	st.Memory = o.memory.Check(st.Request)
	o.events.Log(observability.Event{
		Type:        observability.EventTypeMemoryCheck,
		ExecutionID: st.ExecutionID,
		Data:        st.Memory,
	})
	if st.Memory.ShouldSkip {
		log.Printf("[orchestrator] run %s skipped: %s", st.ExecutionID, st.Memory.Reason)
		st.Skipped = true
		return nodeDeliver
	}
	return nodePlanCompile
}

func (o *Orchestrator) compilePlan(ctx context.Context, st *WorkflowState) node {
	var plan *TaskPlan
	var err error
	if o.planner == nil {
		err = fmt.Errorf("no planner configured")
	} else {
		plan, err = o.safePlan(ctx, st.Request)
	}
	if err == nil && plan == nil {
		err = fmt.Errorf("planner returned no plan")
	}
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("plan: %v (using fallback plan)", err))
		plan = FallbackPlan(st.Request)
	}

	st.Plan = PreparePlan(plan, st.Request)
	st.Cursor = 0
	o.events.Log(observability.Event{
		Type:        observability.EventTypePlan,
		ExecutionID: st.ExecutionID,
		Data:        st.Plan,
	})
	return nodeRoute
}

func (o *Orchestrator) safePlan(ctx context.Context, request string) (plan *TaskPlan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("planner panic: %v", r)
		}
	}()
	return o.planner.CompilePlan(ctx, request)
}

// selectNextDispatch picks the lane for tasks[cursor]. Each Kind maps to
// exactly one lane; notify and unmatched kinds go straight to delivery.
func (o *Orchestrator) selectNextDispatch(ctx context.Context, st *WorkflowState) node {
	if err := ctx.Err(); err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("route: run cancelled: %v", err))
		return nodeDeliver
	}
	if st.Plan == nil || st.Cursor >= len(st.Plan.Tasks) {
		return nodeDeliver
	}

	switch st.Plan.Tasks[st.Cursor].Kind {
	case tools.KindMail, tools.KindSourceControl, tools.KindQuestionGen, tools.KindCalendar:
		return nodeDispatch
	default:
		st.deliverVia = st.Cursor
		return nodeDeliver
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, st *WorkflowState) node {
	task := st.Plan.Tasks[st.Cursor]
	key := fmt.Sprintf("%s_%d", task.Kind, st.Cursor)

	res, err := o.executeTask(ctx, st, task)
	st.putResult(key, res)
	st.Cursor++
	st.lastTask = &task
	st.lastKey = key

	o.events.Log(observability.Event{
		Type:        observability.EventTypeDispatch,
		ExecutionID: st.ExecutionID,
		Data: map[string]any{
			"key":     key,
			"task_id": task.ID,
			"success": res.Success && err == nil,
			"error":   res.Error,
		},
	})

	if err == nil && !res.Success {
		err = fmt.Errorf("%s", firstNonEmpty(res.Error, "task reported failure"))
	}
	if err != nil {
		msg := fmt.Sprintf("dispatch %s[%s]: %v", task.Kind, task.ID, err)
		st.Errors = append(st.Errors, msg)
		st.taskErrors[task.ID] = append(st.taskErrors[task.ID], msg)
		st.RetryCount++
		st.pendingError = true
		log.Printf("[orchestrator] run %s: %s", st.ExecutionID, msg)
	}
	return nodeAfterDispatch
}

func (o *Orchestrator) executeTask(ctx context.Context, st *WorkflowState, task tools.TaskDescriptor) (res tools.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = tools.ExecutionResult{Success: false, Error: fmt.Sprintf("executor panic: %v", r)}
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()

	if o.policy != nil {
		args, _ := json.Marshal(map[string]any{
			"description": task.Description,
			"parameters":  task.Parameters,
		})
		decision, perr := o.policy.Evaluate(ctx, governance.Request{
			Kind:        string(task.Kind),
			Arguments:   string(args),
			RequestText: st.Request,
		})
		o.events.Log(observability.Event{
			Type:        observability.EventTypePolicyCheck,
			ExecutionID: st.ExecutionID,
			Data:        map[string]any{"task_id": task.ID, "effect": decision.Effect, "reason": decision.Reason},
		})
		if perr != nil {
			return tools.Failure(perr), perr
		}
		if decision.Effect == governance.EffectDeny {
			e := fmt.Errorf("forbidden by policy: %s", decision.Reason)
			return tools.Failure(e), e
		}
	}

	res, err = o.executors.Execute(ctx, task)
	if err != nil && res.Error == "" {
		res.Success = false
		res.Error = err.Error()
	}
	return res, err
}

func (o *Orchestrator) afterDispatch(st *WorkflowState) node {
	if st.pendingError {
		if st.RetryCount <= o.retry.Ceiling() {
			return nodeRetry
		}
		st.pendingError = false
	}
	if o.wantsSummary(st) {
		return nodeSummarize
	}
	return nodeRoute
}

func (o *Orchestrator) wantsSummary(st *WorkflowState) bool {
	if st.lastTask == nil || st.lastTask.Kind != tools.KindMail || st.summarized[st.lastKey] {
		return false
	}
	if st.lastTask.StringParam("action", "fetch") != "fetch" {
		return false
	}
	res, ok := st.Results[st.lastKey]
	return ok && res.Success && o.executors.Get(tools.KindSummarize) != nil
}

// handleRetry asks the retry policy about the current task. On retry the
// cursor steps back so the same task runs again; otherwise the run moves on
// with the error recorded.
func (o *Orchestrator) handleRetry(ctx context.Context, st *WorkflowState) node {
	st.pendingError = false
	kind := tools.KindOther
	var errs []string
	if st.lastTask != nil {
		kind = st.lastTask.Kind
		errs = st.taskErrors[st.lastTask.ID]
	}

	d := o.retry.Decide(errs, st.RetryCount, kind)
	st.Retries = append(st.Retries, d)
	o.events.Log(observability.Event{
		Type:        observability.EventTypeRetry,
		ExecutionID: st.ExecutionID,
		Data:        d,
	})

	if !d.ShouldRetry {
		// Exhausted or permanent failures still continue to delivery.
		log.Printf("[orchestrator] run %s: not retrying %s (%s), continuing", st.ExecutionID, st.lastKey, d.Reason)
		return nodeRoute
	}

	log.Printf("[orchestrator] run %s: retrying %s in %.1fs (%s)", st.ExecutionID, st.lastKey, d.DelaySeconds, d.Reason)
	if err := o.sleep(ctx, d.Delay()); err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("retry: wait interrupted: %v", err))
		return nodeDeliver
	}
	st.Cursor--
	if st.Cursor < 0 {
		st.Cursor = 0
	}
	return nodeRoute
}

func (o *Orchestrator) summarize(ctx context.Context, st *WorkflowState) node {
	st.summarized[st.lastKey] = true
	source := st.Results[st.lastKey]
	index := st.Cursor - 1
	task := tools.TaskDescriptor{
		ID:          fmt.Sprintf("summary_%d", index),
		Kind:        tools.KindSummarize,
		Description: "Summarize fetched mail",
		Parameters: map[string]any{
			"content": source.Content,
			"source":  st.lastKey,
		},
	}
	if sd, ok := source.StructuredData.(map[string]any); ok {
		if html, ok := sd["html"].(string); ok {
			task.Parameters["html"] = html
		}
	}

	res, err := o.executeTask(ctx, st, task)
	if err == nil && !res.Success {
		err = fmt.Errorf("%s", firstNonEmpty(res.Error, "summarizer reported failure"))
	}
	st.putResult(fmt.Sprintf("%s_%d", tools.KindSummarize, index), res)
	if err != nil {
		st.Errors = append(st.Errors, fmt.Sprintf("summarize %s: %v", st.lastKey, err))
	}
	return nodeRoute
}

func (o *Orchestrator) deliver(ctx context.Context, st *WorkflowState) node {
	subject, body := BuildReport(st)
	if st.deliverVia >= 0 && st.Plan != nil {
		if s := st.Plan.Tasks[st.deliverVia].StringParam("subject", ""); s != "" && st.Plan.Tasks[st.deliverVia].Kind == tools.KindNotify {
			subject = s
		}
	}

	var res tools.ExecutionResult
	var err error
	if o.notifier == nil {
		err = fmt.Errorf("no notifier configured")
		res = tools.Failure(err)
	} else {
		res, err = o.safeDeliver(ctx, subject, body)
	}
	if err == nil && !res.Success {
		err = fmt.Errorf("%s", firstNonEmpty(res.Error, "notifier reported failure"))
	}
	if err != nil {
		res.Success = false
		if res.Error == "" {
			res.Error = err.Error()
		}
		st.Errors = append(st.Errors, fmt.Sprintf("deliver: %v", err))
		log.Printf("[orchestrator] run %s: delivery failed: %v", st.ExecutionID, err)
	}

	st.Delivery = &res
	if st.deliverVia >= 0 && st.Plan != nil && st.Plan.Tasks[st.deliverVia].Kind == tools.KindNotify {
		st.putResult(deliveryKey(st.deliverVia), res)
	}

	o.events.Log(observability.Event{
		Type:        observability.EventTypeDeliver,
		ExecutionID: st.ExecutionID,
		Data:        map[string]any{"subject": subject, "success": res.Success, "error": res.Error},
	})
	return nodeLog
}

func (o *Orchestrator) safeDeliver(ctx context.Context, subject, body string) (res tools.ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return o.notifier.Deliver(ctx, subject, body)
}

func (o *Orchestrator) logRun(ctx context.Context, st *WorkflowState) node {
	st.FinishedAt = o.now()
	st.Success = runSucceeded(st)

	if o.memory != nil {
		rec := memory.Record{
			Timestamp:        st.FinishedAt,
			RequestText:      st.Request,
			RequestSignature: st.Memory.Signature,
			Success:          st.Success,
			ExecutionID:      st.ExecutionID,
			DomainsTouched:   st.DomainsTouched(),
		}
		if err := o.memory.Record(rec); err != nil {
			log.Printf("[orchestrator] run %s: failed to record memory: %v", st.ExecutionID, err)
		}
	}

	entry := ExecutionLog{
		ExecutionID: st.ExecutionID,
		Source:      st.Source,
		Request:     st.Request,
		Plan:        st.Plan,
		Results:     st.Results,
		Errors:      st.Errors,
		RetryCount:  st.RetryCount,
		Skipped:     st.Skipped,
		Success:     st.Success,
		StartedAt:   st.StartedAt,
		Duration:    st.Duration(),
	}
	if o.logger != nil {
		if _, err := o.safeRecord(ctx, entry); err != nil {
			log.Printf("[orchestrator] run %s: failed to write execution log: %v", st.ExecutionID, err)
		}
	}
	o.events.Log(observability.Event{
		Type:        observability.EventTypeExecution,
		ExecutionID: st.ExecutionID,
		Data: map[string]any{
			"success":     st.Success,
			"skipped":     st.Skipped,
			"errors":      len(st.Errors),
			"retry_count": st.RetryCount,
			"duration_ms": st.Duration().Milliseconds(),
		},
	})
	return nodeEnd
}

func (o *Orchestrator) safeRecord(ctx context.Context, entry ExecutionLog) (receipt LogReceipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execution logger panic: %v", r)
		}
	}()
	return o.logger.RecordExecution(ctx, entry)
}

func runSucceeded(st *WorkflowState) bool {
	if st.Delivery == nil || !st.Delivery.Success {
		return false
	}
	for _, res := range st.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
