// Package app wires configuration, storage, executors, the orchestrator,
// the scheduler and the delivery channels into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/gateway"
	"github.com/Hemesh11/autotasker/internal/governance"
	"github.com/Hemesh11/autotasker/internal/memory"
	"github.com/Hemesh11/autotasker/internal/observability"
	"github.com/Hemesh11/autotasker/internal/retry"
	"github.com/Hemesh11/autotasker/internal/scheduler"
	"github.com/Hemesh11/autotasker/internal/store"
	"github.com/Hemesh11/autotasker/internal/tools"
	"github.com/Hemesh11/autotasker/pkg/config"
)

const defaultModel = "gpt-4o-mini"

// Options adjusts how New builds the application.
type Options struct {
	// Out receives console reports. Defaults to os.Stdout.
	Out io.Writer
	// Events receives structured JSON events. Defaults to io.Discard.
	Events io.Writer
	// Model replaces the configured LLM provider.
	Model llms.Model
	// Sleep replaces the retry backoff sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// App is the assembled process. Close releases the database.
type App struct {
	Config       *config.Config
	DB           *store.DB
	Memory       *memory.Store
	Events       *observability.Logger
	Executors    *tools.Registry
	Notifier     *gateway.MultiNotifier
	Orchestrator *agent.Orchestrator
	Scheduler    *scheduler.Scheduler

	model llms.Model
}

func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Events == nil {
		opts.Events = io.Discard
	}

	db, err := store.Open(cfg.Scheduler.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	memOpts := memory.DefaultOptions()
	memOpts.Retention = time.Duration(cfg.Memory.RetentionDays) * 24 * time.Hour
	memOpts.SimilarityThreshold = cfg.Memory.SimilarityThreshold
	memOpts.CandidateFloor = cfg.Memory.CandidateFloor
	mem, err := memory.Open(cfg.Memory.Path, memOpts)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Memory: mem,
		Events: observability.NewLoggerTo(opts.Events, cfg.App.LogDir),
		model:  opts.Model,
	}
	if a.model == nil {
		if a.model, err = newModel(cfg); err != nil {
			log.Printf("[app] llm provider unavailable: %v", err)
		}
	}

	prompts := agent.NewPromptManager(cfg.App.PromptsDir)
	a.Executors = a.buildExecutors(prompts)

	a.Notifier, err = buildNotifier(cfg, opts.Out)
	if err != nil {
		db.Close()
		return nil, err
	}

	policy, err := buildPolicy(cfg.Policy)
	if err != nil {
		db.Close()
		return nil, err
	}

	var planner agent.Planner = agent.PlannerFunc(func(ctx context.Context, request string) (*agent.TaskPlan, error) {
		return nil, errors.New("no llm provider configured")
	})
	if a.model != nil {
		planner = agent.NewLLMPlanner(a.model, prompts, a.Events)
	}

	orchOpts := []agent.Option{
		agent.WithMemory(mem),
		agent.WithRetryPolicy(retry.NewPolicy(retry.Config{
			Ceiling:    cfg.Retry.Ceiling,
			BaseDelay:  cfg.Retry.BaseDelay,
			Multiplier: cfg.Retry.Multiplier,
			MaxDelay:   cfg.Retry.MaxDelay,
		})),
		agent.WithExecutionLogger(db),
		agent.WithPolicy(policy),
		agent.WithEventLogger(a.Events),
	}
	if opts.Sleep != nil {
		orchOpts = append(orchOpts, agent.WithSleep(opts.Sleep))
	}
	a.Orchestrator = agent.NewOrchestrator(planner, a.Executors, a.Notifier, orchOpts...)

	a.Scheduler = scheduler.New(a.Orchestrator, db, db, scheduler.Options{
		Workers:      cfg.Scheduler.Workers,
		BypassMemory: *cfg.Scheduler.BypassMemory,
		SyncInterval: cfg.Scheduler.SyncInterval,
		Events:       a.Events,
		Location:     cfg.Location(),
	})
	return a, nil
}

func newModel(cfg *config.Config) (llms.Model, error) {
	name, p := cfg.GetDefaultProvider()
	if name == "" {
		return nil, errors.New("no enabled provider with an api key")
	}
	switch name {
	case "openai", "openrouter":
		model := p.Model
		if model == "" {
			model = defaultModel
		}
		opts := []openai.Option{
			openai.WithToken(p.APIKey),
			openai.WithModel(model),
		}
		if p.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(p.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("provider %s is not supported", name)
	}
}

func (a *App) buildExecutors(prompts *agent.PromptManager) *tools.Registry {
	cfg := a.Config
	registry := tools.NewRegistry()

	mail := &tools.MailExecutor{DefaultTo: cfg.Gateways.Email.To}
	if cfg.Gmail.AccessToken != "" {
		mail.Mailbox = tools.NewGmailMailbox(cfg.Gmail.AccessToken)
	}
	if cfg.Gateways.Email.SMTP.Host != "" {
		mail.Sender = smtpMailer(cfg.Gateways.Email.SMTP)
	}
	registry.Register(tools.KindMail, mail)

	registry.Register(tools.KindSourceControl,
		tools.NewSourceControlExecutor(cfg.GitHub.Token, cfg.GitHub.APIURL, cfg.GitHub.DefaultRepo))
	registry.Register(tools.KindQuestionGen, tools.NewQuestionGenExecutor(a.model, prompts))
	registry.Register(tools.KindSummarize, tools.NewSummarizeExecutor(a.model, prompts))
	registry.Register(tools.KindCalendar, tools.NewCalendarExecutor(a.DB))
	return registry
}

func smtpMailer(c config.SMTPConfig) *tools.SMTPMailer {
	return &tools.SMTPMailer{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
	}
}

// buildNotifier registers every enabled outbound channel. Telegram is added
// later by Serve because it needs a live bot connection. The console is the
// fallback whenever no other channel ends up registered.
func buildNotifier(cfg *config.Config, out io.Writer) (*gateway.MultiNotifier, error) {
	n := gateway.NewMultiNotifier()
	gw := cfg.Gateways

	if gw.Discord.Enabled {
		d, err := gateway.NewDiscordNotifier(gw.Discord.Token, gw.Discord.ChannelID)
		if err != nil {
			return nil, err
		}
		n.Add("discord", d)
	}
	if gw.Email.Enabled {
		if gw.Email.SMTP.Host == "" || len(gw.Email.To) == 0 {
			return nil, errors.New("email gateway needs smtp.host and at least one recipient")
		}
		n.Add("email", &gateway.EmailNotifier{Sender: smtpMailer(gw.Email.SMTP), To: gw.Email.To})
	}
	console := gateway.NewConsoleNotifier(out)
	if gw.Console.Enabled {
		n.Add("console", console)
	} else {
		n.SetFallback("console", console)
	}
	return n, nil
}

func buildPolicy(c config.PolicyConfig) (*governance.Rules, error) {
	gov := governance.NewRules()
	for _, k := range c.DeniedKinds {
		gov.DenyKind(string(tools.ParseKind(k)))
	}
	for _, p := range c.DeniedPatterns {
		if err := gov.DenyPattern("", p); err != nil {
			return nil, err
		}
	}
	for kind, patterns := range c.KindPatterns {
		for _, p := range patterns {
			if err := gov.DenyPattern(string(tools.ParseKind(kind)), p); err != nil {
				return nil, err
			}
		}
	}
	return gov, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// RunOnce executes a request immediately.
func (a *App) RunOnce(ctx context.Context, request string) *agent.WorkflowState {
	return a.Orchestrator.Run(ctx, request)
}

// ScheduleRecurring stores a job that re-runs request on spec.
func (a *App) ScheduleRecurring(ctx context.Context, request string, spec scheduler.TriggerSpec, name string) (string, error) {
	return a.Scheduler.Schedule(ctx, request, spec, name)
}

// ScheduleNatural schedules request from a phrase like "every day at 9am".
func (a *App) ScheduleNatural(ctx context.Context, request, phrase, name string) (string, error) {
	spec, err := scheduler.ParseNatural(phrase)
	if err != nil {
		return "", err
	}
	return a.ScheduleRecurring(ctx, request, spec, name)
}

func (a *App) RemoveJob(ctx context.Context, id string) error {
	return a.Scheduler.Remove(ctx, id)
}

func (a *App) PauseJob(ctx context.Context, id string) error {
	return a.Scheduler.Pause(ctx, id)
}

func (a *App) ResumeJob(ctx context.Context, id string) error {
	return a.Scheduler.Resume(ctx, id)
}

func (a *App) ListJobs(ctx context.Context) ([]scheduler.JobSummary, error) {
	return a.Scheduler.List(ctx)
}

// History returns the most recent scheduler firings and orchestrator runs.
func (a *App) History(ctx context.Context, limit int) ([]scheduler.Firing, []agent.ExecutionLog, error) {
	firings, err := a.DB.ListFirings(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read firings: %w", err)
	}
	runs, err := a.DB.ListRuns(ctx, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return firings, runs, nil
}
