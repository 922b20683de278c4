package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Hemesh11/autotasker/internal/app"
	"github.com/Hemesh11/autotasker/internal/scheduler"
)

var (
	triggerType  string
	triggerValue string
	when         string
	jobName      string
	historyLimit int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <request>",
	Short: "Schedule a request to run on a recurring trigger",
	Long: `Schedule a request with an explicit trigger:

  autotasker schedule "send me 2 dsa questions" --type daily --value 09:00
  autotasker schedule "ping me" --type bounded_interval --value 60:3

or with a phrase:

  autotasker schedule "summarize my inbox" --when "every weekday at 8am"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var spec scheduler.TriggerSpec
		switch {
		case when != "":
			s, err := scheduler.ParseNatural(when)
			if err != nil {
				return err
			}
			spec = s
		case triggerType != "":
			spec = scheduler.TriggerSpec{Type: scheduler.TriggerType(triggerType), Value: triggerValue}
		default:
			return fmt.Errorf("either --when or --type/--value is required")
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.ScheduleRecurring(cmd.Context(), joinArgs(args), spec, jobName)
		if err != nil {
			return err
		}
		sum, err := a.Scheduler.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		color.Green("Scheduled %s", id)
		fmt.Printf("  %s\n  next run: %s\n", sum.Description, formatNext(sum))
		fmt.Println("  jobs fire while `autotasker serve` is running")
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		jobs, err := a.ListJobs(cmd.Context())
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No scheduled jobs.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tSTATUS\tRUNS\tNEXT")
		for _, j := range jobs {
			status := color.GreenString("active")
			if j.Paused {
				status = color.YellowString("paused")
			}
			runs := fmt.Sprint(j.RunCount)
			if j.MaxRuns > 0 {
				runs = fmt.Sprintf("%d/%d", j.RunCount, j.MaxRuns)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Description, status, runs, formatNext(j))
		}
		return w.Flush()
	},
}

func jobAction(use, short, done string, fn func(cmd *cobra.Command, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fn(cmd, args[0]); err != nil {
				return err
			}
			color.Green("%s %s", done, args[0])
			return nil
		},
	}
}

func init() {
	scheduleCmd.Flags().StringVar(&triggerType, "type", "", "trigger type: daily, weekly, monthly, cron, interval, bounded_interval")
	scheduleCmd.Flags().StringVar(&triggerValue, "value", "", "trigger value, e.g. 09:00, mon:09:00, 1:08:00, \"0 9 * * 1-5\", 3600, 60:3")
	scheduleCmd.Flags().StringVar(&when, "when", "", "natural language trigger, e.g. \"every day at 9am\"")
	scheduleCmd.Flags().StringVar(&jobName, "name", "", "job name (defaults to the start of the request)")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")

	withApp := func(fn func(cmd *cobra.Command, id string, a *app.App) error) func(cmd *cobra.Command, id string) error {
		return func(cmd *cobra.Command, id string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, id, a)
		}
	}
	jobsCmd.AddCommand(
		jobsListCmd,
		jobAction("remove", "Delete a job", "Removed", withApp(func(cmd *cobra.Command, id string, a *app.App) error {
			return a.RemoveJob(cmd.Context(), id)
		})),
		jobAction("pause", "Pause a job", "Paused", withApp(func(cmd *cobra.Command, id string, a *app.App) error {
			return a.PauseJob(cmd.Context(), id)
		})),
		jobAction("resume", "Resume a paused job", "Resumed", withApp(func(cmd *cobra.Command, id string, a *app.App) error {
			return a.ResumeJob(cmd.Context(), id)
		})),
	)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scheduler firings and runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		firings, runs, err := a.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		color.New(color.FgCyan, color.Bold).Println("Runs")
		fmt.Fprintln(w, "STARTED\tSOURCE\tRESULT\tRETRIES\tREQUEST")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Source, result(r.Success, r.Skipped), r.RetryCount, truncate(r.Request, 60))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Println()
		color.New(color.FgCyan, color.Bold).Println("Scheduler firings")
		fmt.Fprintln(w, "FIRED\tJOB\tRESULT\tDURATION\tOUTCOME")
		for _, f := range firings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				f.FiredAt.Format("2006-01-02 15:04:05"), shortID(f.JobID), result(f.Success, false), f.Duration.Round(time.Millisecond), f.Outcome)
		}
		return w.Flush()
	},
}
