package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hemesh11/autotasker/internal/app"
	"github.com/Hemesh11/autotasker/internal/observability"
	"github.com/Hemesh11/autotasker/pkg/config"
)

const version = "0.3.0"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "autotasker",
	Short:         "Plan, run and schedule personal automation requests",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print structured events")

	rootCmd.AddCommand(runCmd, scheduleCmd, jobsCmd, historyCmd, serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openApp loads the config and assembles the application.
func openApp(events bool) (*app.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	opts := app.Options{Out: os.Stdout}
	if events || verbose {
		opts.Events = os.Stdout
	}
	return app.New(cfg, opts)
}

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a request once and deliver the report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st := a.RunOnce(ctx, joinArgs(args))
		printOutcome(st.Success, st.ExecutionID, st.Errors)
		if !st.Success {
			return fmt.Errorf("run %s did not fully succeed", st.ExecutionID)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("autotasker", version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and chat gateways until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.PrintBanner(version)

		interactive := observability.IsTerminal()
		if interactive {
			// keep log lines from tearing the status line
			log.SetOutput(observability.NewTermWriter())
		}

		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if interactive {
			go func() {
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						observability.PrintLiveStatus(a.Scheduler.Active())
					}
				}
			}()
		}

		err = a.Serve(ctx)
		fmt.Println()
		log.Println("[autotasker] shut down")
		return err
	},
}
