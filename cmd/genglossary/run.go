package main

import (
	"context"
	"fmt"
	"time"

	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/runmanager"
	"github.com/genglossary/genglossary/internal/runs"
	"github.com/genglossary/genglossary/internal/store"
	"github.com/spf13/cobra"
)

var serverAddr string

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "run",
	Short:   "Start, cancel, and watch pipeline runs",
}

var runScope string

var runStartCmd = &cobra.Command{
	Use:   "start <project>",
	Short: "Start a pipeline run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := args[0]
		ctx := cmd.Context()

		if serverAddr != "" {
			run, err := newHTTPClient(serverAddr).startRun(ctx, project, runScope)
			if err != nil {
				return err
			}
			return printJSON(run)
		}

		// No --addr: there is no long-lived daemon to hand the run off
		// to, so this invocation drives the worker itself and blocks
		// until it reaches a terminal state, streaming its own Log Bus
		// in process instead of over SSE.
		return runInProcess(ctx, project, runScope)
	},
}

func runInProcess(ctx context.Context, projectName, scope string) error {
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	project, err := reg.Get(ctx, projectName)
	if err != nil {
		return err
	}

	bus := logbus.New()
	cfg := llm.Config{Provider: project.LLMProvider, Model: project.LLMModel, BaseURL: project.LLMBaseURL}
	manager := runmanager.New(project.DBPath, bus, cfg)

	run, err := manager.StartRun(ctx, runs.Scope(scope), "cli")
	if err != nil {
		return err
	}
	fmt.Printf("started run %d (scope=%s)\n", run.ID, run.Scope)

	logCh, unsubscribe := bus.Subscribe(run.ID)
	defer unsubscribe()
	for event := range logCh {
		if event.Complete {
			break
		}
		printLogEvent(event)
	}

	return store.WithConnection(ctx, project.DBPath, func(conn *store.Connection) error {
		final, err := (runs.Repo{}).Get(ctx, conn.DB, run.ID)
		if err != nil {
			return err
		}
		if final.Status == runs.StatusFailed {
			msg := ""
			if final.ErrorMessage != nil {
				msg = *final.ErrorMessage
			}
			return fmt.Errorf("run %d failed: %s", run.ID, msg)
		}
		fmt.Printf("run %d finished: %s\n", run.ID, final.Status)
		return nil
	})
}

func printLogEvent(event logbus.Event) {
	if event.Step != "" {
		fmt.Printf("[%s] %s (%d/%d) %s\n", event.Level, event.Step, event.ProgressCurrent, event.ProgressTotal, event.Message)
		return
	}
	fmt.Printf("[%s] %s\n", event.Level, event.Message)
}

var runCancelCmd = &cobra.Command{
	Use:   "cancel <project> <run_id>",
	Short: "Cancel the active run for a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID, err := parseRunID(args[1])
		if err != nil {
			return err
		}

		if serverAddr != "" {
			if err := newHTTPClient(serverAddr).cancelRun(ctx, args[0], runID); err != nil {
				return err
			}
			fmt.Println("cancel requested")
			return nil
		}

		// Without a daemon, any run this CLI started has already run to
		// completion synchronously (see runInProcess); this best-effort
		// path exists only to mark a stuck row cancelled directly.
		reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()
		project, err := reg.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return store.WithConnection(ctx, project.DBPath, func(conn *store.Connection) error {
			_, err := (runs.Repo{}).Cancel(ctx, conn.DB, runID)
			return err
		})
	},
}

var runStatusCmd = &cobra.Command{
	Use:   "status <project>",
	Short: "Show the current or most recent run for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if serverAddr != "" {
			run, err := newHTTPClient(serverAddr).currentRun(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(run)
		}

		reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()
		project, err := reg.Get(ctx, args[0])
		if err != nil {
			return err
		}

		var run *runs.Run
		err = store.WithConnection(ctx, project.DBPath, func(conn *store.Connection) error {
			r, err := (runs.Repo{}).GetCurrentOrLatest(ctx, conn.DB)
			run = r
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

var runLogsCmd = &cobra.Command{
	Use:   "logs <project> <run_id>",
	Short: "Stream a run's log events",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID, err := parseRunID(args[1])
		if err != nil {
			return err
		}

		if serverAddr != "" {
			return newHTTPClient(serverAddr).streamLogs(ctx, args[0], runID, func(event, data string) {
				fmt.Printf("%s: %s\n", event, data)
			})
		}

		// No server to stream from: fall back to polling the run's
		// status row until it reaches a terminal state (spec §4.14).
		reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()
		project, err := reg.Get(ctx, args[0])
		if err != nil {
			return err
		}

		for {
			var run *runs.Run
			err := store.WithConnection(ctx, project.DBPath, func(conn *store.Connection) error {
				r, err := (runs.Repo{}).Get(ctx, conn.DB, runID)
				run = r
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("[%s] step=%s progress=%d/%d\n", run.Status, run.CurrentStep, run.ProgressCurrent, run.ProgressTotal)
			if run.Status == runs.StatusCompleted || run.Status == runs.StatusFailed || run.Status == runs.StatusCancelled {
				return nil
			}
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	},
}

func parseRunID(s string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(s, "%d", &id)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}

func init() {
	runStartCmd.Flags().StringVar(&runScope, "scope", string(runs.ScopeFull), "full, extract, generate, review, or refine")
	runCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "address of a running `genglossary serve` instance (e.g. 127.0.0.1:7777); omit to run in-process")

	runCmd.AddCommand(runStartCmd, runCancelCmd, runStatusCmd, runLogsCmd)
	rootCmd.AddCommand(runCmd)
}
