// Package executor implements the Pipeline Executor (spec §4.6): stage
// dispatch by scope, the immutable per-run execution context threaded
// through every stage, and the cancellation decorator that turns a set
// cancel signal into the Cancelled sentinel before a stage does any work.
package executor

import (
	"context"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/runs"
	"github.com/genglossary/genglossary/internal/store"
)

// LogCallback emits one structured log/progress event for the run.
type LogCallback func(event logbus.Event)

// ExecutionContext is the immutable record threaded through every stage
// (spec §4.6 "{run_id, log_callback, cancel_signal}"). The executor
// itself holds no per-run state.
type ExecutionContext struct {
	RunID        int64
	Conn         *store.Connection
	LLM          llm.Client
	Log          LogCallback
	CancelSignal <-chan struct{}
	BatchSize    int // default ~10, spec §4.6 Extract/Review batch contract
}

func (ec ExecutionContext) logInfo(message string) {
	if ec.Log != nil {
		ec.Log(logbus.Event{RunID: ec.RunID, Level: logbus.LevelInfo, Message: message})
	}
}

func (ec ExecutionContext) logWarning(message string) {
	if ec.Log != nil {
		ec.Log(logbus.Event{RunID: ec.RunID, Level: logbus.LevelWarning, Message: message})
	}
}

func (ec ExecutionContext) progress(step string, current, total int, term string) {
	if ec.Log != nil {
		ec.Log(logbus.Event{
			RunID: ec.RunID, Level: logbus.LevelInfo, Message: step,
			Step: step, ProgressCurrent: current, ProgressTotal: total, CurrentTerm: term,
		})
	}
}

// checkCancelled is the cancellation decorator from spec §4.6: called
// before a stage starts and around every LLM call / long loop iteration.
// It raises apperr.Cancelled, distinct from a generic failure, so the Run
// Manager's finalizer can translate it to status "cancelled" rather than
// "failed".
func checkCancelled(ec ExecutionContext) error {
	select {
	case <-ec.CancelSignal:
		return apperr.Cancelled
	default:
		return nil
	}
}

// Stage is one of the five dispatch targets.
type Stage = runs.Scope

// Run dispatches by scope to the stage sequence it names (spec §4.6):
// full runs generate → review → refine (extraction is deliberately not
// part of full); the other four scopes run only their own stage. An
// unrecognized scope fails before any write.
func Run(ctx context.Context, ec ExecutionContext, scope Stage) error {
	if err := checkCancelled(ec); err != nil {
		return err
	}

	switch scope {
	case runs.ScopeExtract:
		return Extract(ctx, ec)
	case runs.ScopeGenerate:
		return Generate(ctx, ec)
	case runs.ScopeReview:
		return Review(ctx, ec)
	case runs.ScopeRefine:
		return Refine(ctx, ec)
	case runs.ScopeFull:
		if err := Generate(ctx, ec); err != nil {
			return err
		}
		if err := Review(ctx, ec); err != nil {
			return err
		}
		return Refine(ctx, ec)
	default:
		return apperr.Validationf("unknown pipeline scope %q", scope)
	}
}
