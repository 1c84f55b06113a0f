// Package runmanager implements the Run Manager (spec §4.7): the
// background worker lifecycle, per-run cancellation signals, and the
// finalizer that decides a run's terminal status independently of
// whatever the executor's own try/except observed. The lock order
// start-lock → DB → signals-map-lock and the separate finalizer pass are
// both load-bearing invariants from spec §4.7/§4.7.1, not incidental
// structure.
package runmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/executor"
	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/runs"
	"github.com/genglossary/genglossary/internal/store"
)

// Manager owns the background execution thread(s) and cancellation
// signals for one project.
type Manager struct {
	dbPath string
	bus    *logbus.Bus
	llmCfg llm.Config

	startMu sync.Mutex // the Manager's exclusive start-lock (spec §4.7 step 1)

	signalsMu sync.Mutex
	signals   map[int64]chan struct{}

	batchSize int

	// newLLM builds the adapter for each run; defaults to llm.New but is
	// overridable so tests can exercise the worker lifecycle with a
	// scripted client instead of a real network adapter.
	newLLM func(llm.Config) (llm.Client, error)
}

// New constructs a Manager for the project DB at dbPath.
func New(dbPath string, bus *logbus.Bus, llmCfg llm.Config) *Manager {
	return &Manager{
		dbPath:    dbPath,
		bus:       bus,
		llmCfg:    llmCfg,
		signals:   make(map[int64]chan struct{}),
		batchSize: 10,
		newLLM:    llm.New,
	}
}

// StartRun implements spec §4.7's startRun(scope): reject an unknown scope
// before any write, acquire the start-lock, check-then-insert inside an
// ImmediateTransaction, register a cancellation signal under the same
// lock, then spawn the worker goroutine, which runs without holding the
// lock.
func (m *Manager) StartRun(ctx context.Context, scope runs.Scope, triggeredBy string) (*runs.Run, error) {
	switch scope {
	case runs.ScopeFull, runs.ScopeExtract, runs.ScopeGenerate, runs.ScopeReview, runs.ScopeRefine:
	default:
		return nil, apperr.Validationf("unknown run scope %q", scope)
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	conn, err := store.Open(ctx, m.dbPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	runsRepo := runs.Repo{}
	var created *runs.Run

	err = store.ImmediateTransaction(ctx, conn, func(txCtx context.Context) error {
		tx := store.FromContext(txCtx, conn)

		current, getErr := runsRepo.GetCurrentOrLatest(txCtx, tx.Q())
		if getErr == nil && (current.Status == runs.StatusPending || current.Status == runs.StatusRunning) {
			return apperr.AlreadyRunning
		}
		if getErr != nil && apperr.KindOf(getErr) != apperr.KindNotFound {
			return getErr
		}

		run, createErr := runsRepo.Create(txCtx, tx.Q(), scope, triggeredBy)
		if createErr != nil {
			return createErr
		}
		created = run
		return nil
	})
	if err != nil {
		return nil, err
	}

	signal := make(chan struct{})
	m.signalsMu.Lock()
	m.signals[created.ID] = signal
	m.signalsMu.Unlock()

	go m.executeRun(created.ID, scope, signal)

	return created, nil
}

// StartExtractRun is the watch.Starter hook: it starts an extract run
// triggered by the file watcher, returning apperr.AlreadyRunning
// unmodified so the watcher can log-and-skip instead of retrying.
func (m *Manager) StartExtractRun(ctx context.Context) error {
	_, err := m.StartRun(ctx, runs.ScopeExtract, "watcher")
	return err
}

// Cancel sets the signal for runID (if registered) and issues
// updateIfActive → cancelled; the worker observes the signal at its next
// check and unwinds via apperr.Cancelled (spec §4.7 "Cancellation").
func (m *Manager) Cancel(ctx context.Context, runID int64) error {
	m.signalsMu.Lock()
	signal, ok := m.signals[runID]
	m.signalsMu.Unlock()
	if ok {
		select {
		case <-signal:
			// already closed
		default:
			close(signal)
		}
	}

	return store.WithConnection(ctx, m.dbPath, func(conn *store.Connection) error {
		runsRepo := runs.Repo{}
		_, err := runsRepo.Cancel(ctx, conn.DB, runID)
		return err
	})
}

// executeRun is the worker lifecycle (spec §4.7 "_executeRun"): it opens
// its own connection (embedded SQLite connections must not be shared
// across goroutines issuing concurrent statements), transitions
// pending→running, installs the execution context, and hands off to the
// finalizer regardless of what the executor returned.
func (m *Manager) executeRun(runID int64, scope runs.Scope, signal chan struct{}) {
	ctx := context.Background()
	runsRepo := runs.Repo{}

	conn, err := store.Open(ctx, m.dbPath)
	if err != nil {
		m.bus.Publish(logbus.Event{RunID: runID, Level: logbus.LevelError, Message: fmt.Sprintf("worker failed to open connection: %v", err)})
		m.finalizeWithFreshConnection(runID, err)
		m.cleanup(runID)
		m.bus.Publish(logbus.Event{RunID: runID, Complete: true})
		return
	}
	defer conn.Close()

	if _, err := runsRepo.MarkStarted(ctx, conn.DB, runID); err != nil {
		m.bus.Publish(logbus.Event{RunID: runID, Level: logbus.LevelError, Message: fmt.Sprintf("failed to mark run started: %v", err)})
	}

	client, llmErr := m.newLLM(m.llmCfg)
	if llmErr != nil {
		m.finalize(conn, runID, llmErr)
		m.cleanup(runID)
		return
	}

	ec := executor.ExecutionContext{
		RunID:        runID,
		Conn:         conn,
		LLM:          client,
		CancelSignal: signal,
		BatchSize:    m.batchSize,
		Log:          m.bus.Publish,
	}

	execErr := executor.Run(ctx, ec, scope)
	m.finalize(conn, runID, execErr)
	m.cleanup(runID)
}

// finalize implements the three ordered rules of spec §4.7.1.
func (m *Manager) finalize(conn *store.Connection, runID int64, execErr error) {
	runsRepo := runs.Repo{}
	ctx := context.Background()

	switch {
	case execErr == nil:
		// Rule 3: completed, unless a late cancel landed first — the
		// guard returns 0 and the row is left at "cancelled".
		if _, err := runsRepo.CompleteIfNotCancelled(ctx, conn.DB, runID); err != nil {
			m.bus.Publish(logbus.Event{RunID: runID, Level: logbus.LevelError, Message: fmt.Sprintf("finalizer failed to mark completed: %v", err)})
		}
	case apperr.KindOf(execErr) == apperr.KindCancelled:
		// Rule 1.
		if _, err := runsRepo.UpdateIfActive(ctx, conn.DB, runID, runs.StatusCancelled, nil, nil); err != nil {
			m.bus.Publish(logbus.Event{RunID: runID, Level: logbus.LevelError, Message: fmt.Sprintf("finalizer failed to mark cancelled: %v", err)})
		}
	default:
		// Rule 2: try the worker's own connection first; on failure open
		// a fresh one. failIfNotTerminal guards against overwriting a
		// cancelled row with a late failure.
		if _, err := runsRepo.FailIfNotTerminal(ctx, conn.DB, runID, execErr.Error()); err != nil {
			m.finalizeWithFreshConnection(runID, execErr)
		}
		m.bus.Publish(logbus.Event{RunID: runID, Level: logbus.LevelError, Message: execErr.Error()})
	}
	m.bus.Publish(logbus.Event{RunID: runID, Complete: true})
}

// finalizeWithFreshConnection is the retry path for rule 2 when the
// worker's own connection is no longer usable.
func (m *Manager) finalizeWithFreshConnection(runID int64, execErr error) {
	runsRepo := runs.Repo{}
	ctx := context.Background()
	err := store.WithConnection(ctx, m.dbPath, func(conn *store.Connection) error {
		_, err := runsRepo.FailIfNotTerminal(ctx, conn.DB, runID, execErr.Error())
		return err
	})
	if err != nil {
		m.bus.Publish(logbus.Event{RunID: runID, Level: logbus.LevelWarning, Message: fmt.Sprintf("run %d status may be stale: retry after broken connection also failed: %v", runID, err)})
	}
}

func (m *Manager) cleanup(runID int64) {
	m.signalsMu.Lock()
	delete(m.signals, runID)
	m.signalsMu.Unlock()
}
