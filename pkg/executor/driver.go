package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/queryflow/queryflow/pkg/events"
	"github.com/queryflow/queryflow/pkg/models"
	"github.com/queryflow/queryflow/pkg/queue"
	"github.com/queryflow/queryflow/pkg/session"
)

// Driver runs execution attempts in the background: one supervised
// goroutine per launched session, with the engine call itself offloaded to
// the worker pool. Errors from the engine never propagate past the driver —
// they are recorded on the session and announced as a terminal event.
type Driver struct {
	store  *session.Store
	bus    *events.Bus
	engine Engine
	pool   *queue.Pool

	wg sync.WaitGroup
}

// NewDriver creates a driver over the given store, bus, engine and pool.
func NewDriver(store *session.Store, bus *events.Bus, engine Engine, pool *queue.Pool) *Driver {
	return &Driver{
		store:  store,
		bus:    bus,
		engine: engine,
		pool:   pool,
	}
}

// Launch starts one execution attempt for the session in the background and
// returns immediately. The task is tracked by the driver's task set so
// shutdown can drain it and failures are always observed.
func (d *Driver) Launch(sessionID, query string, queryType models.QueryType, repoName string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(context.Background(), sessionID, query, queryType, repoName)
	}()
}

// Wait blocks until every launched execution has finished or ctx expires.
func (d *Driver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs the full lifecycle for one attempt. It never panics past its
// boundary: an unexpected panic finalizes the session to failed.
func (d *Driver) execute(ctx context.Context, sessionID, query string, queryType models.QueryType, repoName string) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Execution panicked", "session_id", sessionID, "panic", r)
			d.finalizeFailure(sessionID, fmt.Sprintf("internal execution error: %v", r), elapsedSeconds(start))
		}
	}()

	d.bus.Broadcast(sessionID, events.StepEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		EventType: events.EventTypeUserMessage,
		StepName:  "User",
		Status:    "completed",
		Output:    query,
	})

	d.store.UpdateStatus(sessionID, models.StatusRunning, nil, "", 0)

	d.bus.Broadcast(sessionID, events.StepEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		EventType: events.EventTypeSessionStarted,
		Status:    "running",
	})

	tools := ToolsFor(queryType)
	prompt := BuildPrompt(queryType, query, repoName)

	// The callback closes over sessionID, so concurrent runs report their
	// steps to the right session without any shared routing slot.
	onStep := func(stepID, stepName, toolID string, output any) {
		now := time.Now().UTC()
		d.bus.Broadcast(sessionID, events.StepEvent{
			SessionID: sessionID,
			Timestamp: now,
			EventType: events.EventTypeStepUpdate,
			StepID:    stepID,
			StepName:  stepName,
			ToolID:    toolID,
			Status:    "running",
		})
		d.bus.Broadcast(sessionID, events.StepEvent{
			SessionID: sessionID,
			Timestamp: time.Now().UTC(),
			EventType: events.EventTypeStepCompleted,
			StepID:    stepID,
			StepName:  stepName,
			ToolID:    toolID,
			Status:    "completed",
			Output:    output,
		})
	}

	var (
		result *RunResult
		runErr error
	)
	if err := d.pool.Do(ctx, func() {
		// The engine runs on a worker-pool goroutine, so a panic there must
		// be recovered here and surfaced as this run's error.
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Engine run panicked", "session_id", sessionID, "panic", r)
				runErr = fmt.Errorf("internal execution error: %v", r)
			}
		}()
		result, runErr = d.engine.Run(ctx, prompt, tools, onStep)
	}); err != nil {
		runErr = err
	}

	executionTime := elapsedSeconds(start)

	if runErr != nil {
		slog.Error("Query execution failed",
			"session_id", sessionID, "execution_time", executionTime, "error", runErr)
		d.finalizeFailure(sessionID, runErr.Error(), executionTime)
		return
	}

	slog.Info("Query executed successfully",
		"session_id", sessionID, "execution_time", executionTime)

	d.store.UpdateStatus(sessionID, models.StatusCompleted, result.Output, "", executionTime)
	d.bus.Broadcast(sessionID, events.StepEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		EventType: events.EventTypeSessionCompleted,
		Status:    "completed",
		Output:    result.Output,
	})
}

// finalizeFailure records the failure on the session and announces it to
// subscribers.
func (d *Driver) finalizeFailure(sessionID, errMsg string, executionTime float64) {
	d.store.UpdateStatus(sessionID, models.StatusFailed, nil, errMsg, executionTime)
	d.bus.Broadcast(sessionID, events.StepEvent{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		EventType: events.EventTypeSessionFailed,
		Status:    "failed",
		Error:     errMsg,
	})
}

func elapsedSeconds(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
