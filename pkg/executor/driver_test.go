package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflow/queryflow/pkg/events"
	"github.com/queryflow/queryflow/pkg/models"
	"github.com/queryflow/queryflow/pkg/queue"
	"github.com/queryflow/queryflow/pkg/session"
)

type scriptedStep struct {
	stepID   string
	stepName string
	toolID   string
	output   any
}

// scriptedEngine replays a fixed step sequence and outcome.
type scriptedEngine struct {
	available []string
	steps     []scriptedStep
	output    any
	err       error
	panics    bool
}

func (e *scriptedEngine) AvailableTools() []string { return e.available }

func (e *scriptedEngine) Run(ctx context.Context, prompt string, tools []string, onStep StepFunc) (*RunResult, error) {
	if e.panics {
		panic("scripted panic")
	}
	for _, s := range e.steps {
		onStep(s.stepID, s.stepName, s.toolID, s.output)
	}
	if e.err != nil {
		return nil, e.err
	}
	return &RunResult{Output: e.output}, nil
}

type driverHarness struct {
	store  *session.Store
	bus    *events.Bus
	driver *Driver
}

func newDriverHarness(t *testing.T, engine Engine) *driverHarness {
	t.Helper()

	pool := queue.NewPool(2)
	pool.Start()
	t.Cleanup(pool.Stop)

	store := session.NewStore()
	bus := events.NewBus(200, 100)
	return &driverHarness{
		store:  store,
		bus:    bus,
		driver: NewDriver(store, bus, engine, pool),
	}
}

// runToCompletion launches one execution and waits for it to finish,
// returning every event the subscriber received.
func (h *driverHarness) runToCompletion(t *testing.T, sessionID, query string, queryType models.QueryType, repoName string) []events.StepEvent {
	t.Helper()

	sub := h.bus.Subscribe(sessionID)
	h.driver.Launch(sessionID, query, queryType, repoName)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.driver.Wait(ctx))

	var got []events.StepEvent
	for {
		select {
		case ev := <-sub.Events():
			got = append(got, ev)
		default:
			h.bus.Unsubscribe(sessionID, sub)
			return got
		}
	}
}

func eventTypes(evts []events.StepEvent) []string {
	out := make([]string, len(evts))
	for i, ev := range evts {
		out[i] = ev.EventType
	}
	return out
}

func TestDriver_SuccessfulExecution(t *testing.T) {
	engine := &scriptedEngine{
		steps: []scriptedStep{
			{stepID: "step-1", stepName: "Generate answer", toolID: "llm_tool", output: "partial"},
		},
		output: "final answer",
	}
	h := newDriverHarness(t, engine)
	sess := h.store.Create()

	got := h.runToCompletion(t, sess.ID, "what is Go?", models.QueryTypeChat, "")

	require.Equal(t, []string{
		events.EventTypeUserMessage,
		events.EventTypeSessionStarted,
		events.EventTypeStepUpdate,
		events.EventTypeStepCompleted,
		events.EventTypeSessionCompleted,
	}, eventTypes(got))

	// The user message echoes the query back as an event.
	assert.Equal(t, "what is Go?", got[0].Output)
	assert.Equal(t, "User", got[0].StepName)

	// Step pair carries the engine's step identity and output.
	assert.Equal(t, "step-1", got[2].StepID)
	assert.Equal(t, "running", got[2].Status)
	assert.Nil(t, got[2].Output)
	assert.Equal(t, "step-1", got[3].StepID)
	assert.Equal(t, "llm_tool", got[3].ToolID)
	assert.Equal(t, "partial", got[3].Output)

	// Terminal event carries the final result.
	assert.Equal(t, "final answer", got[4].Output)

	// Every event is stamped with the session it belongs to.
	for _, ev := range got {
		assert.Equal(t, sess.ID, ev.SessionID)
	}

	assert.Equal(t, models.StatusCompleted, sess.CurrentStatus())
	assert.Equal(t, "final answer", sess.Result)
	require.NotNil(t, sess.StartedAt)
	require.NotNil(t, sess.ExecutionTime)
}

func TestDriver_EngineErrorFinalizesFailed(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("upstream unavailable")}
	h := newDriverHarness(t, engine)
	sess := h.store.Create()

	got := h.runToCompletion(t, sess.ID, "q", models.QueryTypeChat, "")

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, events.EventTypeSessionFailed, last.EventType)
	assert.Equal(t, "upstream unavailable", last.Error)

	assert.Equal(t, models.StatusFailed, sess.CurrentStatus())
	assert.Equal(t, "upstream unavailable", sess.Error)
	assert.Nil(t, sess.Result)
}

func TestDriver_EnginePanicFinalizesFailed(t *testing.T) {
	engine := &scriptedEngine{panics: true}
	h := newDriverHarness(t, engine)
	sess := h.store.Create()

	got := h.runToCompletion(t, sess.ID, "q", models.QueryTypeChat, "")

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, events.EventTypeSessionFailed, last.EventType)
	assert.Contains(t, last.Error, "internal execution error")

	assert.Equal(t, models.StatusFailed, sess.CurrentStatus())

	// The panic ran on a pool worker; the pool must still serve later runs.
	engine.panics = false
	engine.output = "recovered"
	next := h.store.Create()
	got = h.runToCompletion(t, next.ID, "q", models.QueryTypeChat, "")
	require.NotEmpty(t, got)
	assert.Equal(t, events.EventTypeSessionCompleted, got[len(got)-1].EventType)
	assert.Equal(t, models.StatusCompleted, next.CurrentStatus())
}

func TestDriver_ConcurrentRunsKeepEventsSeparate(t *testing.T) {
	engine := &scriptedEngine{
		steps:  []scriptedStep{{stepID: "step-1", stepName: "Generate answer", toolID: "llm_tool", output: "x"}},
		output: "done",
	}
	h := newDriverHarness(t, engine)

	a := h.store.Create()
	b := h.store.Create()
	subA := h.bus.Subscribe(a.ID)
	subB := h.bus.Subscribe(b.ID)

	h.driver.Launch(a.ID, "query a", models.QueryTypeChat, "")
	h.driver.Launch(b.ID, "query b", models.QueryTypeChat, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.driver.Wait(ctx))

	for sub, sessionID := range map[*events.Subscriber]string{subA: a.ID, subB: b.ID} {
		count := 0
	drain:
		for {
			select {
			case ev := <-sub.Events():
				assert.Equal(t, sessionID, ev.SessionID,
					"events must only reach the session that produced them")
				count++
			default:
				break drain
			}
		}
		assert.Equal(t, 5, count)
	}
}

func TestDriver_WaitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	engine := &blockingEngine{release: block, started: make(chan struct{}, 1)}
	h := newDriverHarness(t, engine)
	sess := h.store.Create()

	h.driver.Launch(sess.ID, "q", models.QueryTypeChat, "")
	<-engine.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.driver.Wait(ctx), context.DeadlineExceeded)

	close(block)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	require.NoError(t, h.driver.Wait(drainCtx))
}

// blockingEngine parks inside Run until released, signalling entry.
type blockingEngine struct {
	release <-chan struct{}
	started chan struct{}
}

func (e *blockingEngine) AvailableTools() []string { return allTools }

func (e *blockingEngine) Run(ctx context.Context, prompt string, tools []string, onStep StepFunc) (*RunResult, error) {
	select {
	case e.started <- struct{}{}:
	default:
	}
	<-e.release
	return &RunResult{Output: "released"}, nil
}
