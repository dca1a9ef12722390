package queryview

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/model"
)

// ExecState is the execution lifecycle state.
type ExecState int

const (
	Idle ExecState = iota
	Executing
	Cancelling
	Done
	Failed
)

func (s ExecState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Executing:
		return "executing"
	case Cancelling:
		return "cancelling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ExecState(%d)", int(s))
	}
}

type execEvent int

const (
	evExecute execEvent = iota
	evSupersede
	evProgress
	evSucceed
	evFail
	evCancel
	evCancelAck
	evCancelFail
	evReset
)

// transitions is the complete lifecycle table. A (state, event) pair that
// is absent is rejected and leaves the controller untouched.
var transitions = map[ExecState]map[execEvent]ExecState{
	Idle: {
		evExecute: Executing,
		evReset:   Idle,
	},
	Executing: {
		evSupersede: Executing,
		evProgress:  Executing,
		evSucceed:   Done,
		evFail:      Failed,
		evCancel:    Cancelling,
		evReset:     Idle,
	},
	Cancelling: {
		evSupersede:  Executing,
		evProgress:   Cancelling,
		evSucceed:    Done,
		evFail:       Failed,
		evCancelAck:  Idle,
		evCancelFail: Failed,
		evReset:      Idle,
	},
	Done: {
		evExecute: Executing,
		evReset:   Idle,
	},
	Failed: {
		evExecute: Executing,
		evReset:   Idle,
	},
}

func nextState(from ExecState, ev execEvent) (ExecState, bool) {
	to, ok := transitions[from][ev]
	return to, ok
}

// Snapshot identifies the query and applied parameters an execution ran with.
type Snapshot struct {
	QueryID    int64
	QueryText  string
	Parameters map[string]any
	MaxAge     int64
}

type execution struct {
	gen    uint64
	jobID  string
	ctx    context.Context
	cancel context.CancelFunc
}

// execResultMsg carries one job snapshot (or error) for a generation.
type execResultMsg struct {
	gen    uint64
	result model.QueryResult
	err    error
}

// pollDueMsg asks the controller to poll the job of a generation.
type pollDueMsg struct{ gen uint64 }

// cancelAckMsg reports the outcome of a cancel request.
type cancelAckMsg struct {
	gen uint64
	err error
}

// ExecutionController drives execute/cancel/result-arrival for one page.
// It is not safe for concurrent use; the Page serializes access.
type ExecutionController struct {
	source       model.ResultSource
	pollInterval time.Duration

	state   ExecState
	gen     uint64
	active  *execution
	current *model.QueryResult

	// orphans holds generations dropped before their job id was known. The
	// server may still submit the job, so its id is cancelled on arrival.
	orphans map[uint64]struct{}
}

// NewExecutionController creates an idle controller.
func NewExecutionController(source model.ResultSource, pollInterval time.Duration) *ExecutionController {
	if pollInterval <= 0 {
		pollInterval = model.DefaultPollInterval
	}
	return &ExecutionController{
		source:       source,
		pollInterval: pollInterval,
		orphans:      make(map[uint64]struct{}),
	}
}

// State returns the lifecycle state.
func (c *ExecutionController) State() ExecState { return c.state }

// InFlight reports whether an execution is running or being cancelled.
func (c *ExecutionController) InFlight() bool {
	return c.state == Executing || c.state == Cancelling
}

// Cancelling reports whether a cancel request is outstanding.
func (c *ExecutionController) Cancelling() bool { return c.state == Cancelling }

// Result returns the current result snapshot, or nil.
func (c *ExecutionController) Result() *model.QueryResult {
	if c.current == nil {
		return nil
	}
	r := *c.current
	return &r
}

// Generation returns the token of the latest issued execution.
func (c *ExecutionController) Generation() uint64 { return c.gen }

func (c *ExecutionController) fire(ev execEvent) bool {
	to, ok := nextState(c.state, ev)
	if !ok {
		return false
	}
	c.state = to
	return true
}

// Start begins a new execution when the lifecycle allows it. It returns nil
// when rejected, leaving status and result unchanged.
func (c *ExecutionController) Start(snap Snapshot) tea.Cmd {
	if !c.fire(evExecute) {
		return nil
	}
	return c.begin(snap)
}

// Supersede replaces an in-flight execution with a new one. The old
// execution's eventual results are discarded. When nothing is in flight it
// behaves like Start.
func (c *ExecutionController) Supersede(snap Snapshot) tea.Cmd {
	if !c.InFlight() {
		return c.Start(snap)
	}
	old := c.active
	c.fire(evSupersede)
	cancelOld := c.abandon(old)
	return tea.Batch(cancelOld, c.begin(snap))
}

func (c *ExecutionController) begin(snap Snapshot) tea.Cmd {
	c.gen++
	ctx, cancel := context.WithCancel(context.Background())
	exec := &execution{gen: c.gen, ctx: ctx, cancel: cancel}
	c.active = exec
	c.current = &model.QueryResult{
		QueryID:   snap.QueryID,
		Status:    model.StatusWaiting,
		UpdatedAt: time.Now(),
	}

	source := c.source
	req := model.ExecuteRequest{QueryID: snap.QueryID, Parameters: snap.Parameters, MaxAge: snap.MaxAge}
	gen := exec.gen
	return func() tea.Msg {
		res, err := source.Execute(ctx, req)
		return execResultMsg{gen: gen, result: res, err: err}
	}
}

// abandon releases an execution that will no longer be observed and returns
// a best-effort cancel request for its job.
func (c *ExecutionController) abandon(exec *execution) tea.Cmd {
	if exec == nil {
		return nil
	}
	exec.cancel()
	if exec.jobID == "" {
		c.orphans[exec.gen] = struct{}{}
		return nil
	}
	return c.cancelJob(exec.jobID)
}

// cancelJob returns a best-effort cancel request for a job nobody observes.
func (c *ExecutionController) cancelJob(jobID string) tea.Cmd {
	source := c.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := source.CancelJob(ctx, jobID); err != nil {
			log.Printf("queryview: cancel abandoned job %s: %v", jobID, err)
		}
		return nil
	}
}

// Cancel requests cancellation of the running execution. Only valid from
// Executing.
func (c *ExecutionController) Cancel() tea.Cmd {
	if c.state != Executing || c.active == nil {
		return nil
	}
	c.fire(evCancel)
	exec := c.active
	gen := exec.gen
	if exec.jobID == "" {
		// Nothing to cancel upstream yet; abort the pending request locally.
		exec.cancel()
		c.orphans[gen] = struct{}{}
		return func() tea.Msg { return cancelAckMsg{gen: gen} }
	}
	source, jobID := c.source, exec.jobID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return cancelAckMsg{gen: gen, err: source.CancelJob(ctx, jobID)}
	}
}

// Reset invalidates everything without executing.
func (c *ExecutionController) Reset() tea.Cmd {
	old := c.active
	c.active = nil
	c.current = nil
	c.gen++
	c.fire(evReset)
	return c.abandon(old)
}

// Update folds controller messages. handled is false for foreign messages;
// stale messages are handled (and discarded) silently.
func (c *ExecutionController) Update(msg tea.Msg) (cmd tea.Cmd, handled bool) {
	switch msg := msg.(type) {
	case execResultMsg:
		return c.handleResult(msg), true
	case pollDueMsg:
		return c.handlePollDue(msg), true
	case cancelAckMsg:
		c.handleCancelAck(msg)
		return nil, true
	}
	return nil, false
}

func (c *ExecutionController) isCurrent(gen uint64) bool {
	return c.active != nil && c.active.gen == gen && gen == c.gen
}

func (c *ExecutionController) handleResult(msg execResultMsg) tea.Cmd {
	if _, ok := c.orphans[msg.gen]; ok {
		delete(c.orphans, msg.gen)
		if msg.err != nil || msg.result.JobID == "" || msg.result.Status.Terminal() {
			return nil
		}
		log.Debugf("queryview: cancelling job %s submitted after its execution was dropped", msg.result.JobID)
		return c.cancelJob(msg.result.JobID)
	}
	if !c.isCurrent(msg.gen) {
		log.Debugf("queryview: discarding result of superseded execution %d", msg.gen)
		return nil
	}
	exec := c.active

	if msg.err != nil {
		if c.state == Cancelling && errors.Is(msg.err, context.Canceled) {
			// Local abort of the request; the cancel ack settles the state.
			return nil
		}
		if !c.fire(evFail) {
			return nil
		}
		failed := model.QueryResult{
			JobID:     exec.jobID,
			QueryID:   c.current.QueryID,
			Status:    model.StatusFailed,
			Error:     msg.err.Error(),
			UpdatedAt: time.Now(),
		}
		c.finish(&failed)
		return nil
	}

	res := msg.result
	if res.JobID != "" {
		exec.jobID = res.JobID
	}

	switch res.Status {
	case model.StatusDone:
		if !c.fire(evSucceed) {
			return nil
		}
		c.finish(&res)
		return nil
	case model.StatusFailed:
		if !c.fire(evFail) {
			return nil
		}
		c.finish(&res)
		return nil
	default:
		if !c.fire(evProgress) {
			return nil
		}
		if c.state == Executing {
			c.current = &res
		}
		gen := exec.gen
		return tea.Tick(c.pollInterval, func(time.Time) tea.Msg { return pollDueMsg{gen: gen} })
	}
}

func (c *ExecutionController) handlePollDue(msg pollDueMsg) tea.Cmd {
	if !c.isCurrent(msg.gen) || c.active.jobID == "" {
		return nil
	}
	exec := c.active
	source, jobID, ctx, gen := c.source, exec.jobID, exec.ctx, exec.gen
	return func() tea.Msg {
		res, err := source.PollJob(ctx, jobID)
		return execResultMsg{gen: gen, result: res, err: err}
	}
}

func (c *ExecutionController) handleCancelAck(msg cancelAckMsg) {
	if !c.isCurrent(msg.gen) || c.state != Cancelling {
		return
	}
	if msg.err != nil {
		c.fire(evCancelFail)
		failed := model.QueryResult{
			JobID:     c.active.jobID,
			QueryID:   c.current.QueryID,
			Status:    model.StatusFailed,
			Error:     fmt.Sprintf("cancel: %v", msg.err),
			UpdatedAt: time.Now(),
		}
		c.finish(&failed)
		return
	}
	c.fire(evCancelAck)
	c.finish(nil)
}

func (c *ExecutionController) finish(res *model.QueryResult) {
	if c.active != nil {
		c.active.cancel()
		c.active = nil
	}
	c.current = res
}
