package callflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pqcall/internal/domain"
)

// Step status values as reported on flow completion.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Flow names.
const (
	FlowOutgoing  = "outgoing"
	FlowIncoming  = "incoming"
	FlowTerminate = "terminate"
)

// StepResult records one executed step.
type StepResult struct {
	Name    string
	Status  StepStatus
	Elapsed time.Duration
	Err     error
}

// Report is the outcome of one flow run. Err is nil iff every non-skipped
// step completed.
type Report struct {
	FlowID    string
	Flow      string
	SessionID domain.SessionID
	Steps     []StepResult
	Elapsed   time.Duration
	Err       error
}

// Failed reports whether the flow aborted.
func (r *Report) Failed() bool { return r.Err != nil }

// StepStatus returns the recorded status for the named step, or StepPending
// when the step never ran.
func (r *Report) StepStatus(name string) StepStatus {
	for _, s := range r.Steps {
		if s.Name == name {
			return s.Status
		}
	}
	return StepPending
}

// runner drives a flow's steps in order. After the first failure every
// subsequent step is recorded as skipped rather than executed, so a report
// always lists the full step sequence.
type runner struct {
	o       *Orchestrator
	report  *Report
	started time.Time
}

func (o *Orchestrator) newRunner(flow string) *runner {
	return &runner{
		o: o,
		report: &Report{
			FlowID: uuid.NewString(),
			Flow:   flow,
		},
		started: o.clock.Now(),
	}
}

// step executes fn under the flow's per-step deadline unless an earlier step
// failed. It returns false once the flow is in the failed state.
func (r *runner) step(ctx context.Context, name string, fn func(context.Context) error) bool {
	if r.report.Err != nil {
		r.report.Steps = append(r.report.Steps, StepResult{Name: name, Status: StepSkipped})
		return false
	}

	stepStart := r.o.clock.Now()
	cctx, cancel := context.WithTimeout(ctx, r.o.cfg.StepTimeout)
	err := fn(cctx)
	cancel()
	elapsed := r.o.clock.Now().Sub(stepStart)

	res := StepResult{Name: name, Status: StepCompleted, Elapsed: elapsed}
	if err != nil {
		res.Status = StepFailed
		res.Err = err
		r.report.Err = err
		r.report.Steps = append(r.report.Steps, res)

		r.o.events.Publish(domain.FlowStepFailed{
			FlowID: r.report.FlowID,
			Flow:   r.report.Flow,
			Step:   name,
			Reason: err.Error(),
		})
		r.o.log.Warn("flow step failed",
			zap.String("flow_id", r.report.FlowID),
			zap.String("flow", r.report.Flow),
			zap.String("step", name),
			zap.String("code", domain.FailureCode(err)))
		return false
	}

	r.report.Steps = append(r.report.Steps, res)
	r.o.events.Publish(domain.FlowStepCompleted{
		FlowID:  r.report.FlowID,
		Flow:    r.report.Flow,
		Step:    name,
		Elapsed: elapsed,
	})
	return true
}

// finish stamps the report and emits the terminal flow event.
func (r *runner) finish() *Report {
	r.report.Elapsed = r.o.clock.Now().Sub(r.started)

	if r.report.Err != nil {
		failedStep := ""
		for _, s := range r.report.Steps {
			if s.Status == StepFailed {
				failedStep = s.Name
				break
			}
		}
		r.o.events.Publish(domain.FlowFailed{
			FlowID:     r.report.FlowID,
			Flow:       r.report.Flow,
			FailedStep: failedStep,
			Reason:     r.report.Err.Error(),
			Elapsed:    r.report.Elapsed,
		})
		return r.report
	}

	r.o.events.Publish(domain.FlowCompleted{
		FlowID:    r.report.FlowID,
		Flow:      r.report.Flow,
		SessionID: r.report.SessionID,
		Elapsed:   r.report.Elapsed,
	})
	return r.report
}
