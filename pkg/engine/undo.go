package engine

import (
	"context"

	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
)

type undoAction struct {
	desc string
	fn   func(ctx context.Context) error
}

// undoStack collects compensating actions for one operation.
type undoStack struct {
	actions []undoAction
}

func (u *undoStack) push(desc string, fn func(ctx context.Context) error) {
	u.actions = append(u.actions, undoAction{desc: desc, fn: fn})
}

func (u *undoStack) len() int {
	return len(u.actions)
}

type rollbackStep struct {
	Action string `json:"action"`
	Error  string `json:"error,omitempty"`
}

type rollbackReport struct {
	Operation string         `json:"operation"`
	Cause     string         `json:"cause"`
	Steps     []rollbackStep `json:"steps"`
}

// rollback replays the undo stack newest first. Failed steps are logged,
// counted and audited; they never replace the cause.
func (m *Manager) rollback(ctx context.Context, op, key string, u *undoStack, cause error, logger *telemetry.Logger) {
	if u.len() == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	report := rollbackReport{Operation: op, Cause: cause.Error()}
	failed := false
	for i := len(u.actions) - 1; i >= 0; i-- {
		a := u.actions[i]
		step := rollbackStep{Action: a.desc}
		if err := a.fn(ctx); err != nil {
			failed = true
			step.Error = err.Error()
			m.tel.Metrics.RecordRollback(false)
			logger.WithError(err).WithField("undo", a.desc).Error("rollback step failed")
		} else {
			m.tel.Metrics.RecordRollback(true)
			logger.WithField("undo", a.desc).Debug("rollback step completed")
		}
		report.Steps = append(report.Steps, step)
	}

	action := stores.AuditActionRollback
	if failed {
		action = stores.AuditActionRollbackFailed
	}
	m.audit(ctx, action, key, report)
}
