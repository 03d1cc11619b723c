package monitor

import (
	"github.com/shopspring/decimal"

	"github.com/peter29ljf/bybitoption/internal/core"
)

// crossResult is the outcome of feeding one new price observation to a
// task's cross-detection state.
type crossResult struct {
	Crossed   bool
	Direction core.TriggerDirection
}

// compareCross is the pure comparison at the heart of directional
// cross detection: cur is the task's most recently observed
// price (before p), target is the task's target price, and p is the new
// observation. Equality with target counts as a cross in the direction
// of travel.
func compareCross(cur, target, p decimal.Decimal) crossResult {
	if cur.LessThan(target) && target.LessThanOrEqual(p) {
		return crossResult{Crossed: true, Direction: core.TriggerUpCross}
	}
	if cur.GreaterThan(target) && target.GreaterThanOrEqual(p) {
		return crossResult{Crossed: true, Direction: core.TriggerDownCross}
	}
	return crossResult{}
}

// observe applies one new price observation p to task, mutating its
// CurrentPrice/PreviousPrice history in place, and reports whether this
// observation crossed the target.
//
// Only the very first observation a task ever sees is a pure seed: it
// has no prior price to compare against, so it just records
// CurrentPrice and returns no cross. That gate is keyed off CurrentPrice
// itself (not PreviousPrice), so it only ever fires once across the
// task's lifetime: every observation after the first compares against
// CurrentPrice and can cross. On a non-cross the history shifts by one
// slot (PreviousPrice <- CurrentPrice, CurrentPrice <- p) so the next
// call sees the right window. On a cross, history is left as-is; the
// task is about to leave "active" and will never be re-checked.
func observe(task *core.MonitorTask, p decimal.Decimal) crossResult {
	if task.CurrentPrice == nil {
		cp := p
		task.CurrentPrice = &cp
		return crossResult{}
	}

	result := compareCross(*task.CurrentPrice, task.TargetPrice, p)
	if result.Crossed {
		return result
	}

	task.PreviousPrice = task.CurrentPrice
	cp := p
	task.CurrentPrice = &cp
	return crossResult{}
}
