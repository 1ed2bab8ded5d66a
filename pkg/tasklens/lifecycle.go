package tasklens

import "math"

// CompleteTask decays the stored credits to now, adds the task's credit increment and marks it done. Ancestors are not
// touched. Unknown ids are ignored.
func CompleteTask(state *TunnelState, id TaskID, now int64) {
	task, ok := state.Tasks[id]
	if !ok {
		return
	}
	task.Credits = DecayedCredits(task.Credits, task.CreditsTimestamp, now)
	increment := DefaultCreditIncrement
	if task.CreditIncrement != nil {
		increment = *task.CreditIncrement
	}
	task.Credits += increment
	task.CreditsTimestamp = now
	task.Status = StatusDone
	task.LastCompletedAt = Ptr(now)
	state.Tasks[id] = task
}

// DecayedCredits applies exponential decay with a 7 day half-life between since and now.
func DecayedCredits(credits float64, since, now int64) float64 {
	delta := float64(now - since)
	return credits * math.Pow(0.5, delta/CreditsHalfLifeMillis)
}

// AcknowledgeCompletedTasks marks every done task as acknowledged so it drops out of the active view.
func AcknowledgeCompletedTasks(state *TunnelState) {
	for id, task := range state.Tasks {
		if task.Status == StatusDone && !task.IsAcknowledged {
			task.IsAcknowledged = true
			state.Tasks[id] = task
		}
	}
}

// WakeUpRoutineTasks resets done routine tasks to pending once now reaches the next due date minus the lead time. The next due
// date is derived from the last completion plus the repeat interval.
func WakeUpRoutineTasks(state *TunnelState, now int64) {
	for id, task := range state.Tasks {
		if task.Status != StatusDone || task.Schedule.Type != ScheduleRoutinely || task.RepeatConfig == nil {
			continue
		}
		var lastCompleted int64
		if task.LastCompletedAt != nil {
			lastCompleted = *task.LastCompletedAt
		}
		nextDue := lastCompleted + IntervalMillis(task.RepeatConfig.Frequency, task.RepeatConfig.Interval)
		if now < nextDue-task.Schedule.LeadTime {
			continue
		}
		task.Status = StatusPending
		task.IsAcknowledged = false
		task.Schedule.LastDone = Ptr(lastCompleted)
		task.Schedule.DueDate = nil
		state.Tasks[id] = task
	}
}
