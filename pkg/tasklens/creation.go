package tasklens

// NewTask builds a pending one-off task with the default scoring fields. When a parent is given the task inherits its place
// and credit increment. The caller links it into the hierarchy.
func NewTask(id TaskID, title string, parent *PersistedTask) PersistedTask {
	task := PersistedTask{
		ID:              id,
		Title:           title,
		ChildTaskIDs:    []TaskID{},
		Status:          StatusPending,
		Importance:      DefaultImportance,
		CreditIncrement: Ptr(DefaultCreditIncrement),
		DesiredCredits:  DefaultDesiredCredits,
		Schedule: Schedule{
			Type:     ScheduleOnce,
			LeadTime: DefaultLeadTimeMillis,
		},
	}
	if parent != nil {
		task.ParentID = Ptr(parent.ID)
		task.PlaceID = clonePtr(parent.PlaceID)
		task.CreditIncrement = clonePtr(parent.CreditIncrement)
	}
	return task
}
