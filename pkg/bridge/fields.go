// Package bridge maps tasklens.TunnelState onto an automerge document and back. The object keys below are shared with every
// other client that has ever written a TaskLens document and must never be renamed.
package bridge

const (
	keyNextTaskID  = "nextTaskId"
	keyNextPlaceID = "nextPlaceId"
	keyTasks       = "tasks"
	keyRootTaskIDs = "rootTaskIds"
	keyPlaces      = "places"
	keyMetadata    = "metadata"
)

// task object
const (
	keyStatus            = "status"
	keyID                = "id"
	keyTitle             = "title"
	keyNotes             = "notes"
	keyParentID          = "parentId"
	keyChildTaskIDs      = "childTaskIds"
	keyPlaceID           = "placeId"
	keyImportance        = "importance"
	keyCreditIncrement   = "creditIncrement"
	keyCredits           = "credits"
	keyDesiredCredits    = "desiredCredits"
	keyCreditsTimestamp  = "creditsTimestamp"
	keyPriorityTimestamp = "priorityTimestamp"
	keySchedule          = "schedule"
	keyRepeatConfig      = "repeatConfig"
	keyIsSequential      = "isSequential"
	keyIsAcknowledged    = "isAcknowledged"
	keyLastCompletedAt   = "lastCompletedAt"
)

// schedule object
const (
	keyScheduleType = "type"
	keyDueDate      = "dueDate"
	keyLeadTime     = "leadTime"
	keyLastDone     = "lastDone"
)

// repeat config object
const (
	keyFrequency = "frequency"
	keyInterval  = "interval"
)

// place object
const (
	keyName           = "name"
	keyHours          = "hours"
	keyIncludedPlaces = "includedPlaces"
)

// metadata object
const keyAutomergeURL = "automerge_url"

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
