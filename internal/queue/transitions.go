package queue

import "barberq/internal/models"

const (
	ActionCall     = "call"
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionNoShow   = "no_show"
	ActionAssign   = "assign"
)

var transitionMap = map[string][]string{
	ActionCall:     {models.StatusWaiting},
	ActionStart:    {models.StatusWaiting, models.StatusCalled},
	ActionComplete: {models.StatusInProgress},
	ActionCancel:   {models.StatusWaiting, models.StatusCalled},
	ActionNoShow:   {models.StatusWaiting, models.StatusCalled},
	ActionAssign:   {models.StatusWaiting},
}

// actionStatus maps each mutating action to the status it produces.
var actionStatus = map[string]string{
	ActionCall:     models.StatusCalled,
	ActionStart:    models.StatusInProgress,
	ActionComplete: models.StatusDone,
	ActionCancel:   models.StatusCanceled,
	ActionNoShow:   models.StatusNoShow,
	ActionAssign:   models.StatusWaiting,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
