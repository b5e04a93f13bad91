package store

import "qline/internal/models"

var transitionMap = map[string][]string{
	"call":     {models.StatusWaiting},
	"start":    {models.StatusCalled},
	"complete": {models.StatusServing},
	"cancel":   {models.StatusWaiting, models.StatusCalled},
	"recall":   {models.StatusCalled},
}

// ValidTransition reports whether an action is legal from the given status.
// Completed and cancelled are terminal: no action lists them.
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
