package store

import "github.com/v10ss/escashop/internal/models"

// transitionMap lists the statuses a customer may move to from each
// current status. Completed and cancelled are terminal.
var transitionMap = map[string][]string{
	models.StatusWaiting:    {models.StatusServing, models.StatusCancelled},
	models.StatusServing:    {models.StatusProcessing, models.StatusCompleted, models.StatusCancelled},
	models.StatusProcessing: {models.StatusCompleted, models.StatusCancelled},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

func ValidTransition(from, to string) bool {
	allowed, ok := transitionMap[from]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from string) []string {
	allowed := transitionMap[from]
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}
