package folders

import "github.com/leaksopan/SnapMe-sub000/internal/models"

// validTransitions is the folder lifecycle. expired is terminal.
var validTransitions = map[models.FolderStatus]map[models.FolderStatus]bool{
	models.StatusPending: {models.StatusReady: true},
	models.StatusReady:   {models.StatusClaimed: true, models.StatusExpired: true},
	models.StatusClaimed: {models.StatusExpired: true},
	models.StatusExpired: {},
}

// CanTransition reports whether a folder in status from may move to status to.
func CanTransition(from, to models.FolderStatus) bool {
	return validTransitions[from][to]
}

func checkTransition(from, to models.FolderStatus) error {
	if !CanTransition(from, to) {
		return &models.InvalidTransitionError{From: from, To: to}
	}
	return nil
}
