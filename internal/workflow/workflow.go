// Package workflow defines the submission review state machine.
package workflow

import "github.com/noah-isme/migration-estimator-api/internal/models"

// transitions is the complete set of legal edges. Terminal states have none.
var transitions = map[models.SubmissionStatus][]models.SubmissionStatus{
	models.StatusNew:           {models.StatusContacted},
	models.StatusContacted:     {models.StatusInNegotiation, models.StatusClosedWon, models.StatusClosedLost},
	models.StatusInNegotiation: {models.StatusClosedWon, models.StatusClosedLost},
	models.StatusClosedWon:     nil,
	models.StatusClosedLost:    nil,
}

// Initial is the status every submission starts in.
const Initial = models.StatusNew

// Valid reports whether s is a known status.
func Valid(s models.SubmissionStatus) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to models.SubmissionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transitions leave s.
func IsTerminal(s models.SubmissionStatus) bool {
	return Valid(s) && len(transitions[s]) == 0
}

// Next returns a copy of the statuses reachable from s in one step.
func Next(s models.SubmissionStatus) []models.SubmissionStatus {
	return append([]models.SubmissionStatus(nil), transitions[s]...)
}

// Statuses lists every status in lifecycle order.
func Statuses() []models.SubmissionStatus {
	return []models.SubmissionStatus{
		models.StatusNew,
		models.StatusContacted,
		models.StatusInNegotiation,
		models.StatusClosedWon,
		models.StatusClosedLost,
	}
}
