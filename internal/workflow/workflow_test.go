package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

func TestCanTransition(t *testing.T) {
	legal := map[[2]models.SubmissionStatus]bool{
		{models.StatusNew, models.StatusContacted}:            true,
		{models.StatusContacted, models.StatusInNegotiation}:  true,
		{models.StatusContacted, models.StatusClosedWon}:      true,
		{models.StatusContacted, models.StatusClosedLost}:     true,
		{models.StatusInNegotiation, models.StatusClosedWon}:  true,
		{models.StatusInNegotiation, models.StatusClosedLost}: true,
	}
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := legal[[2]models.SubmissionStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestSkippingAndReopeningAreIllegal(t *testing.T) {
	assert.False(t, CanTransition(models.StatusNew, models.StatusClosedWon))
	assert.False(t, CanTransition(models.StatusClosedWon, models.StatusContacted))
	assert.False(t, CanTransition(models.StatusInNegotiation, models.StatusContacted))
	assert.False(t, CanTransition("Archived", models.StatusContacted))
}

func TestTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.StatusClosedWon))
	assert.True(t, IsTerminal(models.StatusClosedLost))
	assert.False(t, IsTerminal(models.StatusNew))
	assert.False(t, IsTerminal("Archived"))
	assert.False(t, Valid("Archived"))
}

func TestNextReturnsCopy(t *testing.T) {
	next := Next(models.StatusContacted)
	next[0] = models.StatusClosedLost
	assert.Equal(t, models.StatusInNegotiation, Next(models.StatusContacted)[0])
}
