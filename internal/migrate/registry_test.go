package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStateIDNormalization(t *testing.T) {
	s := NewRunState()
	s.RegisterID("Widget", int64(5))

	assert.True(t, s.HasID("Widget", int64(5)))
	assert.True(t, s.HasID("Widget", "5"), "ids compare by string form")
	assert.True(t, s.HasID("Widget", float64(5)))
	assert.False(t, s.HasID("Widget", "6"))
	assert.False(t, s.HasID("Other", "5"))
	assert.False(t, s.HasID("Widget", nil))
	assert.Equal(t, 1, s.CountIDs("Widget"))
}

func TestRunStateStaging(t *testing.T) {
	s := NewRunState()
	s.Stage("Phase", Record{"name": "review"})
	s.Stage("Phase", Record{"name": "submission"})

	staged := s.TakeStaged("Phase")
	assert.Len(t, staged, 2)
	assert.Empty(t, s.TakeStaged("Phase"), "taking drains the staging area")
}
