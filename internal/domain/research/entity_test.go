package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumIDFormatting(t *testing.T) {
	assert.Equal(t, "hum0001", FormatHumID(1))
	assert.Equal(t, "hum0158", FormatHumID(158))
	assert.True(t, ValidHumID("hum0001"))
	assert.False(t, ValidHumID("hum001"))
	assert.False(t, ValidHumID("HUM0001"))

	n, ok := ParseHumID("hum0042")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = ParseHumID("jga0042")
	assert.False(t, ok)
}

func TestHumVersionID(t *testing.T) {
	assert.Equal(t, "hum0014-v6", HumVersionID("hum0014", 6))

	humID, version, ok := ParseHumVersionID("hum0014-v6")
	assert.True(t, ok)
	assert.Equal(t, "hum0014", humID)
	assert.Equal(t, 6, version)

	_, _, ok = ParseHumVersionID("hum0014")
	assert.False(t, ok)
	_, _, ok = ParseHumVersionID("hum0014-v")
	assert.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusReview))
	assert.True(t, CanTransition(StatusReview, StatusPublished))
	assert.True(t, CanTransition(StatusReview, StatusDraft))
	assert.True(t, CanTransition(StatusPublished, StatusDeleted))

	// deleted is terminal
	assert.False(t, CanTransition(StatusDeleted, StatusDraft))
	// no skipping review
	assert.False(t, CanTransition(StatusDraft, StatusPublished))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusPublished.Valid())
	assert.False(t, Status("archived").Valid())
}
