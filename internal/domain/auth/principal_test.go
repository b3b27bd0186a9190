package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
)

func TestCanSee_Anonymous(t *testing.T) {
	p := Anonymous
	assert.True(t, p.CanSee(research.StatusPublished, nil, false))
	assert.False(t, p.CanSee(research.StatusDraft, nil, false))
	assert.False(t, p.CanSee(research.StatusReview, []string{"u1"}, false))
	assert.False(t, p.CanSee(research.StatusDeleted, nil, true))
}

func TestCanSee_AuthenticatedNonAdmin(t *testing.T) {
	p := Principal{UserID: "u1"}
	assert.True(t, p.CanSee(research.StatusPublished, nil, false))
	assert.True(t, p.CanSee(research.StatusDraft, []string{"u0", "u1"}, false))
	assert.False(t, p.CanSee(research.StatusDraft, []string{"u2"}, false))
	assert.False(t, p.CanSee(research.StatusDeleted, []string{"u1"}, false))
}

func TestCanSee_Admin(t *testing.T) {
	p := Principal{UserID: "admin", Admin: true}
	assert.True(t, p.CanSee(research.StatusDraft, nil, false))
	assert.True(t, p.CanSee(research.StatusReview, nil, false))
	assert.False(t, p.CanSee(research.StatusDeleted, nil, false))
	assert.True(t, p.CanSee(research.StatusDeleted, nil, true))
}

func TestVisibleStatuses(t *testing.T) {
	assert.Equal(t, []research.Status{research.StatusPublished}, Anonymous.VisibleStatuses(false))

	admin := Principal{UserID: "a", Admin: true}
	assert.Len(t, admin.VisibleStatuses(false), 3)
	assert.Contains(t, admin.VisibleStatuses(true), research.StatusDeleted)
}

func TestLoadAdminUIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins")
	require.NoError(t, os.WriteFile(path, []byte("u1\n# comment\n\nu2\n"), 0o644))

	uids, err := LoadAdminUIDs(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"u1": true, "u2": true}, uids)
}

func TestLoadAdminUIDs_MissingFileIsEmpty(t *testing.T) {
	uids, err := LoadAdminUIDs(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, uids)
}
