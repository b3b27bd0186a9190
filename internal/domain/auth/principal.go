// Package auth models the requesting principal and the research-level
// visibility rules.  The authentication provider itself is external; the API
// layer translates its headers into a Principal and everything below works
// from that.
package auth

import (
	"bufio"
	"os"
	"strings"

	"github.com/nbdc/humandbs-pipeline/internal/domain/research"
)

// Principal identifies the caller of a search request.
type Principal struct {
	// UserID is empty for anonymous callers.
	UserID string

	// Admin grants visibility into non-published documents.
	Admin bool
}

// Anonymous is the zero principal.
var Anonymous = Principal{}

// Authenticated reports whether the principal carries a user identity.
func (p Principal) Authenticated() bool { return p.UserID != "" }

// CanSee reports whether the principal may see a Research with the given
// status and uid list:
//
//   - anonymous         → status == published
//   - authenticated     → published OR uids contains the caller
//   - admin             → all non-deleted; deleted only when includeDeleted
func (p Principal) CanSee(status research.Status, uids []string, includeDeleted bool) bool {
	if p.Admin {
		if status == research.StatusDeleted {
			return includeDeleted
		}
		return true
	}
	if status == research.StatusPublished {
		return true
	}
	if !p.Authenticated() || status == research.StatusDeleted {
		return false
	}
	for _, uid := range uids {
		if uid == p.UserID {
			return true
		}
	}
	return false
}

// VisibleStatuses returns the set of statuses the principal may request.
// Non-admins are always confined to published-or-owned documents, so the
// status filter a caller supplies is intersected with this set.
func (p Principal) VisibleStatuses(includeDeleted bool) []research.Status {
	if p.Admin {
		out := []research.Status{research.StatusDraft, research.StatusReview, research.StatusPublished}
		if includeDeleted {
			out = append(out, research.StatusDeleted)
		}
		return out
	}
	if p.Authenticated() {
		return []research.Status{research.StatusDraft, research.StatusReview, research.StatusPublished}
	}
	return []research.Status{research.StatusPublished}
}

// LoadAdminUIDs reads the admin UID file (one uid per line, blank lines and
// "#" comments ignored).  A missing path yields an empty set.
func LoadAdminUIDs(path string) (map[string]bool, error) {
	uids := make(map[string]bool)
	if path == "" {
		return uids, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return uids, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uids[line] = true
	}
	return uids, sc.Err()
}
