package web

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ViewRevisions tracks a monotonically increasing revision per account and
// implements core.CacheInvalidator. Completing an import bumps the account's
// revision, which changes the ETag of account-scoped responses, so cached
// views (transactions, dashboard) re-fetch on their next conditional GET.
type ViewRevisions struct {
	mu   sync.RWMutex
	revs map[string]uint64
}

// NewViewRevisions builds an empty revision table.
func NewViewRevisions() *ViewRevisions {
	return &ViewRevisions{revs: make(map[string]uint64)}
}

// InvalidateViews bumps the account's revision. The view names are accepted
// for the core contract; revisioning is per account, not per view.
func (v *ViewRevisions) InvalidateViews(accountID string, views ...string) {
	v.mu.Lock()
	v.revs[accountID]++
	v.mu.Unlock()
}

// Revision returns the current revision for an account (zero if never
// invalidated).
func (v *ViewRevisions) Revision(accountID string) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revs[accountID]
}

// etagFor builds a strong ETag from a response body fingerprint and a
// revision counter. xxhash is not cryptographic, but an ETag only needs to
// change when the content does.
func etagFor(body []byte, rev uint64) string {
	return fmt.Sprintf("\"%x-%d\"", xxhash.Sum64(body), rev)
}
