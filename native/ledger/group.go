package ledger

import "github.com/coreledger/marginbank/identity"

// Group is a solvency domain: a set of banks sharing an admin. Accounts
// belong to exactly one group; risk is evaluated across all banks of that
// group.
type Group struct {
	// ID is the group's identity, chosen at creation.
	ID string
	// Admin is the principal authorized to add banks and modify bank
	// config within this group.
	Admin identity.Principal
	// Banks lists the identities of the banks owned by this group. Order
	// carries no semantic meaning.
	Banks []identity.Principal
}

// Clone produces a deep copy so callers mutating a returned Group never
// reach back into store-owned state.
func (g Group) Clone() Group {
	clone := Group{ID: g.ID, Admin: g.Admin}
	if len(g.Banks) > 0 {
		clone.Banks = append([]identity.Principal(nil), g.Banks...)
	}
	return clone
}

// HasBank reports whether the given bank key belongs to this group.
func (g Group) HasBank(bankKey identity.Principal) bool {
	for _, b := range g.Banks {
		if b == bankKey {
			return true
		}
	}
	return false
}
