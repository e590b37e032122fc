package ledger

import "github.com/coreledger/marginbank/identity"

// MaxBalances is the fixed length of a MarginfiAccount's balance table
// (spec.md §3, §6 constants).
const MaxBalances = 16

// BalanceSlot holds one asset's deposit and liability share counts for an
// account. A slot is "present" when AssetMint is non-empty; an empty slot
// has the canonical zero value so layout equality implies semantic
// equality (spec.md §6).
type BalanceSlot struct {
	AssetMint       string
	DepositShares   Fixed
	LiabilityShares Fixed
}

// Empty reports whether this slot holds no asset.
func (s BalanceSlot) Empty() bool {
	return s.AssetMint == ""
}

// Account is a MarginfiAccount: a fixed-length table of up to MaxBalances
// balance slots plus group/owner identity.
type Account struct {
	ID       string
	Group    string
	Owner    identity.Principal
	Balances [MaxBalances]BalanceSlot

	// Disabled lets a group admin retire a single account without
	// touching its bank-wide pause (SPEC_FULL.md §C.3), separate from "all
	// slots empty."
	Disabled bool
}

// NewAccount constructs an account with all slots empty, per spec.md's
// lifecycle note ("Account created ... → 16 empty slots").
func NewAccount(id string, group string, owner identity.Principal) Account {
	return Account{ID: id, Group: group, Owner: owner}
}

// Clone deep-copies an Account; BalanceSlot is a value type so the array
// copy on struct assignment already isolates the mutable state, but Clone
// exists so callers never rely on that implementation detail.
func (a Account) Clone() Account {
	clone := a
	clone.Balances = a.Balances
	return clone
}

// findSlot returns the index of the slot holding asset, or -1.
func (a *Account) findSlot(asset string) int {
	for i := range a.Balances {
		if a.Balances[i].AssetMint == asset {
			return i
		}
	}
	return -1
}

// GetBalance returns the slot for asset and whether it is present, without
// creating one.
func (a *Account) GetBalance(asset string) (BalanceSlot, bool) {
	if idx := a.findSlot(asset); idx >= 0 {
		return a.Balances[idx], true
	}
	return BalanceSlot{}, false
}

// GetOrCreateBalance returns the slot for asset, creating it in the first
// empty position if absent. Fails with ErrLendingAccountBalanceSlotsFull if
// all MaxBalances slots are occupied by other assets (spec.md §4.3).
func (a *Account) GetOrCreateBalance(asset string) (int, error) {
	if idx := a.findSlot(asset); idx >= 0 {
		return idx, nil
	}
	for i := range a.Balances {
		if a.Balances[i].Empty() {
			a.Balances[i] = BalanceSlot{AssetMint: asset, DepositShares: Zero(), LiabilityShares: Zero()}
			return i, nil
		}
	}
	return -1, ErrLendingAccountBalanceSlotsFull
}

// releaseIfEmpty zeros a slot once both share counts return to zero,
// enforcing that an unused slot is canonically empty (spec.md §3 lifecycle
// note).
func (a *Account) releaseIfEmpty(idx int) {
	s := a.Balances[idx]
	if s.DepositShares.IsZero() && s.LiabilityShares.IsZero() {
		a.Balances[idx] = BalanceSlot{}
	}
}

// checkSlotExclusivity enforces I4: a slot may not hold strictly positive
// deposit and liability shares simultaneously.
func checkSlotExclusivity(s BalanceSlot) error {
	if s.DepositShares.Sign() > 0 && s.LiabilityShares.Sign() > 0 {
		return ErrMath
	}
	return nil
}
