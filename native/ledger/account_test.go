package ledger

import "testing"

func TestGetOrCreateBalanceReusesExistingSlot(t *testing.T) {
	account := NewAccount("acct-1", "group-1", identityForTest(1))
	idx1, err := account.GetOrCreateBalance("USDC")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	idx2, err := account.GetOrCreateBalance("USDC")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if idx1 != idx2 {
		t.Fatalf("expected same slot index, got %d and %d", idx1, idx2)
	}
}

func TestGetOrCreateBalanceFailsWhenFull(t *testing.T) {
	account := NewAccount("acct-1", "group-1", identityForTest(1))
	for i := 0; i < MaxBalances; i++ {
		asset := string(rune('A' + i))
		if _, err := account.GetOrCreateBalance(asset); err != nil {
			t.Fatalf("slot %d: unexpected error %v", i, err)
		}
	}
	if _, err := account.GetOrCreateBalance("overflow"); err != ErrLendingAccountBalanceSlotsFull {
		t.Fatalf("expected ErrLendingAccountBalanceSlotsFull, got %v", err)
	}
}

func TestCheckSlotExclusivityRejectsBothPositive(t *testing.T) {
	slot := BalanceSlot{AssetMint: "USDC", DepositShares: FromInt64(1), LiabilityShares: FromInt64(1)}
	if err := checkSlotExclusivity(slot); err != ErrMath {
		t.Fatalf("expected ErrMath, got %v", err)
	}
}

func TestCheckSlotExclusivityAllowsOneSided(t *testing.T) {
	deposit := BalanceSlot{AssetMint: "USDC", DepositShares: FromInt64(1), LiabilityShares: Zero()}
	if err := checkSlotExclusivity(deposit); err != nil {
		t.Fatalf("deposit-only slot should pass: %v", err)
	}
	liability := BalanceSlot{AssetMint: "USDC", DepositShares: Zero(), LiabilityShares: FromInt64(1)}
	if err := checkSlotExclusivity(liability); err != nil {
		t.Fatalf("liability-only slot should pass: %v", err)
	}
}

func TestReleaseIfEmptyClearsZeroedSlot(t *testing.T) {
	account := NewAccount("acct-1", "group-1", identityForTest(1))
	idx, err := account.GetOrCreateBalance("USDC")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	account.releaseIfEmpty(idx)
	if !account.Balances[idx].Empty() {
		t.Fatalf("expected slot to be released once both share counts are zero")
	}
}

func TestReleaseIfEmptyKeepsNonZeroSlot(t *testing.T) {
	account := NewAccount("acct-1", "group-1", identityForTest(1))
	idx, err := account.GetOrCreateBalance("USDC")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	slot := account.Balances[idx]
	slot.DepositShares = FromInt64(1)
	account.Balances[idx] = slot
	account.releaseIfEmpty(idx)
	if account.Balances[idx].Empty() {
		t.Fatalf("slot with positive deposit shares should not be released")
	}
}

func TestAccountCloneIsIndependent(t *testing.T) {
	account := NewAccount("acct-1", "group-1", identityForTest(1))
	if _, err := account.GetOrCreateBalance("USDC"); err != nil {
		t.Fatalf("create: %v", err)
	}
	clone := account.Clone()
	idx, _ := clone.GetOrCreateBalance("USDC")
	clone.Balances[idx].DepositShares = FromInt64(99)
	if account.Balances[idx].DepositShares.Cmp(clone.Balances[idx].DepositShares) == 0 {
		t.Fatalf("mutating clone's balances should not affect the original")
	}
}
