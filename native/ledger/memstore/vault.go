package memstore

import (
	"sync"

	"github.com/coreledger/marginbank/identity"
	"github.com/coreledger/marginbank/native/ledger"
)

type vaultBalanceKey struct {
	vault identity.Principal
	asset string
	owner identity.Principal
}

// Vault is an in-memory ledger.VaultTransfer: it tracks, per (vault, asset,
// owner), a non-negative balance and moves amounts between owners on
// Transfer, mirroring the bank's three escrow vaults without any real token
// custody. This is the reference host's stand-in for the token-account
// transfers spec.md §6 describes as a host collaborator.
type Vault struct {
	mu       sync.Mutex
	balances map[vaultBalanceKey]ledger.Fixed
}

// NewVault returns an empty Vault.
func NewVault() *Vault {
	return &Vault{balances: make(map[vaultBalanceKey]ledger.Fixed)}
}

// Credit increases owner's recorded balance at vault for assetMint by
// amount, used to seed a token account (e.g. before a deposit) the way a
// wallet would already hold funds before calling in.
func (v *Vault) Credit(vault identity.Principal, owner identity.Principal, assetMint string, amount ledger.Fixed) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := vaultBalanceKey{vault: vault, asset: assetMint, owner: owner}
	newBalance, err := v.balances[key].Add(amount)
	if err != nil {
		return err
	}
	v.balances[key] = newBalance
	return nil
}

// Balance returns owner's recorded balance at vault for assetMint.
func (v *Vault) Balance(vault identity.Principal, owner identity.Principal, assetMint string) ledger.Fixed {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := vaultBalanceKey{vault: vault, asset: assetMint, owner: owner}
	bal, ok := v.balances[key]
	if !ok {
		return ledger.Zero()
	}
	return bal
}

// Transfer implements ledger.VaultTransfer: it debits from and credits to
// within the same vault/asset namespace, failing if from would go negative.
func (v *Vault) Transfer(vault identity.Principal, from, to identity.Principal, assetMint string, amount ledger.Fixed) error {
	if amount.Sign() < 0 {
		return ledger.ErrIllegalArgument
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	fromKey := vaultBalanceKey{vault: vault, asset: assetMint, owner: from}
	toKey := vaultBalanceKey{vault: vault, asset: assetMint, owner: to}

	fromBalance, ok := v.balances[fromKey]
	if !ok {
		fromBalance = ledger.Zero()
	}
	newFrom, err := fromBalance.Sub(amount)
	if err != nil {
		return err
	}
	if newFrom.Sign() < 0 {
		return ledger.ErrIllegalArgument
	}

	toBalance, ok := v.balances[toKey]
	if !ok {
		toBalance = ledger.Zero()
	}
	newTo, err := toBalance.Add(amount)
	if err != nil {
		return err
	}

	v.balances[fromKey] = newFrom
	v.balances[toKey] = newTo
	return nil
}
