package ledger

import "github.com/coreledger/marginbank/identity"

// VaultTransfer is the host-provided escrow collaborator (spec.md §6):
// infallible on commit, reverted on abort by the host. The core treats
// vaults as balance-tracking escrows and never implements custody itself.
type VaultTransfer interface {
	// Transfer moves amount of assetMint from one principal to another.
	// vault identifies which of a bank's three vaults (liquidity,
	// insurance, fee) is the counterparty side of the transfer.
	Transfer(vault identity.Principal, from, to identity.Principal, assetMint string, amount Fixed) error
}
