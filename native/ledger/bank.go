package ledger

import "github.com/coreledger/marginbank/identity"

// OperationalState gates which instructions a bank accepts even when the
// owning group's admin has not removed it. This is additive to spec.md,
// recovered from the original source's bank lifecycle flags (SPEC_FULL.md
// §C.2); it does not implement governance, only an operator-facing switch.
type OperationalState int

const (
	// BankActive accepts deposits, withdrawals, borrows, and liquidations.
	BankActive OperationalState = iota
	// BankReduceOnly accepts withdrawals and liquidations but rejects new
	// deposits and new borrowing.
	BankReduceOnly
	// BankPaused rejects every instruction against this bank.
	BankPaused
)

// BankConfig holds the risk parameters and capacity bound of a bank, the
// fields an admin supplies to lending_pool_add_bank.
type BankConfig struct {
	// DepositWeightInit / DepositWeightMaint haircut deposits in the
	// initial and maintenance regimes; by convention in [0, 1].
	DepositWeightInit  Fixed
	DepositWeightMaint Fixed
	// LiabilityWeightInit / LiabilityWeightMaint mark up liabilities in the
	// initial and maintenance regimes; by convention in [1, ∞).
	LiabilityWeightInit  Fixed
	LiabilityWeightMaint Fixed
	// MaxCapacity bounds total deposits valued at the current share value.
	MaxCapacity Fixed
	// OracleBinding is an opaque per-bank identifier passed to the
	// PriceOracle collaborator alongside the asset mint (SPEC_FULL.md
	// §C.1); oracle binding is per-bank, never a single module-wide feed.
	OracleBinding string
	// InterestModel is nil for a bank that never accrues interest, the
	// zero-configuration default (spec.md §9's open question, option (b)):
	// accrual is opt-in per bank.
	InterestModel *InterestModel
}

// Clone deep-copies a BankConfig, including its optional interest model.
func (c BankConfig) Clone() BankConfig {
	clone := c
	if c.InterestModel != nil {
		m := c.InterestModel.Clone()
		clone.InterestModel = &m
	}
	return clone
}

// Bank is one per-asset pool within a group. Its identity is the pair
// (group, asset_mint); callers derive the storage key via
// identity.DeriveBankKey.
type Bank struct {
	Key       identity.Principal
	Group     string
	AssetMint string

	// DepositShareValue / LiabilityShareValue are fixed-point scaling
	// factors: amount = shares × scaling. Both start at One() and evolve
	// only through interest accrual.
	DepositShareValue   Fixed
	LiabilityShareValue Fixed

	// TotalDepositShares / TotalLiabilityShares are non-negative running
	// sums across all accounts holding a slot in this bank.
	TotalDepositShares   Fixed
	TotalLiabilityShares Fixed

	Config BankConfig

	// LiquidityVault, InsuranceVault, and FeeVault are escrow handles; see
	// the VaultTransfer collaborator interface in vault.go.
	LiquidityVault identity.Principal
	InsuranceVault identity.Principal
	FeeVault       identity.Principal

	State OperationalState

	// LastAccrualTimestamp records when DepositShareValue/
	// LiabilityShareValue were last updated by accrual.go; zero means
	// never accrued.
	LastAccrualTimestamp uint64
}

// NewBank constructs a bank with both share values initialized to one and
// zero totals, per spec.md §3.
func NewBank(key identity.Principal, group string, assetMint string, cfg BankConfig, liquidity, insurance, fee identity.Principal) Bank {
	return Bank{
		Key:                  key,
		Group:                group,
		AssetMint:            assetMint,
		DepositShareValue:    One(),
		LiabilityShareValue:  One(),
		TotalDepositShares:   Zero(),
		TotalLiabilityShares: Zero(),
		Config:               cfg.Clone(),
		LiquidityVault:       liquidity,
		InsuranceVault:       insurance,
		FeeVault:             fee,
		State:                BankActive,
	}
}

// Clone deep-copies a Bank so handlers can mutate a working copy and only
// persist it back to the store on success.
func (b Bank) Clone() Bank {
	clone := b
	clone.Config = b.Config.Clone()
	return clone
}

// DepositToShare converts a deposit amount to shares, rounded down (§4.2).
func (b Bank) DepositToShare(amount Fixed) (Fixed, error) {
	return amount.DivRound(b.DepositShareValue, roundDown)
}

// ShareToDeposit converts deposit shares to an amount, rounded down (§4.2).
func (b Bank) ShareToDeposit(shares Fixed) (Fixed, error) {
	return shares.MulRound(b.DepositShareValue, roundDown)
}

// LiabilityToShare converts a liability amount to shares, rounded up so
// shares issued to a borrower never under-count what is owed (§4.2).
func (b Bank) LiabilityToShare(amount Fixed) (Fixed, error) {
	return amount.DivRound(b.LiabilityShareValue, roundUp)
}

// ShareToLiability converts liability shares to an amount, rounded down:
// payouts round down in both directions per the §9 rounding-asymmetry note.
func (b Bank) ShareToLiability(shares Fixed) (Fixed, error) {
	return shares.MulRound(b.LiabilityShareValue, roundDown)
}

// ChangeDepositShares applies Δ to total deposit shares and enforces I2: if
// the new total (valued at the current share value) would exceed
// MaxCapacity, the change is rejected and the bank is left unmodified.
func (b *Bank) ChangeDepositShares(delta Fixed) error {
	newTotal, err := b.TotalDepositShares.Add(delta)
	if err != nil {
		return ErrMath
	}
	if newTotal.Sign() < 0 {
		return ErrMath
	}
	newValue, err := newTotal.MulRound(b.DepositShareValue, roundDown)
	if err != nil {
		return ErrMath
	}
	if newValue.Cmp(b.Config.MaxCapacity) > 0 {
		return ErrBankDepositCapacityExceeded
	}
	b.TotalDepositShares = newTotal
	return nil
}

// ChangeLiabilityShares applies Δ to total liability shares; the result may
// never go negative.
func (b *Bank) ChangeLiabilityShares(delta Fixed) error {
	newTotal, err := b.TotalLiabilityShares.Add(delta)
	if err != nil {
		return ErrMath
	}
	if newTotal.Sign() < 0 {
		return ErrMath
	}
	b.TotalLiabilityShares = newTotal
	return nil
}
