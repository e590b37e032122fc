package ledger

import (
	"github.com/coreledger/marginbank/identity"
	nativecommon "github.com/coreledger/marginbank/native/common"
)

const moduleName = "ledger"

// liquidatorFeeRate and insuranceFeeRate are the group-wide liquidation constants
// (spec.md §4.7, §9's TODO to make them per-bank left unimplemented — see
// DESIGN.md Open Question 3).
var (
	liquidatorFeeRate = mustRate(25, 1000) // 0.025
	insuranceFeeRate  = mustRate(25, 1000) // 0.025
)

func mustRate(numerator, denominator int64) Fixed {
	r, err := FromInt64(numerator).Div(FromInt64(denominator))
	if err != nil {
		panic(err)
	}
	return r
}

// Clock returns the current timestamp, the host-provided current_timestamp()
// collaborator (spec.md §6), reserved for interest accrual.
type Clock func() uint64

// Engine orchestrates the six core instructions against a Store, a
// PriceOracle, and a VaultTransfer collaborator, the same shape as the
// teacher's Engine wired to an engineState, oracle-less equivalent, and
// module-pause guard.
type Engine struct {
	store  Store
	oracle PriceOracle
	vault  VaultTransfer
	clock  Clock
	pauses nativecommon.PauseView
}

// NewEngine constructs an Engine. oracle and vault must be non-nil; clock
// may be nil, in which case no bank ever accrues interest (timestamps stay
// at zero forever).
func NewEngine(store Store, oracle PriceOracle, vault VaultTransfer, clock Clock) *Engine {
	return &Engine{store: store, oracle: oracle, vault: vault, clock: clock}
}

// SetPauses wires the module-pause guard, mirroring the teacher's
// SetPauses/nativecommon.Guard pattern.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) now() uint64 {
	if e.clock == nil {
		return 0
	}
	return e.clock()
}

// CreateGroup initializes a group with the given admin (instruction:
// initialize_group, signer: admin).
func (e *Engine) CreateGroup(id string, admin identity.Principal) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if id == "" || admin.IsZero() {
		return ErrIllegalArgument
	}
	if _, err := e.store.GetGroup(id); err == nil {
		return ErrIllegalArgument
	}
	return e.store.PutGroup(Group{ID: id, Admin: admin})
}

// AddBank creates a bank within a group and binds its three vaults
// (instruction: lending_pool_add_bank, signer: group.admin).
func (e *Engine) AddBank(groupID string, admin identity.Principal, assetMint string, cfg BankConfig, liquidity, insurance, fee identity.Principal) (identity.Principal, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return identity.Principal{}, err
	}
	if assetMint == "" {
		return identity.Principal{}, ErrIllegalArgument
	}

	group, err := e.store.GetGroup(groupID)
	if err != nil {
		return identity.Principal{}, ErrAccountNotInitialized
	}
	if group.Admin != admin {
		return identity.Principal{}, ErrIllegalArgument
	}

	key := identity.DeriveBankKey(groupID, assetMint)
	if _, err := e.store.GetBank(key); err == nil {
		return identity.Principal{}, ErrIllegalArgument
	}

	bank := NewBank(key, groupID, assetMint, cfg, liquidity, insurance, fee)
	if err := e.store.PutBank(bank); err != nil {
		return identity.Principal{}, err
	}

	group.Banks = append(group.Banks, key)
	if err := e.store.PutGroup(group); err != nil {
		return identity.Principal{}, err
	}
	return key, nil
}

// CreateAccount initializes a MarginfiAccount with all slots empty
// (instruction: initialize_marginfi_account, signer: owner).
func (e *Engine) CreateAccount(id string, groupID string, owner identity.Principal) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if id == "" || owner.IsZero() {
		return ErrIllegalArgument
	}
	if _, err := e.store.GetGroup(groupID); err != nil {
		return ErrAccountNotInitialized
	}
	if _, err := e.store.GetAccount(id); err == nil {
		return ErrIllegalArgument
	}
	return e.store.PutAccount(NewAccount(id, groupID, owner))
}

// Health evaluates an account's weighted assets and liabilities in the given
// regime without mutating any state, for introspection callers (e.g. the api
// package) that want to display or alert on an account's risk standing
// outside of submitting an instruction.
func (e *Engine) Health(accountID string, regime WeightRegime) (Health, error) {
	account, err := e.store.GetAccount(accountID)
	if err != nil {
		return Health{}, ErrAccountNotInitialized
	}
	return Evaluate(account, regime, e.bankLookupFor(account.Group), e.oracle)
}

// bankLookupFor builds a BankLookup closure bound to a specific group, used
// by the risk engine to resolve a slot's asset mint to its bank.
func (e *Engine) bankLookupFor(groupID string) BankLookup {
	return func(assetMint string) (Bank, error) {
		key := identity.DeriveBankKey(groupID, assetMint)
		return e.store.GetBank(key)
	}
}

// Deposit transfers amount of asset from fromTokenAccount into the bank's
// liquidity vault and issues deposit shares, netting against any existing
// liability first (instruction: bank_deposit, signer: account.owner).
func (e *Engine) Deposit(accountID string, asset string, fromTokenAccount identity.Principal, amount uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == 0 {
		return ErrIllegalArgument
	}

	account, err := e.store.GetAccount(accountID)
	if err != nil {
		return ErrAccountNotInitialized
	}
	if account.Disabled {
		return ErrAccountDisabled
	}

	bank, err := e.store.GetBank(identity.DeriveBankKey(account.Group, asset))
	if err != nil {
		return ErrAccountNotInitialized
	}
	// BankReduceOnly rejects new deposits the same as BankPaused (it only
	// keeps withdrawals and liquidations open); only BankActive accepts
	// bank_deposit.
	if bank.State != BankActive {
		return ErrModuleDisabled
	}

	if err := accrue(&bank, e.now()); err != nil {
		return err
	}

	amt := FromUint64(amount)

	idx, err := account.GetOrCreateBalance(asset)
	if err != nil {
		return err
	}
	slot := account.Balances[idx]

	remaining := amt
	if slot.LiabilityShares.Sign() > 0 {
		owed, err := bank.ShareToLiability(slot.LiabilityShares)
		if err != nil {
			return ErrMath
		}
		payoff := remaining
		if payoff.Cmp(owed) > 0 {
			payoff = owed
		}
		payoffShares, err := bank.LiabilityToShare(payoff)
		if err != nil {
			return ErrMath
		}
		if payoffShares.Cmp(slot.LiabilityShares) > 0 {
			payoffShares = slot.LiabilityShares
		}
		newLiabilityShares, err := slot.LiabilityShares.Sub(payoffShares)
		if err != nil {
			return ErrMath
		}
		slot.LiabilityShares = newLiabilityShares
		if err := bank.ChangeLiabilityShares(negate(payoffShares)); err != nil {
			return err
		}
		remaining, err = remaining.Sub(payoff)
		if err != nil {
			return ErrMath
		}
	}

	if remaining.Sign() > 0 {
		newShares, err := bank.DepositToShare(remaining)
		if err != nil {
			return ErrMath
		}
		total, err := slot.DepositShares.Add(newShares)
		if err != nil {
			return ErrMath
		}
		slot.DepositShares = total
		// Enforce I2 before any escrow transfer happens: a capacity
		// failure here must leave the vault untouched (spec.md §4.5 step
		// 5, §5's check-then-transfer ordering).
		if err := bank.ChangeDepositShares(newShares); err != nil {
			return err
		}
	}

	if err := checkSlotExclusivity(slot); err != nil {
		return err
	}
	account.Balances[idx] = slot
	account.releaseIfEmpty(idx)

	// Every fallible check has passed; only now move funds into the
	// bank's liquidity vault (spec.md §4.5 step 1, §4.8 atomicity).
	if err := e.vault.Transfer(bank.LiquidityVault, fromTokenAccount, bank.LiquidityVault, asset, amt); err != nil {
		return err
	}

	if err := e.store.PutBank(bank); err != nil {
		return err
	}
	return e.store.PutAccount(account)
}

// Withdraw drains an existing deposit slot and, if the requested amount
// exceeds the deposit, borrows the residual by growing a liability slot
// (instruction: bank_withdraw, signer: account.owner).
func (e *Engine) Withdraw(accountID string, asset string, toTokenAccount identity.Principal, amount uint64) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == 0 {
		return ErrIllegalArgument
	}

	account, err := e.store.GetAccount(accountID)
	if err != nil {
		return ErrAccountNotInitialized
	}
	if account.Disabled {
		return ErrAccountDisabled
	}

	bank, err := e.store.GetBank(identity.DeriveBankKey(account.Group, asset))
	if err != nil {
		return ErrAccountNotInitialized
	}
	// BankPaused rejects bank_withdraw outright. BankReduceOnly still
	// allows draining an existing deposit; only the borrow branch below
	// (residual > 0, i.e. new borrowing) is blocked under ReduceOnly.
	if bank.State == BankPaused {
		return ErrModuleDisabled
	}

	if err := accrue(&bank, e.now()); err != nil {
		return err
	}

	amt := FromUint64(amount)

	idx, err := account.GetOrCreateBalance(asset)
	if err != nil {
		return err
	}
	slot := account.Balances[idx]

	residual := amt
	if slot.DepositShares.Sign() > 0 {
		available, err := bank.ShareToDeposit(slot.DepositShares)
		if err != nil {
			return ErrMath
		}
		withdrawn := residual
		if withdrawn.Cmp(available) > 0 {
			withdrawn = available
		}
		withdrawnShares, err := bank.DepositToShare(withdrawn)
		if err != nil {
			return ErrMath
		}
		if withdrawnShares.Cmp(slot.DepositShares) > 0 {
			withdrawnShares = slot.DepositShares
		}
		newShares, err := slot.DepositShares.Sub(withdrawnShares)
		if err != nil {
			return ErrMath
		}
		slot.DepositShares = newShares
		if err := bank.ChangeDepositShares(negate(withdrawnShares)); err != nil {
			return err
		}
		residual, err = residual.Sub(withdrawn)
		if err != nil {
			return ErrMath
		}
	}

	if residual.Sign() > 0 {
		// New borrowing: BankReduceOnly blocks this branch even though it
		// permits the pure-withdraw branch above.
		if bank.State != BankActive {
			return ErrModuleDisabled
		}
		borrowShares, err := bank.LiabilityToShare(residual)
		if err != nil {
			return ErrMath
		}
		total, err := slot.LiabilityShares.Add(borrowShares)
		if err != nil {
			return ErrMath
		}
		slot.LiabilityShares = total
		if err := bank.ChangeLiabilityShares(borrowShares); err != nil {
			return err
		}
	}

	if err := checkSlotExclusivity(slot); err != nil {
		return err
	}
	account.Balances[idx] = slot
	account.releaseIfEmpty(idx)

	// Check-then-transfer: the health re-check is cheap and must fire
	// before the escrow payout leaves the vault, since neither the
	// vault interface nor its in-memory implementation can reverse a
	// transfer once made (spec.md §4.6 step 5, §5).
	health, err := Evaluate(account, Initial, e.bankLookupFor(account.Group), e.oracle)
	if err != nil {
		return err
	}
	if !health.Healthy() {
		return ErrBadAccountHealth
	}

	if err := e.vault.Transfer(bank.LiquidityVault, bank.LiquidityVault, toTokenAccount, asset, amt); err != nil {
		return err
	}

	if err := e.store.PutBank(bank); err != nil {
		return err
	}
	return e.store.PutAccount(account)
}

// negate returns the additive inverse of v; used for share deltas that
// subtract from a bank total via ChangeDepositShares/ChangeLiabilityShares.
func negate(v Fixed) Fixed {
	neg, err := Zero().Sub(v)
	if err != nil {
		// v is always within range since it derives from an existing
		// share total; Zero()-v cannot overflow when v itself did not.
		panic(err)
	}
	return neg
}

// Liquidate seizes amountCollateral units of assetCollateral from the
// liquidatee, assumes an equivalent (discounted, net of fees) value of
// assetLiability debt, and skims a fee to the liability bank's insurance
// vault (instruction: liquidate, signer: liquidator.owner).
func (e *Engine) Liquidate(liquidatorID, liquidateeID string, assetCollateral string, amountCollateral uint64, assetLiability string) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amountCollateral == 0 || assetCollateral == assetLiability || liquidatorID == liquidateeID {
		return ErrIllegalArgument
	}

	liquidator, err := e.store.GetAccount(liquidatorID)
	if err != nil {
		return ErrAccountNotInitialized
	}
	liquidatee, err := e.store.GetAccount(liquidateeID)
	if err != nil {
		return ErrAccountNotInitialized
	}
	if liquidator.Disabled || liquidatee.Disabled {
		return ErrAccountDisabled
	}
	if liquidator.Group != liquidatee.Group {
		return ErrIllegalArgument
	}

	collateralBank, err := e.store.GetBank(identity.DeriveBankKey(liquidatee.Group, assetCollateral))
	if err != nil {
		return ErrAccountNotInitialized
	}
	liabilityBank, err := e.store.GetBank(identity.DeriveBankKey(liquidatee.Group, assetLiability))
	if err != nil {
		return ErrAccountNotInitialized
	}
	if collateralBank.State == BankPaused || liabilityBank.State == BankPaused {
		return ErrModuleDisabled
	}

	now := e.now()
	if err := accrue(&collateralBank, now); err != nil {
		return err
	}
	if err := accrue(&liabilityBank, now); err != nil {
		return err
	}

	bankLookup := e.bankLookupFor(liquidatee.Group)

	// Step 1: pre-check. The liquidatee must currently be unhealthy under
	// the maintenance regime.
	preHealth, err := Evaluate(liquidatee, Maintenance, bankLookup, e.oracle)
	if err != nil {
		return err
	}
	if preHealth.Healthy() {
		return ErrAccountIllegalPostLiquidationState
	}

	priceCollateral, err := e.oracle.Price(assetCollateral)
	if err != nil {
		return ErrOracle
	}
	priceLiability, err := e.oracle.Price(assetLiability)
	if err != nil {
		return ErrOracle
	}

	q := FromUint64(amountCollateral)
	seizedValue, err := priceCollateral.Mul(q)
	if err != nil {
		return ErrMath
	}

	discount, err := One().Sub(liquidatorFeeRate)
	if err != nil {
		return ErrMath
	}
	discount, err = discount.Sub(insuranceFeeRate)
	if err != nil {
		return ErrMath
	}
	netValue, err := seizedValue.Mul(discount)
	if err != nil {
		return ErrMath
	}
	insuranceValue, err := seizedValue.Mul(insuranceFeeRate)
	if err != nil {
		return ErrMath
	}

	qLiability, err := netValue.Div(priceLiability)
	if err != nil {
		return ErrMath
	}
	insuranceQty, err := insuranceValue.Div(priceLiability)
	if err != nil {
		return ErrMath
	}

	// The liquidator's own outlay covers both the debt retired on the
	// liquidatee (qLiability) and the insurance skim (insuranceQty): it
	// buys V worth of collateral for V*(1-LIQUIDATOR_FEE) worth of
	// assetLiability, pocketing the liquidator-fee share of V as the
	// discount (§4.7 steps 3-6).
	liquidatorPayment, err := qLiability.Add(insuranceQty)
	if err != nil {
		return ErrMath
	}

	// Step 6: state transitions, all against working copies; nothing is
	// persisted until every check below has passed.

	// Liquidatee: lose q of collateral deposit, gain relief on q_l of
	// liability.
	if err := transferCollateralOut(&liquidatee, &collateralBank, assetCollateral, q); err != nil {
		return err
	}
	if err := reduceLiability(&liquidatee, &liabilityBank, assetLiability, qLiability); err != nil {
		return err
	}

	// Liquidator: gain q of collateral deposit, pay for it by drawing
	// down q_l plus the insurance skim (liquidatorPayment) from its own
	// assetLiability position (withdraw-style net-out: deposit first, then
	// borrow the residual).
	if err := creditCollateralIn(&liquidator, &collateralBank, assetCollateral, q); err != nil {
		return err
	}
	if err := debitLiquidatorForRepayment(&liquidator, &liabilityBank, assetLiability, liquidatorPayment); err != nil {
		return err
	}

	// Step 7: post-checks. Over-shoot (requesting more q than the
	// liquidatee's asset_liability debt can absorb) is rejected earlier, in
	// reduceLiability, the moment q_l would exceed the liquidatee's
	// outstanding liability shares for that asset — that is the concrete
	// form §4.7's "over-collateralized beyond necessary" guard takes here,
	// since letting the cap silently apply would seize collateral beyond
	// what the debt being retired justifies.
	liquidatorHealth, err := Evaluate(liquidator, Initial, bankLookup, e.oracle)
	if err != nil {
		return err
	}
	if !liquidatorHealth.Healthy() {
		return ErrBorrowingNotAllowed
	}

	// Every fallible check has passed; only now move the insurance skim,
	// since the vault has no way to reverse a transfer once made (§5). The
	// skim is drawn from the liquidity vault's own balance (where deposits
	// land) and credited to the insurance vault principal.
	if err := e.vault.Transfer(liabilityBank.LiquidityVault, liabilityBank.LiquidityVault, liabilityBank.InsuranceVault, assetLiability, insuranceQty); err != nil {
		return err
	}

	if err := e.store.PutBank(collateralBank); err != nil {
		return err
	}
	if err := e.store.PutBank(liabilityBank); err != nil {
		return err
	}
	if err := e.store.PutAccount(liquidatee); err != nil {
		return err
	}
	return e.store.PutAccount(liquidator)
}

// transferCollateralOut reduces the liquidatee's deposit_shares for
// assetCollateral by deposit_to_share(q) (§4.7 step 6).
func transferCollateralOut(account *Account, bank *Bank, asset string, q Fixed) error {
	idx, err := account.GetOrCreateBalance(asset)
	if err != nil {
		return err
	}
	slot := account.Balances[idx]
	shares, err := bank.DepositToShare(q)
	if err != nil {
		return ErrMath
	}
	if shares.Cmp(slot.DepositShares) > 0 {
		return ErrAccountIllegalPostLiquidationState
	}
	newShares, err := slot.DepositShares.Sub(shares)
	if err != nil {
		return ErrMath
	}
	slot.DepositShares = newShares
	if err := bank.ChangeDepositShares(negate(shares)); err != nil {
		return err
	}
	if err := checkSlotExclusivity(slot); err != nil {
		return err
	}
	account.Balances[idx] = slot
	account.releaseIfEmpty(idx)
	return nil
}

// reduceLiability reduces the liquidatee's liability_shares for
// assetLiability by liability_to_share(qLiability) (§4.7 step 6). Requesting
// more than the liquidatee's outstanding liability shares for this asset is
// the over-shoot case (§4.7 step 7, the OVER_LIQUIDATED state of §4.7's
// liquidation state machine): seizing q worth of collateral to retire more
// debt than exists would hand the liquidator collateral the debt being
// retired doesn't justify, so it is rejected rather than silently capped.
func reduceLiability(account *Account, bank *Bank, asset string, qLiability Fixed) error {
	idx, err := account.GetOrCreateBalance(asset)
	if err != nil {
		return err
	}
	slot := account.Balances[idx]
	shares, err := bank.LiabilityToShare(qLiability)
	if err != nil {
		return ErrMath
	}
	if shares.Cmp(slot.LiabilityShares) > 0 {
		return ErrAccountIllegalPostLiquidationState
	}
	newShares, err := slot.LiabilityShares.Sub(shares)
	if err != nil {
		return ErrMath
	}
	slot.LiabilityShares = newShares
	if err := bank.ChangeLiabilityShares(negate(shares)); err != nil {
		return err
	}
	if err := checkSlotExclusivity(slot); err != nil {
		return err
	}
	account.Balances[idx] = slot
	account.releaseIfEmpty(idx)
	return nil
}

// creditCollateralIn grows the liquidator's deposit_shares for
// assetCollateral by deposit_to_share(q).
func creditCollateralIn(account *Account, bank *Bank, asset string, q Fixed) error {
	idx, err := account.GetOrCreateBalance(asset)
	if err != nil {
		return err
	}
	slot := account.Balances[idx]
	shares, err := bank.DepositToShare(q)
	if err != nil {
		return ErrMath
	}
	total, err := slot.DepositShares.Add(shares)
	if err != nil {
		return ErrMath
	}
	slot.DepositShares = total
	if err := bank.ChangeDepositShares(shares); err != nil {
		return err
	}
	if err := checkSlotExclusivity(slot); err != nil {
		return err
	}
	account.Balances[idx] = slot
	return nil
}

// debitLiquidatorForRepayment applies withdraw-style net-out logic to the
// liquidator's own assetLiability position: drain any existing deposit of
// that asset first, then borrow the residual (§4.7 step 6, "equivalently:
// the liquidator's balance table is debited as if it withdrew q_l units of
// asset_liability"). payment covers both the debt retired on the liquidatee
// and the insurance skim, since the liquidator's discount comes entirely
// from the liquidator fee share of V, not from underpaying the insurance
// vault.
func debitLiquidatorForRepayment(account *Account, bank *Bank, asset string, payment Fixed) error {
	idx, err := account.GetOrCreateBalance(asset)
	if err != nil {
		return err
	}
	slot := account.Balances[idx]

	residual := payment
	if slot.DepositShares.Sign() > 0 {
		available, err := bank.ShareToDeposit(slot.DepositShares)
		if err != nil {
			return ErrMath
		}
		drawn := residual
		if drawn.Cmp(available) > 0 {
			drawn = available
		}
		drawnShares, err := bank.DepositToShare(drawn)
		if err != nil {
			return ErrMath
		}
		if drawnShares.Cmp(slot.DepositShares) > 0 {
			drawnShares = slot.DepositShares
		}
		newShares, err := slot.DepositShares.Sub(drawnShares)
		if err != nil {
			return ErrMath
		}
		slot.DepositShares = newShares
		if err := bank.ChangeDepositShares(negate(drawnShares)); err != nil {
			return err
		}
		residual, err = residual.Sub(drawn)
		if err != nil {
			return ErrMath
		}
	}

	if residual.Sign() > 0 {
		borrowShares, err := bank.LiabilityToShare(residual)
		if err != nil {
			return ErrMath
		}
		total, err := slot.LiabilityShares.Add(borrowShares)
		if err != nil {
			return ErrMath
		}
		slot.LiabilityShares = total
		if err := bank.ChangeLiabilityShares(borrowShares); err != nil {
			return err
		}
	}

	if err := checkSlotExclusivity(slot); err != nil {
		return err
	}
	account.Balances[idx] = slot
	account.releaseIfEmpty(idx)
	return nil
}
