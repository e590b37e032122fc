package ledger

import "errors"

// Error kinds are a flat, unordered set; callers distinguish them with
// errors.Is, never a type switch or status hierarchy.
var (
	// ErrMath is returned for fixed-point overflow, divide-by-zero, or a
	// negative result where a non-negative one is required. Arithmetic
	// failures from the fixed-point kernel itself surface as
	// ErrMathOverflow; handlers translate that into ErrMath at the
	// instruction boundary so callers only ever see the §7 taxonomy.
	ErrMath = errors.New("ledger: math error")

	// ErrBankDepositCapacityExceeded is returned when a deposit would push
	// a bank's total deposits (valued at the current share value) past
	// its configured max capacity.
	ErrBankDepositCapacityExceeded = errors.New("ledger: bank deposit capacity exceeded")

	// ErrBadAccountHealth is returned when a withdraw/borrow leaves the
	// account unhealthy under the initial weight regime.
	ErrBadAccountHealth = errors.New("ledger: bad account health")

	// ErrAccountIllegalPostLiquidationState covers both "liquidatee was
	// not liquidatable" and "liquidation over-shot initial health" per
	// §9's note that the source uses one kind for both.
	ErrAccountIllegalPostLiquidationState = errors.New("ledger: illegal post-liquidation state")

	// ErrBorrowingNotAllowed is returned when the liquidator would become
	// under-collateralized by the liquidation. A liquidator without enough
	// own deposits of the liability asset borrows the shortfall and fails
	// this way only if that leaves it unhealthy under the initial regime.
	ErrBorrowingNotAllowed = errors.New("ledger: borrowing not allowed")

	// ErrLendingAccountBalanceSlotsFull is returned when all MAX_BALANCES
	// slots are occupied and the requested asset is not among them.
	ErrLendingAccountBalanceSlotsFull = errors.New("ledger: lending account balance slots full")

	// ErrAccountNotInitialized is returned when a referenced bank or
	// account does not exist.
	ErrAccountNotInitialized = errors.New("ledger: account not initialized")

	// ErrIllegalArgument covers non-positive amounts, mismatched groups,
	// self-liquidation, and liquidations where the collateral and
	// liability assets are identical.
	ErrIllegalArgument = errors.New("ledger: illegal argument")

	// ErrOracle is returned when a price is unavailable or stale.
	ErrOracle = errors.New("ledger: oracle error")

	// ErrModuleDisabled is returned when a bank's operational state
	// (SPEC_FULL.md §C.2) rejects an instruction even though the group
	// has not removed the bank.
	ErrModuleDisabled = errors.New("ledger: bank operationally disabled")

	// ErrAccountDisabled is returned when an account has been explicitly
	// retired (SPEC_FULL.md §C.3) and rejects all mutating instructions.
	ErrAccountDisabled = errors.New("ledger: account disabled")
)
