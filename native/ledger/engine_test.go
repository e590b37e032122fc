package ledger

import (
	"errors"
	"testing"

	"github.com/coreledger/marginbank/identity"
)

// testStore is a minimal in-package Store used only by this file's
// end-to-end scenarios; the production implementation lives in memstore
// (kept out of this package to avoid an import cycle with ledger itself).
type testStore struct {
	groups   map[string]Group
	banks    map[identity.Principal]Bank
	accounts map[string]Account
}

func newTestStore() *testStore {
	return &testStore{
		groups:   make(map[string]Group),
		banks:    make(map[identity.Principal]Bank),
		accounts: make(map[string]Account),
	}
}

func (s *testStore) GetGroup(id string) (Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrAccountNotInitialized
	}
	return g.Clone(), nil
}

func (s *testStore) PutGroup(group Group) error {
	s.groups[group.ID] = group.Clone()
	return nil
}

func (s *testStore) GetBank(key identity.Principal) (Bank, error) {
	b, ok := s.banks[key]
	if !ok {
		return Bank{}, ErrAccountNotInitialized
	}
	return b.Clone(), nil
}

func (s *testStore) PutBank(bank Bank) error {
	s.banks[bank.Key] = bank.Clone()
	return nil
}

func (s *testStore) GetAccount(id string) (Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotInitialized
	}
	return a.Clone(), nil
}

func (s *testStore) PutAccount(account Account) error {
	s.accounts[account.ID] = account.Clone()
	return nil
}

// testVaultKey and testVault give this file its own tiny escrow double,
// tracking a non-negative balance per (vault, asset, owner).
type testVaultKey struct {
	vault identity.Principal
	asset string
	owner identity.Principal
}

type testVault struct {
	balances map[testVaultKey]Fixed
}

func newTestVault() *testVault {
	return &testVault{balances: make(map[testVaultKey]Fixed)}
}

func (v *testVault) credit(vault identity.Principal, owner identity.Principal, asset string, amount Fixed) {
	key := testVaultKey{vault: vault, asset: asset, owner: owner}
	newBalance, err := v.balances[key].Add(amount)
	if err != nil {
		panic(err)
	}
	v.balances[key] = newBalance
}

func (v *testVault) balance(vault identity.Principal, owner identity.Principal, asset string) Fixed {
	bal, ok := v.balances[testVaultKey{vault: vault, asset: asset, owner: owner}]
	if !ok {
		return Zero()
	}
	return bal
}

func (v *testVault) Transfer(vault identity.Principal, from, to identity.Principal, asset string, amount Fixed) error {
	if amount.Sign() < 0 {
		return ErrIllegalArgument
	}
	fromKey := testVaultKey{vault: vault, asset: asset, owner: from}
	toKey := testVaultKey{vault: vault, asset: asset, owner: to}

	fromBalance := v.balances[fromKey]
	newFrom, err := fromBalance.Sub(amount)
	if err != nil {
		return err
	}
	if newFrom.Sign() < 0 {
		return ErrIllegalArgument
	}
	newTo, err := v.balances[toKey].Add(amount)
	if err != nil {
		return err
	}
	v.balances[fromKey] = newFrom
	v.balances[toKey] = newTo
	return nil
}

// defaultBankConfig mirrors S2/S3's "default config" banks: generous
// weights, no haircut/markup pressure, used whenever a scenario doesn't
// care about risk parameters.
func defaultBankConfig(maxCapacity Fixed) BankConfig {
	return BankConfig{
		DepositWeightInit:    One(),
		DepositWeightMaint:   One(),
		LiabilityWeightInit:  One(),
		LiabilityWeightMaint: One(),
		MaxCapacity:          maxCapacity,
	}
}

// nativeAmount scales a whole-token amount by 10^decimals, the "native(n,
// decimals)" notation spec.md's scenarios use for token amounts (e.g.
// native(1_000_000, 6) for 1,000,000 USDC at 6 decimals).
func nativeAmount(n int64, decimals int) uint64 {
	v := FromInt64(n)
	for i := 0; i < decimals; i++ {
		v, _ = v.Mul(FromInt64(10))
	}
	amt, err := v.ToUint64Floor()
	if err != nil {
		panic(err)
	}
	return amt
}

type engineFixture struct {
	engine *Engine
	store  *testStore
	vault  *testVault
	oracle staticOracle
	group  string
	admin  identity.Principal
}

func newEngineFixture() *engineFixture {
	store := newTestStore()
	vault := newTestVault()
	oracle := staticOracle{}
	engine := NewEngine(store, oracle, vault, nil)

	admin := identityForTest(1)
	if err := engine.CreateGroup("group-1", admin); err != nil {
		panic(err)
	}
	return &engineFixture{engine: engine, store: store, vault: vault, oracle: oracle, group: "group-1", admin: admin}
}

// addBank creates a bank, binding it to a fresh triple of vault principals
// derived from seed (seed, seed+1, seed+2), so banks given seeds at least
// three apart never collide.
func (f *engineFixture) addBank(asset string, cfg BankConfig, seed byte) identity.Principal {
	liquidity := identityForTest(seed)
	insurance := identityForTest(seed + 1)
	fee := identityForTest(seed + 2)
	key, err := f.engine.AddBank(f.group, f.admin, asset, cfg, liquidity, insurance, fee)
	if err != nil {
		panic(err)
	}
	return key
}

func (f *engineFixture) createAccount(id string, owner identity.Principal) {
	if err := f.engine.CreateAccount(id, f.group, owner); err != nil {
		panic(err)
	}
}

func (f *engineFixture) bank(asset string) Bank {
	b, err := f.store.GetBank(identity.DeriveBankKey(f.group, asset))
	if err != nil {
		panic(err)
	}
	return b
}

func (f *engineFixture) account(id string) Account {
	a, err := f.store.GetAccount(id)
	if err != nil {
		panic(err)
	}
	return a
}

// setBankState forces a bank's OperationalState directly in the store,
// the way governance action would in production (no engine instruction
// changes it here, so tests reach past the engine to set it up).
func (f *engineFixture) setBankState(asset string, state OperationalState) {
	bank := f.bank(asset)
	bank.State = state
	if err := f.store.PutBank(bank); err != nil {
		panic(err)
	}
}

// mintToUser seeds a token account with amount of asset outside of any
// bank's liquidity vault, the way a wallet would already hold funds before
// calling bank_deposit.
func (f *engineFixture) mintToUser(user identity.Principal, bankKey identity.Principal, asset string, amount Fixed) {
	bank, err := f.store.GetBank(bankKey)
	if err != nil {
		panic(err)
	}
	f.vault.credit(bank.LiquidityVault, user, asset, amount)
}

// --- S1: create account ---

func TestS1CreateAccount(t *testing.T) {
	f := newEngineFixture()
	owner := identityForTest(20)
	f.createAccount("acct-1", owner)

	account := f.account("acct-1")
	if account.Group != f.group {
		t.Fatalf("expected group %q, got %q", f.group, account.Group)
	}
	if account.Owner != owner {
		t.Fatalf("expected owner %v, got %v", owner, account.Owner)
	}
	for i, slot := range account.Balances {
		if !slot.Empty() {
			t.Fatalf("expected slot %d empty, got %+v", i, slot)
		}
	}
}

// --- S2: successful deposit ---

func TestS2SuccessfulDeposit(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	bankKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)

	user := identityForTest(40)
	f.createAccount("user", user)
	amount := nativeAmount(1_000, 6)
	f.mintToUser(user, bankKey, "USDC", FromUint64(amount))

	if err := f.engine.Deposit("user", "USDC", user, amount); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	account := f.account("user")
	slot, ok := account.GetBalance("USDC")
	if !ok {
		t.Fatalf("expected an active USDC balance slot")
	}
	bank := f.bank("USDC")
	amt, err := bank.ShareToDeposit(slot.DepositShares)
	if err != nil {
		t.Fatalf("share_to_deposit: %v", err)
	}
	if amt.Cmp(FromUint64(amount)) != 0 {
		t.Fatalf("expected deposit amount %s, got %s", FromUint64(amount), amt)
	}
}

// --- S3: capacity exceeded ---

func TestS3CapacityExceeded(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	bankKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(100, 6)), 30)

	user := identityForTest(40)
	f.createAccount("user", user)
	total := nativeAmount(200, 6)
	f.mintToUser(user, bankKey, "USDC", FromUint64(total))

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(99, 6)); err != nil {
		t.Fatalf("first deposit: %v", err)
	}

	preAccount := f.account("user")
	preBank := f.bank("USDC")
	preUserBalance := f.vault.balance(preBank.LiquidityVault, user, "USDC")

	err := f.engine.Deposit("user", "USDC", user, nativeAmount(101, 6))
	if !errors.Is(err, ErrBankDepositCapacityExceeded) {
		t.Fatalf("expected ErrBankDepositCapacityExceeded, got %v", err)
	}

	postAccount := f.account("user")
	postBank := f.bank("USDC")
	postUserBalance := f.vault.balance(postBank.LiquidityVault, user, "USDC")
	if preAccount.Balances != postAccount.Balances {
		t.Fatalf("account state must be unchanged after a rejected deposit")
	}
	if preBank.TotalDepositShares.Cmp(postBank.TotalDepositShares) != 0 {
		t.Fatalf("bank totals must be unchanged after a rejected deposit")
	}
	if preUserBalance.Cmp(postUserBalance) != 0 {
		t.Fatalf("escrow transfer must be reverted after a rejected deposit: pre=%s post=%s", preUserBalance, postUserBalance)
	}
}

func nativeAmountFixed(n int64, decimals int) Fixed {
	return FromUint64(nativeAmount(n, decimals))
}

// --- S4: borrow against collateral ---

func TestS4BorrowAgainstCollateral(t *testing.T) {
	f := newEngineFixture()
	// Prices apply to base units: 1 SOL (10^9) = 10 USDC (10 × 10^6), so
	// one SOL base unit is worth 0.01 USDC base units.
	f.oracle["USDC"] = FromInt64(1)
	f.oracle["SOL"] = mustRate(1, 100)
	usdcKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	solKey := f.addBank("SOL", defaultBankConfig(nativeAmountFixed(1_000_000, 9)), 40)
	// The SOL liquidity vault needs tokens on hand to pay out the borrow.
	f.mintToUser(f.bank("SOL").LiquidityVault, solKey, "SOL", nativeAmountFixed(2, 9))

	user := identityForTest(50)
	f.createAccount("user", user)
	f.mintToUser(user, usdcKey, "USDC", nativeAmountFixed(1_000, 6))

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(1_000, 6)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.Withdraw("user", "SOL", user, nativeAmount(2, 9)); err != nil {
		t.Fatalf("withdraw (borrow): %v", err)
	}

	usdcBank := f.bank("USDC")
	solBank := f.bank("SOL")
	userUSDCBalance := f.vault.balance(usdcBank.LiquidityVault, user, "USDC")
	userSOLBalance := f.vault.balance(solBank.LiquidityVault, user, "SOL")
	if !userUSDCBalance.IsZero() {
		t.Fatalf("expected user's USDC token account at 0, got %s", userUSDCBalance)
	}
	if userSOLBalance.Cmp(nativeAmountFixed(2, 9)) != 0 {
		t.Fatalf("expected user's SOL token account at %s, got %s", nativeAmountFixed(2, 9), userSOLBalance)
	}

	account := f.account("user")
	usdcSlot, ok := account.GetBalance("USDC")
	if !ok || usdcSlot.DepositShares.Sign() <= 0 {
		t.Fatalf("expected a positive USDC deposit slot, got %+v", usdcSlot)
	}
	solSlot, ok := account.GetBalance("SOL")
	if !ok || solSlot.LiabilityShares.Sign() <= 0 || solSlot.DepositShares.Sign() != 0 {
		t.Fatalf("expected SOL to be a liability-only slot, got %+v", solSlot)
	}
}

// --- S5: borrow rejected for bad health ---

func TestS5BorrowRejectedForBadHealth(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	f.oracle["SOL"] = FromInt64(10)
	usdcKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	f.addBank("SOL", defaultBankConfig(nativeAmountFixed(1_000_000, 9)), 40)

	user := identityForTest(50)
	f.createAccount("user", user)
	f.mintToUser(user, usdcKey, "USDC", nativeAmountFixed(1, 6))

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(1, 6)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	preAccount := f.account("user")
	preUSDCBank := f.bank("USDC")
	preSOLBank := f.bank("SOL")
	preUserSOLBalance := f.vault.balance(preSOLBank.LiquidityVault, user, "SOL")

	err := f.engine.Withdraw("user", "SOL", user, nativeAmount(1, 9))
	if !errors.Is(err, ErrBadAccountHealth) {
		t.Fatalf("expected ErrBadAccountHealth, got %v", err)
	}

	postAccount := f.account("user")
	postUSDCBank := f.bank("USDC")
	postSOLBank := f.bank("SOL")
	postUserSOLBalance := f.vault.balance(postSOLBank.LiquidityVault, user, "SOL")
	if preAccount.Balances != postAccount.Balances {
		t.Fatalf("account state must equal pre-call state after a rejected borrow")
	}
	if preUSDCBank.TotalDepositShares.Cmp(postUSDCBank.TotalDepositShares) != 0 {
		t.Fatalf("USDC bank totals must be unchanged")
	}
	if preSOLBank.TotalLiabilityShares.Cmp(postSOLBank.TotalLiabilityShares) != 0 {
		t.Fatalf("SOL bank totals must be unchanged")
	}
	if preUserSOLBalance.Cmp(postUserSOLBalance) != 0 {
		t.Fatalf("the SOL payout must be reverted after a rejected borrow: pre=%s post=%s", preUserSOLBalance, postUserSOLBalance)
	}
}

// --- S6: successful liquidation ---

func TestS6SuccessfulLiquidation(t *testing.T) {
	f := newEngineFixture()
	// Prices apply to base units: 1 SOL (10^9) = 10 USDC (10 × 10^6), so
	// one SOL base unit is worth 0.01 USDC base units.
	f.oracle["USDC"] = FromInt64(1)
	f.oracle["SOL"] = mustRate(1, 100)

	usdcKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(10_000_000, 6)), 30)
	solConfig := defaultBankConfig(nativeAmountFixed(10_000_000, 9))
	solConfig.DepositWeightInit = One()
	// The maintenance deposit weight is deliberately far below the
	// initial one (spec.md §4.4's two-regime design): this is what makes
	// the borrower's 10x-overcollateralized initial position trip the
	// maintenance trigger and become liquidatable.
	solConfig.DepositWeightMaint, _ = FromDecimalString("0.05")
	solKey := f.addBank("SOL", solConfig, 40)

	depositor := identityForTest(50)
	borrower := identityForTest(60)
	f.createAccount("depositor", depositor)
	f.createAccount("borrower", borrower)

	f.mintToUser(depositor, usdcKey, "USDC", nativeAmountFixed(200, 6))
	f.mintToUser(borrower, solKey, "SOL", nativeAmountFixed(100, 9))

	if err := f.engine.Deposit("depositor", "USDC", depositor, nativeAmount(200, 6)); err != nil {
		t.Fatalf("depositor deposit: %v", err)
	}
	if err := f.engine.Deposit("borrower", "SOL", borrower, nativeAmount(100, 9)); err != nil {
		t.Fatalf("borrower deposit: %v", err)
	}
	if err := f.engine.Withdraw("borrower", "USDC", borrower, nativeAmount(100, 6)); err != nil {
		t.Fatalf("borrower withdraw (borrow): %v", err)
	}

	preHealth, err := f.engine.Health("borrower", Maintenance)
	if err != nil {
		t.Fatalf("pre-liquidation health: %v", err)
	}
	if preHealth.Healthy() {
		t.Fatalf("expected borrower to be unhealthy under maintenance weights before liquidation")
	}

	if err := f.engine.Liquidate("depositor", "borrower", "SOL", nativeAmount(1, 9), "USDC"); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	epsilon, err := FromDecimalString("0.00001")
	if err != nil {
		t.Fatalf("epsilon: %v", err)
	}

	solBank := f.bank("SOL")
	usdcBank := f.bank("USDC")

	depositorAccount := f.account("depositor")
	depositorSOL, _ := depositorAccount.GetBalance("SOL")
	depositorSOLAmount, err := solBank.ShareToDeposit(depositorSOL.DepositShares)
	if err != nil {
		t.Fatalf("depositor SOL amount: %v", err)
	}
	if diff, _ := depositorSOLAmount.Sub(nativeAmountFixed(1, 9)); diff.Sign() != 0 && abs(diff).Cmp(epsilon) > 0 {
		t.Fatalf("expected depositor to hold 1 SOL, got %s", depositorSOLAmount)
	}

	depositorUSDC, _ := depositorAccount.GetBalance("USDC")
	depositorUSDCAmount, err := usdcBank.ShareToDeposit(depositorUSDC.DepositShares)
	if err != nil {
		t.Fatalf("depositor USDC amount: %v", err)
	}
	expectedDepositorUSDC, err := FromDecimalString("190250000")
	if err != nil {
		t.Fatalf("expected literal: %v", err)
	}
	if diff, _ := depositorUSDCAmount.Sub(expectedDepositorUSDC); abs(diff).Cmp(epsilon) > 0 {
		t.Fatalf("expected depositor to hold 190.25 USDC, got %s", depositorUSDCAmount)
	}

	borrowerAccount := f.account("borrower")
	borrowerSOL, _ := borrowerAccount.GetBalance("SOL")
	borrowerSOLAmount, err := solBank.ShareToDeposit(borrowerSOL.DepositShares)
	if err != nil {
		t.Fatalf("borrower SOL amount: %v", err)
	}
	expectedBorrowerSOL, err := FromDecimalString("99000000000")
	if err != nil {
		t.Fatalf("expected literal: %v", err)
	}
	if diff, _ := borrowerSOLAmount.Sub(expectedBorrowerSOL); abs(diff).Cmp(epsilon) > 0 {
		t.Fatalf("expected borrower to hold 99 SOL, got %s", borrowerSOLAmount)
	}

	borrowerUSDC, _ := borrowerAccount.GetBalance("USDC")
	borrowerUSDCAmount, err := usdcBank.ShareToLiability(borrowerUSDC.LiabilityShares)
	if err != nil {
		t.Fatalf("borrower USDC liability amount: %v", err)
	}
	expectedBorrowerLiability, err := FromDecimalString("90500000")
	if err != nil {
		t.Fatalf("expected literal: %v", err)
	}
	if diff, _ := borrowerUSDCAmount.Sub(expectedBorrowerLiability); abs(diff).Cmp(epsilon) > 0 {
		t.Fatalf("expected borrower to owe 90.50 USDC, got %s", borrowerUSDCAmount)
	}

	insuranceBalance := f.vault.balance(usdcBank.LiquidityVault, usdcBank.InsuranceVault, "USDC")
	expectedInsurance, err := FromDecimalString("250000")
	if err != nil {
		t.Fatalf("expected literal: %v", err)
	}
	if diff, _ := insuranceBalance.Sub(expectedInsurance); abs(diff).Cmp(epsilon) > 0 {
		t.Fatalf("expected USDC insurance vault to gain 0.25 USDC, got %s", insuranceBalance)
	}
}

func abs(f Fixed) Fixed {
	if f.Sign() < 0 {
		neg, err := Zero().Sub(f)
		if err != nil {
			panic(err)
		}
		return neg
	}
	return f
}

// --- S7: liquidation refused when healthy ---

func TestS7LiquidationRefusedWhenHealthy(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	f.oracle["SOL"] = FromInt64(10)

	usdcKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(10_000_000, 6)), 30)
	solConfig := defaultBankConfig(nativeAmountFixed(10_000_000, 9))
	solConfig.DepositWeightInit = One()
	solConfig.DepositWeightMaint = One()
	solKey := f.addBank("SOL", solConfig, 40)

	depositor := identityForTest(50)
	borrower := identityForTest(60)
	f.createAccount("depositor", depositor)
	f.createAccount("borrower", borrower)

	f.mintToUser(depositor, usdcKey, "USDC", nativeAmountFixed(200, 6))
	f.mintToUser(borrower, solKey, "SOL", nativeAmountFixed(100, 9))

	if err := f.engine.Deposit("depositor", "USDC", depositor, nativeAmount(200, 6)); err != nil {
		t.Fatalf("depositor deposit: %v", err)
	}
	if err := f.engine.Deposit("borrower", "SOL", borrower, nativeAmount(100, 9)); err != nil {
		t.Fatalf("borrower deposit: %v", err)
	}
	if err := f.engine.Withdraw("borrower", "USDC", borrower, nativeAmount(100, 6)); err != nil {
		t.Fatalf("borrower withdraw (borrow): %v", err)
	}

	err := f.engine.Liquidate("depositor", "borrower", "SOL", nativeAmount(1, 9), "USDC")
	if !errors.Is(err, ErrAccountIllegalPostLiquidationState) {
		t.Fatalf("expected ErrAccountIllegalPostLiquidationState, got %v", err)
	}
}

// --- S8: liquidation over-shoot rejected, smaller amount succeeds ---

func TestS8LiquidationOvershootRejected(t *testing.T) {
	f := newEngineFixture()
	// Prices apply to base units: 1 SOL (10^9) = 10 USDC (10 × 10^6), so
	// one SOL base unit is worth 0.01 USDC base units.
	f.oracle["USDC"] = FromInt64(1)
	f.oracle["SOL"] = mustRate(1, 100)

	usdcKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(10_000_000, 6)), 30)
	solConfig := defaultBankConfig(nativeAmountFixed(10_000_000, 9))
	solConfig.DepositWeightInit, _ = FromDecimalString("0.9")
	// 0.55 keeps the borrower comfortably healthy at the 0.9 initial
	// weight (90 ≥ 60) but unhealthy, only slightly, at maintenance
	// (55 < 60) — the "healthy but only slightly unhealthy" case S8
	// calls for.
	solConfig.DepositWeightMaint, _ = FromDecimalString("0.55")
	solKey := f.addBank("SOL", solConfig, 40)

	depositor := identityForTest(50)
	borrower := identityForTest(60)
	f.createAccount("depositor", depositor)
	f.createAccount("borrower", borrower)

	f.mintToUser(depositor, usdcKey, "USDC", nativeAmountFixed(1_000, 6))
	f.mintToUser(borrower, solKey, "SOL", nativeAmountFixed(10, 9))

	if err := f.engine.Deposit("depositor", "USDC", depositor, nativeAmount(1_000, 6)); err != nil {
		t.Fatalf("depositor deposit: %v", err)
	}
	if err := f.engine.Deposit("borrower", "SOL", borrower, nativeAmount(10, 9)); err != nil {
		t.Fatalf("borrower deposit: %v", err)
	}
	if err := f.engine.Withdraw("borrower", "USDC", borrower, nativeAmount(60, 6)); err != nil {
		t.Fatalf("borrower withdraw (borrow): %v", err)
	}

	maintHealth, err := f.engine.Health("borrower", Maintenance)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if maintHealth.Healthy() {
		t.Fatalf("expected borrower to be unhealthy under maintenance weights before liquidation")
	}

	if err := f.engine.Liquidate("depositor", "borrower", "SOL", nativeAmount(10, 9), "USDC"); !errors.Is(err, ErrAccountIllegalPostLiquidationState) {
		t.Fatalf("expected over-shoot liquidation to fail with ErrAccountIllegalPostLiquidationState, got %v", err)
	}

	if err := f.engine.Liquidate("depositor", "borrower", "SOL", nativeAmount(1, 9), "USDC"); err != nil {
		t.Fatalf("expected a smaller liquidation to succeed, got %v", err)
	}
}

// --- additional coverage: group/bank/account plumbing errors ---

func TestCreateGroupRejectsDuplicateID(t *testing.T) {
	f := newEngineFixture()
	if err := f.engine.CreateGroup(f.group, f.admin); !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument for duplicate group id, got %v", err)
	}
}

func TestAddBankRejectsNonAdmin(t *testing.T) {
	f := newEngineFixture()
	notAdmin := identityForTest(99)
	_, err := f.engine.AddBank(f.group, notAdmin, "USDC", defaultBankConfig(FromInt64(1_000_000)), identityForTest(2), identityForTest(3), identityForTest(4))
	if !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument for a non-admin caller, got %v", err)
	}
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	f := newEngineFixture()
	f.addBank("USDC", defaultBankConfig(FromInt64(1_000_000)), 30)
	user := identityForTest(40)
	f.createAccount("user", user)
	if err := f.engine.Deposit("user", "USDC", user, 0); !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument for a zero-amount deposit, got %v", err)
	}
}

func TestDepositRejectsUnknownBank(t *testing.T) {
	f := newEngineFixture()
	user := identityForTest(40)
	f.createAccount("user", user)
	if err := f.engine.Deposit("user", "USDC", user, 100); !errors.Is(err, ErrAccountNotInitialized) {
		t.Fatalf("expected ErrAccountNotInitialized for an unbanked asset, got %v", err)
	}
}

func TestLiquidateRejectsSelfLiquidation(t *testing.T) {
	f := newEngineFixture()
	f.addBank("USDC", defaultBankConfig(FromInt64(1_000_000)), 30)
	f.addBank("SOL", defaultBankConfig(FromInt64(1_000_000)), 40)
	user := identityForTest(50)
	f.createAccount("user", user)
	if err := f.engine.Liquidate("user", "user", "SOL", 1, "USDC"); !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument for self-liquidation, got %v", err)
	}
}

func TestLiquidateRejectsSameCollateralAndLiabilityAsset(t *testing.T) {
	f := newEngineFixture()
	f.addBank("USDC", defaultBankConfig(FromInt64(1_000_000)), 30)
	liquidator := identityForTest(50)
	liquidatee := identityForTest(60)
	f.createAccount("liquidator", liquidator)
	f.createAccount("liquidatee", liquidatee)
	err := f.engine.Liquidate("liquidator", "liquidatee", "USDC", 1, "USDC")
	if !errors.Is(err, ErrIllegalArgument) {
		t.Fatalf("expected ErrIllegalArgument when collateral == liability asset, got %v", err)
	}
}

// --- bank operational state (BankReduceOnly / BankPaused) ---

func TestDepositRejectedWhenBankReduceOnly(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	bankKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	user := identityForTest(40)
	f.createAccount("user", user)
	f.mintToUser(user, bankKey, "USDC", nativeAmountFixed(1_000, 6))

	f.setBankState("USDC", BankReduceOnly)

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(100, 6)); !errors.Is(err, ErrModuleDisabled) {
		t.Fatalf("expected ErrModuleDisabled for a deposit into a reduce-only bank, got %v", err)
	}
}

func TestDepositRejectedWhenBankPaused(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	bankKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	user := identityForTest(40)
	f.createAccount("user", user)
	f.mintToUser(user, bankKey, "USDC", nativeAmountFixed(1_000, 6))

	f.setBankState("USDC", BankPaused)

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(100, 6)); !errors.Is(err, ErrModuleDisabled) {
		t.Fatalf("expected ErrModuleDisabled for a deposit into a paused bank, got %v", err)
	}
}

func TestWithdrawAllowedWhenBankReduceOnly(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	bankKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	user := identityForTest(40)
	f.createAccount("user", user)
	f.mintToUser(user, bankKey, "USDC", nativeAmountFixed(1_000, 6))

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(1_000, 6)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	f.setBankState("USDC", BankReduceOnly)

	// Draining an existing deposit slot is a pure withdrawal, not new
	// borrowing, so BankReduceOnly must still allow it.
	if err := f.engine.Withdraw("user", "USDC", user, nativeAmount(400, 6)); err != nil {
		t.Fatalf("expected a pure withdrawal to succeed under BankReduceOnly, got %v", err)
	}

	bank := f.bank("USDC")
	userBalance := f.vault.balance(bank.LiquidityVault, user, "USDC")
	if userBalance.Cmp(nativeAmountFixed(400, 6)) != 0 {
		t.Fatalf("expected user's USDC token account at %s, got %s", nativeAmountFixed(400, 6), userBalance)
	}
}

func TestWithdrawBlocksNewBorrowWhenBankReduceOnly(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	f.oracle["SOL"] = FromInt64(10)
	usdcKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	f.addBank("SOL", defaultBankConfig(nativeAmountFixed(1_000_000, 9)), 40)

	user := identityForTest(50)
	f.createAccount("user", user)
	f.mintToUser(user, usdcKey, "USDC", nativeAmountFixed(1_000, 6))

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(1_000, 6)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	preAccount := f.account("user")
	preSOLBank := f.bank("SOL")
	preUserSOLBalance := f.vault.balance(preSOLBank.LiquidityVault, user, "SOL")

	f.setBankState("SOL", BankReduceOnly)

	// The SOL slot has no deposit to drain, so any requested amount is
	// new borrowing; BankReduceOnly must block it.
	err := f.engine.Withdraw("user", "SOL", user, nativeAmount(1, 9))
	if !errors.Is(err, ErrModuleDisabled) {
		t.Fatalf("expected ErrModuleDisabled for new borrowing against a reduce-only bank, got %v", err)
	}

	postAccount := f.account("user")
	postSOLBank := f.bank("SOL")
	postUserSOLBalance := f.vault.balance(postSOLBank.LiquidityVault, user, "SOL")
	if preAccount.Balances != postAccount.Balances {
		t.Fatalf("account state must be unchanged after a rejected borrow")
	}
	if preSOLBank.TotalLiabilityShares.Cmp(postSOLBank.TotalLiabilityShares) != 0 {
		t.Fatalf("SOL bank totals must be unchanged after a rejected borrow")
	}
	if preUserSOLBalance.Cmp(postUserSOLBalance) != 0 {
		t.Fatalf("no SOL payout should occur for a rejected borrow: pre=%s post=%s", preUserSOLBalance, postUserSOLBalance)
	}
}

func TestWithdrawRejectedWhenBankPaused(t *testing.T) {
	f := newEngineFixture()
	f.oracle["USDC"] = FromInt64(1)
	bankKey := f.addBank("USDC", defaultBankConfig(nativeAmountFixed(1_000_000, 6)), 30)
	user := identityForTest(40)
	f.createAccount("user", user)
	f.mintToUser(user, bankKey, "USDC", nativeAmountFixed(1_000, 6))

	if err := f.engine.Deposit("user", "USDC", user, nativeAmount(1_000, 6)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	f.setBankState("USDC", BankPaused)

	// Unlike BankReduceOnly, BankPaused rejects every instruction
	// against the bank, including a pure withdrawal.
	if err := f.engine.Withdraw("user", "USDC", user, nativeAmount(400, 6)); !errors.Is(err, ErrModuleDisabled) {
		t.Fatalf("expected ErrModuleDisabled for a withdrawal from a paused bank, got %v", err)
	}
}
