package ledger

// SecondsPerYear is reserved for interest accrual (spec.md §6 constants).
const SecondsPerYear = 31_536_000

// InterestModel is a kinked borrow-rate curve, ported from the teacher's
// big.Rat-based model onto the I80F48 fixed-point kernel: base rate plus
// Slope1 per unit of utilisation up to the kink, plus Slope2 beyond it.
type InterestModel struct {
	BaseRate Fixed
	Slope1   Fixed
	Slope2   Fixed
	Kink     Fixed
}

// Clone deep-copies the model; Fixed is an immutable value type so a plain
// struct copy already suffices, but Clone matches BankConfig.Clone's shape.
func (m InterestModel) Clone() InterestModel {
	return m
}

// Utilisation computes totalBorrowed / totalSupplied, defined as zero when
// there is no supply.
func (m InterestModel) Utilisation(totalBorrowed, totalSupplied Fixed) (Fixed, error) {
	if totalSupplied.IsZero() {
		return Zero(), nil
	}
	return totalBorrowed.Div(totalSupplied)
}

// BorrowAPR derives the borrow APR for the current utilisation, following
// the kinked curve: base + slope1·U below the kink, base + slope1·kink +
// slope2·(U−kink) beyond it.
func (m InterestModel) BorrowAPR(totalBorrowed, totalSupplied Fixed) (Fixed, error) {
	u, err := m.Utilisation(totalBorrowed, totalSupplied)
	if err != nil {
		return Zero(), err
	}
	if u.IsZero() {
		return m.BaseRate, nil
	}

	if m.Kink.IsZero() || u.Cmp(m.Kink) <= 0 {
		slopeTerm, err := m.Slope1.Mul(u)
		if err != nil {
			return Zero(), err
		}
		return m.BaseRate.Add(slopeTerm)
	}

	atKink, err := m.Slope1.Mul(m.Kink)
	if err != nil {
		return Zero(), err
	}
	rate, err := m.BaseRate.Add(atKink)
	if err != nil {
		return Zero(), err
	}
	excess, err := u.Sub(m.Kink)
	if err != nil {
		return Zero(), err
	}
	if excess.Sign() < 0 {
		excess = Zero()
	}
	beyond, err := m.Slope2.Mul(excess)
	if err != nil {
		return Zero(), err
	}
	return rate.Add(beyond)
}

// accrue updates a bank's share values in place to reflect interest owed
// over the elapsed seconds since its last accrual, implementing spec.md
// §9's option (a): accrue on every bank touch before applying the
// instruction. Banks with a nil InterestModel never accrue (option (b) as
// the zero-configuration default).
func accrue(bank *Bank, nowSeconds uint64) error {
	if bank.Config.InterestModel == nil {
		return nil
	}
	if bank.LastAccrualTimestamp == 0 {
		bank.LastAccrualTimestamp = nowSeconds
		return nil
	}
	if nowSeconds <= bank.LastAccrualTimestamp {
		return nil
	}
	elapsed := nowSeconds - bank.LastAccrualTimestamp

	totalDeposits, err := bank.TotalDepositShares.Mul(bank.DepositShareValue)
	if err != nil {
		return ErrMath
	}
	totalLiabilities, err := bank.TotalLiabilityShares.Mul(bank.LiabilityShareValue)
	if err != nil {
		return ErrMath
	}

	apr, err := bank.Config.InterestModel.BorrowAPR(totalLiabilities, totalDeposits)
	if err != nil {
		return ErrMath
	}
	if apr.IsZero() {
		bank.LastAccrualTimestamp = nowSeconds
		return nil
	}

	elapsedFixed := FromUint64(elapsed)
	yearFixed := FromInt64(SecondsPerYear)
	periodRate, err := apr.Mul(elapsedFixed)
	if err != nil {
		return ErrMath
	}
	periodRate, err = periodRate.Div(yearFixed)
	if err != nil {
		return ErrMath
	}

	// Liability share value grows by (1+periodRate), rounded up so the
	// protocol never under-charges a borrower for accrued interest.
	growth, err := One().Add(periodRate)
	if err != nil {
		return ErrMath
	}
	newLiabilityValue, err := bank.LiabilityShareValue.MulRound(growth, roundUp)
	if err != nil {
		return ErrMath
	}

	if !totalDeposits.IsZero() {
		interestAccrued, err := totalLiabilities.Mul(periodRate)
		if err != nil {
			return ErrMath
		}
		depositGrowth, err := interestAccrued.Div(totalDeposits)
		if err != nil {
			return ErrMath
		}
		depositMultiplier, err := One().Add(depositGrowth)
		if err != nil {
			return ErrMath
		}
		newDepositValue, err := bank.DepositShareValue.MulRound(depositMultiplier, roundDown)
		if err != nil {
			return ErrMath
		}
		bank.DepositShareValue = newDepositValue
	}

	bank.LiabilityShareValue = newLiabilityValue
	bank.LastAccrualTimestamp = nowSeconds
	return nil
}
