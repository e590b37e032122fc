package ledger

// WeightRegime selects which pair of risk weights the risk engine applies:
// Initial for underwriting (deposit/withdraw/borrow checks), Maintenance
// for the liquidation trigger.
type WeightRegime int

const (
	// Initial is used to gate deposits/withdraws/borrows and the
	// liquidator's post-liquidation check.
	Initial WeightRegime = iota
	// Maintenance is used to decide whether an account is liquidatable.
	Maintenance
)

func (b Bank) depositWeight(r WeightRegime) Fixed {
	if r == Maintenance {
		return b.Config.DepositWeightMaint
	}
	return b.Config.DepositWeightInit
}

func (b Bank) liabilityWeight(r WeightRegime) Fixed {
	if r == Maintenance {
		return b.Config.LiabilityWeightMaint
	}
	return b.Config.LiabilityWeightInit
}

// BankLookup resolves the bank backing a slot's asset mint within an
// account's group. It is a narrow slice of the Store interface so the risk
// engine can stay a pure function of its inputs.
type BankLookup func(assetMint string) (Bank, error)

// Health is the risk engine's output for one account in one regime: the
// stateless evaluation of spec.md §4.4.
type Health struct {
	WeightedAssets      Fixed
	WeightedLiabilities Fixed
}

// Healthy reports assets(A,R) ≥ liabilities(A,R).
func (h Health) Healthy() bool {
	return h.WeightedAssets.Cmp(h.WeightedLiabilities) >= 0
}

// Evaluate computes (weighted_assets, weighted_liabilities) for an account
// in the given regime, per spec.md §4.4. It never mutates account or bank
// state; price lookups and bank lookups are supplied by the caller so this
// function has no dependency on the store.
func Evaluate(account Account, regime WeightRegime, banks BankLookup, oracle PriceOracle) (Health, error) {
	assets := Zero()
	liabilities := Zero()

	for _, slot := range account.Balances {
		if slot.Empty() {
			continue
		}
		if slot.DepositShares.Sign() <= 0 && slot.LiabilityShares.Sign() <= 0 {
			continue
		}

		bank, err := banks(slot.AssetMint)
		if err != nil {
			return Health{}, err
		}

		price, err := oracle.Price(slot.AssetMint)
		if err != nil {
			return Health{}, ErrOracle
		}

		if slot.DepositShares.Sign() > 0 {
			amount, err := bank.ShareToDeposit(slot.DepositShares)
			if err != nil {
				return Health{}, ErrMath
			}
			value, err := price.Mul(amount)
			if err != nil {
				return Health{}, ErrMath
			}
			weighted, err := value.Mul(bank.depositWeight(regime))
			if err != nil {
				return Health{}, ErrMath
			}
			assets, err = assets.Add(weighted)
			if err != nil {
				return Health{}, ErrMath
			}
		}

		if slot.LiabilityShares.Sign() > 0 {
			amount, err := bank.ShareToLiability(slot.LiabilityShares)
			if err != nil {
				return Health{}, ErrMath
			}
			value, err := price.Mul(amount)
			if err != nil {
				return Health{}, ErrMath
			}
			weighted, err := value.Mul(bank.liabilityWeight(regime))
			if err != nil {
				return Health{}, ErrMath
			}
			liabilities, err = liabilities.Add(weighted)
			if err != nil {
				return Health{}, ErrMath
			}
		}
	}

	return Health{WeightedAssets: assets, WeightedLiabilities: liabilities}, nil
}
