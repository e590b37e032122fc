package ledger

import "github.com/coreledger/marginbank/identity"

// identityForTest derives a deterministic, distinct Principal for test
// fixtures from a small integer seed, avoiding repetitive byte-literal
// construction across the package's test files.
func identityForTest(seed byte) identity.Principal {
	b := make([]byte, 20)
	b[19] = seed
	return identity.MustNew(b)
}

// staticOracle is a minimal in-package PriceOracle stub for risk/bank tests
// that don't need the full memstore.StaticOracle implementation.
type staticOracle map[string]Fixed

func (o staticOracle) Price(assetMint string) (Fixed, error) {
	price, ok := o[assetMint]
	if !ok {
		return Fixed{}, ErrOracle
	}
	return price, nil
}

// staticBanks adapts a map of banks keyed by asset mint to a BankLookup.
func staticBanks(banks map[string]Bank) BankLookup {
	return func(assetMint string) (Bank, error) {
		bank, ok := banks[assetMint]
		if !ok {
			return Bank{}, ErrAccountNotInitialized
		}
		return bank, nil
	}
}
