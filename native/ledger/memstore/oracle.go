package memstore

import (
	"fmt"
	"sync"

	"github.com/coreledger/marginbank/native/ledger"
)

// StaticOracle is an in-memory ledger.PriceOracle keyed by asset mint,
// promoted the same way Store was from a test double: the teacher's
// native/swap.ManualOracle (map + mutex, operator-set quotes, no live feed)
// generalized from a base/quote currency pair to the single asset-mint key
// the ledger's PriceOracle collaborator uses.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]ledger.Fixed
}

// NewStaticOracle returns an oracle with no prices set; every Price call
// fails until SetPrice is used to seed it.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[string]ledger.Fixed)}
}

// SetPrice records the current price for assetMint, overwriting any prior
// value the way an operator would push a manual override during incident
// response.
func (o *StaticOracle) SetPrice(assetMint string, price ledger.Fixed) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[assetMint] = price
}

// Price implements ledger.PriceOracle.
func (o *StaticOracle) Price(assetMint string) (ledger.Fixed, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[assetMint]
	if !ok {
		return ledger.Fixed{}, fmt.Errorf("memstore: no price set for asset %q: %w", assetMint, ledger.ErrOracle)
	}
	return price, nil
}
