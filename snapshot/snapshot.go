// Package snapshot provides a durable, point-in-time export/import of
// ledger.Store state for local demo and test fixtures. This is explicitly
// NOT the live transactional store (§1 places durable storage out of the
// core's scope): native/ledger.Engine only ever talks to the ledger.Store
// interface, and the in-memory memstore.Store remains the production
// implementation used by cmd/ledgerd. snapshot exists purely to seed or
// capture that in-memory state from a file, grounded on
// services/otc-gateway/models/models.go's gorm model shape and
// services/otc-gateway/funding/processor_test.go's in-memory sqlite DSN
// pattern (file:<uuid>?mode=memory&cache=shared).
package snapshot

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coreledger/marginbank/identity"
	"github.com/coreledger/marginbank/native/ledger"
	"github.com/coreledger/marginbank/native/ledger/memstore"
)

// GroupRow is the gorm row for one ledger.Group.
type GroupRow struct {
	ID    string `gorm:"primaryKey"`
	Admin string
}

// BankRow is the gorm row for one ledger.Bank. Fixed-point fields are stored
// as exact decimal strings (via Fixed.String() / ledger.FromDecimalString)
// so round-tripping through sqlite never touches a float column.
type BankRow struct {
	Key                     string `gorm:"primaryKey"`
	Group                   string `gorm:"index"`
	AssetMint               string
	DepositShareValue       string
	LiabilityShareValue     string
	TotalDepositShares      string
	TotalLiabilityShares    string
	DepositWeightInit       string
	DepositWeightMaint      string
	LiabilityWeightInit     string
	LiabilityWeightMaint    string
	MaxCapacity             string
	OracleBinding           string
	LiquidityVault          string
	InsuranceVault          string
	FeeVault                string
	State                   int
	LastAccrualTimestampSec uint64
}

// AccountRow is the gorm row for one ledger.Account.
type AccountRow struct {
	ID       string `gorm:"primaryKey"`
	Group    string `gorm:"index"`
	Owner    string
	Disabled bool
}

// BalanceRow is the gorm row for one occupied balance slot belonging to an
// account.
type BalanceRow struct {
	ID              uuid.UUID `gorm:"type:text;primaryKey"`
	AccountID       string    `gorm:"index"`
	AssetMint       string
	DepositShares   string
	LiabilityShares string
}

// AutoMigrate creates or updates the snapshot schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&GroupRow{}, &BankRow{}, &AccountRow{}, &BalanceRow{})
}

// OpenMemory opens an isolated, in-process sqlite database suitable for
// tests and ephemeral demo runs, using the same file:<uuid>?mode=memory DSN
// pattern the teacher's funding package uses so concurrent tests never share
// state.
func OpenMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: open sqlite: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("snapshot: migrate: %w", err)
	}
	return db, nil
}

// Export writes every group, bank, and account currently held by store into
// db, replacing any prior snapshot rows for those entities.
func Export(db *gorm.DB, store *memstore.Store) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, g := range store.AllGroups() {
			row := GroupRow{ID: g.ID, Admin: g.Admin.String()}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("snapshot: save group %s: %w", g.ID, err)
			}
		}
		for _, b := range store.AllBanks() {
			row := BankRow{
				Key:                     b.Key.String(),
				Group:                   b.Group,
				AssetMint:               b.AssetMint,
				DepositShareValue:       b.DepositShareValue.String(),
				LiabilityShareValue:     b.LiabilityShareValue.String(),
				TotalDepositShares:      b.TotalDepositShares.String(),
				TotalLiabilityShares:    b.TotalLiabilityShares.String(),
				DepositWeightInit:       b.Config.DepositWeightInit.String(),
				DepositWeightMaint:      b.Config.DepositWeightMaint.String(),
				LiabilityWeightInit:     b.Config.LiabilityWeightInit.String(),
				LiabilityWeightMaint:    b.Config.LiabilityWeightMaint.String(),
				MaxCapacity:             b.Config.MaxCapacity.String(),
				OracleBinding:           b.Config.OracleBinding,
				LiquidityVault:          b.LiquidityVault.String(),
				InsuranceVault:          b.InsuranceVault.String(),
				FeeVault:                b.FeeVault.String(),
				State:                   int(b.State),
				LastAccrualTimestampSec: b.LastAccrualTimestamp,
			}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("snapshot: save bank %s: %w", b.Key, err)
			}
		}
		for _, a := range store.AllAccounts() {
			row := AccountRow{ID: a.ID, Group: a.Group, Owner: a.Owner.String(), Disabled: a.Disabled}
			if err := tx.Save(&row).Error; err != nil {
				return fmt.Errorf("snapshot: save account %s: %w", a.ID, err)
			}
			if err := tx.Where("account_id = ?", a.ID).Delete(&BalanceRow{}).Error; err != nil {
				return fmt.Errorf("snapshot: clear balances for %s: %w", a.ID, err)
			}
			for _, slot := range a.Balances {
				if slot.Empty() {
					continue
				}
				balRow := BalanceRow{
					ID:              uuid.New(),
					AccountID:       a.ID,
					AssetMint:       slot.AssetMint,
					DepositShares:   slot.DepositShares.String(),
					LiabilityShares: slot.LiabilityShares.String(),
				}
				if err := tx.Create(&balRow).Error; err != nil {
					return fmt.Errorf("snapshot: save balance for %s/%s: %w", a.ID, slot.AssetMint, err)
				}
			}
		}
		return nil
	})
}

// Import loads every group, bank, and account row from db into a fresh
// memstore.Store.
func Import(db *gorm.DB) (*memstore.Store, error) {
	store := memstore.New()

	var groups []GroupRow
	if err := db.Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("snapshot: load groups: %w", err)
	}
	for _, row := range groups {
		admin, err := identity.Parse(row.Admin)
		if err != nil {
			return nil, fmt.Errorf("snapshot: parse admin for group %s: %w", row.ID, err)
		}
		if err := store.PutGroup(ledger.Group{ID: row.ID, Admin: admin}); err != nil {
			return nil, fmt.Errorf("snapshot: restore group %s: %w", row.ID, err)
		}
	}

	var banks []BankRow
	if err := db.Find(&banks).Error; err != nil {
		return nil, fmt.Errorf("snapshot: load banks: %w", err)
	}
	for _, row := range banks {
		bank, err := bankFromRow(row)
		if err != nil {
			return nil, err
		}
		if err := store.PutBank(bank); err != nil {
			return nil, fmt.Errorf("snapshot: restore bank %s: %w", row.Key, err)
		}
		if err := attachBankToGroup(store, bank); err != nil {
			return nil, err
		}
	}

	var accounts []AccountRow
	if err := db.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("snapshot: load accounts: %w", err)
	}
	for _, row := range accounts {
		owner, err := identity.Parse(row.Owner)
		if err != nil {
			return nil, fmt.Errorf("snapshot: parse owner for account %s: %w", row.ID, err)
		}
		account := ledger.NewAccount(row.ID, row.Group, owner)
		account.Disabled = row.Disabled

		var balances []BalanceRow
		if err := db.Where("account_id = ?", row.ID).Find(&balances).Error; err != nil {
			return nil, fmt.Errorf("snapshot: load balances for %s: %w", row.ID, err)
		}
		for _, bal := range balances {
			idx, err := account.GetOrCreateBalance(bal.AssetMint)
			if err != nil {
				return nil, fmt.Errorf("snapshot: restore balance for %s/%s: %w", row.ID, bal.AssetMint, err)
			}
			deposit, err := ledger.FromDecimalString(bal.DepositShares)
			if err != nil {
				return nil, fmt.Errorf("snapshot: parse deposit shares for %s/%s: %w", row.ID, bal.AssetMint, err)
			}
			liability, err := ledger.FromDecimalString(bal.LiabilityShares)
			if err != nil {
				return nil, fmt.Errorf("snapshot: parse liability shares for %s/%s: %w", row.ID, bal.AssetMint, err)
			}
			account.Balances[idx] = ledger.BalanceSlot{AssetMint: bal.AssetMint, DepositShares: deposit, LiabilityShares: liability}
		}
		if err := store.PutAccount(account); err != nil {
			return nil, fmt.Errorf("snapshot: restore account %s: %w", row.ID, err)
		}
	}

	return store, nil
}

func bankFromRow(row BankRow) (ledger.Bank, error) {
	key, err := identity.Parse(row.Key)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse bank key %s: %w", row.Key, err)
	}
	liquidity, err := identity.Parse(row.LiquidityVault)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse liquidity vault for %s: %w", row.Key, err)
	}
	insurance, err := identity.Parse(row.InsuranceVault)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse insurance vault for %s: %w", row.Key, err)
	}
	fee, err := identity.Parse(row.FeeVault)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse fee vault for %s: %w", row.Key, err)
	}

	depositWeightInit, err := ledger.FromDecimalString(row.DepositWeightInit)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse deposit_weight_init for %s: %w", row.Key, err)
	}
	depositWeightMaint, err := ledger.FromDecimalString(row.DepositWeightMaint)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse deposit_weight_maint for %s: %w", row.Key, err)
	}
	liabilityWeightInit, err := ledger.FromDecimalString(row.LiabilityWeightInit)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse liability_weight_init for %s: %w", row.Key, err)
	}
	liabilityWeightMaint, err := ledger.FromDecimalString(row.LiabilityWeightMaint)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse liability_weight_maint for %s: %w", row.Key, err)
	}
	maxCapacity, err := ledger.FromDecimalString(row.MaxCapacity)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse max_capacity for %s: %w", row.Key, err)
	}
	depositShareValue, err := ledger.FromDecimalString(row.DepositShareValue)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse deposit_share_value for %s: %w", row.Key, err)
	}
	liabilityShareValue, err := ledger.FromDecimalString(row.LiabilityShareValue)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse liability_share_value for %s: %w", row.Key, err)
	}
	totalDepositShares, err := ledger.FromDecimalString(row.TotalDepositShares)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse total_deposit_shares for %s: %w", row.Key, err)
	}
	totalLiabilityShares, err := ledger.FromDecimalString(row.TotalLiabilityShares)
	if err != nil {
		return ledger.Bank{}, fmt.Errorf("snapshot: parse total_liability_shares for %s: %w", row.Key, err)
	}

	bank := ledger.NewBank(key, row.Group, row.AssetMint, ledger.BankConfig{
		DepositWeightInit:    depositWeightInit,
		DepositWeightMaint:   depositWeightMaint,
		LiabilityWeightInit:  liabilityWeightInit,
		LiabilityWeightMaint: liabilityWeightMaint,
		MaxCapacity:          maxCapacity,
		OracleBinding:        row.OracleBinding,
	}, liquidity, insurance, fee)
	bank.DepositShareValue = depositShareValue
	bank.LiabilityShareValue = liabilityShareValue
	bank.TotalDepositShares = totalDepositShares
	bank.TotalLiabilityShares = totalLiabilityShares
	bank.State = ledger.OperationalState(row.State)
	bank.LastAccrualTimestamp = row.LastAccrualTimestampSec
	return bank, nil
}

func attachBankToGroup(store *memstore.Store, bank ledger.Bank) error {
	group, err := store.GetGroup(bank.Group)
	if err != nil {
		return fmt.Errorf("snapshot: group %s for bank %s not found", bank.Group, bank.Key)
	}
	if group.HasBank(bank.Key) {
		return nil
	}
	group.Banks = append(group.Banks, bank.Key)
	if err := store.PutGroup(group); err != nil {
		return fmt.Errorf("snapshot: reattach bank %s to group %s: %w", bank.Key, bank.Group, err)
	}
	return nil
}
