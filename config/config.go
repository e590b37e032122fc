// Package config loads group, bank, and module wiring configuration from
// TOML, the way the teacher's native/lending.Config and cmd/p2pd's
// config.Load decode-if-present with defaults otherwise. Bank risk weights
// and capacity are authored as basis-point integers and decimal strings so
// that no float ever reaches the fixed-point kernel — ToLedgerConfig parses
// them straight into ledger.Fixed.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/coreledger/marginbank/identity"
	"github.com/coreledger/marginbank/native/ledger"
)

// Config is the top-level module wiring document for cmd/ledgerd.
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	HTTP      HTTPConfig      `toml:"http"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Groups    []GroupConfig   `toml:"group"`
}

// ServiceConfig names the process for logging and telemetry. Env and LogFile
// are decoded but cmd/ledgerd does not read them: the environment label
// comes from LEDGERD_ENV and logs always go to stdout.
type ServiceConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	LogFile string `toml:"log_file"`
}

// HTTPConfig configures the api package's chi router.
type HTTPConfig struct {
	ListenAddress      string  `toml:"listen"`
	JWTSecret          string  `toml:"jwt_secret"`
	JWTIssuer          string  `toml:"jwt_issuer"`
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	RateLimitBurst     int     `toml:"rate_limit_burst"`
}

// TelemetryConfig configures observability/otel.Init.
type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
	Metrics      bool   `toml:"metrics"`
	Traces       bool   `toml:"traces"`
}

// GroupConfig seeds one solvency domain and its banks at startup.
type GroupConfig struct {
	ID    string       `toml:"id"`
	Admin string       `toml:"admin"`
	Banks []BankConfig `toml:"bank"`
}

// BankConfig seeds one bank within a group. Weights are basis points (100 =
// 1%); MaxCapacity is an exact decimal string in the asset's base units, the
// same units deposit amounts use (e.g. "1000000000000" for a 1,000,000 USDC
// cap at 6 decimals), parsed via ledger.FromDecimalString rather than
// through a float.
type BankConfig struct {
	AssetMint               string               `toml:"asset_mint"`
	OracleBinding           string               `toml:"oracle_binding"`
	DepositWeightInitBps    uint32               `toml:"deposit_weight_init_bps"`
	DepositWeightMaintBps   uint32               `toml:"deposit_weight_maint_bps"`
	LiabilityWeightInitBps  uint32               `toml:"liability_weight_init_bps"`
	LiabilityWeightMaintBps uint32               `toml:"liability_weight_maint_bps"`
	MaxCapacity             string               `toml:"max_capacity"`
	LiquidityVault          string               `toml:"liquidity_vault"`
	InsuranceVault          string               `toml:"insurance_vault"`
	FeeVault                string               `toml:"fee_vault"`
	InterestModel           *InterestModelConfig `toml:"interest_model"`
}

// InterestModelConfig configures a bank's optional kinked borrow-rate curve.
// A bank with no [interest_model] table never accrues (spec.md §9 option (b)
// as the zero-configuration default).
type InterestModelConfig struct {
	BaseRateBps uint32 `toml:"base_rate_bps"`
	Slope1Bps   uint32 `toml:"slope1_bps"`
	Slope2Bps   uint32 `toml:"slope2_bps"`
	KinkBps     uint32 `toml:"kink_bps"`
}

// Default returns the zero-configuration defaults a deployment gets when no
// config file is supplied.
func Default() Config {
	return Config{
		Service: ServiceConfig{Name: "ledgerd"},
		HTTP: HTTPConfig{
			ListenAddress:      ":8080",
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4318",
		},
	}
}

// Load decodes the TOML file at path if it exists, starting from Default()
// and overlaying whatever the file specifies; a missing path is not an
// error, matching the teacher's decode-if-present convention.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Service.Name) == "" {
		c.Service.Name = "ledgerd"
	}
	if strings.TrimSpace(c.HTTP.ListenAddress) == "" {
		c.HTTP.ListenAddress = ":8080"
	}
	if c.HTTP.RateLimitPerSecond <= 0 {
		c.HTTP.RateLimitPerSecond = 5
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 10
	}
	if strings.TrimSpace(c.Telemetry.OTLPEndpoint) == "" {
		c.Telemetry.OTLPEndpoint = "localhost:4318"
	}
}

// AdminPrincipal parses the group's configured admin principal.
func (g GroupConfig) AdminPrincipal() (identity.Principal, error) {
	return identity.Parse(g.Admin)
}

// ToLedgerConfig converts the TOML-authored bank config and its three vault
// principals into the ledger package's BankConfig, with every weight and
// capacity field parsed directly into the fixed-point kernel.
func (b BankConfig) ToLedgerConfig() (ledger.BankConfig, identity.Principal, identity.Principal, identity.Principal, error) {
	var zero identity.Principal

	depositInit, err := bpsToFixed(b.DepositWeightInitBps)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("deposit_weight_init_bps: %w", err)
	}
	depositMaint, err := bpsToFixed(b.DepositWeightMaintBps)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("deposit_weight_maint_bps: %w", err)
	}
	liabilityInit, err := bpsToFixed(b.LiabilityWeightInitBps)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("liability_weight_init_bps: %w", err)
	}
	liabilityMaint, err := bpsToFixed(b.LiabilityWeightMaintBps)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("liability_weight_maint_bps: %w", err)
	}
	maxCapacity, err := ledger.FromDecimalString(b.MaxCapacity)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("max_capacity: %w", err)
	}

	liquidity, err := identity.Parse(b.LiquidityVault)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("liquidity_vault: %w", err)
	}
	insurance, err := identity.Parse(b.InsuranceVault)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("insurance_vault: %w", err)
	}
	fee, err := identity.Parse(b.FeeVault)
	if err != nil {
		return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("fee_vault: %w", err)
	}

	var model *ledger.InterestModel
	if b.InterestModel != nil {
		base, err := bpsToFixed(b.InterestModel.BaseRateBps)
		if err != nil {
			return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("interest_model.base_rate_bps: %w", err)
		}
		slope1, err := bpsToFixed(b.InterestModel.Slope1Bps)
		if err != nil {
			return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("interest_model.slope1_bps: %w", err)
		}
		slope2, err := bpsToFixed(b.InterestModel.Slope2Bps)
		if err != nil {
			return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("interest_model.slope2_bps: %w", err)
		}
		kink, err := bpsToFixed(b.InterestModel.KinkBps)
		if err != nil {
			return ledger.BankConfig{}, zero, zero, zero, fmt.Errorf("interest_model.kink_bps: %w", err)
		}
		model = &ledger.InterestModel{BaseRate: base, Slope1: slope1, Slope2: slope2, Kink: kink}
	}

	return ledger.BankConfig{
		DepositWeightInit:    depositInit,
		DepositWeightMaint:   depositMaint,
		LiabilityWeightInit:  liabilityInit,
		LiabilityWeightMaint: liabilityMaint,
		MaxCapacity:          maxCapacity,
		OracleBinding:        b.OracleBinding,
		InterestModel:        model,
	}, liquidity, insurance, fee, nil
}

func bpsToFixed(bps uint32) (ledger.Fixed, error) {
	ratio, err := ledger.FromInt64(int64(bps)).Div(ledger.FromInt64(10_000))
	if err != nil {
		return ledger.Fixed{}, err
	}
	return ratio, nil
}
