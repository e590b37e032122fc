package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coreledger/marginbank/identity"
	"github.com/coreledger/marginbank/native/ledger"
	"github.com/coreledger/marginbank/observability"
)

// Router wires native/ledger.Engine behind a chi mux, the way
// gateway/routes/router.go mounts a set of proxied routes — here, the routes
// terminate directly in the engine instead of proxying to another service.
type Router struct {
	engine  *ledger.Engine
	auth    *Authenticator
	limiter *RateLimiter
	metrics *observability.LedgerMetrics
}

// Config bundles the collaborators New needs.
type Config struct {
	Engine      *ledger.Engine
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Metrics     *observability.LedgerMetrics
}

// New builds the HTTP handler exposing the six ledger instructions plus a
// read-only health and liveness surface.
func New(cfg Config) http.Handler {
	rt := &Router{engine: cfg.Engine, auth: cfg.Auth, limiter: cfg.RateLimiter, metrics: cfg.Metrics}

	r := chi.NewRouter()
	r.Get("/healthz", rt.handleLiveness)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(admin chi.Router) {
			if rt.auth != nil {
				admin.Use(rt.auth.Middleware)
			}
			admin.Post("/groups", rt.handleCreateGroup)
			admin.Post("/groups/{group}/banks", rt.handleAddBank)
		})

		v1.Post("/accounts", rt.handleCreateAccount)
		v1.Get("/accounts/{account}/health", rt.handleAccountHealth)
		v1.Post("/accounts/{account}/deposits", rt.handleDeposit)
		v1.Post("/accounts/{account}/withdrawals", rt.handleWithdraw)

		v1.Group(func(liq chi.Router) {
			if rt.limiter != nil {
				liq.Use(rt.limiter.Middleware)
			}
			liq.Post("/liquidations", rt.handleLiquidate)
		})
	})

	return r
}

func (rt *Router) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (rt *Router) instrument(instruction string, start time.Time, err error) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.ObserveInstruction(instruction, err, time.Since(start))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

// createGroupRequest is the payload for POST /v1/groups.
type createGroupRequest struct {
	ID    string `json:"id"`
	Admin string `json:"admin"`
}

func (rt *Router) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !rt.authorizedAs(r, req.Admin) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "token subject does not match requested admin"})
		return
	}
	admin, err := identity.Parse(req.Admin)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	err = rt.engine.CreateGroup(req.ID, admin)
	rt.instrument("create_group", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// addBankRequest is the payload for POST /v1/groups/{group}/banks.
type addBankRequest struct {
	Admin                   string `json:"admin"`
	AssetMint               string `json:"asset_mint"`
	OracleBinding           string `json:"oracle_binding"`
	DepositWeightInitBps    uint32 `json:"deposit_weight_init_bps"`
	DepositWeightMaintBps   uint32 `json:"deposit_weight_maint_bps"`
	LiabilityWeightInitBps  uint32 `json:"liability_weight_init_bps"`
	LiabilityWeightMaintBps uint32 `json:"liability_weight_maint_bps"`
	MaxCapacity             string `json:"max_capacity"`
	LiquidityVault          string `json:"liquidity_vault"`
	InsuranceVault          string `json:"insurance_vault"`
	FeeVault                string `json:"fee_vault"`
}

func (rt *Router) handleAddBank(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	groupID := chi.URLParam(r, "group")
	var req addBankRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !rt.authorizedAs(r, req.Admin) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "token subject does not match requested admin"})
		return
	}
	admin, err := identity.Parse(req.Admin)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	liquidity, err := identity.Parse(req.LiquidityVault)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	insurance, err := identity.Parse(req.InsuranceVault)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	fee, err := identity.Parse(req.FeeVault)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	depositInit, err := ledger.FromInt64(int64(req.DepositWeightInitBps)).Div(ledger.FromInt64(10_000))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	depositMaint, err := ledger.FromInt64(int64(req.DepositWeightMaintBps)).Div(ledger.FromInt64(10_000))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	liabilityInit, err := ledger.FromInt64(int64(req.LiabilityWeightInitBps)).Div(ledger.FromInt64(10_000))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	liabilityMaint, err := ledger.FromInt64(int64(req.LiabilityWeightMaintBps)).Div(ledger.FromInt64(10_000))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	maxCapacity, err := ledger.FromDecimalString(req.MaxCapacity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cfg := ledger.BankConfig{
		DepositWeightInit:    depositInit,
		DepositWeightMaint:   depositMaint,
		LiabilityWeightInit:  liabilityInit,
		LiabilityWeightMaint: liabilityMaint,
		MaxCapacity:          maxCapacity,
		OracleBinding:        req.OracleBinding,
	}

	key, err := rt.engine.AddBank(groupID, admin, req.AssetMint, cfg, liquidity, insurance, fee)
	rt.instrument("add_bank", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"bank_key": key.String()})
}

// createAccountRequest is the payload for POST /v1/accounts.
type createAccountRequest struct {
	ID    string `json:"id"`
	Group string `json:"group"`
	Owner string `json:"owner"`
}

func (rt *Router) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, err := identity.Parse(req.Owner)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	err = rt.engine.CreateAccount(req.ID, req.Group, owner)
	rt.instrument("create_account", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

type healthResponse struct {
	WeightedAssets      string `json:"weighted_assets"`
	WeightedLiabilities string `json:"weighted_liabilities"`
	Healthy             bool   `json:"healthy"`
	Regime              string `json:"regime"`
}

func (rt *Router) handleAccountHealth(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account")
	regime := ledger.Initial
	regimeParam := r.URL.Query().Get("regime")
	if regimeParam == "maintenance" {
		regime = ledger.Maintenance
	}

	health, err := rt.engine.Health(accountID, regime)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		assets, _ := health.WeightedAssets.ToUint64Floor()
		liabilities, _ := health.WeightedLiabilities.ToUint64Floor()
		rt.metrics.SetAccountHealth(accountID, regimeParam, float64(assets), float64(liabilities))
	}
	writeJSON(w, http.StatusOK, healthResponse{
		WeightedAssets:      health.WeightedAssets.String(),
		WeightedLiabilities: health.WeightedLiabilities.String(),
		Healthy:             health.Healthy(),
		Regime:              regimeParam,
	})
}

// depositRequest is the payload for POST /v1/accounts/{account}/deposits.
type depositRequest struct {
	Asset          string `json:"asset"`
	FromTokenAcct  string `json:"from_token_account"`
	AmountBaseUnit uint64 `json:"amount"`
}

func (rt *Router) handleDeposit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	accountID := chi.URLParam(r, "account")
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	from, err := identity.Parse(req.FromTokenAcct)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	err = rt.engine.Deposit(accountID, req.Asset, from, req.AmountBaseUnit)
	rt.instrument("deposit", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withdrawRequest is the payload for POST /v1/accounts/{account}/withdrawals.
type withdrawRequest struct {
	Asset          string `json:"asset"`
	ToTokenAcct    string `json:"to_token_account"`
	AmountBaseUnit uint64 `json:"amount"`
}

func (rt *Router) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	accountID := chi.URLParam(r, "account")
	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	to, err := identity.Parse(req.ToTokenAcct)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	err = rt.engine.Withdraw(accountID, req.Asset, to, req.AmountBaseUnit)
	rt.instrument("withdraw", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// liquidateRequest is the payload for POST /v1/liquidations.
type liquidateRequest struct {
	LiquidatorAccount string `json:"liquidator_account"`
	LiquidateeAccount string `json:"liquidatee_account"`
	AssetCollateral   string `json:"asset_collateral"`
	AmountCollateral  uint64 `json:"amount_collateral"`
	AssetLiability    string `json:"asset_liability"`
}

func (rt *Router) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req liquidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := rt.engine.Liquidate(req.LiquidatorAccount, req.LiquidateeAccount, req.AssetCollateral, req.AmountCollateral, req.AssetLiability)
	rt.instrument("liquidate", start, err)
	if rt.metrics != nil {
		switch {
		case err == nil:
			rt.metrics.RecordLiquidation("filled")
		case err == ledger.ErrAccountIllegalPostLiquidationState:
			rt.metrics.RecordLiquidation("illegal_post_liquidation_state")
		case err == ledger.ErrBorrowingNotAllowed:
			rt.metrics.RecordLiquidation("borrowing_not_allowed")
		default:
			rt.metrics.RecordLiquidation("error")
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorizedAs reports whether the caller is permitted to act as
// claimedAdmin: when auth is disabled (no Authenticator wired, e.g. local
// dev/test), every caller is trusted, matching the engine's own admin check
// doing the real enforcement; when auth is enabled, the bearer token's
// subject must equal the admin principal supplied in the request body.
func (rt *Router) authorizedAs(r *http.Request, claimedAdmin string) bool {
	if rt.auth == nil || !rt.auth.cfg.Enabled {
		return true
	}
	return principalFromContext(r.Context()) == claimedAdmin
}
