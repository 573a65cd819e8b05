package app

import (
	"bytes"
	"crypto/ed25519"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/pricing"
	"bountyjackpot/chain/internal/state"
)

func rateTableFromTx(msg codec.JackpotInitTx) pricing.RateTable {
	r := pricing.RateTable{
		Pool:        msg.PoolRate,
		Operational: msg.OperationalRate,
		Buyback:     msg.BuybackRate,
		Staking:     msg.StakingRate,
	}
	if r == (pricing.RateTable{}) {
		return pricing.DefaultRates()
	}
	return r
}

func (a *BountyApp) applyJackpotInit(st *state.State, env codec.TxEnvelope, msg codec.JackpotInitTx, now int64) *abci.ExecTxResult {
	if st.Global != nil {
		return failTx("jackpot already initialized")
	}
	if err := requireJackpotInitAuth(env, msg); err != nil {
		return failTx(err.Error())
	}
	// A signer that already registered an account key must prove possession
	// of that same key; otherwise init could rebind a registered name to a
	// different keypair.
	if existing, ok := st.AccountKeys[env.Signer]; ok && !bytes.Equal(existing, msg.AuthorityPubKey) {
		return failTx("authorityPubKey does not match registered key for " + env.Signer)
	}
	if err := consumeTxNonce(st, env); err != nil {
		return failTx(err.Error())
	}
	if msg.ResearchFundFloor == 0 {
		return failTx("researchFundFloor must be > 0")
	}
	if msg.BountyPoolWallet == "" || msg.OperationalWallet == "" || msg.BuybackWallet == "" || msg.StakingWallet == "" {
		return failTx("missing split wallet")
	}
	if msg.BackendAuthority == "" {
		return failTx("missing backendAuthority")
	}
	if len(msg.BackendAuthorityPubKey) != ed25519.PublicKeySize {
		return failTx("backendAuthorityPubKey must be 32 bytes")
	}
	rates := rateTableFromTx(msg)
	if err := rates.Validate(); err != nil {
		return failTx(err.Error())
	}
	// The escrow wallet must already hold the floor so the first pool is
	// backed from block one.
	if st.Balance(msg.BountyPoolWallet) < msg.ResearchFundFloor {
		return failTx("insufficient initial funding: escrow holds " +
			strconv.FormatUint(st.Balance(msg.BountyPoolWallet), 10) +
			", floor is " + strconv.FormatUint(msg.ResearchFundFloor, 10))
	}

	st.Global = &state.Global{
		Authority:              env.Signer,
		BountyPoolWallet:       msg.BountyPoolWallet,
		OperationalWallet:      msg.OperationalWallet,
		BuybackWallet:          msg.BuybackWallet,
		StakingWallet:          msg.StakingWallet,
		ResearchFundFloor:      msg.ResearchFundFloor,
		Rates:                  rates,
		IsActive:               true,
		BackendAuthority:       msg.BackendAuthority,
		BackendAuthorityPubKey: msg.BackendAuthorityPubKey,
	}
	// The authority key doubles as its account key for later gated txs.
	st.AccountKeys[env.Signer] = msg.AuthorityPubKey

	return okEvent("JackpotInitialized", map[string]string{
		"authority":        env.Signer,
		"backendAuthority": msg.BackendAuthority,
		"floor":            strconv.FormatUint(msg.ResearchFundFloor, 10),
		"poolRate":         strconv.FormatUint(uint64(rates.Pool), 10),
		"operationalRate":  strconv.FormatUint(uint64(rates.Operational), 10),
		"buybackRate":      strconv.FormatUint(uint64(rates.Buyback), 10),
		"stakingRate":      strconv.FormatUint(uint64(rates.Staking), 10),
	})
}

func (a *BountyApp) applySetBackendAuthority(st *state.State, env codec.TxEnvelope, msg codec.JackpotSetBackendAuthorityTx) *abci.ExecTxResult {
	if err := requireAuthorityAuth(st, env); err != nil {
		return failTx(err.Error())
	}
	if err := consumeTxNonce(st, env); err != nil {
		return failTx(err.Error())
	}
	if msg.BackendAuthority == "" {
		return failTx("missing backendAuthority")
	}
	if len(msg.BackendAuthorityPubKey) != ed25519.PublicKeySize {
		return failTx("backendAuthorityPubKey must be 32 bytes")
	}

	prev := st.Global.BackendAuthority
	st.Global.BackendAuthority = msg.BackendAuthority
	st.Global.BackendAuthorityPubKey = msg.BackendAuthorityPubKey

	return okEvent("BackendAuthoritySet", map[string]string{
		"backendAuthority": msg.BackendAuthority,
		"previous":         prev,
	})
}

func (a *BountyApp) applyBountyInit(st *state.State, env codec.TxEnvelope, msg codec.BountyInitTx, now int64) *abci.ExecTxResult {
	if err := requireAuthorityAuth(st, env); err != nil {
		return failTx(err.Error())
	}
	if err := consumeTxNonce(st, env); err != nil {
		return failTx(err.Error())
	}
	if !st.Global.IsActive {
		return failTx("jackpot is not active")
	}
	if msg.BountyID == 0 || msg.BountyID > MaxBountyID {
		return failTx("bountyId must be 1.." + strconv.FormatUint(uint64(MaxBountyID), 10))
	}
	if _, exists := st.Pools[msg.BountyID]; exists {
		return failTx("bounty already initialized")
	}
	if msg.BasePrice == 0 {
		return failTx("basePrice must be > 0")
	}
	// Every pool tracks a floor's worth of escrow; opening another one
	// needs the wallet to back all of them.
	needed, err := mulUint64Checked(st.Global.ResearchFundFloor, uint64(len(st.Pools)+1), "required escrow")
	if err != nil {
		return failTx(err.Error())
	}
	if st.Balance(st.Global.BountyPoolWallet) < needed {
		return failTx("insufficient escrow funding: need " + strconv.FormatUint(needed, 10) +
			", have " + strconv.FormatUint(st.Balance(st.Global.BountyPoolWallet), 10))
	}

	st.Pools[msg.BountyID] = &state.Pool{
		BountyID:           msg.BountyID,
		BasePrice:          msg.BasePrice,
		CurrentPool:        st.Global.ResearchFundFloor,
		TotalEntries:       0,
		IsActive:           true,
		CreatedAt:          now,
		LastActivityTime:   now,
		NextEscapeDeadline: now + escapeWindow,
	}

	return okEvent("BountyInitialized", map[string]string{
		"bountyId":    strconv.FormatUint(uint64(msg.BountyID), 10),
		"basePrice":   strconv.FormatUint(msg.BasePrice, 10),
		"currentPool": strconv.FormatUint(st.Global.ResearchFundFloor, 10),
	})
}
