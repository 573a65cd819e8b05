package app

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/state"
)

// applyBountyRecover lets the authority pull a bounded slice of escrow out
// of a pool. The cap is computed against the pool value before the
// withdrawal, so back-to-back maximal recoveries shrink geometrically even
// without the cooldown.
func (a *BountyApp) applyBountyRecover(st *state.State, env codec.TxEnvelope, msg codec.BountyRecoverTx, now int64) *abci.ExecTxResult {
	if err := requireAuthorityAuth(st, env); err != nil {
		return failTx(err.Error())
	}
	if err := consumeTxNonce(st, env); err != nil {
		return failTx(err.Error())
	}
	pool := st.Pools[msg.BountyID]
	if pool == nil {
		return failTx("bounty not found")
	}
	if msg.Amount == 0 {
		return failTx("amount must be > 0")
	}
	if msg.Amount > pool.CurrentPool {
		return failTx("amount exceeds pool: pool holds " + strconv.FormatUint(pool.CurrentPool, 10))
	}
	if pool.LastRecoveryTime != 0 && now-pool.LastRecoveryTime < recoveryCooldown {
		return failTx("recovery cooldown active: last at " + strconv.FormatInt(pool.LastRecoveryTime, 10))
	}
	capped, err := mulUint64Checked(pool.CurrentPool, uint64(recoveryCapPct), "recovery cap")
	if err != nil {
		return failTx(err.Error())
	}
	capped /= 100
	if msg.Amount > capped {
		return failTx("amount exceeds recovery cap: cap is " + strconv.FormatUint(capped, 10))
	}

	if err := st.Transfer(st.Global.BountyPoolWallet, st.Global.Authority, msg.Amount); err != nil {
		return failTx(err.Error())
	}
	pool.CurrentPool -= msg.Amount
	pool.LastRecoveryTime = now

	return okEvent("EmergencyRecovered", map[string]string{
		"bountyId":  strconv.FormatUint(uint64(msg.BountyID), 10),
		"amount":    strconv.FormatUint(msg.Amount, 10),
		"remaining": strconv.FormatUint(pool.CurrentPool, 10),
		"cap":       strconv.FormatUint(capped, 10),
	})
}
