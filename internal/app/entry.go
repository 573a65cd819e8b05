package app

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/pricing"
	"bountyjackpot/chain/internal/state"
)

func (a *BountyApp) applyBountyEnter(st *state.State, env codec.TxEnvelope, msg codec.BountyEnterTx, now int64) *abci.ExecTxResult {
	if st.Global == nil {
		return failTx("jackpot not initialized")
	}
	if !st.Global.IsActive {
		return failTx("jackpot is not active")
	}
	pool := st.Pools[msg.BountyID]
	if pool == nil {
		return failTx("bounty not found")
	}
	if !pool.IsActive {
		return failTx("bounty is not active")
	}
	if msg.Payer == "" {
		return failTx("missing payer")
	}
	if msg.Amount == 0 {
		return failTx("amount must be > 0")
	}
	if msg.EntryNonce == 0 {
		return failTx("entryNonce must be > 0")
	}
	if err := requireAccountAuth(st, env, msg.Payer); err != nil {
		return failTx(err.Error())
	}
	if err := consumeTxNonce(st, env); err != nil {
		return failTx(err.Error())
	}

	price, err := pricing.EscalatedPrice(pool.BasePrice, pool.TotalEntries)
	if err != nil {
		return failTx(err.Error())
	}
	if msg.Amount < price {
		return failTx("payment below current price: paid " + strconv.FormatUint(msg.Amount, 10) +
			", price " + strconv.FormatUint(price, 10))
	}

	key := state.EntryKey(msg.BountyID, msg.Payer, msg.EntryNonce)
	if _, used := st.Entries[key]; used {
		return failTx("entry nonce already used")
	}

	// One active bounty per user until they win it.
	user := st.Users[msg.Payer]
	if user != nil && user.ActiveBountyID != 0 && user.ActiveBountyID != msg.BountyID {
		return failTx("user active in different bounty: " + strconv.FormatUint(uint64(user.ActiveBountyID), 10))
	}

	split, err := pricing.SplitAmount(msg.Amount, st.Global.Rates)
	if err != nil {
		return failTx(err.Error())
	}

	newPool, err := addUint64Checked(pool.CurrentPool, split.Pool, "pool value")
	if err != nil {
		return failTx(err.Error())
	}
	newEntries, err := addUint64Checked(pool.TotalEntries, 1, "entry count")
	if err != nil {
		return failTx(err.Error())
	}

	// Fixed transfer order: pool escrow, operational, buyback, staking.
	legs := []struct {
		to     string
		amount uint64
	}{
		{st.Global.BountyPoolWallet, split.Pool},
		{st.Global.OperationalWallet, split.Operational},
		{st.Global.BuybackWallet, split.Buyback},
		{st.Global.StakingWallet, split.Staking},
	}
	for _, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := st.Transfer(msg.Payer, leg.to, leg.amount); err != nil {
			return failTx(err.Error())
		}
	}

	pool.CurrentPool = newPool
	pool.TotalEntries = newEntries
	pool.LastActivityTime = now
	pool.NextEscapeDeadline = now + escapeWindow

	st.Entries[key] = &state.Entry{
		BountyID:   msg.BountyID,
		Payer:      msg.Payer,
		EntryNonce: msg.EntryNonce,
		Amount:     msg.Amount,
		PoolShare:  split.Pool,
		FeeShare:   msg.Amount - split.Pool,
		Processed:  true,
		PaidAt:     now,
	}

	if user == nil {
		user = &state.UserBounty{}
		st.Users[msg.Payer] = user
	}
	user.ActiveBountyID = msg.BountyID
	user.TotalEntries = saturatingAddUint64(user.TotalEntries, 1)
	user.LastEntryTime = now

	return okEvent("EntryProcessed", map[string]string{
		"bountyId":     strconv.FormatUint(uint64(msg.BountyID), 10),
		"payer":        msg.Payer,
		"entryNonce":   strconv.FormatUint(msg.EntryNonce, 10),
		"amount":       strconv.FormatUint(msg.Amount, 10),
		"price":        strconv.FormatUint(price, 10),
		"poolShare":    strconv.FormatUint(split.Pool, 10),
		"currentPool":  strconv.FormatUint(pool.CurrentPool, 10),
		"totalEntries": strconv.FormatUint(pool.TotalEntries, 10),
	})
}
