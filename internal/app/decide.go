package app

import (
	"encoding/hex"
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/decision"
	"bountyjackpot/chain/internal/state"
)

// applyBountyDecide settles one attested decision. The tx is unsigned at
// the envelope level; the attestation signature is the authentication.
func (a *BountyApp) applyBountyDecide(st *state.State, msg codec.BountyDecideTx, now int64) *abci.ExecTxResult {
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

	// Logical reentrancy guard. The flag lives in persisted state so a
	// settlement interrupted mid-payout stays visibly locked; it is cleared
	// here on every exit path of a completed settlement.
	if pool.IsProcessing {
		return failTx("settlement already in progress")
	}
	pool.IsProcessing = true
	defer func() { pool.IsProcessing = false }()

	att := &decision.Attestation{
		Message:    msg.UserMessage,
		Response:   msg.AIResponse,
		Successful: msg.IsSuccessful,
		UserID:     msg.UserID,
		SessionID:  msg.SessionID,
		Timestamp:  msg.Timestamp,
		Digest:     msg.DecisionHash,
		Signature:  msg.Signature,
		Authority:  msg.BackendAuthority,
	}
	if err := att.ValidateShape(now); err != nil {
		return failTx(err.Error())
	}
	if err := att.CheckDigest(); err != nil {
		return failTx(err.Error())
	}
	if msg.BackendAuthority != st.Global.BackendAuthority {
		return failTx("unknown decision authority: " + msg.BackendAuthority)
	}
	if !a.verifier.Verify(st.Global.BackendAuthorityPubKey, att.SignBytes(), att.Signature) {
		return failTx(decision.ErrInvalidSignature.Error())
	}

	// Per-session replay counter: the submitted nonce must match the chain's
	// counter exactly, and the counter advances so the same attestation can
	// never be settled twice.
	if have := st.Sessions[msg.SessionID]; msg.SessionNonce != have {
		return failTx("session nonce mismatch: got " + strconv.FormatUint(msg.SessionNonce, 10) +
			", want " + strconv.FormatUint(have, 10))
	}
	st.Sessions[msg.SessionID] = saturatingAddUint64(st.Sessions[msg.SessionID], 1)

	res := okEvent("DecisionLogged", map[string]string{
		"bountyId":     strconv.FormatUint(uint64(msg.BountyID), 10),
		"sessionId":    msg.SessionID,
		"userId":       strconv.FormatUint(msg.UserID, 10),
		"successful":   strconv.FormatBool(msg.IsSuccessful),
		"decisionHash": hex.EncodeToString(msg.DecisionHash),
		"timestamp":    strconv.FormatInt(msg.Timestamp, 10),
	})

	if !msg.IsSuccessful {
		return res
	}

	if msg.Winner == "" {
		return failTx("missing winner for successful decision")
	}
	if pool.CurrentPool == 0 {
		return failTx("insufficient funds: pool is empty")
	}
	payout := pool.CurrentPool
	if err := st.Transfer(st.Global.BountyPoolWallet, msg.Winner, payout); err != nil {
		return failTx("payout: " + err.Error())
	}

	pool.CurrentPool = st.Global.ResearchFundFloor
	pool.TotalEntries = 0
	pool.LastActivityTime = now
	pool.NextEscapeDeadline = now + escapeWindow

	// Winning releases the user's bounty binding.
	if u := st.Users[msg.Winner]; u != nil && u.ActiveBountyID == msg.BountyID {
		u.ActiveBountyID = 0
	}

	win := okEvent("WinnerSelected", map[string]string{
		"bountyId": strconv.FormatUint(uint64(msg.BountyID), 10),
		"winner":   msg.Winner,
		"payout":   strconv.FormatUint(payout, 10),
		"newPool":  strconv.FormatUint(pool.CurrentPool, 10),
	})
	res.Events = append(res.Events, win.Events...)
	return res
}
