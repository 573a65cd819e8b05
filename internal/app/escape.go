package app

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/state"
)

// applyBountyEscape force-distributes a pool whose escape deadline has
// passed: a fixed share to the last entrant, the remainder earmarked for
// the listed participants. The per-participant share is carried in the
// event; its value stays in escrow for off-chain distribution.
func (a *BountyApp) applyBountyEscape(st *state.State, env codec.TxEnvelope, msg codec.BountyEscapeTx, now int64) *abci.ExecTxResult {
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
	if now < pool.NextEscapeDeadline {
		return failTx("escape not ready: deadline at " + strconv.FormatInt(pool.NextEscapeDeadline, 10))
	}
	if len(msg.Participants) == 0 {
		return failTx("missing participants")
	}
	for i, p := range msg.Participants {
		if p == "" {
			return failTx("empty participant at index " + strconv.Itoa(i))
		}
	}
	if msg.LastActor == "" {
		return failTx("missing lastActor")
	}

	if pool.IsProcessing {
		return failTx("settlement already in progress")
	}
	pool.IsProcessing = true
	defer func() { pool.IsProcessing = false }()

	total := pool.CurrentPool

	lastLeg, err := mulUint64Checked(total, uint64(lastActorPct), "last actor share")
	if err != nil {
		return failTx(err.Error())
	}
	lastLeg /= 100
	if lastLeg > 0 {
		if err := st.Transfer(st.Global.BountyPoolWallet, msg.LastActor, lastLeg); err != nil {
			return failTx(err.Error())
		}
	}

	// The community share absorbs the truncation dust from the last-actor
	// leg; the equal per-participant cut is informational.
	community := total - lastLeg
	perParticipant := community / uint64(len(msg.Participants))

	pool.CurrentPool = st.Global.ResearchFundFloor
	pool.TotalEntries = 0
	pool.LastActivityTime = now
	pool.NextEscapeDeadline = now + escapeWindow

	return okEvent("EscapeExecuted", map[string]string{
		"bountyId":       strconv.FormatUint(uint64(msg.BountyID), 10),
		"lastActor":      msg.LastActor,
		"lastActorShare": strconv.FormatUint(lastLeg, 10),
		"communityShare": strconv.FormatUint(community, 10),
		"participants":   strconv.Itoa(len(msg.Participants)),
		"perParticipant": strconv.FormatUint(perParticipant, 10),
		"newPool":        strconv.FormatUint(pool.CurrentPool, 10),
	})
}
