package app

import (
	"strconv"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/state"
)

// Referral and team records are plain bookkeeping with no value movement,
// so they stay unsigned.

func applyReferralRegister(st *state.State, msg codec.ReferralRegisterTx, now int64) *abci.ExecTxResult {
	if msg.Code == "" || msg.Owner == "" {
		return failTx("missing code/owner")
	}
	if _, exists := st.Referrals[msg.Code]; exists {
		return failTx("referral code already registered")
	}
	st.Referrals[msg.Code] = &state.Referral{
		Code:      msg.Code,
		Owner:     msg.Owner,
		CreatedAt: now,
	}
	return okEvent("ReferralRegistered", map[string]string{
		"code":  msg.Code,
		"owner": msg.Owner,
	})
}

func applyReferralUse(st *state.State, msg codec.ReferralUseTx) *abci.ExecTxResult {
	r := st.Referrals[msg.Code]
	if r == nil {
		return failTx("referral code not found")
	}
	r.Uses = saturatingAddUint64(r.Uses, 1)
	return okEvent("ReferralUsed", map[string]string{
		"code": msg.Code,
		"uses": strconv.FormatUint(r.Uses, 10),
	})
}

func applyTeamCreate(st *state.State, msg codec.TeamCreateTx, now int64) *abci.ExecTxResult {
	if msg.TeamID == 0 || msg.Owner == "" {
		return failTx("missing teamId/owner")
	}
	if _, exists := st.Teams[msg.TeamID]; exists {
		return failTx("team already exists")
	}
	st.Teams[msg.TeamID] = &state.Team{
		ID:        msg.TeamID,
		Owner:     msg.Owner,
		CreatedAt: now,
	}
	return okEvent("TeamCreated", map[string]string{
		"teamId": strconv.FormatUint(msg.TeamID, 10),
		"owner":  msg.Owner,
	})
}

func applyTeamAddMember(st *state.State, msg codec.TeamAddMemberTx) *abci.ExecTxResult {
	t := st.Teams[msg.TeamID]
	if t == nil {
		return failTx("team not found")
	}
	if msg.Member == "" {
		return failTx("missing member")
	}
	if t.HasMember(msg.Member) {
		return failTx("already a team member")
	}
	t.Members = append(t.Members, msg.Member)
	return okEvent("TeamMemberAdded", map[string]string{
		"teamId":  strconv.FormatUint(msg.TeamID, 10),
		"member":  msg.Member,
		"members": strconv.Itoa(len(t.Members)),
	})
}
