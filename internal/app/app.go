package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/codec"
	"bountyjackpot/chain/internal/decision"
	"bountyjackpot/chain/internal/state"
)

const (
	AppVersion uint64 = 1

	// MaxBountyID bounds the pool id space.
	MaxBountyID uint8 = 4

	// escapeWindow is how long a pool may sit idle before its escrow can be
	// force-distributed.
	escapeWindow int64 = 24 * 3600
	// recoveryCooldown separates consecutive emergency withdrawals.
	recoveryCooldown int64 = 24 * 3600
	// recoveryCapPct caps one withdrawal at this share of the pre-withdrawal
	// pool value.
	recoveryCapPct uint8 = 10
	// lastActorPct is the escape-distribution share paid to the last entrant.
	lastActorPct uint8 = 20
)

type BountyApp struct {
	*abci.BaseApplication

	home string

	verifier decision.Verifier

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

func New(home string) (*BountyApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &BountyApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		verifier:        decision.Ed25519Verifier{},
		st:              st,
		lastHash:        st.AppHash(),
	}
	return a, nil
}

func (a *BountyApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "bountyjackpot (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *BountyApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Mempool check is structural only; auth and domain checks are
	// stateful and run at delivery.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *BountyApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *BountyApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	now := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, now)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *BountyApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// Returning the error halts the node rather than silently running
		// without durability.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *BountyApp) Query(_ context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /jackpot
	// - /bounties
	// - /bounty/<id>
	// - /account/<addr>
	// - /user/<addr>
	// - /session/<id>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/jackpot":
		if a.st.Global == nil {
			return &abci.QueryResponse{Code: 1, Log: "jackpot not initialized", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(a.st.Global)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case path == "/bounties":
		ids := make([]uint8, 0, len(a.st.Pools))
		for id := range a.st.Pools {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/bounty/"):
		raw := strings.TrimPrefix(path, "/bounty/")
		id, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid bounty id", Height: a.st.Height}, nil
		}
		p, ok := a.st.Pools[uint8(id)]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "bounty not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(p)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		bal := a.st.Balance(addr)
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": bal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/user/"):
		addr := strings.TrimPrefix(path, "/user/")
		u, ok := a.st.Users[addr]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "user not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(u)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/session/"):
		id := strings.TrimPrefix(path, "/session/")
		counter, ok := a.st.Sessions[id]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "session not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(map[string]any{"sessionId": id, "counter": counter})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

// deliverTx stages the tx against a deep copy of state and swaps the copy
// in only on success. A failed tx can never leave partial mutations behind,
// whatever path the handler bailed on.
func (a *BountyApp) deliverTx(txBytes []byte, height int64, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "stage state: " + err.Error()}
	}

	res := a.execTx(staged, env, height, nowUnix)
	if res.Code == 0 {
		a.st = staged
		observeTx(env.Type, staged)
	}
	return res
}

func (a *BountyApp) execTx(st *state.State, env codec.TxEnvelope, height int64, nowUnix int64) *abci.ExecTxResult {
	switch env.Type {
	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad auth/register_account value")
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return failTx(err.Error())
		}
		if err := consumeTxNonce(st, env); err != nil {
			return failTx(err.Error())
		}
		st.AccountKeys[msg.Account] = msg.PubKey
		return okEvent("AccountRegistered", map[string]string{
			"account": msg.Account,
		})

	case "bank/mint":
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bank/mint value")
		}
		if msg.To == "" || msg.Amount == 0 {
			return failTx("missing to/amount")
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return failTx(err.Error())
		}
		return okEvent("BankMinted", map[string]string{
			"to":     msg.To,
			"amount": strconv.FormatUint(msg.Amount, 10),
		})

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bank/send value")
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return failTx("missing from/to/amount")
		}
		if err := requireAccountAuth(st, env, msg.From); err != nil {
			return failTx(err.Error())
		}
		if err := consumeTxNonce(st, env); err != nil {
			return failTx(err.Error())
		}
		if err := st.Transfer(msg.From, msg.To, msg.Amount); err != nil {
			return failTx(err.Error())
		}
		return okEvent("BankSent", map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": strconv.FormatUint(msg.Amount, 10),
		})

	case "jackpot/init":
		var msg codec.JackpotInitTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad jackpot/init value")
		}
		return a.applyJackpotInit(st, env, msg, nowUnix)

	case "jackpot/set_backend_authority":
		var msg codec.JackpotSetBackendAuthorityTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad jackpot/set_backend_authority value")
		}
		return a.applySetBackendAuthority(st, env, msg)

	case "bounty/init":
		var msg codec.BountyInitTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bounty/init value")
		}
		return a.applyBountyInit(st, env, msg, nowUnix)

	case "bounty/enter":
		var msg codec.BountyEnterTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bounty/enter value")
		}
		return a.applyBountyEnter(st, env, msg, nowUnix)

	case "bounty/decide":
		var msg codec.BountyDecideTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bounty/decide value")
		}
		return a.applyBountyDecide(st, msg, nowUnix)

	case "bounty/recover":
		var msg codec.BountyRecoverTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bounty/recover value")
		}
		return a.applyBountyRecover(st, env, msg, nowUnix)

	case "bounty/escape":
		var msg codec.BountyEscapeTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad bounty/escape value")
		}
		return a.applyBountyEscape(st, env, msg, nowUnix)

	case "referral/register":
		var msg codec.ReferralRegisterTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad referral/register value")
		}
		return applyReferralRegister(st, msg, nowUnix)

	case "referral/use":
		var msg codec.ReferralUseTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad referral/use value")
		}
		return applyReferralUse(st, msg)

	case "team/create":
		var msg codec.TeamCreateTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad team/create value")
		}
		return applyTeamCreate(st, msg, nowUnix)

	case "team/add_member":
		var msg codec.TeamAddMemberTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return failTx("bad team/add_member value")
		}
		return applyTeamAddMember(st, msg)

	default:
		return failTx("unknown tx type: " + env.Type)
	}
}

func failTx(log string) *abci.ExecTxResult {
	return &abci.ExecTxResult{Code: 1, Log: log}
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
