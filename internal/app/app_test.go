package app

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"

	"bountyjackpot/chain/internal/decision"
)

// Deterministic test identities: seed = H(name).
func testEd25519Key(name string) (ed25519.PublicKey, ed25519.PrivateKey) {
	seed := sha256.Sum256([]byte("bjd-test-key|" + name))
	priv := ed25519.NewKeyFromSeed(seed[:])
	return priv.Public().(ed25519.PublicKey), priv
}

var testTxNonce atomic.Uint64

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

func txBytesSigned(t *testing.T, typ string, value any, signer string) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	nonce := strconv.FormatUint(testTxNonce.Add(1), 10)
	_, priv := testEd25519Key(signer)
	sig := ed25519.Sign(priv, txAuthSignBytesV0(typ, valueBytes, nonce, signer))
	return mustMarshal(t, map[string]any{
		"type":   typ,
		"value":  json.RawMessage(valueBytes),
		"nonce":  nonce,
		"signer": signer,
		"sig":    sig,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func parseU64(t *testing.T, s string) uint64 {
	t.Helper()
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		t.Fatalf("parse uint64 %q: %v", s, err)
	}
	return n
}

func newTestApp(t *testing.T) *BountyApp {
	t.Helper()
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func mintTestTokens(t *testing.T, a *BountyApp, height int64, to string, amount uint64) {
	t.Helper()
	mustOk(t, a.deliverTx(txBytes(t, "bank/mint", map[string]any{"to": to, "amount": amount}), height, 0))
}

func registerTestAccount(t *testing.T, a *BountyApp, height int64, name string) {
	t.Helper()
	pub, _ := testEd25519Key(name)
	mustOk(t, a.deliverTx(txBytesSigned(t, "auth/register_account", map[string]any{
		"account": name,
		"pubKey":  []byte(pub),
	}, name), height, 0))
}

const (
	testFloor     = uint64(500)
	testBasePrice = uint64(100)
	// t0 is the block time every setup runs at.
	t0 = int64(1_000_000)
)

// setupJackpot funds the escrow, initializes the global config and opens
// bounty 1 with the default rates.
func setupJackpot(t *testing.T) *BountyApp {
	t.Helper()

	const height = int64(1)
	a := newTestApp(t)

	mintTestTokens(t, a, height, "escrow", 10_000)

	authorityPub, _ := testEd25519Key("authority")
	backendPub, _ := testEd25519Key("backend")
	mustOk(t, a.deliverTx(txBytesSigned(t, "jackpot/init", map[string]any{
		"researchFundFloor":      testFloor,
		"bountyPoolWallet":       "escrow",
		"operationalWallet":      "ops",
		"buybackWallet":          "buyback",
		"stakingWallet":          "staking",
		"backendAuthority":       "backend",
		"backendAuthorityPubKey": []byte(backendPub),
		"authorityPubKey":        []byte(authorityPub),
	}, "authority"), height, t0))

	mustOk(t, a.deliverTx(txBytesSigned(t, "bounty/init", map[string]any{
		"bountyId":  uint8(1),
		"basePrice": testBasePrice,
	}, "authority"), height, t0))

	return a
}

// signedDecisionValue builds a bounty/decide payload attested with the test
// backend key. sessionNonce must equal the chain's counter for sessionID.
func signedDecisionValue(t *testing.T, bountyID uint8, sessionID string, userID uint64, successful bool, winner string, ts int64, sessionNonce uint64) map[string]any {
	t.Helper()

	message := "attempt for session " + sessionID
	response := "verdict for session " + sessionID
	digest := decision.Digest(message, response, successful, userID, sessionID, ts)
	_, backendPriv := testEd25519Key("backend")
	sig := ed25519.Sign(backendPriv, decision.SignBytes(message, response, successful, userID, sessionID, ts))

	return map[string]any{
		"bountyId":              bountyID,
		"userMessage":           message,
		"aiResponse":            response,
		"decisionHash":          digest[:],
		"signature":             sig,
		"isSuccessfulJailbreak": successful,
		"userId":                userID,
		"sessionId":             sessionID,
		"timestamp":             ts,
		"sessionNonce":          sessionNonce,
		"backendAuthority":      "backend",
		"winner":                winner,
	}
}

func TestJackpotInit_RejectsUnderfundedEscrow(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)

	mintTestTokens(t, a, height, "escrow", testFloor-1)

	authorityPub, _ := testEd25519Key("authority")
	backendPub, _ := testEd25519Key("backend")
	res := a.deliverTx(txBytesSigned(t, "jackpot/init", map[string]any{
		"researchFundFloor":      testFloor,
		"bountyPoolWallet":       "escrow",
		"operationalWallet":      "ops",
		"buybackWallet":          "buyback",
		"stakingWallet":          "staking",
		"backendAuthority":       "backend",
		"backendAuthorityPubKey": []byte(backendPub),
		"authorityPubKey":        []byte(authorityPub),
	}, "authority"), height, t0)
	if res.Code == 0 {
		t.Fatalf("expected underfunded init to fail")
	}
	if a.st.Global != nil {
		t.Fatalf("failed init must not create global record")
	}
}

func TestJackpotInit_SecondInitRejected(t *testing.T) {
	const height = int64(1)
	a := setupJackpot(t)

	authorityPub, _ := testEd25519Key("authority")
	backendPub, _ := testEd25519Key("backend")
	res := a.deliverTx(txBytesSigned(t, "jackpot/init", map[string]any{
		"researchFundFloor":      testFloor,
		"bountyPoolWallet":       "escrow",
		"operationalWallet":      "ops",
		"buybackWallet":          "buyback",
		"stakingWallet":          "staking",
		"backendAuthority":       "backend",
		"backendAuthorityPubKey": []byte(backendPub),
		"authorityPubKey":        []byte(authorityPub),
	}, "authority"), height, t0)
	if res.Code == 0 {
		t.Fatalf("expected second init to fail")
	}
}

// foreignSignedTxBytes builds an envelope whose signer name and signing key
// belong to different identities.
func foreignSignedTxBytes(t *testing.T, typ string, value any, signer, keyName string) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	nonce := strconv.FormatUint(testTxNonce.Add(1), 10)
	_, priv := testEd25519Key(keyName)
	sig := ed25519.Sign(priv, txAuthSignBytesV0(typ, valueBytes, nonce, signer))
	return mustMarshal(t, map[string]any{
		"type":   typ,
		"value":  json.RawMessage(valueBytes),
		"nonce":  nonce,
		"signer": signer,
		"sig":    sig,
	})
}

func TestJackpotInit_CannotRebindRegisteredAccountKey(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)

	mintTestTokens(t, a, height, "escrow", 10_000)
	registerTestAccount(t, a, height, "alice")
	mintTestTokens(t, a, height, "alice", 1_000)

	alicePub, _ := testEd25519Key("alice")
	malloryPub, _ := testEd25519Key("mallory")
	backendPub, _ := testEd25519Key("backend")

	// Mallory claims alice's name as the authority while carrying her own
	// key in the payload; the envelope verifies against that payload key.
	res := a.deliverTx(foreignSignedTxBytes(t, "jackpot/init", map[string]any{
		"researchFundFloor":      testFloor,
		"bountyPoolWallet":       "escrow",
		"operationalWallet":      "ops",
		"buybackWallet":          "buyback",
		"stakingWallet":          "staking",
		"backendAuthority":       "backend",
		"backendAuthorityPubKey": []byte(backendPub),
		"authorityPubKey":        []byte(malloryPub),
	}, "alice", "mallory"), height, t0)
	if res.Code == 0 {
		t.Fatalf("expected init under a foreign key to fail")
	}
	if a.st.Global != nil {
		t.Fatalf("failed init must not create global record")
	}
	if !bytes.Equal(a.st.AccountKeys["alice"], []byte(alicePub)) {
		t.Fatalf("registered key must be untouched")
	}

	// Mallory's key still cannot move alice's funds.
	sres := a.deliverTx(foreignSignedTxBytes(t, "bank/send", map[string]any{
		"from":   "alice",
		"to":     "mallory-wallet",
		"amount": uint64(1_000),
	}, "alice", "mallory"), height, t0)
	if sres.Code == 0 {
		t.Fatalf("expected send under a foreign key to fail")
	}
	if a.st.Balance("alice") != 1_000 || a.st.Balance("mallory-wallet") != 0 {
		t.Fatalf("foreign-key send moved value: alice=%d mallory-wallet=%d",
			a.st.Balance("alice"), a.st.Balance("mallory-wallet"))
	}
}

func TestJackpotInit_AcceptsMatchingRegisteredKey(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)

	mintTestTokens(t, a, height, "escrow", 10_000)
	registerTestAccount(t, a, height, "authority")

	authorityPub, _ := testEd25519Key("authority")
	backendPub, _ := testEd25519Key("backend")
	mustOk(t, a.deliverTx(txBytesSigned(t, "jackpot/init", map[string]any{
		"researchFundFloor":      testFloor,
		"bountyPoolWallet":       "escrow",
		"operationalWallet":      "ops",
		"buybackWallet":          "buyback",
		"stakingWallet":          "staking",
		"backendAuthority":       "backend",
		"backendAuthorityPubKey": []byte(backendPub),
		"authorityPubKey":        []byte(authorityPub),
	}, "authority"), height, t0))
	if a.st.Global == nil || a.st.Global.Authority != "authority" {
		t.Fatalf("expected init by the registered key holder to succeed")
	}
}

func TestBountyInit_RequiresEscrowPerPool(t *testing.T) {
	const height = int64(1)
	a := setupJackpot(t)

	// Escrow holds 10_000, enough for many pools; drain it and try again.
	a.st.Accounts["escrow"] = testFloor // backs bounty 1 only
	res := a.deliverTx(txBytesSigned(t, "bounty/init", map[string]any{
		"bountyId":  uint8(2),
		"basePrice": testBasePrice,
	}, "authority"), height, t0)
	if res.Code == 0 {
		t.Fatalf("expected underfunded bounty init to fail")
	}
	if a.st.Pools[2] != nil {
		t.Fatalf("failed init must not create pool")
	}
}

func TestBountyInit_RejectsOutOfRangeID(t *testing.T) {
	const height = int64(1)
	a := setupJackpot(t)

	for _, id := range []uint8{0, MaxBountyID + 1} {
		res := a.deliverTx(txBytesSigned(t, "bounty/init", map[string]any{
			"bountyId":  id,
			"basePrice": testBasePrice,
		}, "authority"), height, t0)
		if res.Code == 0 {
			t.Fatalf("expected bounty id %d to be rejected", id)
		}
	}
}

func TestBountyInit_RejectsNonAuthority(t *testing.T) {
	const height = int64(1)
	a := setupJackpot(t)
	registerTestAccount(t, a, height, "mallory")

	res := a.deliverTx(txBytesSigned(t, "bounty/init", map[string]any{
		"bountyId":  uint8(2),
		"basePrice": testBasePrice,
	}, "mallory"), height, t0)
	if res.Code == 0 {
		t.Fatalf("expected non-authority bounty init to fail")
	}
}

func TestSetBackendAuthority_RotatesKey(t *testing.T) {
	const height = int64(1)
	a := setupJackpot(t)

	newPub, _ := testEd25519Key("backend2")
	res := mustOk(t, a.deliverTx(txBytesSigned(t, "jackpot/set_backend_authority", map[string]any{
		"backendAuthority":       "backend2",
		"backendAuthorityPubKey": []byte(newPub),
	}, "authority"), height, t0))
	ev := findEvent(res.Events, "BackendAuthoritySet")
	if attr(ev, "backendAuthority") != "backend2" || attr(ev, "previous") != "backend" {
		t.Fatalf("unexpected rotation event: %+v", ev)
	}
	if a.st.Global.BackendAuthority != "backend2" {
		t.Fatalf("backend authority not rotated")
	}

	// Attestations signed under the old key no longer settle.
	value := signedDecisionValue(t, 1, "sess-rotate", 7, false, "", t0, 0)
	dres := a.deliverTx(txBytes(t, "bounty/decide", value), height, t0)
	if dres.Code == 0 {
		t.Fatalf("expected decision under rotated-out key to fail")
	}
}

func TestQueryPaths(t *testing.T) {
	a := setupJackpot(t)

	res, err := a.Query(context.Background(), &abci.QueryRequest{Path: "/bounty/1"})
	if err != nil || res.Code != 0 {
		t.Fatalf("query /bounty/1: err=%v code=%d log=%q", err, res.Code, res.Log)
	}
	var pool map[string]any
	if err := json.Unmarshal(res.Value, &pool); err != nil {
		t.Fatalf("decode pool: %v", err)
	}
	if pool["currentPool"].(float64) != float64(testFloor) {
		t.Fatalf("unexpected pool value: %v", pool["currentPool"])
	}

	res, err = a.Query(context.Background(), &abci.QueryRequest{Path: "/bounties"})
	if err != nil || res.Code != 0 {
		t.Fatalf("query /bounties: err=%v code=%d", err, res.Code)
	}
	var ids []uint8
	if err := json.Unmarshal(res.Value, &ids); err != nil {
		t.Fatalf("decode ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("unexpected bounty ids: %v", ids)
	}

	res, _ = a.Query(context.Background(), &abci.QueryRequest{Path: "/bounty/9"})
	if res.Code == 0 {
		t.Fatalf("expected missing bounty query to fail")
	}
	res, _ = a.Query(context.Background(), &abci.QueryRequest{Path: "/nope"})
	if res.Code == 0 {
		t.Fatalf("expected unknown path to fail")
	}
}
