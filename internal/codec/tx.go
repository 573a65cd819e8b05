package codec

import (
	"encoding/json"
	"fmt"
)

// TxEnvelope is the transaction container.
//
// CometBFT transactions are opaque bytes; the devnet protocol uses JSON
// envelopes routed by Type.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth (required for value-moving and authority-gated txs):
	// - Nonce: numeric, strictly increasing per signer, for replay protection.
	// - Signer: logical account id.
	// - Sig: Ed25519 signature over (domain, type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Auth ----

type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Jackpot (global settlement config) ----

type JackpotInitTx struct {
	ResearchFundFloor uint64 `json:"researchFundFloor"`

	// Whole-percent fee split; zero values fall back to the 60/20/10/10
	// default. Must sum to at most 100.
	PoolRate        uint8 `json:"poolRate,omitempty"`
	OperationalRate uint8 `json:"operationalRate,omitempty"`
	BuybackRate     uint8 `json:"buybackRate,omitempty"`
	StakingRate     uint8 `json:"stakingRate,omitempty"`

	BountyPoolWallet  string `json:"bountyPoolWallet"`
	OperationalWallet string `json:"operationalWallet"`
	BuybackWallet     string `json:"buybackWallet"`
	StakingWallet     string `json:"stakingWallet"`

	// Decision authority: account id plus its 32-byte ed25519 key used to
	// verify attestation signatures.
	BackendAuthority       string `json:"backendAuthority"`
	BackendAuthorityPubKey []byte `json:"backendAuthorityPubKey"`

	// Ed25519 key of the initializing (and thereafter governing) authority.
	AuthorityPubKey []byte `json:"authorityPubKey"`
}

type JackpotSetBackendAuthorityTx struct {
	BackendAuthority       string `json:"backendAuthority"`
	BackendAuthorityPubKey []byte `json:"backendAuthorityPubKey"`
}

// ---- Bounty ----

type BountyInitTx struct {
	BountyID  uint8  `json:"bountyId"`
	BasePrice uint64 `json:"basePrice"`
}

type BountyEnterTx struct {
	BountyID   uint8  `json:"bountyId"`
	Payer      string `json:"payer"`
	Amount     uint64 `json:"amount"`
	EntryNonce uint64 `json:"entryNonce"`
}

type BountyDecideTx struct {
	BountyID uint8 `json:"bountyId"`

	UserMessage  string `json:"userMessage"`
	AIResponse   string `json:"aiResponse"`
	DecisionHash []byte `json:"decisionHash"` // base64 (32 bytes)
	Signature    []byte `json:"signature"`    // base64 (64 bytes)
	IsSuccessful bool   `json:"isSuccessfulJailbreak"`
	UserID       uint64 `json:"userId"`
	SessionID    string `json:"sessionId"`
	Timestamp    int64  `json:"timestamp"`

	// SessionNonce must equal the chain's replay counter for SessionID;
	// the counter advances on acceptance.
	SessionNonce uint64 `json:"sessionNonce"`

	// Claimed decision signer; must match the configured backend authority.
	BackendAuthority string `json:"backendAuthority"`

	// Winner account, paid the full pool on a successful outcome.
	Winner string `json:"winner,omitempty"`
}

type BountyRecoverTx struct {
	BountyID uint8  `json:"bountyId"`
	Amount   uint64 `json:"amount"`
}

type BountyEscapeTx struct {
	BountyID     uint8    `json:"bountyId"`
	LastActor    string   `json:"lastActor"`
	Participants []string `json:"participants"`
}

// ---- Referral / Team (plain record keepers) ----

type ReferralRegisterTx struct {
	Code  string `json:"code"`
	Owner string `json:"owner"`
}

type ReferralUseTx struct {
	Code string `json:"code"`
}

type TeamCreateTx struct {
	TeamID uint64 `json:"teamId"`
	Owner  string `json:"owner"`
}

type TeamAddMemberTx struct {
	TeamID uint64 `json:"teamId"`
	Member string `json:"member"`
}
