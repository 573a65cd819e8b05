package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SchemaVersion identifies the on-disk state layout. Earlier deployments
// carried parallel single-pool and multi-pool shapes; this schema keys every
// pool by bounty id (a single bounty is just a map of size one).
const SchemaVersion uint32 = 2

type State struct {
	SchemaVersion uint32 `json:"schemaVersion"`
	Height        int64  `json:"height"`

	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce, for replay protection

	Global *Global `json:"global,omitempty"`

	Pools   map[uint8]*Pool        `json:"pools,omitempty"`
	Users   map[string]*UserBounty `json:"users,omitempty"`
	Entries map[string]*Entry      `json:"entries,omitempty"`

	// Sessions holds per-session replay counters for decision attestations.
	Sessions map[string]uint64 `json:"sessions,omitempty"`

	Referrals map[string]*Referral `json:"referrals,omitempty"`
	Teams     map[uint64]*Team     `json:"teams,omitempty"`
}

func NewState() *State {
	return &State{
		SchemaVersion: SchemaVersion,
		Height:        0,
		Accounts:      map[string]uint64{},
		AccountKeys:   map[string][]byte{},
		NonceMax:      map[string]uint64{},
		Pools:         map[uint8]*Pool{},
		Users:         map[string]*UserBounty{},
		Entries:       map[string]*Entry{},
		Sessions:      map[string]uint64{},
		Referrals:     map[string]*Referral{},
		Teams:         map[uint64]*Team{},
	}
}

func (s *State) normalizeMaps() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Pools == nil {
		s.Pools = map[uint8]*Pool{}
	}
	if s.Users == nil {
		s.Users = map[string]*UserBounty{}
	}
	if s.Entries == nil {
		s.Entries = map[string]*Entry{}
	}
	if s.Sessions == nil {
		s.Sessions = map[string]uint64{}
	}
	if s.Referrals == nil {
		s.Referrals = map[string]*Referral{}
	}
	if s.Teams == nil {
		s.Teams = map[uint64]*Team{}
	}
	if s.SchemaVersion == 0 {
		s.SchemaVersion = SchemaVersion
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if st.SchemaVersion != 0 && st.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported state schema version %d (want %d)", st.SchemaVersion, SchemaVersion)
	}
	st.normalizeMaps()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalizeMaps()
	return &out, nil
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: encoding/json does not guarantee map key
	// order, so maps are normalized into sorted slices first.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type poolKV struct {
		ID   uint8 `json:"id"`
		Pool *Pool `json:"pool"`
	}
	type userKV struct {
		Addr string      `json:"addr"`
		User *UserBounty `json:"user"`
	}
	type entryKV struct {
		Key   string `json:"key"`
		Entry *Entry `json:"entry"`
	}
	type sessionKV struct {
		SessionID string `json:"sessionId"`
		Counter   uint64 `json:"counter"`
	}
	type referralKV struct {
		Code     string    `json:"code"`
		Referral *Referral `json:"referral"`
	}
	type teamKV struct {
		ID   uint64 `json:"id"`
		Team *Team  `json:"team"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	pools := make([]poolKV, 0, len(s.Pools))
	for id, p := range s.Pools {
		pools = append(pools, poolKV{ID: id, Pool: p})
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })

	users := make([]userKV, 0, len(s.Users))
	for k, u := range s.Users {
		users = append(users, userKV{Addr: k, User: u})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Addr < users[j].Addr })

	entries := make([]entryKV, 0, len(s.Entries))
	for k, e := range s.Entries {
		entries = append(entries, entryKV{Key: k, Entry: e})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	sessions := make([]sessionKV, 0, len(s.Sessions))
	for k, c := range s.Sessions {
		sessions = append(sessions, sessionKV{SessionID: k, Counter: c})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })

	referrals := make([]referralKV, 0, len(s.Referrals))
	for k, r := range s.Referrals {
		referrals = append(referrals, referralKV{Code: k, Referral: r})
	}
	sort.Slice(referrals, func(i, j int) bool { return referrals[i].Code < referrals[j].Code })

	teams := make([]teamKV, 0, len(s.Teams))
	for id, tm := range s.Teams {
		teams = append(teams, teamKV{ID: id, Team: tm})
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })

	normalized := struct {
		SchemaVersion uint32         `json:"schemaVersion"`
		Height        int64          `json:"height"`
		Accounts      []accountKV    `json:"accounts"`
		AccountKeys   []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax      []nonceKV      `json:"nonceMax,omitempty"`
		Global        *Global        `json:"global,omitempty"`
		Pools         []poolKV       `json:"pools,omitempty"`
		Users         []userKV       `json:"users,omitempty"`
		Entries       []entryKV      `json:"entries,omitempty"`
		Sessions      []sessionKV    `json:"sessions,omitempty"`
		Referrals     []referralKV   `json:"referrals,omitempty"`
		Teams         []teamKV       `json:"teams,omitempty"`
	}{
		SchemaVersion: s.SchemaVersion,
		Height:        s.Height,
		Accounts:      accounts,
		AccountKeys:   accountKeys,
		NonceMax:      nonces,
		Global:        s.Global,
		Pools:         pools,
		Users:         users,
		Entries:       entries,
		Sessions:      sessions,
		Referrals:     referrals,
		Teams:         teams,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----
//
// The bank is the ledger transfer service: an atomic value-movement
// primitive keyed by (source, destination, amount) that fails cleanly on
// insufficient balance or overflow.

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient balance: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

// Transfer moves amount from one account to another, all or nothing.
func (s *State) Transfer(from, to string, amount uint64) error {
	if err := s.Debit(from, amount); err != nil {
		return err
	}
	if err := s.Credit(to, amount); err != nil {
		// Undo the debit so a failed transfer never leaves partial movement.
		s.Accounts[from] += amount
		return err
	}
	return nil
}
