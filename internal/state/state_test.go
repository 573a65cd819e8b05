package state

import (
	"bytes"
	"testing"

	"bountyjackpot/chain/internal/pricing"
)

func populated() *State {
	s := NewState()
	s.Height = 7
	s.Accounts["alice"] = 1_000
	s.Accounts["bob"] = 250
	s.NonceMax["alice"] = 3
	s.Global = &Global{
		Authority:         "authority",
		BountyPoolWallet:  "pool-wallet",
		OperationalWallet: "operational",
		BuybackWallet:     "buyback",
		StakingWallet:     "staking",
		ResearchFundFloor: 500,
		Rates:             pricing.DefaultRates(),
		IsActive:          true,
		BackendAuthority:  "backend",
	}
	s.Pools[1] = &Pool{BountyID: 1, BasePrice: 100, CurrentPool: 500, IsActive: true, CreatedAt: 10, LastActivityTime: 10, NextEscapeDeadline: 10 + 24*3600}
	s.Users["alice"] = &UserBounty{ActiveBountyID: 1, TotalEntries: 2, LastEntryTime: 11}
	s.Entries[EntryKey(1, "alice", 0)] = &Entry{BountyID: 1, Payer: "alice", EntryNonce: 0, Amount: 100, PoolShare: 60, FeeShare: 40, Processed: true, PaidAt: 11}
	s.Sessions["sess-1"] = 4
	s.Referrals["CODE1"] = &Referral{Code: "CODE1", Owner: "alice", Uses: 1, CreatedAt: 9}
	s.Teams[1] = &Team{ID: 1, Owner: "alice", Members: []string{"bob"}, CreatedAt: 8}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	home := t.TempDir()
	s := populated()
	if err := s.Save(home); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Height != s.Height {
		t.Fatalf("height = %d, want %d", got.Height, s.Height)
	}
	if got.SchemaVersion != SchemaVersion {
		t.Fatalf("schemaVersion = %d, want %d", got.SchemaVersion, SchemaVersion)
	}
	if !bytes.Equal(got.AppHash(), s.AppHash()) {
		t.Fatalf("app hash changed across save/load")
	}
}

func TestLoadMissingStateStartsFresh(t *testing.T) {
	got, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Height != 0 || len(got.Accounts) != 0 {
		t.Fatalf("expected empty state, got height=%d accounts=%d", got.Height, len(got.Accounts))
	}
	if got.Pools == nil || got.Sessions == nil {
		t.Fatalf("maps not initialized")
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := populated()
	c, err := s.Clone()
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	c.Accounts["alice"] = 0
	c.Pools[1].CurrentPool = 9999
	c.Users["alice"].ActiveBountyID = 0
	c.Sessions["sess-1"] = 100

	if s.Accounts["alice"] != 1_000 {
		t.Fatalf("clone mutated original account balance")
	}
	if s.Pools[1].CurrentPool != 500 {
		t.Fatalf("clone mutated original pool")
	}
	if s.Users["alice"].ActiveBountyID != 1 {
		t.Fatalf("clone mutated original user tracker")
	}
	if s.Sessions["sess-1"] != 4 {
		t.Fatalf("clone mutated original session counter")
	}
}

func TestAppHashIgnoresMapInsertionOrder(t *testing.T) {
	a := NewState()
	b := NewState()
	names := []string{"e", "a", "c", "b", "d"}
	for i, n := range names {
		a.Accounts[n] = uint64(i)
	}
	for i := len(names) - 1; i >= 0; i-- {
		b.Accounts[names[i]] = uint64(i)
	}
	if !bytes.Equal(a.AppHash(), b.AppHash()) {
		t.Fatalf("app hash depends on map insertion order")
	}
}

func TestAppHashSensitiveToBalances(t *testing.T) {
	a := populated()
	b := populated()
	b.Accounts["alice"]++
	if bytes.Equal(a.AppHash(), b.AppHash()) {
		t.Fatalf("app hash did not change with balance")
	}
}

func TestBankDebitInsufficient(t *testing.T) {
	s := NewState()
	s.Accounts["alice"] = 10
	if err := s.Debit("alice", 11); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
	if s.Accounts["alice"] != 10 {
		t.Fatalf("failed debit mutated balance")
	}
}

func TestBankCreditOverflow(t *testing.T) {
	s := NewState()
	s.Accounts["alice"] = ^uint64(0)
	if err := s.Credit("alice", 1); err == nil {
		t.Fatalf("expected overflow error")
	}
	if s.Accounts["alice"] != ^uint64(0) {
		t.Fatalf("failed credit mutated balance")
	}
}

func TestTransferRollsBackOnCreditFailure(t *testing.T) {
	s := NewState()
	s.Accounts["alice"] = 50
	s.Accounts["bob"] = ^uint64(0)
	if err := s.Transfer("alice", "bob", 10); err == nil {
		t.Fatalf("expected transfer failure")
	}
	if s.Accounts["alice"] != 50 {
		t.Fatalf("failed transfer left partial debit: %d", s.Accounts["alice"])
	}
}

func TestTransferMovesValue(t *testing.T) {
	s := NewState()
	s.Accounts["alice"] = 50
	if err := s.Transfer("alice", "bob", 30); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if s.Accounts["alice"] != 20 || s.Accounts["bob"] != 30 {
		t.Fatalf("balances = %d/%d, want 20/30", s.Accounts["alice"], s.Accounts["bob"])
	}
}
