package state

import (
	"fmt"

	"bountyjackpot/chain/internal/pricing"
)

// Global holds jackpot-wide configuration shared by every bounty pool.
type Global struct {
	Authority string `json:"authority"`

	BountyPoolWallet  string `json:"bountyPoolWallet"`
	OperationalWallet string `json:"operationalWallet"`
	BuybackWallet     string `json:"buybackWallet"`
	StakingWallet     string `json:"stakingWallet"`

	// ResearchFundFloor is the minimum jackpot a pool starts at and resets
	// to after payout, escape and winner-less closure.
	ResearchFundFloor uint64 `json:"researchFundFloor"`

	Rates pricing.RateTable `json:"rates"`

	IsActive bool `json:"isActive"`

	// BackendAuthority identifies the attestation signer. Rotating it
	// invalidates attestations signed under the previous key.
	BackendAuthority       string `json:"backendAuthority"`
	BackendAuthorityPubKey []byte `json:"backendAuthorityPubKey"`
}

// Pool is one bounty's escrow bookkeeping.
type Pool struct {
	BountyID     uint8  `json:"bountyId"`
	BasePrice    uint64 `json:"basePrice"`
	CurrentPool  uint64 `json:"currentPool"`
	TotalEntries uint64 `json:"totalEntries"`

	IsActive bool `json:"isActive"`
	// IsProcessing is set for the duration of a payout and rejects any
	// settlement that observes it set on entry.
	IsProcessing bool `json:"isProcessing"`

	CreatedAt          int64 `json:"createdAt"`
	LastActivityTime   int64 `json:"lastActivityTime"`
	NextEscapeDeadline int64 `json:"nextEscapeDeadline"`
	LastRecoveryTime   int64 `json:"lastRecoveryTime"`
}

// UserBounty tracks a user's standing across the jackpot. A user is bound
// to at most one active bounty at a time; ActiveBountyID 0 means unbound.
type UserBounty struct {
	ActiveBountyID uint8  `json:"activeBountyId"`
	TotalEntries   uint64 `json:"totalEntries"`
	LastEntryTime  int64  `json:"lastEntryTime"`
}

// Entry is the receipt for a single paid entry, keyed by
// (bountyID, payer, entryNonce).
type Entry struct {
	BountyID   uint8  `json:"bountyId"`
	Payer      string `json:"payer"`
	EntryNonce uint64 `json:"entryNonce"`
	Amount     uint64 `json:"amount"`

	// PoolShare and FeeShare record the split applied at payment time;
	// they always sum to Amount.
	PoolShare uint64 `json:"poolShare"`
	FeeShare  uint64 `json:"feeShare"`

	Processed bool  `json:"processed"`
	PaidAt    int64 `json:"paidAt"`
}

// EntryKey builds the state map key for an entry receipt.
func EntryKey(bountyID uint8, payer string, entryNonce uint64) string {
	return fmt.Sprintf("%d/%s/%d", bountyID, payer, entryNonce)
}

type Referral struct {
	Code      string `json:"code"`
	Owner     string `json:"owner"`
	Uses      uint64 `json:"uses"`
	CreatedAt int64  `json:"createdAt"`
}

type Team struct {
	ID        uint64   `json:"id"`
	Owner     string   `json:"owner"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
}

// HasMember reports whether addr is the owner or a listed member.
func (t *Team) HasMember(addr string) bool {
	if t.Owner == addr {
		return true
	}
	for _, m := range t.Members {
		if m == addr {
			return true
		}
	}
	return false
}
