// Package pricing holds the pure fee arithmetic of the jackpot protocol:
// the per-entry price escalation curve and the percentage split applied to
// every entry payment.
package pricing

import (
	"fmt"
	"math/bits"
)

// Price escalation compounds a fixed 0.78% step per recorded entry,
// represented as the integer ratio 10078/10000 with truncating division
// applied at every step. Clients recompute the exact same sequence, so the
// per-step truncation order is part of the protocol: a closed-form pow
// drifts from the iterated value as entries grow.
const (
	escalationNum uint64 = 10078
	escalationDen uint64 = 10000
)

// EscalatedPrice returns the entry price after compounding the escalation
// step entries times over base. Each step is a full 128-bit multiply
// followed by truncating division; overflow of the 64-bit price is an error,
// never wraparound.
func EscalatedPrice(base uint64, entries uint64) (uint64, error) {
	if base == 0 {
		return 0, nil
	}
	price := base
	for i := uint64(0); i < entries; i++ {
		hi, lo := bits.Mul64(price, escalationNum)
		if hi >= escalationDen {
			return 0, fmt.Errorf("escalated price overflows uint64 after %d entries", i+1)
		}
		q, _ := bits.Div64(hi, lo, escalationDen)
		price = q
	}
	return price, nil
}

// RateTable is the percentage fee split applied to each entry payment.
// Rates are whole percents and must sum to at most 100; the pool leg is the
// designated remainder-retention share, so the four legs plus the retained
// remainder always reconstruct the full payment.
type RateTable struct {
	Pool        uint8 `json:"pool"`
	Operational uint8 `json:"operational"`
	Buyback     uint8 `json:"buyback"`
	Staking     uint8 `json:"staking"`
}

// DefaultRates is the 60/20/10/10 split the protocol launched with.
func DefaultRates() RateTable {
	return RateTable{Pool: 60, Operational: 20, Buyback: 10, Staking: 10}
}

func (r RateTable) Total() uint16 {
	return uint16(r.Pool) + uint16(r.Operational) + uint16(r.Buyback) + uint16(r.Staking)
}

func (r RateTable) Validate() error {
	if r.Pool == 0 {
		return fmt.Errorf("pool rate must be > 0")
	}
	if t := r.Total(); t > 100 {
		return fmt.Errorf("rate table sums to %d%%, max 100", t)
	}
	return nil
}

// Split is the per-destination breakdown of one entry payment. The legs sum
// to exactly the amount that was split: truncation remainders are folded
// into the pool leg, never dropped.
type Split struct {
	Pool        uint64 `json:"pool"`
	Operational uint64 `json:"operational"`
	Buyback     uint64 `json:"buyback"`
	Staking     uint64 `json:"staking"`
}

func (s Split) Total() (uint64, error) {
	total := s.Pool
	for _, leg := range []uint64{s.Operational, s.Buyback, s.Staking} {
		if total > ^uint64(0)-leg {
			return 0, fmt.Errorf("split total overflows uint64")
		}
		total += leg
	}
	return total, nil
}

// SplitAmount computes the rate-table shares of amount using truncating
// division per share. Truncation only ever loses value, so the raw shares
// sum to at most amount; the difference is retained in the pool leg.
func SplitAmount(amount uint64, rates RateTable) (Split, error) {
	if err := rates.Validate(); err != nil {
		return Split{}, err
	}
	s := Split{
		Pool:        share(amount, rates.Pool),
		Operational: share(amount, rates.Operational),
		Buyback:     share(amount, rates.Buyback),
		Staking:     share(amount, rates.Staking),
	}
	total, err := s.Total()
	if err != nil {
		return Split{}, err
	}
	if total > amount {
		return Split{}, fmt.Errorf("split shares %d exceed amount %d", total, amount)
	}
	s.Pool += amount - total
	return s, nil
}

// share computes amount*rate/100 with a 128-bit intermediate. rate <= 100
// keeps the high word below the divisor, so Div64 cannot trap.
func share(amount uint64, rate uint8) uint64 {
	hi, lo := bits.Mul64(amount, uint64(rate))
	q, _ := bits.Div64(hi, lo, 100)
	return q
}
