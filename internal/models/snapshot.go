package models

import (
	"sort"
	"strings"
	"time"
)

type MarketStatus int

const (
	MarketUnknown MarketStatus = iota
	MarketOpen
	MarketClosed
)

func (s MarketStatus) String() string {
	switch s {
	case MarketOpen:
		return "open"
	case MarketClosed:
		return "closed"
	}
	return "unknown"
}

// ParseMarketStatus accepts the phrasing used by both upstream providers.
func ParseMarketStatus(s string) MarketStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "market open":
		return MarketOpen
	case "closed", "market closed", "after-hours", "after hours", "pre-market", "pre market", "extended-hours":
		return MarketClosed
	}
	return MarketUnknown
}

// ChainKind separates the near-dated chain from long-dated LEAP contracts.
type ChainKind string

const (
	KindNear ChainKind = "near"
	KindLeap ChainKind = "leap"
)

// ChainSnapshot is one complete capture of the chain. It is never mutated after
// construction; derived copies are produced instead.
type ChainSnapshot struct {
	Symbol        string                      `json:"symbol"`
	Source        string                      `json:"source"`
	Kind          ChainKind                   `json:"kind"`
	Spot          float64                     `json:"spot"`
	PreviousClose float64                     `json:"previousClose"`
	CapturedAt    time.Time                   `json:"capturedAt"`
	MarketStatus  MarketStatus                `json:"marketStatus"`
	Expiries      map[string][]OptionContract `json:"expiries"`
}

// NewChainSnapshot groups contracts by expiry and orders each group by strike, calls first.
func NewChainSnapshot(symbol, source string, kind ChainKind, spot, prevClose float64, at time.Time, status MarketStatus, contracts []OptionContract) *ChainSnapshot {
	groups := make(map[string][]OptionContract)
	for _, c := range contracts {
		k := DateKey(c.Expiry)
		groups[k] = append(groups[k], c)
	}
	for _, g := range groups {
		sortContracts(g)
	}
	return &ChainSnapshot{
		Symbol:        symbol,
		Source:        source,
		Kind:          kind,
		Spot:          spot,
		PreviousClose: prevClose,
		CapturedAt:    at,
		MarketStatus:  status,
		Expiries:      groups,
	}
}

func sortContracts(g []OptionContract) {
	sort.SliceStable(g, func(i, j int) bool {
		if c := g[i].Strike.Cmp(g[j].Strike); c != 0 {
			return c < 0
		}
		return g[i].Right < g[j].Right
	})
}

// ExpiryKeys returns the expiry groups in calendar order.
func (s *ChainSnapshot) ExpiryKeys() []string {
	keys := make([]string, 0, len(s.Expiries))
	for k := range s.Expiries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *ChainSnapshot) ContractCount() int {
	n := 0
	for _, g := range s.Expiries {
		n += len(g)
	}
	return n
}

// Empty reports whether the snapshot carries no contracts.
func (s *ChainSnapshot) Empty() bool {
	return s == nil || s.ContractCount() == 0
}

// MapContracts returns a copy of the snapshot with fn applied to every contract.
func (s *ChainSnapshot) MapContracts(fn func(OptionContract) OptionContract) *ChainSnapshot {
	out := *s
	out.Expiries = make(map[string][]OptionContract, len(s.Expiries))
	for k, g := range s.Expiries {
		cp := make([]OptionContract, len(g))
		for i, c := range g {
			cp[i] = fn(c)
		}
		out.Expiries[k] = cp
	}
	return &out
}
