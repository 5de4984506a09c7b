package models

import "fmt"

// Tier is the ordered LLM capability level the router and escalator
// operate on symbolically. Cheap is the weakest/fastest/cheapest tier;
// Strong is the most capable and most expensive.
type Tier int

const (
	TierCheap Tier = iota
	TierMid
	TierStrong
)

// Tiers lists every known tier in ascending order.
var Tiers = []Tier{TierCheap, TierMid, TierStrong}

func (t Tier) String() string {
	switch t {
	case TierCheap:
		return "cheap"
	case TierMid:
		return "mid"
	case TierStrong:
		return "strong"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier converts a tier name to a Tier, defaulting to TierMid on an
// unrecognised string so callers degrade gracefully rather than panic.
func ParseTier(s string) Tier {
	switch s {
	case "cheap":
		return TierCheap
	case "mid":
		return TierMid
	case "strong":
		return TierStrong
	default:
		return TierMid
	}
}

// Next returns the next stronger tier and whether one exists.
func (t Tier) Next() (Tier, bool) {
	if int(t)+1 >= len(Tiers) {
		return t, false
	}
	return Tier(int(t) + 1), true
}

// MarshalJSON emits the tier as its lowercase name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON reads the tier from its lowercase name.
func (t *Tier) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	*t = ParseTier(s)
	return nil
}

// TurnCap is the per-tier LLM conversation turn ceiling.
func (t Tier) TurnCap() int {
	switch t {
	case TierCheap:
		return 10
	case TierMid:
		return 15
	case TierStrong:
		return 25
	default:
		return 10
	}
}
