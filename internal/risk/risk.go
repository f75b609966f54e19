// Package risk implements heuristic wallet risk scoring.
//
// An address is matched against a fixed table of seven indicators. Each
// matched indicator contributes a signed impact; the sum is clamped to
// [0, 100] and mapped to one of four tiers. The heuristics are pattern
// checks on the address text only. No chain data is consulted.
package risk

// Indicator ids.
const (
	DarknetLink  = "darknet_link"
	MixerUse     = "mixer_use"
	HackProceeds = "hack_proceeds"
	LargeTx      = "large_tx"
	Structuring  = "structuring"
	Hodl         = "hodl"
	KYCExchange  = "kyc_exchange"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// DefaultChain is used when a request omits the chain.
const DefaultChain = "ethereum"

// KnownChains lists the networks wallet records are expected to carry.
var KnownChains = []string{"bitcoin", "ethereum", "tron", "polygon", "bsc", "litecoin"}

// Indicator is a named heuristic with a fixed score impact.
type Indicator struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Impact int    `json:"impact"`
}

var rules = []Indicator{
	{ID: DarknetLink, Label: "Direct link to darknet market", Impact: 70},
	{ID: MixerUse, Label: "Used mixing service", Impact: 50},
	{ID: HackProceeds, Label: "Received from hack/scam", Impact: 90},
	{ID: LargeTx, Label: "Large sudden transfer", Impact: 30},
	{ID: Structuring, Label: "Frequent small transactions", Impact: 40},
	{ID: Hodl, Label: "Long-held funds", Impact: -10},
	{ID: KYCExchange, Label: "From known exchange", Impact: -20},
}

var impacts = func() map[string]int {
	m := make(map[string]int, len(rules))
	for _, r := range rules {
		m[r.ID] = r.Impact
	}
	return m
}()

// Rules returns a copy of the indicator table in declaration order.
func Rules() []Indicator {
	out := make([]Indicator, len(rules))
	copy(out, rules)
	return out
}

// Impact returns the impact of the indicator with the given id.
func Impact(id string) (int, bool) {
	v, ok := impacts[id]
	return v, ok
}

// IsKnownChain reports whether chain is one of KnownChains.
func IsKnownChain(chain string) bool {
	for _, c := range KnownChains {
		if c == chain {
			return true
		}
	}
	return false
}
