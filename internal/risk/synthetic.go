package risk

import (
	"fmt"
	"math"
	"time"
)

// DemoTransactionCount is the number of synthetic transactions per trace.
const DemoTransactionCount = 6

const (
	demoSymbol      = "ETH"
	demoAmountStep  = 0.5
	maxFlagsPerTx   = 2
	txidPrefixBytes = 6
)

// SyntheticTransaction is fabricated display data. It is never persisted.
type SyntheticTransaction struct {
	TxID        string    `json:"txid"`
	FromAddress string    `json:"from_address"`
	ToAddress   string    `json:"to_address"`
	Amount      float64   `json:"amount"`
	Symbol      string    `json:"symbol"`
	Timestamp   time.Time `json:"timestamp"`
	Chain       string    `json:"chain"`
	Flags       []string  `json:"flags"`
}

// GenerateTransactions fabricates DemoTransactionCount transactions for an
// address. Even indexes send from the address to a peer, odd indexes receive.
// All records share the timestamp now.
//
// The symbol is always ETH, whatever the chain.
func GenerateTransactions(address, chain string, flags []string, now time.Time) []SyntheticTransaction {
	prefix := address
	if len(prefix) > txidPrefixBytes {
		prefix = prefix[:txidPrefixBytes]
	}

	txs := make([]SyntheticTransaction, DemoTransactionCount)
	for i := range txs {
		peer := fmt.Sprintf("peer-%d", i)
		from, to := address, peer
		if i%2 == 1 {
			from, to = peer, address
		}
		txs[i] = SyntheticTransaction{
			TxID:        fmt.Sprintf("demo-%d-%s", i, prefix),
			FromAddress: from,
			ToAddress:   to,
			Amount:      roundTo(demoAmountStep*float64(i+1), 4),
			Symbol:      demoSymbol,
			Timestamp:   now,
			Chain:       chain,
			Flags:       txFlags(i, len(address), flags),
		}
	}
	return txs
}

// txFlags returns at most maxFlagsPerTx flags when (i + addrLen) is even.
func txFlags(i, addrLen int, flags []string) []string {
	out := []string{}
	if (i+addrLen)%2 != 0 {
		return out
	}
	for _, f := range flags {
		if len(out) == maxFlagsPerTx {
			break
		}
		out = append(out, f)
	}
	return out
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
