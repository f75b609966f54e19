// Package sleuth traces wallet addresses and generates investigation reports.
//
// A trace runs the heuristic flag extractor and scorer from package risk,
// fabricates demo transactions, and records the score in the document store.
// A report reuses the most recent stored score for the address, or traces the
// address on the spot when none exists. Store failures never fail a request.
package sleuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/cryptosleuth/internal/risk"
)

var (
	ErrAddressRequired  = errors.New("address is required")
	ErrWalletNotFound   = errors.New("no scored wallet found for address")
	ErrStoreUnavailable = errors.New("document store not configured")
)

// Report list bounds.
const (
	DefaultReportLimit = 20
	MaxReportLimit     = 100
)

// WalletRequest is the request body for trace and report calls.
type WalletRequest struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
}

// TraceResult is the response of a trace.
type TraceResult struct {
	Address      string                      `json:"address"`
	Chain        string                      `json:"chain"`
	RiskScore    int                         `json:"risk_score"`
	Flags        []string                    `json:"flags"`
	Transactions []risk.SyntheticTransaction `json:"transactions"`
}

// WalletRecord is stored in the wallet collection on every trace. Records are
// appended, never updated; the newest one for an address wins.
type WalletRecord struct {
	Address      string    `json:"address"`
	Chain        string    `json:"chain"`
	RiskScore    int       `json:"risk_score"`
	LastScoredAt time.Time `json:"last_scored_at"`
	AddressKind  string    `json:"address_kind,omitempty"`
	Checksum     string    `json:"checksum_address,omitempty"` // EIP-55 form, EVM addresses only
}

// ReportDetails holds the structured part of a report.
type ReportDetails struct {
	Recommendation string `json:"recommendation"`
}

// Report is an immutable investigation report. Each call creates a new one.
type Report struct {
	ID          string        `json:"id"`
	Address     string        `json:"address"`
	Chain       string        `json:"chain"`
	Summary     string        `json:"summary"`
	RiskScore   int           `json:"risk_score"`
	Details     ReportDetails `json:"details"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Summary renders the narrative line of a report.
func Summary(address, chain string, tier risk.Tier, score int) string {
	return fmt.Sprintf(
		"Wallet %s on %s is classified as %s with score %d. "+
			"This automated report is generated for investigative triage and is not a legal determination.",
		address, chain, tier, score,
	)
}
