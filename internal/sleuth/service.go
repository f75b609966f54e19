package sleuth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbd888/cryptosleuth/internal/docstore"
	"github.com/mbd888/cryptosleuth/internal/idgen"
	"github.com/mbd888/cryptosleuth/internal/logging"
	"github.com/mbd888/cryptosleuth/internal/metrics"
	"github.com/mbd888/cryptosleuth/internal/risk"
	"github.com/mbd888/cryptosleuth/internal/traces"
	"github.com/mbd888/cryptosleuth/internal/validation"
	"go.opentelemetry.io/otel/codes"
)

// Service provides wallet tracing and reporting.
type Service struct {
	store docstore.Store // nil when no store is configured
	now   func() time.Time
}

// NewService creates a sleuth service. store may be nil, in which case
// nothing is persisted and reports always recompute.
func NewService(store docstore.Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// WithClock overrides the time source (for testing).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Rules returns the indicator table used for scoring.
func (s *Service) Rules() []risk.Indicator {
	return risk.Rules()
}

// Trace scores an address and fabricates its demo transactions. The wallet
// record write is best-effort.
func (s *Service) Trace(ctx context.Context, address, chain string) (_ *TraceResult, retErr error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	if chain == "" {
		chain = risk.DefaultChain
	}

	ctx, span := traces.StartSpan(ctx, "sleuth.Trace", traces.WalletAddr(address), traces.Chain(chain))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	flags := risk.ExtractFlags(address)
	score := risk.ComputeScore(flags)
	now := s.now().UTC()
	txs := risk.GenerateTransactions(address, chain, flags, now)
	kind := validation.AddressKind(address)
	checksum := validation.ChecksumAddress(address)

	span.SetAttributes(traces.RiskScore(score), traces.AddressKind(kind))
	if checksum != "" {
		span.SetAttributes(traces.ChecksumAddr(checksum))
	}
	observeTrace(ctx, chain, flags, score)

	_ = s.persist(ctx, docstore.CollectionWallet, &WalletRecord{
		Address:      address,
		Chain:        chain,
		RiskScore:    score,
		LastScoredAt: now,
		AddressKind:  kind,
		Checksum:     checksum,
	})

	logging.L(ctx).Info("wallet traced",
		"address", address,
		"chain", chain,
		"risk_score", score,
		"flags", flags,
	)

	return &TraceResult{
		Address:      address,
		Chain:        chain,
		RiskScore:    score,
		Flags:        flags,
		Transactions: txs,
	}, nil
}

// Report classifies an address using its most recent stored score, tracing
// it first when no score is stored. The report write is best-effort.
func (s *Service) Report(ctx context.Context, address, chain string) (_ *Report, retErr error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	if chain == "" {
		chain = risk.DefaultChain
	}

	ctx, span := traces.StartSpan(ctx, "sleuth.Report", traces.WalletAddr(address), traces.Chain(chain))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	var score int
	source := "stored"

	latest, err := s.LatestWallet(ctx, address)
	switch {
	case err == nil:
		score = latest.RiskScore
	default:
		if !errors.Is(err, ErrWalletNotFound) && !errors.Is(err, ErrStoreUnavailable) {
			metrics.PersistenceFailuresTotal.WithLabelValues("find_" + docstore.CollectionWallet).Inc()
			logging.L(ctx).Warn("wallet lookup failed, recomputing", "address", address, "error", err)
		}
		trace, err := s.Trace(ctx, address, chain)
		if err != nil {
			return nil, err
		}
		score = trace.RiskScore
		source = "recomputed"
	}

	cls := risk.Classify(score)
	span.SetAttributes(traces.RiskScore(score), traces.RiskTier(string(cls.Tier)))
	metrics.ReportsTotal.WithLabelValues(string(cls.Tier), source).Inc()

	report := &Report{
		ID:          idgen.WithPrefix("rpt_"),
		Address:     address,
		Chain:       chain,
		Summary:     Summary(address, chain, cls.Tier, score),
		RiskScore:   score,
		Details:     ReportDetails{Recommendation: cls.Recommendation},
		GeneratedAt: s.now().UTC(),
	}

	_ = s.persist(ctx, docstore.CollectionReport, report)

	logging.L(ctx).Info("report generated",
		"address", address,
		"tier", cls.Tier,
		"risk_score", score,
		"source", source,
	)

	return report, nil
}

// LatestWallet returns the newest wallet record for an address.
func (s *Service) LatestWallet(ctx context.Context, address string) (*WalletRecord, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}

	docs, err := s.store.Find(ctx, docstore.CollectionWallet, docstore.Filter{"address": address}, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrWalletNotFound
	}

	var rec WalletRecord
	if err := decodeDocument(docs[0], &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReports returns stored reports for an address, newest first.
func (s *Service) ListReports(ctx context.Context, address string, limit int) ([]*Report, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 {
		limit = DefaultReportLimit
	}
	if limit > MaxReportLimit {
		limit = MaxReportLimit
	}

	docs, err := s.store.Find(ctx, docstore.CollectionReport, docstore.Filter{"address": address}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	reports := make([]*Report, 0, len(docs))
	for _, doc := range docs {
		var r Report
		if err := decodeDocument(doc, &r); err != nil {
			return nil, err
		}
		reports = append(reports, &r)
	}
	return reports, nil
}

// persist writes v to collection. Failures are logged and counted and then
// returned; callers on the request path discard them explicitly.
func (s *Service) persist(ctx context.Context, collection string, v interface{}) error {
	if s.store == nil {
		return ErrStoreUnavailable
	}

	doc, err := encodeDocument(v)
	if err == nil {
		err = s.store.Insert(ctx, collection, doc)
	}
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("insert_" + collection).Inc()
		logging.L(ctx).Warn("best-effort persist failed", "collection", collection, "error", err)
		return err
	}
	return nil
}

func observeTrace(ctx context.Context, chain string, flags []string, score int) {
	label := chain
	if !risk.IsKnownChain(chain) {
		label = "other"
		logging.L(ctx).Debug("trace for unknown chain", "chain", chain)
	}
	metrics.TracesTotal.WithLabelValues(label).Inc()
	metrics.RiskScores.Observe(float64(score))
	for _, f := range flags {
		metrics.FlagsTotal.WithLabelValues(f).Inc()
	}
}

// encodeDocument converts a record into its stored JSON object form.
func encodeDocument(v interface{}) (docstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	doc := docstore.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

func decodeDocument(doc docstore.Document, v interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}
