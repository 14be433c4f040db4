package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/golab-ledger/internal/logging"
)

// RowPreview describes what a dry run would do with one row.
type RowPreview struct {
	SourceRowRef   string     `json:"sourceRowRef"`
	Skip           SkipReason `json:"skip,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	ItemID         string     `json:"itemId,omitempty"`
	ItemName       string     `json:"itemName,omitempty"`
	Quantity       Number     `json:"quantity"`
	UnitPrice      Number     `json:"unitPrice"`
	Outcome        string     `json:"outcome,omitempty"`
}

// DryRunReport is the read-only breakdown of an import.
type DryRunReport struct {
	BatchID string      `json:"batchId"`
	Layout  string      `json:"layout"`
	Result  BatchResult `json:"result"`

	// Go is false when no row is valid or a hard-fail check rejected the
	// batch; Reasons says why.
	Go      bool     `json:"go"`
	Reasons []string `json:"reasons,omitempty"`

	// AllDuplicates marks a re-run of an import that is already committed.
	// It is a valid outcome, distinct from zero valid rows.
	AllDuplicates bool        `json:"allDuplicates"`
	LastCommit    *AuditEvent `json:"lastCommit,omitempty"`

	NewItemSamples   []RowPreview `json:"newItemSamples,omitempty"`
	DuplicateSamples []RowPreview `json:"duplicateSamples,omitempty"`
	SkippedSamples   []RowPreview `json:"skippedSamples,omitempty"`
	AnomalySamples   []RowPreview `json:"anomalySamples,omitempty"`

	ProcessingTimeMs int64 `json:"processingTimeMs"`

	failures []error
}

// HardFailFunc is a caller-defined check run after the breakdown is complete.
// A non-nil error turns the report into a no-go.
type HardFailFunc func(r *DryRunReport) error

// DryRunOptions configures one dry run.
type DryRunOptions struct {
	PriceThreshold decimal.Decimal // zero uses the service default
	HardFail       []HardFailFunc
}

// Sample limits
const (
	maxNewItemSamples   = 10
	maxDuplicateSamples = 10
	maxSkippedSamples   = 20
	maxAnomalySamples   = 20
)

// DryRun runs the full pipeline over rows and reports what a commit would
// do, without persisting anything but a DRY_RUN audit event. It may run
// concurrently with anything, including a commit.
func (s *Service) DryRun(ctx context.Context, layout Layout, rows []RawRow, opts DryRunOptions) (*DryRunReport, error) {
	start := time.Now()
	report := &DryRunReport{BatchID: uuid.NewString(), Layout: layout.Key}
	logger := logging.WithFields(ctx, "batch_id", report.BatchID, "layout", layout.Key, "mode", ModeDryRun)

	state, err := newBatchState(ctx, s.store, s.threshold(opts.PriceThreshold), s.now())
	if err != nil {
		return nil, err
	}

	var collision error
	res := &report.Result
	for _, c := range ClassifyAll(layout, rows) {
		res.Total++
		if c.Skipped() {
			res.Skipped++
			report.SkippedSamples = sample(report.SkippedSamples, maxSkippedSamples, preview(c, rowPlan{}))
			continue
		}

		p, err := state.plan(ctx, c.Entry)
		if errors.Is(err, ErrItemIdentityCollision) {
			// Report the rest of the batch; the collision makes it a no-go.
			res.Valid++
			res.Added++
			if collision == nil {
				collision = err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		res.Valid++
		if p.duplicate {
			res.Duplicates++
			report.DuplicateSamples = sample(report.DuplicateSamples, maxDuplicateSamples, preview(c, p))
			continue
		}
		res.count(p)
		state.apply(p)

		if p.app.Created {
			report.NewItemSamples = sample(report.NewItemSamples, maxNewItemSamples, preview(c, p))
		}
		if p.anomaly {
			report.AnomalySamples = sample(report.AnomalySamples, maxAnomalySamples, preview(c, p))
		}
	}

	if res.Valid == 0 {
		report.fail(ErrNoValidRows)
	}
	if collision != nil {
		report.fail(collision)
	}
	for _, check := range opts.HardFail {
		if err := check(report); err != nil {
			report.fail(fmt.Errorf("%w: %w", ErrHardFail, err))
		}
	}
	report.Go = len(report.Reasons) == 0
	report.AllDuplicates = res.Valid > 0 && res.Duplicates == res.Valid

	if report.LastCommit, err = s.lastCommit(ctx, layout.Key); err != nil {
		return nil, fmt.Errorf("last commit: %w", err)
	}

	ev := newAuditEvent(ctx, ModeDryRun, layout.Key, report.BatchID, 0, *res, nil, s.now())
	if err := s.store.AppendAudit(ctx, ev); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}

	report.ProcessingTimeMs = time.Since(start).Milliseconds()
	logger.Info("dry run complete",
		"total", res.Total,
		"valid", res.Valid,
		"duplicates", res.Duplicates,
		"new_items", res.NewItems,
		"go", report.Go,
	)
	return report, nil
}

// Err returns nil when the report is a go. Otherwise it joins the reasons,
// each wrapping ErrNoValidRows, ErrItemIdentityCollision or ErrHardFail.
func (r *DryRunReport) Err() error {
	if r.Go {
		return nil
	}
	return errors.Join(r.failures...)
}

func (r *DryRunReport) fail(err error) {
	r.failures = append(r.failures, err)
	r.Reasons = append(r.Reasons, err.Error())
}

func preview(c Candidate, p rowPlan) RowPreview {
	rp := RowPreview{
		SourceRowRef: SourceRowRef(c.Row.Sheet, c.Row.Index),
		Skip:         c.Skip,
	}
	if c.Skipped() {
		return rp
	}
	rp.IdempotencyKey = c.Entry.IdempotencyKey
	rp.ItemID = c.Entry.ItemID
	rp.ItemName = c.Entry.ItemName
	rp.Quantity = c.Entry.Quantity
	rp.UnitPrice = c.Entry.UnitPrice
	if !p.duplicate {
		rp.Outcome = p.app.Outcome.String()
	}
	return rp
}

func sample(list []RowPreview, limit int, rp RowPreview) []RowPreview {
	if len(list) >= limit {
		return list
	}
	return append(list, rp)
}
