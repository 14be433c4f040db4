package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditSeverity represents the severity level of an audit event.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEvent records the outcome of one dry-run or commit call.
type AuditEvent struct {
	ID         string        `json:"id"`
	Kind       Mode          `json:"kind"`
	Severity   AuditSeverity `json:"severity"`
	Layout     string        `json:"layout"`
	BatchID    string        `json:"batchId"`
	BatchIndex int           `json:"batchIndex"`
	RowFrom    int           `json:"rowFrom,omitempty"`
	RowTo      int           `json:"rowTo,omitempty"`
	Result     BatchResult   `json:"result"`
	Error      string        `json:"error,omitempty"`
	IPAddress  string        `json:"ipAddress,omitempty"`
	UserAgent  string        `json:"userAgent,omitempty"`
	Source     string        `json:"source,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Failed reports whether the call ended with an error.
func (e AuditEvent) Failed() bool { return e.Error != "" }

// AuditFilter contains filtering options for querying audit events.
// Events are returned newest first.
type AuditFilter struct {
	Kind   Mode
	Layout string
	Limit  int
	Offset int
}

// DefaultAuditLimit caps audit queries that do not set a limit.
const DefaultAuditLimit = 100

// determineSeverity returns the severity for a call outcome. Dry runs change
// nothing; failed commits may have left a partially applied batch.
func determineSeverity(kind Mode, err error) AuditSeverity {
	switch {
	case kind == ModeDryRun:
		return SeverityLow
	case err != nil:
		return SeverityCritical
	default:
		return SeverityHigh
	}
}

// newAuditEvent builds the event for one call, picking up request metadata
// from ctx.
func newAuditEvent(ctx context.Context, kind Mode, layout, batchID string, batchIndex int, res BatchResult, err error, at time.Time) AuditEvent {
	meta := RequestMetaFromContext(ctx)
	ev := AuditEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Severity:   determineSeverity(kind, err),
		Layout:     layout,
		BatchID:    batchID,
		BatchIndex: batchIndex,
		Result:     res,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Source:     meta.Source,
		CreatedAt:  at,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// matchAudit reports whether ev passes filter f.
func matchAudit(ev AuditEvent, f AuditFilter) bool {
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.Layout != "" && ev.Layout != f.Layout {
		return false
	}
	return true
}
