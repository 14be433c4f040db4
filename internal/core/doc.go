// Package core provides the ledger import and moving-average inventory logic.
//
// The package holds all domain rules independent of any transport or
// storage. Web handlers, the CLI and tests drive it through [Service] with a
// [Store] implementation: [MemStore] in process, or the Postgres store in
// internal/pgstore.
//
// # Pipeline
//
// Raw rows from a row source flow through four steps:
//
//  1. Normalize: [NormText], [NormUpper], [NormNumber] and [NormDate] turn
//     untyped cells into canonical values. They never fail.
//  2. Classify: [Classify] pads the row, skips blank rows and assembles the
//     memo according to a registered [Layout].
//  3. Derive: [DeriveItemID] and [DeriveIdempotencyKey] give every entry a
//     stable item identity and a per-row fingerprint.
//  4. Reconcile: [Reconcile] applies inbound quantities to the item's
//     running weighted-average cost.
//
// # Dry Run and Commit
//
// [Service.DryRun] runs the pipeline read-only and returns a go/no-go
// report. [Service.Commit] re-runs it from scratch and applies rows in order,
// one atomic unit per row, skipping any row whose idempotency key is already
// imported. Re-invoking Commit over the same rows is always safe.
//
// Commits are serialized by a [CommitGate] in process and, when configured,
// by a [Locker] across processes.
//
// # Layouts
//
// Layouts are registered at init time using [Register]; see
// internal/core/sheets for the purchase and sales ledgers:
//
//	core.Register(core.Layout{
//	    Key: "purchase", DocType: core.DocPurchase,
//	    Sheets: []string{"구매"}, FirstDataRow: 2,
//	    DateCol: 0, VendorCol: 13, PartNoCol: 2, ItemCol: 3, QtyCol: 4, PriceCol: 9,
//	})
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Skipped rows, duplicate keys and zero quantities are counted outcomes, not
// errors.
package core
