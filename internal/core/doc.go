// Package core holds the shared kernel of the charge pipeline.
//
// It has no knowledge of HTTP, the CLI or any individual pipeline stage and
// is imported by all of them. It contains:
//
//   - Database plumbing: [DBTX], [DB] and [WithTx] for scoped transactions.
//   - The domain model: [RawTransaction], [Company], [Charge] and the fixed
//     status set.
//   - The error taxonomy: [Error] with a [Kind], a machine-readable code and a
//     detail map.
//   - The error code catalogue: [MapError] turns any error into a
//     [UserMessage] suitable for API responses and CLI output.
//   - Conversion helpers from cleaned Go values to pgtype values.
//
// # Pipeline Stages
//
// Stages live in sibling packages and only meet through this one:
//
//	loader     CSV file -> raw_data.raw_transactions
//	transform  raw_data.raw_transactions -> normalized_data.{companies,charges}
//	reporting  schema lifecycle and queries over daily_transaction_summary
//	extract    tables and the view -> csv, parquet or xlsx files
//
// Orchestration (run limiting, history) is done by package pipeline.
package core
