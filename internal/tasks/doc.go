// Package tasks runs listening-history imports with real-time progress reporting.
//
// # Pipeline
//
// [ImportEngine.Run] takes one user's uploaded export through a fixed sequence of stages:
//
//  1. Parse: the platform's [importer.Pipeline] detects the package and emits raw records
//  2. Resolve: records without an artist are looked up through a [catalog.Resolver]
//     with a cache scoped to the run (or a [catalog.SharedCache] when configured)
//  3. Canonicalize: records become plays; unusable rows are counted and dropped
//  4. Dedup: plays already stored within the window are discarded
//  5. Persist: new plays are written in a single transaction
//  6. Reconcile: [reconcile.Decide] picks the next data source mode and the live plays to mark superseded
//  7. Trigger: an [aggregate.Event] asks for derived rankings to be rebuilt
//
// Nothing is written before Persist. A failure at any stage ends the run with a
// classified [models.ImportResult] carrying guidance for the user.
//
// # Concurrency
//
// Imports are serialized per user through a [userlock.Locker]. A second import for
// the same user fails with [shared.ErrImportInProgress] instead of queueing.
//
// [JobRunner] runs imports in the background. Each [Job] keeps an append-only log of
// [ProgressUpdate] events that the CLI and the SSE endpoint replay from an offset.
//
// # Progress Reporting
//
// Progress is sent without blocking; a slow reader misses intermediate updates but
// never stalls the import. Parse and resolve updates are throttled with [rate.Sometimes].
package tasks
