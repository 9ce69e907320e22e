// Package repositories implements SQLite persistence for the import engine.
//
// Key Implementations:
//   - [PlayRepository] : Play history with atomic bulk insert and supersede markers
//   - [UserRepository] : Users and their data source mode
//   - [ImportJobRepository] : One audit row per import run
//   - [TrackRepository] : Album and track to artist catalog learned from imports
//   - [AggregateRepository] : Top artists and tracks rebuilt after each import
//
// [Store] combines the play and user repositories into the storage contract used by the import engine.
// Instants are stored as UTC epoch milliseconds so ordering and range queries stay numeric.
package repositories
