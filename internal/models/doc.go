// Package models defines domain entities and persistence interfaces for the histx import engine.
//
// The package contains two categories of types:
//
// 1. Value types that flow through an import run:
//   - [RawRecord] : One export entry as read, before interpretation
//   - [Play] : The canonical, source-agnostic listen
//   - [ImportResult] : Terminal outcome of a run, with counters and guidance
//
// 2. Persistent Entities: Database-backed models implementing [Model]
//   - [User] : A listener and their active [DataSourceMode]
//   - [ImportJob] : Audit row recording one import run
//
// The Repository[T] interface defines the CRUD operations shared by persistent entities.
package models
