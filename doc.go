// Package svve implements the ranking core of a vector-search engine.
//
// Given a query embedding and a pluggable vector-database backend, the
// engine produces a final top-K ranked document list in four stages:
//
//  1. The normalized query is split into contiguous coordinate segments and
//     each segment is searched independently against the backend.
//  2. Per-segment result lists are merged by cross-segment voting; documents
//     seen by at least two segments survive the vote gate.
//  3. A corrected query is rebuilt by pseudo-relevance feedback (PRF): a
//     weighted blend of the original query and the survivor centroid.
//  4. The corrected query is re-searched with expanding limits until the
//     top-K slice stabilizes or the backend is exhausted.
//
// The engine performs no I/O of its own beyond the Backend contract, holds
// no state across calls, and never retries a failed backend call. Concrete
// backends (in-memory, callback-driven, Redis, Postgres/pgvector) live
// under internal/backend and are wired by cmd/svve.
//
// Basic usage:
//
//	ids, scores, err := svve.ExecuteSearch(ctx, backend, query, 10)
package svve
