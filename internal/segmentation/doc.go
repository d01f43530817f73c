// Package segmentation turns audience rule trees into recipient sets.
//
// Matches is the pure evaluator used by in-memory stores and tests. The
// QueryBuilder compiles the same tree into SQL with identical semantics so
// Postgres can count and select without materializing contacts. Resolver is
// the single entry point for previews and full resolution; it unions rule
// matches with an audience's static members.
package segmentation
