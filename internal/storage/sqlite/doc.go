// Package sqlite contains the SQLite repository for finished session
// summaries.
//
// The schema is owned by the embedded migrations under migrations/ and
// applied with golang-migrate. SummaryStore satisfies session.SummarySink,
// so a session manager can persist summaries without knowing about SQL.
package sqlite
