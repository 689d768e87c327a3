// Package stores provides the local reconciliation records kept next to the
// fabric controller: generated identifiers the engine must reuse, and the
// host link inventory. The SQLite implementation runs embedded migrations
// and serializes Clean against per-row writes.
package stores
