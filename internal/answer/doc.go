// Package answer resolves a question against a corpus too large for one
// model context, either by map-reduce over large chunks or by retrieval over
// small ones.
//
// Neither engine retries. Model and index failures surface as *PortError and
// an oversized map-reduce result as *BudgetError; "no information" is a
// successful result with found == false.
package answer
