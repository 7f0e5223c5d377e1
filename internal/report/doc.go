// Package report renders review artefacts: a PNG plot of a physician
// demonstration and an HTML timeline of a replayed patient session.
package report
