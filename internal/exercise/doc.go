// Package exercise defines the physician-authored exercise definition
// consumed by a session, and the authoring-time validation that lets the
// frame path assume well-typed thresholds.
//
// Definitions are read-only to the engine. They are loaded from JSON or
// TOML documents and resolved by exercise id through a Source.
package exercise
