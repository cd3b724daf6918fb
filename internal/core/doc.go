// Package core provides the spreadsheet import and export pipeline for GRC
// workflow records.
//
// The package holds all domain logic independent of transport: web handlers,
// the CLI and tests drive it the same way.
//
// # Architecture
//
//   - Object definitions: registered via [Register], one per importable or
//     exportable object type, listing its columns in export order.
//   - Column handlers: registered per column key via [RegisterHandlers], with
//     per-object-type overrides. A handler parses a raw cell into a value,
//     applies it to a record, and renders the record back to a cell.
//   - Row converter: one per data row. Orders handlers so dependencies parse
//     first, collects diagnostics, and stages the record when the row has no
//     errors.
//   - Pipeline: splits a file into blocks by object type, converts every row
//     of a block, then commits the block's accepted rows in one call to the
//     [Store].
//
// # File layout
//
// A block starts with a row whose first cell is "Object type". The next row
// is the header: its first cell names the object type and the remaining cells
// name columns (a trailing "*" marks a mandatory column). Data rows follow
// with an empty first cell:
//
//	Object type,,,
//	Workflow,Code*,Title*,Manager*
//	,WF-1,Quarterly review,owner@example.com
//
// # Diagnostics
//
// Every problem is a [Diagnostic] with a severity. Errors reject the row and
// nothing from it is written; warnings leave the offending field unchanged
// (or defaulted) and the row is still imported. Problems with the header are
// reported once per block.
//
// Technical errors surfaced to users are mapped with [MapError] to messages
// carrying a support code.
package core
