// Package core implements the import pipeline.
//
// This package is the heart of the importer, containing all domain logic
// independent of any transport, format, or storage engine. It can be used
// by web handlers, CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Target Handlers: Registered via [RegisterTarget], each handler
//     interprets one kind of entity field (text, timestamp, link, ...),
//     normalizing values and backing unique-key lookups.
//   - Sources: A [SourceSpec] declares where a source's payload comes
//     from, how it parses, and how record fields map onto entity fields.
//   - Reconciliation: Each record resolves against existing entities,
//     fingerprints its content, and is created, updated, or skipped.
//   - Operations: Import, clear, and expire run in resumable chunks via
//     [Service.RunChunk], each invocation persisting a checkpoint.
//
// # Target Registry
//
// Handlers are registered at init time, usually through a blank import of
// the targets package:
//
//	import _ "github.com/seaward/sluice/internal/core/targets"
//
// A [KindSpec] then binds entity fields to handler names:
//
//	core.KindSpec{
//	    Name: "article",
//	    Fields: []core.FieldSpec{
//	        {Name: "title", Handler: "text", Required: true},
//	        {Name: "published", Handler: "timestamp"},
//	        {Name: "link", Handler: "link"},
//	    },
//	}
//
// # Chunked Operations
//
// One [Service.RunChunk] call processes at most the source's chunk limit
// and returns [StatusRunning] or [StatusComplete]. Any scheduler works:
//
//	for {
//	    res, err := svc.RunChunk(ctx, "my-source", core.OpImport)
//	    if err != nil || res.Status == core.StatusComplete {
//	        break
//	    }
//	}
//
// A logical operation holds its source's persisted lock across all chunks
// and releases it on completion or failure. Progress survives process
// restarts; a new invocation continues from the last checkpoint.
//
// # Failure Isolation
//
// A record that fails to map, validate, or save is counted and recorded
// as a diagnostic; the chunk always runs to completion. Only operation
// level problems (unreachable source, malformed payload, configuration
// errors) finish the run as failed. Either way the run produces a
// [Summary] and a persisted [RunRecord].
package core
