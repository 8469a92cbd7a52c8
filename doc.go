// Package filestream reconstructs application-layer files out of monitored
// protocol streams and runs them through a dynamically configurable set of
// content analyzers.
//
// # Architecture
//
// The module is organized around a per-file streaming pipeline:
//
//	reassembly layer → ingest → manager → record → analyzers
//
// The reassembly/protocol layer (external) emits three kinds of events per
// logical file: byte-range deliveries, gaps (ranges known to exist but never
// observed), and a terminal end-of-file. The Manager routes each event to the
// File Record owning that identifier; the Record tracks byte coverage in a
// bit vector and fans the event out, in attachment order, to every analyzer
// currently attached to the file.
//
// Package layout:
//
//   - bitvector: resizable bit set used for delivered-offset tracking
//   - analyzer: analyzer contract, common bookkeeping, and the type registry
//   - analyzer/extract: extraction analyzer persisting bytes to an append sink
//   - record: per-file reconstruction state and ordered analyzer fan-out
//   - manager: identifier → record index, attach/detach mediation, idle reaping
//   - event: notifications surfaced to the external event runtime
//   - ingest: NATS intake for reassembly-layer events
//   - natsclient: NATS connection management
//   - metric: Prometheus registry and HTTP exposition
//   - config: daemon configuration
//   - errors: classified error handling
//
// # Consistency guarantees
//
// All events for one file identifier are processed strictly one at a time in
// arrival order; analyzers never observe two concurrent callbacks for the
// same file. Attach and detach take effect only at fan-out round boundaries.
// Distinct files are independent and may be processed in parallel.
//
// # Usage
//
//	reg := analyzer.NewRegistry()
//	_ = extract.Register(reg)
//
//	mgr, _ := manager.New(reg, manager.WithLogger(logger))
//	_ = mgr.Deliver("file-1", 0, data)
//	mgr.EndOfFile("file-1")
//
// The filestreamd command (cmd/filestreamd) wires the pipeline to NATS
// subjects and exposes Prometheus metrics.
package filestream
