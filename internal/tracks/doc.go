// Package tracks owns the derived segment/track bookkeeping of the tracking
// core.
//
// A Track is identified by the id of its root box. It holds an ordered list
// of temporal segment ids and, per segment, the ordered ids of the boxes it
// addresses. The structure is never persisted: Build rebuilds it from the
// annotation records, and the tracking handlers keep it consistent as the
// store changes.
//
// Invariants maintained by callers through Sort: segment order follows
// segment start time, and each box list follows box time. No operation in
// this package touches the annotation store.
package tracks
