// Package annotation models the shared annotation store that the tracking
// core reads from and writes to.
//
// Responsibilities: annotation records (boxes and temporal segments), the
// mutation events emitted when records change, and the Store interface the
// tracking core consumes. MemoryStore is the in-process implementation used
// by the boxtrack command and by tests; it dispatches events synchronously
// so listeners observe every mutation before the mutating call returns.
//
// Persistence lives in the annotationdb subpackage.
package annotation
