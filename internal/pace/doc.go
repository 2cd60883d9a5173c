// Package pace holds the pure evaluation core: split resolution across the
// world snapshot and the live event feed, milestone rule merging, the
// notification decision predicate, and quiet-hours evaluation.
//
// Everything here is side-effect free so the watch loop can re-run it on every
// poll tick, and so it can be tested without any upstream I/O.
package pace
