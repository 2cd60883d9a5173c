// Package paceman is the client for the upstream speedrun-statistics API:
// recent-run discovery, per-run world snapshots, and the shared live-runs
// event feed. It owns the wire-format knowledge so the evaluation core never
// sees raw HTTP.
package paceman
