// Package watch runs the per-streamer polling loops: discover the most
// recent run, watch it while it is live (plus a grace window for late
// splits), evaluate every milestone each tick, and hand notify-worthy splits
// to the delivery service exactly once per (streamer, run, milestone).
package watch
