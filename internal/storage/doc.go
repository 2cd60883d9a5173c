package storage

// Package storage persists the notification dedupe state so restarts never
// replay already-sent notifications.
//
// It currently supports:
//   - The seen-key set with atomic check-and-record over alias sets
//   - An append-only notification journal (operational history)
